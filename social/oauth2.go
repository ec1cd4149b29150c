package social

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2Client is the authorization code plumbing shared by the providers.
type OAuth2Client struct {
	name       string
	config     *oauth2.Config
	httpClient *http.Client
}

// OAuth2Config describes an OAuth2 client.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
}

// NewOAuth2Client creates a client for provider name.
func NewOAuth2Client(name string, cfg OAuth2Config) *OAuth2Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Client{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: client,
	}
}

// AuthCodeURL builds the consent URL, adding an S256 challenge when a code
// verifier is supplied.
func (c *OAuth2Client) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	applied := ApplyAuthCodeOptions(c.config.Scopes, opts...)

	conf := *c.config
	conf.Scopes = dedupe(applied.Scopes)

	params := []oauth2.AuthCodeOption{}
	if applied.CodeVerifier != "" {
		params = append(params, oauth2.S256ChallengeOption(applied.CodeVerifier))
	}
	if applied.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", applied.Prompt))
	}
	return conf.AuthCodeURL(state, params...)
}

// Exchange trades code for a token.
func (c *OAuth2Client) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	applied := ApplyExchangeOptions(opts...)

	params := []oauth2.AuthCodeOption{}
	if applied.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(applied.CodeVerifier))
	}

	tok, err := c.config.Exchange(c.context(ctx), code, params...)
	if err != nil {
		return nil, NewProviderError(c.name, "exchange", err)
	}

	out := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out, nil
}

// Client returns an HTTP client that authenticates requests with token.
func (c *OAuth2Client) Client(ctx context.Context, token *Token) *http.Client {
	var t oauth2.Token
	if token != nil {
		t = oauth2.Token{AccessToken: token.AccessToken, TokenType: token.TokenType}
	}
	return oauth2.NewClient(c.context(ctx), oauth2.StaticTokenSource(&t))
}

func (c *OAuth2Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
