package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/taskflowhq/go-auth/social"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.SocialProvider for Google.
type Provider struct {
	*social.OAuth2Client
	config Config
}

var _ social.SocialProvider = (*Provider)(nil)

// New creates a new Google provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return &Provider{
		OAuth2Client: social.NewOAuth2Client("google", social.OAuth2Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			CallbackURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			HTTPClient:   cfg.HTTPClient,
		}),
		config: cfg,
	}
}

// Name implements social.SocialProvider.
func (p *Provider) Name() string {
	return "google"
}

// UserInfo implements social.SocialProvider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, providerError(0, "", "", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client(ctx, token).Do(req)
	if err != nil {
		return nil, providerError(0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, providerError(resp.StatusCode, "", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		code, description := apiError(body)
		return nil, providerError(resp.StatusCode, code, description, nil)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, providerError(resp.StatusCode, "invalid_response", "failed to decode userinfo response", err)
	}
	if info.Email == "" {
		return nil, providerError(resp.StatusCode, "email_not_found", "userinfo has no email", nil)
	}

	return mapProfile(&info), nil
}

type googleAPIError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func apiError(body []byte) (string, string) {
	var apiErr googleAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error, apiErr.ErrorDescription
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "google request failed"
	}
	return "", msg
}

func providerError(status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "google",
		Operation:   "user_info",
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
