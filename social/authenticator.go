package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/taskflowhq/go-auth"
)

// SocialAuthenticator orchestrates the OAuth leg of federated sign-in and
// hands the resulting identity to auth.Auther.
type SocialAuthenticator struct {
	providers    map[string]SocialProvider
	stateManager StateManager
	auther       *auth.Auther
	config       SocialAuthConfig
}

// SocialAuthConfig configures the social authenticator.
type SocialAuthConfig struct {
	DefaultRedirectURL string
	StateSecret        string
	StateTTL           time.Duration
}

// SocialAuthOption configures the social authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator creates a new social authenticator.
func NewSocialAuthenticator(auther *auth.Auther, config SocialAuthConfig, opts ...SocialAuthOption) *SocialAuthenticator {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.DefaultRedirectURL == "" {
		cfg.DefaultRedirectURL = "/"
	}

	sa := &SocialAuthenticator{
		providers: make(map[string]SocialProvider),
		auther:    auther,
		config:    cfg,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.stateManager == nil {
		sa.stateManager = NewStateManagerFromSecret(cfg.StateSecret, cfg.StateTTL)
	}

	return sa
}

// WithProvider registers a social provider.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.stateManager = sm
	}
}

// AuthRedirect is the outcome of BeginAuth.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult is the outcome of a completed federated sign-in.
type AuthResult struct {
	*auth.SignInResult
	Provider    string
	Profile     *SocialProfile
	RedirectURL string
}

// BeginAuthOption configures BeginAuth.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirectURL string
}

// WithRedirectURL sets where the browser lands after sign-in. Only relative
// paths are kept.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *SocialAuthenticator) BeginAuth(ctx context.Context, providerName string, opts ...BeginAuthOption) (*AuthRedirect, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	cfg := &beginAuthConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	now := time.Now()
	state := &OAuthState{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  auth.SafeRedirect(cfg.redirectURL, sa.config.DefaultRedirectURL),
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(sa.config.StateTTL).Unix(),
	}

	stateToken, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(stateToken, WithCodeVerifier(codeVerifier)),
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback. Any failure is
// recorded through the Auther and surfaces as auth.ErrSignInFailed.
func (sa *SocialAuthenticator) CompleteAuth(ctx context.Context, providerName, code, stateToken string) (*AuthResult, error) {
	state, provider, err := sa.resolve(providerName, stateToken)
	if err != nil {
		return nil, sa.auther.SignInFailed(ctx, providerName, auth.NewFailure(auth.FailureProviderError, err))
	}

	if code == "" {
		return nil, sa.auther.SignInFailed(ctx, providerName,
			auth.NewFailure(auth.FailureProviderError, fmt.Errorf("%w: missing code", ErrTokenExchangeFailed)))
	}

	token, err := provider.Exchange(ctx, code, WithExchangeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, sa.auther.SignInFailed(ctx, providerName,
			auth.NewFailure(auth.FailureProviderError, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)))
	}

	profile, err := provider.UserInfo(ctx, token)
	if err == nil && profile == nil {
		err = errors.New("provider returned no profile")
	}
	if err != nil {
		return nil, sa.auther.SignInFailed(ctx, providerName,
			auth.NewFailure(auth.FailureProviderError, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)))
	}
	if profile.Provider == "" {
		profile.Provider = providerName
	}

	result, err := sa.auther.SignInWithIdentity(ctx, profile.ExternalIdentity())
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		SignInResult: result,
		Provider:     providerName,
		Profile:      profile,
		RedirectURL:  state.RedirectURL,
	}, nil
}

// Denied records a provider redirect that carried an error instead of a code.
func (sa *SocialAuthenticator) Denied(ctx context.Context, providerName, code, description string) error {
	return sa.auther.SignInFailed(ctx, providerName, auth.NewFailure(auth.FailureProviderError,
		wrapProviderError(ErrAuthorizationDenied, providerName, "authorize", &ProviderError{
			Code:        code,
			Description: description,
		})))
}

func (sa *SocialAuthenticator) resolve(providerName, stateToken string) (*OAuthState, SocialProvider, error) {
	if sa.stateManager == nil {
		return nil, nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) || errors.Is(err, ErrInvalidState) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if state.Provider != providerName {
		return nil, nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}
	return state, provider, nil
}

// HasProvider reports whether name is registered.
func (sa *SocialAuthenticator) HasProvider(name string) bool {
	_, ok := sa.providers[name]
	return ok
}

// Providers returns the registered provider names, sorted.
func (sa *SocialAuthenticator) Providers() []string {
	names := make([]string, 0, len(sa.providers))
	for name := range sa.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
