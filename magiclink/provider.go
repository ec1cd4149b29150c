package magiclink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/taskflowhq/go-auth"
)

const (
	// DefaultCallbackPath is where links point, relative to the base URL.
	DefaultCallbackPath = "/auth/callback/email"
	// DefaultTokenTTL bounds how long a link stays usable.
	DefaultTokenTTL = 24 * time.Hour
)

// ErrInvalidEmail is returned by RequestLink for a malformed address.
var ErrInvalidEmail = errors.New("invalid email address")

// Config configures the email link provider.
type Config struct {
	BaseURL      string
	CallbackPath string
	From         string
	Subject      string
	TokenTTL     time.Duration
}

// Provider sends single use sign-in links and verifies them. A verified link
// yields an identity for auth.Auther with the email as the only proof.
type Provider struct {
	store  Store
	mailer Mailer
	config Config
	logger auth.Logger
	now    func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l auth.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a Provider.
func NewProvider(store Store, mailer Mailer, cfg Config, opts ...Option) *Provider {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = DefaultCallbackPath
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Subject == "" {
		cfg.Subject = "Sign in to TaskFlow"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &Provider{store: store, mailer: mailer, config: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = auth.NewLogger(nil, false)
	}
	return p
}

// RequestLink stores a fresh token for email and mails the link. The
// callbackURL is carried through the token and must be a relative path.
func (p *Provider) RequestLink(ctx context.Context, email, callbackURL string) error {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate link token: %w", err)
	}

	record := Record{
		Email:       email,
		CallbackURL: auth.SafeRedirect(callbackURL, ""),
		CreatedAt:   p.now().UTC(),
	}
	if err := p.store.Save(ctx, token, record, p.config.TokenTTL); err != nil {
		return err
	}

	link := p.link(token, email)
	msg := Message{
		From:    p.config.From,
		To:      email,
		Subject: p.config.Subject,
		Text:    fmt.Sprintf("Sign in to TaskFlow:\n\n%s\n\nThe link expires in %s and works once.\n", link, p.config.TokenTTL),
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send sign-in email: %w", err)
	}

	p.logger.Debug("sign-in link sent", "email", email)
	return nil
}

// Verify consumes token and returns the identity it proves along with the
// callback URL stored with it.
func (p *Provider) Verify(ctx context.Context, token string) (auth.ExternalIdentity, string, error) {
	if strings.TrimSpace(token) == "" {
		return auth.ExternalIdentity{}, "", ErrTokenNotFound
	}

	record, err := p.store.Consume(ctx, token)
	if err != nil {
		return auth.ExternalIdentity{}, "", err
	}

	identity := auth.ExternalIdentity{
		Provider: auth.MethodEmail,
		Subject:  record.Email,
		Email:    record.Email,
	}
	return identity, record.CallbackURL, nil
}

func (p *Provider) link(token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return p.config.BaseURL + p.config.CallbackPath + "?" + q.Encode()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
