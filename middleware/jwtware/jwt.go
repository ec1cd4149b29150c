package jwtware

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/taskflowhq/go-auth"
)

// DefaultContextKey is the Locals key holding the *auth.Session.
const DefaultContextKey = "session"

const (
	TextCodeSessionMissing   = "SESSION_MISSING"
	TextCodeInsufficientRole = "SESSION_INSUFFICIENT_ROLE"
)

var (
	// ErrSessionMissing is passed to the error handler when a required
	// session is absent or invalid.
	ErrSessionMissing = goerrors.New("missing or invalid session", goerrors.CategoryAuth).
				WithTextCode(TextCodeSessionMissing).
				WithCode(goerrors.CodeUnauthorized)
	// ErrInsufficientRole is passed to the error handler when the session
	// role is below MinimumRole.
	ErrInsufficientRole = goerrors.New("insufficient role", goerrors.CategoryAuthz).
				WithTextCode(TextCodeInsufficientRole).
				WithCode(goerrors.CodeForbidden)
)

// SessionSource materializes and refreshes session tokens. *auth.SessionIssuer
// implements it.
type SessionSource interface {
	Materialize(raw string) *auth.Session
	Refresh(raw string) (string, *auth.Session, bool)
}

// TokenStore reads and writes the raw token. *auth.CookieManager implements it.
type TokenStore interface {
	Read(c router.Context) string
	Set(c router.Context, token string)
}

// Config configures the middleware.
type Config struct {
	Filter   func(router.Context) bool
	Sessions SessionSource
	Tokens   TokenStore
	// ContextKey defaults to DefaultContextKey.
	ContextKey string
	// Optional lets anonymous requests through with no session in Locals.
	Optional bool
	// MinimumRole rejects sessions below the given role. Sessions without a
	// role never satisfy it.
	MinimumRole auth.Role
	// RefreshAfter re-signs tokens older than this duration. Zero disables
	// sliding sessions.
	RefreshAfter time.Duration
	ErrorHandler router.ErrorHandler
	Now          func() time.Time
}

// New returns a middleware that puts the request session in Locals and in
// the request context.
func New(config Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw := cfg.Tokens.Read(ctx)
			session := cfg.Sessions.Materialize(raw)
			if session == nil {
				if cfg.Optional {
					return ctx.Next()
				}
				return cfg.ErrorHandler(ctx, ErrSessionMissing)
			}

			if cfg.MinimumRole != "" && !session.IsAtLeast(cfg.MinimumRole) {
				return cfg.ErrorHandler(ctx, ErrInsufficientRole)
			}

			if cfg.RefreshAfter > 0 && !session.IssuedAt.IsZero() &&
				cfg.Now().Sub(session.IssuedAt) >= cfg.RefreshAfter {
				if token, refreshed, ok := cfg.Sessions.Refresh(raw); ok {
					cfg.Tokens.Set(ctx, token)
					session = refreshed
				}
			}

			ctx.Locals(cfg.ContextKey, session)
			ctx.SetContext(auth.WithSession(ctx.Context(), session))
			return ctx.Next()
		}
	}
}

// FromContext returns the session stored by the middleware, or nil.
func FromContext(ctx router.Context, key ...string) *auth.Session {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	session, _ := ctx.Locals(k).(*auth.Session)
	return session
}

// GetDefaultConfig fills unset fields.
func GetDefaultConfig(cfg Config) Config {
	if cfg.Sessions == nil {
		panic("jwtware: Sessions is required")
	}
	if cfg.Tokens == nil {
		panic("jwtware: Tokens is required")
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = ErrSessionMissing
	}

	status := router.StatusUnauthorized
	if rich.Code == goerrors.CodeForbidden {
		status = router.StatusForbidden
	}
	return ctx.JSON(status, map[string]string{
		"error": rich.Message,
		"code":  rich.TextCode,
	})
}
