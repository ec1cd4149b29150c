package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultSessionTTL is the lifetime of a freshly signed session token.
const DefaultSessionTTL = 30 * 24 * time.Hour

// TokenService signs and validates session tokens with HS256.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the clock used for iat/exp, mainly for tests.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		ts.logger = logger
	}
}

// NewTokenService creates a new TokenService. A non positive ttl uses
// DefaultSessionTTL.
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience []string, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	ts := &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   jwt.ClaimStrings(audience),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	ts.logger = normalizeLogger(ts.logger)
	return ts
}

// TTL returns the configured token lifetime.
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Sign stamps issuer, audience, iat, exp and jti on claims and signs them.
func (ts *TokenService) Sign(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryBadInput)
	}
	if len(ts.signingKey) == 0 {
		return "", goerrors.New("signing key must not be empty", goerrors.CategoryInternal).
			WithTextCode(TextCodeSigningKeyMissing)
	}

	now := ts.now()
	claims.Issuer = ts.issuer
	claims.Audience = ts.audience
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.ttl))
	claims.ID = ""
	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses and validates a token string, returning structured claims.
// Expired tokens match ErrTokenExpired; anything else ErrTokenInvalid. Both
// come back as rich errors carrying the parser cause.
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrapSentinel(ErrTokenExpired, err, map[string]any{"issuer": ts.issuer})
		}
		return nil, wrapSentinel(ErrTokenInvalid, err, map[string]any{"issuer": ts.issuer})
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, wrapSentinel(ErrTokenInvalid, nil, nil)
	}
	return claims, nil
}
