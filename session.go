package auth

import (
	"context"
	"errors"
	"time"
)

// Session is the per-request view of an authenticated user.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	Avatar    string    `json:"image,omitempty"`
	Method    string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires"`
}

// HasRole reports whether the session carries a role. Sessions issued for a
// user that could not be resolved have none.
func (s *Session) HasRole() bool {
	return s != nil && s.Role != ""
}

// IsAtLeast checks the session role against min.
func (s *Session) IsAtLeast(min Role) bool {
	return s.HasRole() && s.Role.IsAtLeast(min)
}

// SessionIssuer mints session tokens and turns them back into sessions.
type SessionIssuer struct {
	store   UserStore
	tokens  *TokenService
	logger  Logger
	metrics MetricsRecorder
}

// SessionIssuerOption configures a SessionIssuer.
type SessionIssuerOption func(*SessionIssuer)

// WithSessionLogger sets the logger.
func WithSessionLogger(logger Logger) SessionIssuerOption {
	return func(si *SessionIssuer) {
		si.logger = logger
	}
}

// WithSessionMetrics sets the metrics recorder.
func WithSessionMetrics(m MetricsRecorder) SessionIssuerOption {
	return func(si *SessionIssuer) {
		si.metrics = m
	}
}

// NewSessionIssuer creates a new SessionIssuer.
func NewSessionIssuer(store UserStore, tokens *TokenService, opts ...SessionIssuerOption) *SessionIssuer {
	si := &SessionIssuer{store: store, tokens: tokens}
	for _, opt := range opts {
		if opt != nil {
			opt(si)
		}
	}
	si.logger = normalizeLogger(si.logger)
	si.metrics = normalizeMetrics(si.metrics)
	return si
}

// Issue signs a token for user. The id and role are re-read from the store
// by email so that the token reflects the persisted record; when the record
// is gone the token carries no id and no role. Store outages and invalid
// persisted roles fail the issuance.
func (si *SessionIssuer) Issue(ctx context.Context, user *User) (string, error) {
	return si.IssueFor(ctx, user, "")
}

// IssueFor is Issue with the sign-in method recorded in the token.
func (si *SessionIssuer) IssueFor(ctx context.Context, user *User, method string) (string, error) {
	if user == nil || user.Email == "" {
		return "", NewFailure(FailureUnknownUser, errors.New("user has no email"))
	}

	claims := &SessionClaims{
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar(),
		Method: method,
	}

	current, err := si.store.FindByEmail(ctx, claims.Email)
	switch {
	case err == nil && current != nil:
		claims.UserID = current.ID.String()
		claims.Role = string(current.Role)
	case errors.Is(err, ErrUserNotFound), err == nil:
		si.logger.Warn("issuing session for user missing from store", "email", claims.Email)
	default:
		return "", asFailure(FailureStoreUnavailable, err)
	}

	token, err := si.tokens.Sign(claims)
	if err != nil {
		return "", NewFailure(FailureTokenInvalid, err)
	}
	return token, nil
}

// Materialize validates raw and returns its session, or nil when the token is
// empty, tampered, expired or carries a role outside the closed set. It never
// panics or returns an error.
func (si *SessionIssuer) Materialize(raw string) (session *Session) {
	defer func() {
		if r := recover(); r != nil {
			si.logger.Error("session materialization panicked", "panic", r)
			session = nil
		}
		si.metrics.RecordSessionMaterialized(session != nil)
	}()

	return si.decode(raw)
}

func (si *SessionIssuer) decode(raw string) *Session {
	if raw == "" {
		return nil
	}
	claims, err := si.tokens.Validate(raw)
	if err != nil {
		si.logger.Debug("rejected session token", "error", err)
		return nil
	}
	return sessionFromClaims(claims)
}

// Refresh re-signs a still valid token with a fresh expiry. Claims are carried
// over unchanged, so role changes still require a new sign-in.
func (si *SessionIssuer) Refresh(raw string) (string, *Session, bool) {
	claims, err := si.tokens.Validate(raw)
	if err != nil {
		return "", nil, false
	}
	if sessionFromClaims(claims) == nil {
		return "", nil, false
	}

	next := &SessionClaims{
		UserID: claims.UserID,
		Role:   claims.Role,
		Name:   claims.Name,
		Email:  claims.Email,
		Avatar: claims.Avatar,
		Method: claims.Method,
	}
	token, err := si.tokens.Sign(next)
	if err != nil {
		si.logger.Error("failed to refresh session", "error", err)
		return "", nil, false
	}
	return token, sessionFromClaims(next), true
}

func sessionFromClaims(claims *SessionClaims) *Session {
	if claims == nil {
		return nil
	}

	var role Role
	if claims.Role != "" {
		r, ok := ParseRole(claims.Role)
		if !ok {
			return nil
		}
		role = r
	}

	s := &Session{
		ID:     claims.UserID,
		Role:   role,
		Name:   claims.Name,
		Email:  claims.Email,
		Avatar: claims.Avatar,
		Method: claims.Method,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}
