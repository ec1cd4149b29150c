package auth

import "context"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the Session in the given context.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// HasRole is a convenience check of the context session against min. An
// anonymous context or a session without a role never satisfies it.
func HasRole(ctx context.Context, min Role) bool {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return false
	}
	return session.IsAtLeast(min)
}
