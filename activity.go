package auth

import (
	"context"
	"time"
)

// ActivityEventType names an audited sign-in lifecycle step.
type ActivityEventType string

const (
	ActivityEventSignInSuccess ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure ActivityEventType = "auth.signin.failure"
	ActivityEventSignOut       ActivityEventType = "auth.signout"
)

// ActivityEvent is one audit record. Failures carry Kind and usually no
// UserID, since the account may not exist.
type ActivityEvent struct {
	EventType  ActivityEventType
	Method     string
	UserID     string
	Email      string
	Kind       FailureKind
	Metadata   map[string]any
	OccurredAt time.Time
}

// Failed reports whether the event records a rejected sign-in.
func (e ActivityEvent) Failed() bool {
	return e.EventType == ActivityEventSignInFailure
}

// ActivitySink receives audit events. Recording is best effort: the Auther
// logs a sink error and carries on.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to ActivitySink. A nil func drops
// events.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

func sessionEvent(kind ActivityEventType, s *Session) ActivityEvent {
	return ActivityEvent{EventType: kind, Method: s.Method, UserID: s.ID, Email: s.Email}
}

func failureEvent(method, email string, kind FailureKind, meta map[string]any) ActivityEvent {
	return ActivityEvent{
		EventType: ActivityEventSignInFailure,
		Method:    method,
		Email:     email,
		Kind:      kind,
		Metadata:  meta,
	}
}
