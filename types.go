package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserStore is the persistence contract the sign-in flow depends on.
type UserStore interface {
	// FindByEmail returns ErrUserNotFound when no record matches.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create returns an error matching ErrUserExists on a duplicate email.
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
}

// PasswordPolicy decides whether a submitted password is acceptable for an
// existing user.
type PasswordPolicy interface {
	Check(ctx context.Context, user *User, password string) error
}

// MetricsRecorder receives sign-in and session outcomes. The metrics package
// provides a Prometheus implementation.
type MetricsRecorder interface {
	RecordSignIn(method string, kind FailureKind)
	RecordSessionMaterialized(ok bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordSignIn(string, FailureKind) {}

func (noopMetrics) RecordSessionMaterialized(bool) {}

func normalizeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// NewLogger returns the service logger. A nil w gives the go-logger console
// logger, with rich errors expanded into attributes. Otherwise records are
// JSON lines on w.
func NewLogger(w io.Writer, debug bool) Logger {
	if w == nil {
		return NewNamedLogger("auth", debug)
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("component", "auth")
}

// NewNamedLogger returns a go-logger child named name.
func NewNamedLogger(name string, debug bool) Logger {
	return NewGLogger(name, debug)
}

// NewGLogger is NewNamedLogger for components that take a glog.Logger.
func NewGLogger(name string, debug bool) glog.Logger {
	level := glog.Info
	if debug {
		level = glog.Debug
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("taskflow"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	).GetLogger(name)
}

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst Logger
)

func defaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerInst = NewNamedLogger("auth", false)
	})
	return defaultLoggerInst
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defaultLogger()
	}
	return l
}
