package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultStoreTimeout bounds every UserStore call made by the sign-in flow.
const DefaultStoreTimeout = 3 * time.Second

// TimeoutStore decorates a UserStore so that every call is bounded by a
// deadline and every infrastructure error surfaces as FailureStoreUnavailable.
// ErrUserNotFound and ErrUserExists pass through untouched; ErrInvalidRole
// becomes FailureDataIntegrity.
type TimeoutStore struct {
	next    UserStore
	timeout time.Duration
}

var _ UserStore = (*TimeoutStore)(nil)

// NewTimeoutStore wraps next. A non positive timeout uses DefaultStoreTimeout.
func NewTimeoutStore(next UserStore, timeout time.Duration) *TimeoutStore {
	if ts, ok := next.(*TimeoutStore); ok {
		next = ts.next
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &TimeoutStore{next: next, timeout: timeout}
}

// FindByEmail implements UserStore.
func (s *TimeoutStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.call(ctx, "find_by_email", func(ctx context.Context) (*User, error) {
		return s.next.FindByEmail(ctx, email)
	})
}

// Create implements UserStore.
func (s *TimeoutStore) Create(ctx context.Context, user *User) (*User, error) {
	return s.call(ctx, "create", func(ctx context.Context) (*User, error) {
		return s.next.Create(ctx, user)
	})
}

// Update implements UserStore.
func (s *TimeoutStore) Update(ctx context.Context, user *User) (*User, error) {
	return s.call(ctx, "update", func(ctx context.Context) (*User, error) {
		return s.next.Update(ctx, user)
	})
}

type storeResult struct {
	user *User
	err  error
}

// call runs fn on its own goroutine so that a store which ignores context
// cancellation still cannot stall sign-in past the deadline.
func (s *TimeoutStore) call(ctx context.Context, op string, fn func(context.Context) (*User, error)) (*User, error) {
	if s.next == nil {
		return nil, NewFailure(FailureStoreUnavailable,
			goerrors.New("user store not configured", goerrors.CategoryInternal).WithTextCode(TextCodeStoreNotConfigured))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan storeResult, 1)
	go func() {
		user, err := fn(ctx)
		done <- storeResult{user: user, err: err}
	}()

	select {
	case res := <-done:
		return res.user, classifyStoreError(op, res.err)
	case <-ctx.Done():
		return nil, NewFailure(FailureStoreUnavailable, storeError(op, ctx.Err()))
	}
}

func classifyStoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrUserExists):
		return err
	case errors.Is(err, ErrInvalidRole):
		return NewFailure(FailureDataIntegrity, storeError(op, err))
	}
	var f *AuthFailure
	if errors.As(err, &f) {
		return err
	}
	return NewFailure(FailureStoreUnavailable, storeError(op, err))
}

func storeError(op string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "user store "+op).
		WithMetadata(map[string]any{"operation": op})
}
