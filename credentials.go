package auth

import (
	"context"
	"errors"
	"strings"
)

// CredentialVerifier checks an email and password against the UserStore. It
// never creates accounts.
type CredentialVerifier struct {
	store  UserStore
	policy PasswordPolicy
}

// NewCredentialVerifier returns a verifier using policy, or AcceptAnyPassword
// when policy is nil.
func NewCredentialVerifier(store UserStore, policy PasswordPolicy) *CredentialVerifier {
	if policy == nil {
		policy = AcceptAnyPassword{}
	}
	return &CredentialVerifier{store: store, policy: policy}
}

// Verify returns the matching user or an *AuthFailure. An empty email or
// password fails with FailureMissingCredentials without touching the store.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, NewFailure(FailureMissingCredentials, errors.New("email and password are required"))
	}

	user, err := v.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, NewFailure(FailureUnknownUser, err)
		}
		return nil, asFailure(FailureStoreUnavailable, err)
	}
	if user == nil {
		return nil, NewFailure(FailureUnknownUser, ErrUserNotFound)
	}

	if err := v.policy.Check(ctx, user, password); err != nil {
		return nil, asFailure(FailureInvalidPassword, err)
	}

	return user, nil
}

// asFailure keeps an existing classification and otherwise applies kind.
func asFailure(kind FailureKind, err error) error {
	var f *AuthFailure
	if errors.As(err, &f) {
		return err
	}
	return NewFailure(kind, err)
}
