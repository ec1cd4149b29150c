package auth

import (
	"context"
	"errors"
)

// AcceptAnyPassword accepts every non-empty password for an existing user.
//
// UNSAFE: this reproduces the demo behaviour of the TaskFlow prototype where
// knowing a registered email is enough to sign in. Never run it in production;
// use BcryptPolicy or another real check instead. Auther logs a warning at
// construction while it is in use.
type AcceptAnyPassword struct{}

// Check implements PasswordPolicy.
func (AcceptAnyPassword) Check(_ context.Context, _ *User, password string) error {
	if password == "" {
		return NewFailure(FailureMissingCredentials, ErrNoEmptyString)
	}
	return nil
}

// BcryptPolicy compares the submitted password with User.PasswordHash.
type BcryptPolicy struct{}

// Check implements PasswordPolicy.
func (BcryptPolicy) Check(_ context.Context, user *User, password string) error {
	if user == nil || user.PasswordHash == "" {
		return NewFailure(FailureInvalidPassword, ErrMismatchedHashAndPassword)
	}
	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// a corrupt hash is reported the same way as a mismatch
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			err = errors.Join(ErrMismatchedHashAndPassword, err)
		}
		return NewFailure(FailureInvalidPassword, err)
	}
	return nil
}

// PasswordPolicyFunc adapts a function to the PasswordPolicy interface.
type PasswordPolicyFunc func(ctx context.Context, user *User, password string) error

// Check implements PasswordPolicy.
func (f PasswordPolicyFunc) Check(ctx context.Context, user *User, password string) error {
	return f(ctx, user, password)
}

func isUnsafePolicy(p PasswordPolicy) bool {
	switch p.(type) {
	case AcceptAnyPassword, *AcceptAnyPassword:
		return true
	}
	return false
}
