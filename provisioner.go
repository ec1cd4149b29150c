package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AccountProvisioner guarantees a user record exists for a federated
// identity. Linking is by email only: a returning provider login with a known
// email resolves to the existing user whatever provider created it.
type AccountProvisioner struct {
	store  UserStore
	logger Logger
}

// NewAccountProvisioner returns a provisioner over store.
func NewAccountProvisioner(store UserStore, logger Logger) *AccountProvisioner {
	return &AccountProvisioner{store: store, logger: normalizeLogger(logger)}
}

// EnsureAccount returns the user owning identity.Email, creating it with
// DefaultRole when absent. The existing user's attributes, role included, are
// never modified. A concurrent create of the same email resolves to the
// winner's record. Store outages fail closed.
func (p *AccountProvisioner) EnsureAccount(ctx context.Context, identity ExternalIdentity) (*User, error) {
	if !identity.Valid() {
		return nil, NewFailure(FailureProviderError, fmt.Errorf("%s identity has no email", identity.Provider))
	}
	email := strings.TrimSpace(identity.Email)

	user, err := p.store.FindByEmail(ctx, email)
	switch {
	case err == nil && user != nil:
		return user, nil
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return nil, asFailure(FailureStoreUnavailable, err)
	}

	created, err := p.store.Create(ctx, &User{
		Email: email,
		Name:  identity.DisplayName(),
		Image: stringPtr(identity.Avatar),
		Role:  DefaultRole,
	})
	if err == nil {
		p.logger.Info("provisioned account", "email", email, "provider", identity.Provider, "role", DefaultRole)
		return created, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return nil, asFailure(FailureStoreUnavailable, err)
	}

	// lost the race with another sign-in for the same email
	p.logger.Debug("account created concurrently, re-reading", "email", email, "provider", identity.Provider)
	user, err = p.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, asFailure(FailureStoreUnavailable, err)
	}
	return user, nil
}
