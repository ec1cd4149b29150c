package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func TestAccountProvisioner_ExistingUserUntouched(t *testing.T) {
	admin := &auth.User{ID: uuid.New(), Email: "admin@taskflow.com", Name: "Admin User", Role: auth.RoleAdmin}
	store := new(MockUserStore)
	store.On("FindByEmail", mock.Anything, "admin@taskflow.com").Return(admin, nil)

	p := auth.NewAccountProvisioner(store, quietLogger())
	user, err := p.EnsureAccount(context.Background(), auth.ExternalIdentity{
		Provider: auth.MethodGitHub,
		Email:    "admin@taskflow.com",
		Name:     "Someone Else",
	})

	require.NoError(t, err)
	assert.Equal(t, admin, user)
	assert.Equal(t, auth.RoleAdmin, user.Role)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestAccountProvisioner_CreatesMember(t *testing.T) {
	store := new(MockUserStore)
	store.On("FindByEmail", mock.Anything, "New@TaskFlow.com").Return(nil, auth.ErrUserNotFound)
	store.On("Create", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
		return u.Email == "New@TaskFlow.com" &&
			u.Role == auth.RoleMember &&
			u.Name == "New" &&
			u.Avatar() == "https://avatars.example/new.png"
	})).Return(&auth.User{ID: uuid.New(), Email: "New@TaskFlow.com", Name: "New", Role: auth.RoleMember}, nil)

	p := auth.NewAccountProvisioner(store, quietLogger())
	user, err := p.EnsureAccount(context.Background(), auth.ExternalIdentity{
		Provider: auth.MethodGoogle,
		Email:    "New@TaskFlow.com",
		Avatar:   "https://avatars.example/new.png",
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, auth.RoleMember, user.Role)
	store.AssertExpectations(t)
}

func TestAccountProvisioner_LostRace(t *testing.T) {
	winner := &auth.User{ID: uuid.New(), Email: "race@taskflow.com", Role: auth.RoleMember}
	store := new(MockUserStore)
	store.On("FindByEmail", mock.Anything, "race@taskflow.com").Return(nil, auth.ErrUserNotFound).Once()
	store.On("Create", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: race@taskflow.com", auth.ErrUserExists)).Once()
	store.On("FindByEmail", mock.Anything, "race@taskflow.com").Return(winner, nil).Once()

	p := auth.NewAccountProvisioner(store, quietLogger())
	user, err := p.EnsureAccount(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub, Email: "race@taskflow.com"})

	require.NoError(t, err)
	assert.Equal(t, winner.ID, user.ID)
	store.AssertExpectations(t)
}

func TestAccountProvisioner_FailsClosed(t *testing.T) {
	outage := errors.New("connection reset")

	t.Run("lookup outage", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, outage)

		_, err := auth.NewAccountProvisioner(store, quietLogger()).
			EnsureAccount(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub, Email: "x@taskflow.com"})

		assert.True(t, auth.IsFailureKind(err, auth.FailureStoreUnavailable))
		assert.ErrorIs(t, err, outage)
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("create outage", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, auth.ErrUserNotFound)
		store.On("Create", mock.Anything, mock.Anything).Return(nil, outage)

		_, err := auth.NewAccountProvisioner(store, quietLogger()).
			EnsureAccount(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub, Email: "x@taskflow.com"})

		assert.True(t, auth.IsFailureKind(err, auth.FailureStoreUnavailable))
	})

	t.Run("identity without email", func(t *testing.T) {
		store := new(MockUserStore)

		_, err := auth.NewAccountProvisioner(store, quietLogger()).
			EnsureAccount(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub})

		assert.True(t, auth.IsFailureKind(err, auth.FailureProviderError))
		store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})
}

func TestAccountProvisioner_ConcurrentFirstSignIn(t *testing.T) {
	db := newTestDB(t)
	users := auth.NewUsersRepository(db)
	p := auth.NewAccountProvisioner(users, quietLogger())

	const workers = 8
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := p.EnsureAccount(context.Background(), auth.ExternalIdentity{
				Provider: auth.MethodGitHub,
				Email:    "octocat@github.com",
			})
			errs[i] = err
			if user != nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	count, err := db.NewSelect().Model((*auth.User)(nil)).Where("email = ?", "octocat@github.com").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
