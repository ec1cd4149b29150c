package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/taskflowhq/go-auth"
)

type autherEnv struct {
	users   auth.Users
	db      *bun.DB
	auther  *auth.Auther
	sink    *recordingSink
	metrics *recordingMetrics
}

func newAutherEnv(t *testing.T, opts ...auth.AutherOption) *autherEnv {
	t.Helper()
	users, db := newSeededUsers(t)
	env := &autherEnv{
		users:   users,
		db:      db,
		sink:    &recordingSink{},
		metrics: newRecordingMetrics(),
	}
	base := []auth.AutherOption{
		auth.WithLogger(quietLogger()),
		auth.WithActivitySink(env.sink),
		auth.WithMetrics(env.metrics),
	}
	env.auther = auth.NewAuther(users, newTokenService(nil), append(base, opts...)...)
	return env
}

func (e *autherEnv) lastFailureKind(t *testing.T) auth.FailureKind {
	t.Helper()
	last := e.sink.Last()
	require.Equal(t, auth.ActivityEventSignInFailure, last.EventType)
	return last.Kind
}

func assertGenericFailure(t *testing.T, result *auth.SignInResult, err error) {
	t.Helper()
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Same(t, auth.ErrSignInFailed, err)
}

func TestAuther_CredentialsSuccess(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	admin, err := env.users.FindByEmail(ctx, "admin@taskflow.com")
	require.NoError(t, err)

	result, err := env.auther.SignInWithCredentials(ctx, "admin@taskflow.com", "any-password")
	require.NoError(t, err)

	assert.Equal(t, auth.MethodCredentials, result.Method)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, admin.ID.String(), result.Session.ID)
	assert.Equal(t, auth.RoleAdmin, result.Session.Role)
	assert.Equal(t, "admin@taskflow.com", result.Session.Email)
	assert.Equal(t, "Admin User", result.Session.Name)

	assert.Equal(t, result.Session, env.auther.Sessions().Materialize(result.Token))

	last := env.sink.Last()
	assert.Equal(t, auth.ActivityEventSignInSuccess, last.EventType)
	assert.Equal(t, admin.ID.String(), last.UserID)
	assert.False(t, last.OccurredAt.IsZero())
	assert.Contains(t, env.metrics.SignIns(), signInRecord{Method: auth.MethodCredentials, Kind: auth.FailureNone})
}

func TestAuther_CredentialsFailures(t *testing.T) {
	tests := []struct {
		name     string
		opts     []auth.AutherOption
		email    string
		password string
		wantKind auth.FailureKind
	}{
		{name: "unknown user", email: "ghost@taskflow.com", password: "x", wantKind: auth.FailureUnknownUser},
		{name: "email differs only in case", email: "ALICE@TASKFLOW.COM", password: "x", wantKind: auth.FailureUnknownUser},
		{name: "email with surrounding space", email: " alice@taskflow.com", password: "x", wantKind: auth.FailureUnknownUser},
		{name: "missing password", email: "alice@taskflow.com", password: "", wantKind: auth.FailureMissingCredentials},
		{name: "missing email", email: "", password: "x", wantKind: auth.FailureMissingCredentials},
		{
			name:     "bcrypt policy without stored hash",
			opts:     []auth.AutherOption{auth.WithPasswordPolicy(auth.BcryptPolicy{})},
			email:    "alice@taskflow.com",
			password: "x",
			wantKind: auth.FailureInvalidPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAutherEnv(t, tt.opts...)

			result, err := env.auther.SignInWithCredentials(context.Background(), tt.email, tt.password)

			assertGenericFailure(t, result, err)
			assert.Equal(t, tt.wantKind, env.lastFailureKind(t))
			assert.Contains(t, env.metrics.SignIns(), signInRecord{Method: auth.MethodCredentials, Kind: tt.wantKind})
		})
	}
}

func TestAuther_CredentialsNeverProvision(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	_, err := env.auther.SignInWithCredentials(ctx, "newcomer@taskflow.com", "x")
	assertGenericFailure(t, nil, err)

	_, err = env.users.FindByEmail(ctx, "newcomer@taskflow.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestAuther_BcryptPolicy(t *testing.T) {
	env := newAutherEnv(t, auth.WithPasswordPolicy(auth.BcryptPolicy{}))
	ctx := context.Background()

	hash, err := auth.HashPassword("s3cret!")
	require.NoError(t, err)
	alice, err := env.users.FindByEmail(ctx, "alice@taskflow.com")
	require.NoError(t, err)
	alice.PasswordHash = hash
	_, err = env.users.Update(ctx, alice)
	require.NoError(t, err)

	result, err := env.auther.SignInWithCredentials(ctx, "alice@taskflow.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, result.Session.Role)

	_, err = env.auther.SignInWithCredentials(ctx, "alice@taskflow.com", "guess")
	assertGenericFailure(t, nil, err)
	assert.Equal(t, auth.FailureInvalidPassword, env.lastFailureKind(t))
}

func TestAuther_IdentityProvisioning(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	identity := auth.ExternalIdentity{
		Provider: auth.MethodGitHub,
		Subject:  "583231",
		Email:    "Octocat@GitHub.com",
		Name:     "The Octocat",
		Avatar:   "https://avatars.githubusercontent.com/u/583231",
	}

	first, err := env.auther.SignInWithIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, first.Session.Role)
	assert.Equal(t, "octocat@github.com", first.Session.Email)
	assert.Equal(t, "https://avatars.githubusercontent.com/u/583231", first.Session.Avatar)
	assert.NotEmpty(t, first.Session.ID)

	second, err := env.auther.SignInWithIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	stored, err := env.users.FindByEmail(ctx, "octocat@github.com")
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, stored.ID.String())
}

func TestAuther_IdentityLinksByEmail(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	manager, err := env.users.FindByEmail(ctx, "manager@taskflow.com")
	require.NoError(t, err)

	for _, provider := range []string{auth.MethodGoogle, auth.MethodEmail, auth.MethodGitHub} {
		result, err := env.auther.SignInWithIdentity(ctx, auth.ExternalIdentity{
			Provider: provider,
			Email:    "MANAGER@taskflow.com",
			Name:     "Renamed Upstream",
		})
		require.NoError(t, err, provider)
		assert.Equal(t, manager.ID.String(), result.Session.ID, provider)
		assert.Equal(t, auth.RoleManager, result.Session.Role, provider)
	}

	after, err := env.users.FindByEmail(ctx, "manager@taskflow.com")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Johnson", after.Name)
}

func TestAuther_IdentityWithoutEmail(t *testing.T) {
	env := newAutherEnv(t)

	result, err := env.auther.SignInWithIdentity(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub, Subject: "1"})

	assertGenericFailure(t, result, err)
	assert.Equal(t, auth.FailureProviderError, env.lastFailureKind(t))
}

func TestAuther_UnprovisionedProvider(t *testing.T) {
	env := newAutherEnv(t, auth.WithProvisionedProviders(auth.MethodGitHub))
	ctx := context.Background()

	unknown, err := env.auther.SignInWithIdentity(ctx, auth.ExternalIdentity{Provider: auth.MethodGoogle, Email: "visitor@gmail.com"})
	require.NoError(t, err)
	assert.Empty(t, unknown.Session.ID)
	assert.False(t, unknown.Session.HasRole())

	_, err = env.users.FindByEmail(ctx, "visitor@gmail.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	known, err := env.auther.SignInWithIdentity(ctx, auth.ExternalIdentity{Provider: auth.MethodGoogle, Email: "carol@taskflow.com"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, known.Session.Role)
	assert.NotEmpty(t, known.Session.ID)
}

func TestAuther_StoreTimeout(t *testing.T) {
	sink := &recordingSink{}
	a := auth.NewAuther(newBlockingStore(t), newTokenService(nil),
		auth.WithLogger(quietLogger()),
		auth.WithActivitySink(sink),
		auth.WithStoreTimeout(25*time.Millisecond),
	)

	start := time.Now()
	result, err := a.SignInWithCredentials(context.Background(), "alice@taskflow.com", "x")

	assertGenericFailure(t, result, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, auth.FailureStoreUnavailable, sink.Last().Kind)

	_, err = a.SignInWithIdentity(context.Background(), auth.ExternalIdentity{Provider: auth.MethodGitHub, Email: "x@github.com"})
	assertGenericFailure(t, nil, err)
	assert.Equal(t, auth.FailureStoreUnavailable, sink.Last().Kind)
}

func TestAuther_InvalidPersistedRole(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	_, err := env.db.NewInsert().Model(&auth.User{
		ID:    uuid.New(),
		Email: "corrupt@taskflow.com",
		Role:  auth.Role("ROOT"),
	}).Exec(ctx)
	require.NoError(t, err)

	result, err := env.auther.SignInWithCredentials(ctx, "corrupt@taskflow.com", "x")
	assertGenericFailure(t, result, err)
	assert.Equal(t, auth.FailureDataIntegrity, env.lastFailureKind(t))

	_, err = env.auther.SignInWithIdentity(ctx, auth.ExternalIdentity{Provider: auth.MethodGitHub, Email: "corrupt@taskflow.com"})
	assertGenericFailure(t, nil, err)
	assert.Equal(t, auth.FailureDataIntegrity, env.lastFailureKind(t))
}

func TestAuther_PersistedRoleIsNormalized(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	_, err := env.db.NewInsert().Model(&auth.User{
		ID:    uuid.New(),
		Email: "legacy@taskflow.com",
		Role:  auth.Role(" manager "),
	}).Exec(ctx)
	require.NoError(t, err)

	result, err := env.auther.SignInWithCredentials(ctx, "legacy@taskflow.com", "x")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleManager, result.Session.Role)
}

func TestAuther_SignInFailed(t *testing.T) {
	env := newAutherEnv(t)

	err := env.auther.SignInFailed(context.Background(), auth.MethodGoogle,
		auth.NewFailure(auth.FailureProviderError, errors.New("exchange: invalid_grant")))

	assert.Same(t, auth.ErrSignInFailed, err)
	last := env.sink.Last()
	assert.Equal(t, auth.ActivityEventSignInFailure, last.EventType)
	assert.Equal(t, auth.MethodGoogle, last.Method)
	assert.Equal(t, auth.FailureProviderError, last.Kind)
	assert.Equal(t, "exchange: invalid_grant", last.Metadata["error"])
}

func TestAuther_SignOut(t *testing.T) {
	env := newAutherEnv(t)
	ctx := context.Background()

	result, err := env.auther.SignInWithCredentials(ctx, "bob@taskflow.com", "x")
	require.NoError(t, err)

	env.auther.SignOut(ctx, result.Session)
	last := env.sink.Last()
	assert.Equal(t, auth.ActivityEventSignOut, last.EventType)
	assert.Equal(t, result.Session.ID, last.UserID)
	assert.Equal(t, auth.MethodCredentials, last.Method)

	count := len(env.sink.Events())
	env.auther.SignOut(ctx, nil)
	assert.Len(t, env.sink.Events(), count)
}

func TestAuther_SinkErrorsDoNotFailSignIn(t *testing.T) {
	users, _ := newSeededUsers(t)
	a := auth.NewAuther(users, newTokenService(nil),
		auth.WithLogger(quietLogger()),
		auth.WithActivitySink(auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
			return errors.New("audit backend down")
		})),
	)

	result, err := a.SignInWithCredentials(context.Background(), "carol@taskflow.com", "x")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, result.Session.Role)
}
