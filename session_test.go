package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func TestSessionIssuer_IssueReadsPersistedRecord(t *testing.T) {
	stored := &auth.User{ID: uuid.New(), Email: "admin@taskflow.com", Name: "Admin User", Role: auth.RoleAdmin}
	store := new(MockUserStore)
	store.On("FindByEmail", mock.Anything, "admin@taskflow.com").Return(stored, nil)

	si := auth.NewSessionIssuer(store, newTokenService(newTestClock()), auth.WithSessionLogger(quietLogger()))

	// the caller's copy is stale: the token must carry the stored id and role
	token, err := si.Issue(context.Background(), &auth.User{Email: "admin@taskflow.com", Name: "Admin User", Role: auth.RoleMember})
	require.NoError(t, err)

	session := si.Materialize(token)
	require.NotNil(t, session)
	assert.Equal(t, stored.ID.String(), session.ID)
	assert.Equal(t, auth.RoleAdmin, session.Role)
	assert.Equal(t, "admin@taskflow.com", session.Email)
	assert.Equal(t, "Admin User", session.Name)
}

func TestSessionIssuer_IssueForMissingUser(t *testing.T) {
	store := new(MockUserStore)
	store.On("FindByEmail", mock.Anything, "ghost@taskflow.com").Return(nil, auth.ErrUserNotFound)

	si := auth.NewSessionIssuer(store, newTokenService(newTestClock()), auth.WithSessionLogger(quietLogger()))

	token, err := si.IssueFor(context.Background(), &auth.User{Email: "ghost@taskflow.com", Name: "Ghost"}, auth.MethodGitHub)
	require.NoError(t, err)

	session := si.Materialize(token)
	require.NotNil(t, session)
	assert.Empty(t, session.ID)
	assert.False(t, session.HasRole())
	assert.False(t, session.IsAtLeast(auth.RoleMember))
	assert.Equal(t, "ghost@taskflow.com", session.Email)
	assert.Equal(t, auth.MethodGitHub, session.Method)
}

func TestSessionIssuer_IssueFailures(t *testing.T) {
	t.Run("store outage", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, errors.New("i/o timeout"))
		si := auth.NewSessionIssuer(store, newTokenService(nil), auth.WithSessionLogger(quietLogger()))

		token, err := si.Issue(context.Background(), &auth.User{Email: "alice@taskflow.com"})
		assert.Empty(t, token)
		assert.True(t, auth.IsFailureKind(err, auth.FailureStoreUnavailable))
	})

	t.Run("no email", func(t *testing.T) {
		store := new(MockUserStore)
		si := auth.NewSessionIssuer(store, newTokenService(nil), auth.WithSessionLogger(quietLogger()))

		_, err := si.Issue(context.Background(), &auth.User{Name: "Nobody"})
		assert.True(t, auth.IsFailureKind(err, auth.FailureUnknownUser))

		_, err = si.Issue(context.Background(), nil)
		assert.True(t, auth.IsFailureKind(err, auth.FailureUnknownUser))
		store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})
}

func TestSessionIssuer_Materialize(t *testing.T) {
	clock := newTestClock()
	tokens := newTokenService(clock)
	metrics := newRecordingMetrics()
	si := auth.NewSessionIssuer(new(MockUserStore), tokens,
		auth.WithSessionLogger(quietLogger()),
		auth.WithSessionMetrics(metrics),
	)

	sign := func(role string) string {
		token, err := tokens.Sign(&auth.SessionClaims{UserID: "u-1", Role: role, Email: "alice@taskflow.com"})
		require.NoError(t, err)
		return token
	}

	valid := sign("MEMBER")
	expired := sign("MEMBER")

	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "valid", raw: valid, ok: true},
		{name: "empty", raw: ""},
		{name: "garbage", raw: "abc.def.ghi"},
		{name: "tampered", raw: tamperPayload(t, valid, `"role":"MEMBER"`, `"role":"ADMIN"`)},
		{name: "role outside the closed set", raw: sign("OWNER")},
		{name: "lower case role", raw: sign("admin")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := si.Materialize(tt.raw)
			if !tt.ok {
				assert.Nil(t, session)
				return
			}
			require.NotNil(t, session)
			assert.Equal(t, "u-1", session.ID)
			assert.Equal(t, auth.RoleMember, session.Role)
			assert.True(t, session.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
		})
	}

	clock.Advance(2 * time.Hour)
	assert.Nil(t, si.Materialize(expired))

	assert.Equal(t, 1, metrics.Sessions(true))
	assert.Equal(t, 6, metrics.Sessions(false))
}

func TestSessionIssuer_Refresh(t *testing.T) {
	clock := newTestClock()
	tokens := newTokenService(clock)
	si := auth.NewSessionIssuer(new(MockUserStore), tokens, auth.WithSessionLogger(quietLogger()))

	original, err := tokens.Sign(&auth.SessionClaims{UserID: "u-2", Role: "MANAGER", Email: "manager@taskflow.com", Method: auth.MethodEmail})
	require.NoError(t, err)
	before := si.Materialize(original)
	require.NotNil(t, before)

	clock.Advance(30 * time.Minute)

	refreshed, session, ok := si.Refresh(original)
	require.True(t, ok)
	assert.NotEqual(t, original, refreshed)
	assert.Equal(t, "u-2", session.ID)
	assert.Equal(t, auth.RoleManager, session.Role)
	assert.Equal(t, auth.MethodEmail, session.Method)
	assert.True(t, session.ExpiresAt.After(before.ExpiresAt))

	_, _, ok = si.Refresh("garbage")
	assert.False(t, ok)

	badRole, err := tokens.Sign(&auth.SessionClaims{Role: "OWNER", Email: "x@taskflow.com"})
	require.NoError(t, err)
	_, _, ok = si.Refresh(badRole)
	assert.False(t, ok)
}
