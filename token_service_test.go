package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflowhq/go-auth"
)

func TestTokenService_SignAndValidate(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	token, err := ts.Sign(&auth.SessionClaims{
		UserID: "4f1c2d9e-0000-4000-8000-000000000001",
		Role:   string(auth.RoleManager),
		Name:   "Sarah Johnson",
		Email:  "manager@taskflow.com",
		Method: auth.MethodCredentials,
	})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "4f1c2d9e-0000-4000-8000-000000000001", claims.UserID)
	assert.Equal(t, claims.UserID, claims.Subject)
	assert.Equal(t, "MANAGER", claims.Role)
	assert.Equal(t, "manager@taskflow.com", claims.Email)
	assert.Equal(t, auth.MethodCredentials, claims.Method)
	assert.Equal(t, "taskflow", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"taskflow-web"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.IssuedAt.Time.Equal(clock.Now()))
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.Now().Add(time.Hour)))
}

func TestTokenService_UniqueTokenIDs(t *testing.T) {
	ts := newTokenService(newTestClock())

	a, err := ts.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)
	b, err := ts.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)

	ca, err := ts.Validate(a)
	require.NoError(t, err)
	cb, err := ts.Validate(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestTokenService_Expired(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	token, err := ts.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryAuth, rich.Category)
	assert.Equal(t, auth.TextCodeTokenExpired, rich.TextCode)
	assert.Equal(t, auth.FailureTokenInvalid, auth.FailureKindOf(err))
}

func TestTokenService_Rejects(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	valid, err := ts.Sign(&auth.SessionClaims{Email: "alice@taskflow.com", Role: string(auth.RoleMember)})
	require.NoError(t, err)

	otherKey := auth.NewTokenService([]byte("another-signing-key-0123456789ab"), time.Hour, "taskflow", []string{"taskflow-web"},
		auth.WithTokenClock(clock.Now))
	foreign, err := otherKey.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)

	otherIssuer := auth.NewTokenService([]byte(testSigningKey), time.Hour, "elsewhere", []string{"taskflow-web"},
		auth.WithTokenClock(clock.Now))
	wrongIssuer, err := otherIssuer.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)

	otherAudience := auth.NewTokenService([]byte(testSigningKey), time.Hour, "taskflow", []string{"mobile"},
		auth.WithTokenClock(clock.Now))
	wrongAudience, err := otherAudience.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.SessionClaims{
		Email: "alice@taskflow.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "taskflow",
			Audience:  jwt.ClaimStrings{"taskflow-web"},
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"tampered role":  tamperPayload(t, valid, `"role":"MEMBER"`, `"role":"ADMIN"`),
		"foreign key":    foreign,
		"wrong issuer":   wrongIssuer,
		"wrong audience": wrongAudience,
		"alg none":       unsigned,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			claims, err := ts.Validate(token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, auth.ErrTokenInvalid)

			var rich *goerrors.Error
			require.True(t, goerrors.As(err, &rich))
			assert.Equal(t, auth.TextCodeTokenInvalid, rich.TextCode)
		})
	}
}

func TestTokenService_SignErrors(t *testing.T) {
	ts := newTokenService(nil)
	_, err := ts.Sign(nil)
	assert.Error(t, err)

	empty := auth.NewTokenService(nil, time.Hour, "taskflow", nil)
	_, err = empty.Sign(&auth.SessionClaims{Email: "alice@taskflow.com"})
	assert.Error(t, err)
}

func TestTokenService_DefaultTTL(t *testing.T) {
	ts := auth.NewTokenService([]byte(testSigningKey), 0, "", nil)
	assert.Equal(t, auth.DefaultSessionTTL, ts.TTL())
	assert.Equal(t, 30*24*time.Hour, ts.TTL())
}

// tamperPayload rewrites the claims segment of token while keeping the
// original signature.
func tamperPayload(t *testing.T, token, old, replacement string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	require.Contains(t, string(payload), old)

	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(strings.Replace(string(payload), old, replacement, 1)))
	return strings.Join(parts, ".")
}
