package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the JWT payload of a session token. UserID and Role are
// empty when the user could not be resolved at issuance.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"id,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email"`
	Avatar string `json:"picture,omitempty"`
	// Method is the sign-in method that produced the session.
	Method string `json:"method,omitempty"`
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
