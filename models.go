package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Email is the unique natural key used for linking.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Image         *string    `bun:"image" json:"image,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// Avatar returns the image URL or an empty string.
func (u *User) Avatar() string {
	if u == nil || u.Image == nil {
		return ""
	}
	return *u.Image
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
