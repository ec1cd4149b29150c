package auth

import "strings"

// Sign-in method names as recorded in logs, metrics and tokens.
const (
	MethodCredentials = "credentials"
	MethodGitHub      = "github"
	MethodGoogle      = "google"
	MethodEmail       = "email"
)

// ExternalIdentity is what an identity provider asserts about the person
// signing in. Email is the only attribute used for account linking.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Avatar   string
}

// Valid reports whether the identity can be linked to an account.
func (i ExternalIdentity) Valid() bool {
	return strings.TrimSpace(i.Provider) != "" && strings.TrimSpace(i.Email) != ""
}

// DisplayName falls back to the local part of the email.
func (i ExternalIdentity) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(i.Email), "@")
	return local
}
