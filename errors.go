package auth

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// FailureKind classifies why a sign-in or session operation failed. It is
// internal detail: logs, metrics and activity events see it, callers only see
// ErrSignInFailed.
type FailureKind string

const (
	// FailureNone marks a successful outcome in metrics.
	FailureNone               FailureKind = ""
	FailureMissingCredentials FailureKind = "missing_credentials"
	FailureUnknownUser        FailureKind = "unknown_user"
	FailureInvalidPassword    FailureKind = "invalid_password"
	FailureProviderError      FailureKind = "provider_error"
	FailureStoreUnavailable   FailureKind = "store_unavailable"
	FailureTokenInvalid       FailureKind = "token_invalid"
	// FailureDataIntegrity is a persisted record that violates an invariant,
	// for example a role outside the closed set.
	FailureDataIntegrity FailureKind = "data_integrity"
)

const (
	TextCodeSignInFailed         = "AUTH_SIGNIN_FAILED"
	TextCodeMissingCredentials   = "AUTH_MISSING_CREDENTIALS"
	TextCodeUnknownUser          = "AUTH_UNKNOWN_USER"
	TextCodeInvalidPassword      = "AUTH_INVALID_PASSWORD"
	TextCodeProviderError        = "AUTH_PROVIDER_ERROR"
	TextCodeStoreUnavailable     = "AUTH_STORE_UNAVAILABLE"
	TextCodeTokenInvalid         = "AUTH_TOKEN_INVALID"
	TextCodeTokenExpired         = "AUTH_TOKEN_EXPIRED"
	TextCodeDataIntegrity        = "AUTH_DATA_INTEGRITY"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeUserExists           = "USER_EXISTS"
	TextCodeInvalidRole          = "USER_INVALID_ROLE"
	TextCodePasswordEmpty        = "PASSWORD_EMPTY"
	TextCodePasswordMismatch     = "PASSWORD_MISMATCH"
	TextCodeSigningKeyMissing    = "TOKEN_SIGNING_KEY_MISSING"
	TextCodeStoreNotConfigured   = "USER_STORE_NOT_CONFIGURED"
	TextCodeUserEmailRequired    = "USER_EMAIL_REQUIRED"
	TextCodeUserIdentityRequired = "USER_ID_REQUIRED"
)

// ErrSignInFailed is the only error callers of Auther observe on failure.
var ErrSignInFailed = goerrors.New("authentication failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignInFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound is returned by UserStore.FindByEmail when nothing matches.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUserExists is returned by UserStore.Create on a duplicate email.
var ErrUserExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidRole is returned when a role is outside the closed set.
var ErrInvalidRole = goerrors.New("invalid role", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenInvalid is returned for tokens with a bad signature, shape or claims.
var ErrTokenInvalid = goerrors.New("token invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodePasswordEmpty).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeUnauthorized)

type failureProfile struct {
	category goerrors.Category
	textCode string
	code     int
}

var failureProfiles = map[FailureKind]failureProfile{
	FailureMissingCredentials: {goerrors.CategoryBadInput, TextCodeMissingCredentials, goerrors.CodeBadRequest},
	FailureUnknownUser:        {goerrors.CategoryAuth, TextCodeUnknownUser, goerrors.CodeUnauthorized},
	FailureInvalidPassword:    {goerrors.CategoryAuth, TextCodeInvalidPassword, goerrors.CodeUnauthorized},
	FailureProviderError:      {goerrors.CategoryAuth, TextCodeProviderError, goerrors.CodeUnauthorized},
	FailureStoreUnavailable:   {goerrors.CategoryOperation, TextCodeStoreUnavailable, goerrors.CodeInternal},
	FailureTokenInvalid:       {goerrors.CategoryAuth, TextCodeTokenInvalid, goerrors.CodeUnauthorized},
	FailureDataIntegrity:      {goerrors.CategoryInternal, TextCodeDataIntegrity, goerrors.CodeInternal},
}

// kindsByTextCode classifies rich errors that were never wrapped in an
// AuthFailure.
var kindsByTextCode = map[string]FailureKind{
	TextCodeTokenInvalid:       FailureTokenInvalid,
	TextCodeTokenExpired:       FailureTokenInvalid,
	TextCodeUserNotFound:       FailureUnknownUser,
	TextCodeInvalidRole:        FailureDataIntegrity,
	TextCodePasswordEmpty:      FailureMissingCredentials,
	TextCodePasswordMismatch:   FailureInvalidPassword,
	TextCodeStoreNotConfigured: FailureStoreUnavailable,
}

// AuthFailure is the internal error type carrying a FailureKind.
type AuthFailure struct {
	Kind FailureKind
	Err  error
}

// NewFailure wraps err with kind.
func NewFailure(kind FailureKind, err error) *AuthFailure {
	return &AuthFailure{Kind: kind, Err: err}
}

func (e *AuthFailure) Error() string {
	if e == nil {
		return "auth failure"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AuthFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Category is the go-errors category for the failure kind.
func (e *AuthFailure) Category() goerrors.Category {
	if e == nil {
		return goerrors.CategoryInternal
	}
	if p, ok := failureProfiles[e.Kind]; ok {
		return p.category
	}
	return goerrors.CategoryInternal
}

// TextCode is the stable machine readable code for the failure kind.
func (e *AuthFailure) TextCode() string {
	if e == nil {
		return ""
	}
	return failureProfiles[e.Kind].textCode
}

// Rich converts the failure into a go-errors value for structured logging.
// The source chain keeps the original cause.
func (e *AuthFailure) Rich() *goerrors.Error {
	if e == nil {
		return nil
	}
	p, ok := failureProfiles[e.Kind]
	if !ok {
		p = failureProfile{goerrors.CategoryInternal, "", goerrors.CodeInternal}
	}

	rich := goerrors.New(e.Error(), p.category).WithCode(p.code)
	if p.textCode != "" {
		rich = rich.WithTextCode(p.textCode)
	}
	if e.Err != nil {
		rich.Source = e.Err
	}
	return rich.WithMetadata(e.Metadata())
}

// Metadata returns the failure details for activity events.
func (e *AuthFailure) Metadata() map[string]any {
	if e == nil {
		return nil
	}
	meta := map[string]any{"kind": string(e.Kind)}
	if code := e.TextCode(); code != "" {
		meta["text_code"] = code
	}
	if e.Err != nil {
		meta["error"] = e.Err.Error()
	}
	return meta
}

// FailureKindOf extracts the FailureKind from err. Rich errors are classified
// by text code; anything else defaults to FailureProviderError.
func FailureKindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var f *AuthFailure
	if errors.As(err, &f) {
		return f.Kind
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if kind, ok := kindsByTextCode[rich.TextCode]; ok {
			return kind
		}
	}
	return FailureProviderError
}

// IsFailureKind reports whether err carries kind.
func IsFailureKind(err error, kind FailureKind) bool {
	return err != nil && FailureKindOf(err) == kind
}

// wrapSentinel returns a rich error with the category and text code of
// sentinel whose chain holds both sentinel and cause.
func wrapSentinel(sentinel *goerrors.Error, cause error, meta map[string]any) error {
	source := error(sentinel)
	if cause != nil {
		source = fmt.Errorf("%w: %w", sentinel, cause)
	}
	rich := goerrors.Wrap(source, sentinel.Category, sentinel.Message).
		WithTextCode(sentinel.TextCode).
		WithCode(sentinel.Code)
	if len(meta) > 0 {
		rich = rich.WithMetadata(meta)
	}
	return rich
}
