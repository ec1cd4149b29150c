package social

import goerrors "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound    = "SOCIAL_PROVIDER_NOT_FOUND"
	TextCodeInvalidState        = "SOCIAL_INVALID_STATE"
	TextCodeStateExpired        = "SOCIAL_STATE_EXPIRED"
	TextCodeTokenExchangeFailed = "SOCIAL_TOKEN_EXCHANGE_FAILED"
	TextCodeUserInfoFailed      = "SOCIAL_USER_INFO_FAILED"
	TextCodeAuthorizationDenied = "SOCIAL_AUTHORIZATION_DENIED"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = goerrors.New("social provider not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = goerrors.New("invalid oauth state", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(goerrors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = goerrors.New("oauth state expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = goerrors.New("token exchange failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = goerrors.New("failed to fetch user info", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthorizationDenied is returned when the provider redirects back with
// an error instead of a code.
var ErrAuthorizationDenied = goerrors.New("authorization denied", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthorizationDenied).
	WithCode(goerrors.CodeForbidden)
