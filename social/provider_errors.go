package social

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

// ProviderError is a failed call to an identity provider. Status is the HTTP
// status when one was seen, Code and Description the provider's own error
// fields.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := strings.TrimSpace(e.Provider + " " + e.Operation)
	if scope == "" {
		scope = "provider"
	}

	switch {
	case e.Description != "":
		return scope + " failed: " + e.Description
	case e.Code != "":
		return scope + " failed: " + e.Code
	case e.Err != nil:
		return scope + " failed: " + e.Err.Error()
	}
	return scope + " failed"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata lists the non empty fields for activity events and logs.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	for k, v := range map[string]string{
		"provider":    e.Provider,
		"operation":   e.Operation,
		"code":        e.Code,
		"description": e.Description,
	} {
		if v != "" {
			meta[k] = v
		}
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	return meta
}

// Retryable reports whether the provider failed on its side and the user can
// simply try again.
func (e *ProviderError) Retryable() bool {
	return e != nil && (e.Status == 429 || e.Status >= 500)
}

// NewProviderError normalizes err from a provider call. Token endpoint
// failures reported by x/oauth2 keep their status and error code.
func NewProviderError(provider, operation string, err error) *ProviderError {
	var existing *ProviderError
	if errors.As(err, &existing) {
		out := *existing
		if out.Provider == "" {
			out.Provider = provider
		}
		if out.Operation == "" {
			out.Operation = operation
		}
		return &out
	}

	out := &ProviderError{Provider: provider, Operation: operation, Err: err}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		out.Code = rerr.ErrorCode
		out.Description = rerr.ErrorDescription
		if rerr.Response != nil {
			out.Status = rerr.Response.StatusCode
		}
	}
	return out
}

// wrapProviderError chains base and the normalized provider error. A
// retryable provider failure is tagged as an operation error instead of an
// auth error so logs separate outages from rejected sign-ins.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if err == nil {
		return base
	}

	perr := NewProviderError(provider, operation, err)
	category := base.Category
	if perr.Retryable() {
		category = goerrors.CategoryOperation
	}

	return goerrors.Wrap(fmt.Errorf("%w: %w", base, perr), category, base.Message+": "+perr.Error()).
		WithTextCode(base.TextCode).
		WithMetadata(perr.Metadata())
}
