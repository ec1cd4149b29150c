package magiclink

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"

	"github.com/taskflowhq/go-auth"
)

// HTTPController handles the email link routes.
type HTTPController struct {
	provider *Provider
	auther   *auth.Auther
	cookies  *auth.CookieManager
	pages    auth.PagesConfig
}

// NewHTTPController creates the controller.
func NewHTTPController(provider *Provider, auther *auth.Auther, cookies *auth.CookieManager, pages auth.PagesConfig) *HTTPController {
	defaults := auth.DefaultConfig().Pages
	if pages.SignIn == "" {
		pages.SignIn = defaults.SignIn
	}
	if pages.Error == "" {
		pages.Error = defaults.Error
	}
	if pages.VerifyRequest == "" {
		pages.VerifyRequest = defaults.VerifyRequest
	}
	if pages.AfterLogin == "" {
		pages.AfterLogin = defaults.AfterLogin
	}
	return &HTTPController{provider: provider, auther: auther, cookies: cookies, pages: pages}
}

// RegisterRoutes mounts h on app. It must be registered before the social
// controller so /callback/email is not taken for an OAuth provider.
func RegisterRoutes[T any](app router.Router[T], h *HTTPController, mw ...router.MiddlewareFunc) {
	app.Post("/signin/email", h.RequestLink, mw...).SetName("auth.signin.email")
	app.Get("/callback/email", h.Callback, mw...).SetName("auth.callback.email")
}

// LinkRequest is the email sign-in payload.
type LinkRequest struct {
	Email       string `form:"email" json:"email"`
	CallbackURL string `form:"callbackUrl" json:"callbackUrl"`
}

// Validate implements validation.Validatable.
func (r LinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 320)),
	)
}

// RequestLink handles POST /signin/email.
func (h *HTTPController) RequestLink(c router.Context) error {
	payload := new(LinkRequest)
	if err := c.Bind(payload); err != nil {
		return h.requestFailed(c, auth.NewFailure(auth.FailureMissingCredentials, err))
	}
	if err := payload.Validate(); err != nil {
		return h.requestFailed(c, auth.NewFailure(auth.FailureMissingCredentials, err))
	}

	if err := h.provider.RequestLink(c.Context(), payload.Email, payload.CallbackURL); err != nil {
		kind := auth.FailureProviderError
		switch {
		case errors.Is(err, ErrInvalidEmail):
			kind = auth.FailureMissingCredentials
		case errors.Is(err, ErrStoreUnavailable):
			kind = auth.FailureStoreUnavailable
		}
		return h.requestFailed(c, auth.NewFailure(kind, err))
	}

	if auth.WantsJSON(c) {
		return c.JSON(router.StatusOK, map[string]any{"ok": true})
	}
	return c.Redirect(h.pages.VerifyRequest, router.StatusSeeOther)
}

// Callback handles GET /callback/email. The token is consumed whether or not
// the sign-in that follows succeeds.
func (h *HTTPController) Callback(c router.Context) error {
	identity, callbackURL, err := h.provider.Verify(c.Context(), c.Query("token"))
	if err != nil {
		kind := auth.FailureTokenInvalid
		if errors.Is(err, ErrStoreUnavailable) {
			kind = auth.FailureStoreUnavailable
		}
		_ = h.auther.SignInFailed(c.Context(), auth.MethodEmail, auth.NewFailure(kind, err))
		return h.verificationFailed(c)
	}

	result, err := h.auther.SignInWithIdentity(c.Context(), identity)
	if err != nil {
		return h.verificationFailed(c)
	}

	h.cookies.Set(c, result.Token)
	return c.Redirect(auth.SafeRedirect(callbackURL, h.pages.AfterLogin), http.StatusFound)
}

func (h *HTTPController) requestFailed(c router.Context, err error) error {
	_ = h.auther.SignInFailed(c.Context(), auth.MethodEmail, err)
	if auth.WantsJSON(c) {
		return c.JSON(router.StatusBadRequest, map[string]any{
			"error": auth.ErrSignInFailed.Message,
			"code":  auth.ErrSignInFailed.TextCode,
		})
	}
	return c.Redirect(auth.FailureRedirect(h.pages.SignIn, auth.ErrorCodeEmailSignin), router.StatusSeeOther)
}

func (h *HTTPController) verificationFailed(c router.Context) error {
	return c.Redirect(auth.FailureRedirect(h.pages.Error, auth.ErrorCodeVerification), http.StatusFound)
}
