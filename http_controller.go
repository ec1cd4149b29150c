package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
)

// HTTPController exposes credential sign-in, session lookup and sign-out.
type HTTPController struct {
	auther  *Auther
	cookies *CookieManager
	pages   PagesConfig
	logger  Logger
}

// NewHTTPController creates the controller.
func NewHTTPController(auther *Auther, cookies *CookieManager, pages PagesConfig, logger Logger) *HTTPController {
	if pages.SignIn == "" {
		pages.SignIn = DefaultConfig().Pages.SignIn
	}
	if pages.AfterLogin == "" {
		pages.AfterLogin = "/"
	}
	return &HTTPController{
		auther:  auther,
		cookies: cookies,
		pages:   pages,
		logger:  normalizeLogger(logger),
	}
}

// RegisterAuthRoutes mounts h on app, usually the /auth group.
func RegisterAuthRoutes[T any](app router.Router[T], h *HTTPController, mw ...router.MiddlewareFunc) {
	app.Post("/signin/credentials", h.SignInCredentials, mw...).SetName("auth.signin.credentials")
	app.Get("/session", h.Session, mw...).SetName("auth.session")
	app.Post("/signout", h.SignOut, mw...).SetName("auth.signout")
}

// CredentialsRequest is the credential sign-in payload.
type CredentialsRequest struct {
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	CallbackURL string `form:"callbackUrl" json:"callbackUrl"`
}

// Validate checks the payload shape. Missing email or password is left to
// the sign-in flow so it is classified and recorded like any other failure.
func (r CredentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Length(0, 320)),
		validation.Field(&r.Password, validation.Length(0, 1024)),
		validation.Field(&r.CallbackURL, validation.By(validateRelativePath)),
	)
}

// SignInCredentials handles POST /signin/credentials.
func (h *HTTPController) SignInCredentials(c router.Context) error {
	payload := new(CredentialsRequest)
	if err := c.Bind(payload); err != nil {
		_ = h.auther.SignInFailed(c.Context(), MethodCredentials, NewFailure(FailureMissingCredentials, err))
		return h.credentialsFailed(c)
	}
	if err := payload.Validate(); err != nil {
		_ = h.auther.SignInFailed(c.Context(), MethodCredentials, NewFailure(FailureMissingCredentials, err))
		return h.credentialsFailed(c)
	}

	result, err := h.auther.SignInWithCredentials(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return h.credentialsFailed(c)
	}

	h.cookies.Set(c, result.Token)
	if WantsJSON(c) {
		return c.JSON(router.StatusOK, SessionPayload(result.Session))
	}
	return c.Redirect(SafeRedirect(payload.CallbackURL, h.pages.AfterLogin), router.StatusSeeOther)
}

// Session handles GET /session. An absent or invalid session is an empty
// object, never an error.
func (h *HTTPController) Session(c router.Context) error {
	session := h.auther.Sessions().Materialize(h.cookies.Read(c))
	return c.JSON(router.StatusOK, SessionPayload(session))
}

// SignOut handles POST /signout.
func (h *HTTPController) SignOut(c router.Context) error {
	session := h.auther.Sessions().Materialize(h.cookies.Read(c))
	h.auther.SignOut(c.Context(), session)
	h.cookies.Clear(c)

	if WantsJSON(c) {
		return c.JSON(router.StatusOK, map[string]any{"ok": true})
	}
	return c.Redirect(h.pages.SignIn, router.StatusSeeOther)
}

func (h *HTTPController) credentialsFailed(c router.Context) error {
	if WantsJSON(c) {
		return c.JSON(router.StatusUnauthorized, map[string]any{
			"error": ErrSignInFailed.Message,
			"code":  ErrSignInFailed.TextCode,
		})
	}
	return c.Redirect(FailureRedirect(h.pages.SignIn, ErrorCodeCredentials), router.StatusSeeOther)
}

func validateRelativePath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if SafeRedirect(s, "") == "" {
		return errors.New("must be a relative path")
	}
	return nil
}
