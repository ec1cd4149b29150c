package social

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-router"

	"github.com/taskflowhq/go-auth"
)

// DefaultStateCookie binds the OAuth state to the browser that started the
// flow.
const DefaultStateCookie = "taskflow.oauth-state"

// HTTPController handles social auth HTTP routes.
type HTTPController struct {
	authenticator *SocialAuthenticator
	cookies       *auth.CookieManager
	config        HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// StateCookie holds the state token between redirect and callback
	// (default: DefaultStateCookie)
	StateCookie string

	// StateTTL bounds the state cookie lifetime (default: 10 minutes)
	StateTTL time.Duration

	// CookieSecure sets the Secure flag on the state cookie
	CookieSecure bool

	// Pages are used for failure redirects
	Pages auth.PagesConfig
}

// NewHTTPController creates a new social auth HTTP controller.
func NewHTTPController(authenticator *SocialAuthenticator, cookies *auth.CookieManager, cfg HTTPConfig) *HTTPController {
	if cfg.StateCookie == "" {
		cfg.StateCookie = DefaultStateCookie
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.Pages.SignIn == "" {
		cfg.Pages = auth.DefaultConfig().Pages
	}
	return &HTTPController{authenticator: authenticator, cookies: cookies, config: cfg}
}

// Router is the route registration subset the controller needs.
type Router interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// RegisterRoutes mounts the controller, usually on the /auth group. Routes
// with a static segment in the :provider position, such as /callback/email,
// must be registered first.
func (c *HTTPController) RegisterRoutes(r Router, mw ...router.MiddlewareFunc) {
	r.Get("/providers", c.ListProviders, mw...).SetName("auth.providers")
	r.Get("/signin/:provider", c.BeginAuth, mw...).SetName("auth.signin.provider")
	r.Get("/callback/:provider", c.Callback, mw...).SetName("auth.callback.provider")
}

// ListProviders returns the configured provider names.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{"providers": c.authenticator.Providers()})
}

// BeginAuth redirects to the provider's consent page.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	provider := ctx.Param("provider")
	if !c.authenticator.HasProvider(provider) {
		return c.unknownProvider(ctx)
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), provider,
		WithRedirectURL(ctx.Query("callbackUrl")),
	)
	if err != nil {
		return ctx.Redirect(auth.FailureRedirect(c.config.Pages.SignIn, auth.ErrorCodeOAuthSignin), router.StatusSeeOther)
	}

	ctx.Cookie(&router.Cookie{
		Name:     c.config.StateCookie,
		Value:    redirect.State,
		Path:     "/",
		Expires:  time.Now().Add(c.config.StateTTL),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Lax",
	})

	return ctx.Redirect(redirect.URL, http.StatusFound)
}

// Callback completes the flow, sets the session cookie and redirects.
func (c *HTTPController) Callback(ctx router.Context) error {
	provider := ctx.Param("provider")
	if !c.authenticator.HasProvider(provider) {
		return c.unknownProvider(ctx)
	}
	state := ctx.Query("state")
	bound := ctx.Cookies(c.config.StateCookie)
	c.clearStateCookie(ctx)

	if errCode := ctx.Query("error"); errCode != "" {
		_ = c.authenticator.Denied(ctx.Context(), provider, errCode, ctx.Query("error_description"))
		return c.fail(ctx)
	}

	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(bound)) != 1 {
		_ = c.authenticator.auther.SignInFailed(ctx.Context(), provider,
			auth.NewFailure(auth.FailureProviderError, fmt.Errorf("%w: state not bound to this browser", ErrInvalidState)))
		return c.fail(ctx)
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), provider, ctx.Query("code"), state)
	if err != nil {
		return c.fail(ctx)
	}

	c.cookies.Set(ctx, result.Token)
	return ctx.Redirect(result.RedirectURL, http.StatusFound)
}

func (c *HTTPController) fail(ctx router.Context) error {
	return ctx.Redirect(auth.FailureRedirect(c.config.Pages.SignIn, auth.ErrorCodeCallback), http.StatusFound)
}

func (c *HTTPController) unknownProvider(ctx router.Context) error {
	return ctx.JSON(http.StatusNotFound, map[string]string{
		"error": ErrProviderNotFound.Message,
		"code":  ErrProviderNotFound.TextCode,
	})
}

func (c *HTTPController) clearStateCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.StateCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Lax",
	})
}
