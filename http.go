package auth

import (
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// Error codes appended to the sign-in page on failure. They name the step
// that failed, never the reason.
const (
	ErrorCodeCredentials  = "CredentialsSignin"
	ErrorCodeOAuthSignin  = "OAuthSignin"
	ErrorCodeCallback     = "Callback"
	ErrorCodeEmailSignin  = "EmailSignin"
	ErrorCodeVerification = "Verification"
)

// CookieManager reads and writes the session cookie.
type CookieManager struct {
	cfg CookieConfig
	ttl time.Duration
	now func() time.Time
}

// NewCookieManager returns a manager whose cookies live as long as tokens.
func NewCookieManager(cfg CookieConfig, ttl time.Duration) *CookieManager {
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Cookie.Name
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == "" {
		cfg.SameSite = "Lax"
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CookieManager{cfg: cfg, ttl: ttl, now: time.Now}
}

// Name returns the cookie name.
func (m *CookieManager) Name() string {
	return m.cfg.Name
}

// Set writes token as the session cookie.
func (m *CookieManager) Set(c router.Context, token string) {
	c.Cookie(m.cookie(token, m.now().Add(m.ttl)))
}

// Clear expires the session cookie.
func (m *CookieManager) Clear(c router.Context) {
	c.Cookie(m.cookie("", m.now().Add(-24*time.Hour)))
}

// Read returns the session token from the cookie, falling back to an
// Authorization bearer header for API clients.
func (m *CookieManager) Read(c router.Context) string {
	if token := c.Cookies(m.cfg.Name); token != "" {
		return token
	}
	header := c.GetString("Authorization", "")
	const scheme = "Bearer "
	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}
	return ""
}

func (m *CookieManager) cookie(value string, expires time.Time) *router.Cookie {
	return &router.Cookie{
		Name:     m.cfg.Name,
		Value:    value,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	}
}

// SessionPayload is the JSON shape returned for a session.
func SessionPayload(s *Session) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return map[string]any{
		"user": map[string]any{
			"id":    s.ID,
			"role":  s.Role,
			"name":  s.Name,
			"email": s.Email,
			"image": s.Avatar,
		},
		"expires": s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// FailureRedirect returns page with the error code appended.
func FailureRedirect(page, code string) string {
	return appendQueryParam(page, "error", code)
}

// WantsJSON reports whether the client expects a JSON response rather than a
// redirect: a JSON body, or an Accept header naming JSON but not HTML.
func WantsJSON(c router.Context) bool {
	if strings.HasPrefix(c.GetString("Content-Type", ""), mimeJSON) {
		return true
	}
	accept := c.GetString("Accept", "")
	return strings.Contains(accept, mimeJSON) && !strings.Contains(accept, "text/html")
}

const mimeJSON = "application/json"

// SafeRedirect keeps only same-origin relative paths, falling back to def.
func SafeRedirect(target, def string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return def
	}
	if u, err := url.Parse(target); err != nil || u.Host != "" || u.Scheme != "" {
		return def
	}
	return target
}

func appendQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
