package auth

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces generic overrides: TASKFLOW_COOKIE__NAME sets
// cookie.name.
const EnvPrefix = "TASKFLOW_"

// envAliases maps the deployment variable names to config keys.
var envAliases = map[string]string{
	"AUTH_SECRET":           "secret",
	"NEXTAUTH_SECRET":       "secret",
	"NEXTAUTH_URL":          "base_url",
	"AUTH_URL":              "base_url",
	"GITHUB_ID":             "providers.github.client_id",
	"GITHUB_SECRET":         "providers.github.client_secret",
	"GOOGLE_CLIENT_ID":      "providers.google.client_id",
	"GOOGLE_CLIENT_SECRET":  "providers.google.client_secret",
	"EMAIL_SERVER_HOST":     "email.host",
	"EMAIL_SERVER_PORT":     "email.port",
	"EMAIL_SERVER_USER":     "email.user",
	"EMAIL_SERVER_PASSWORD": "email.password",
	"EMAIL_FROM":            "email.from",
	"DATABASE_URL":          "database.dsn",
	"REDIS_URL":             "redis.url",
	"PORT":                  "http.port",
}

// LoadConfig layers defaults, an optional YAML file at path and the
// environment, then normalizes and validates the result.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(confmap.Provider(defaultsMap(defaults), "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	if port := k.String("http.port"); port != "" {
		_ = k.Set("http.addr", ":"+port)
	}

	cfg := defaults
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey returns the config key for an environment variable, or an empty
// string to skip it.
func envKey(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}
	if rest, ok := strings.CutPrefix(name, EnvPrefix); ok && rest != "" {
		return strings.ReplaceAll(strings.ToLower(rest), "__", ".")
	}
	return ""
}

func defaultsMap(c Config) map[string]any {
	return map[string]any{
		"issuer":                  c.Issuer,
		"base_url":                c.BaseURL,
		"session_ttl":             c.SessionTTL.String(),
		"refresh_after":           c.RefreshAfter.String(),
		"store_timeout":           c.StoreTimeout.String(),
		"password_policy":         c.PasswordPolicy,
		"http.addr":               c.HTTP.Addr,
		"http.shutdown_timeout":   c.HTTP.ShutdownTimeout.String(),
		"cookie.name":             c.Cookie.Name,
		"cookie.path":             c.Cookie.Path,
		"cookie.same_site":        c.Cookie.SameSite,
		"pages.sign_in":           c.Pages.SignIn,
		"pages.error":             c.Pages.Error,
		"pages.verify_request":    c.Pages.VerifyRequest,
		"pages.after_login":       c.Pages.AfterLogin,
		"database.driver":         c.Database.Driver,
		"database.dsn":            c.Database.DSN,
		"email.port":              c.Email.Port,
		"email.token_ttl":         c.Email.TokenTTL.String(),
		"providers.github.scopes": []string{"read:user", "user:email"},
		"providers.google.scopes": []string{"openid", "email", "profile"},
	}
}
