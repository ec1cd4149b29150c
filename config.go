package auth

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Password policy names accepted in configuration.
const (
	PolicyAcceptAny = "accept-any"
	PolicyBcrypt    = "bcrypt"
)

// Config holds every setting of the sign-in service. It is passed explicitly
// at construction time; nothing reads the environment after LoadConfig.
type Config struct {
	Debug          bool            `koanf:"debug"`
	Secret         string          `koanf:"secret"`
	Issuer         string          `koanf:"issuer"`
	Audience       []string        `koanf:"audience"`
	BaseURL        string          `koanf:"base_url"`
	SessionTTL     time.Duration   `koanf:"session_ttl"`
	RefreshAfter   time.Duration   `koanf:"refresh_after"`
	StoreTimeout   time.Duration   `koanf:"store_timeout"`
	PasswordPolicy string          `koanf:"password_policy"`
	HTTP           HTTPConfig      `koanf:"http"`
	Cookie         CookieConfig    `koanf:"cookie"`
	Pages          PagesConfig     `koanf:"pages"`
	Database       DatabaseConfig  `koanf:"database"`
	Redis          RedisConfig     `koanf:"redis"`
	Providers      ProvidersConfig `koanf:"providers"`
	Email          EmailConfig     `koanf:"email"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string `koanf:"name"`
	Domain   string `koanf:"domain"`
	Path     string `koanf:"path"`
	Secure   bool   `koanf:"secure"`
	SameSite string `koanf:"same_site"`
}

// PagesConfig holds the pages sign-in failures redirect to.
type PagesConfig struct {
	SignIn        string `koanf:"sign_in"`
	Error         string `koanf:"error"`
	VerifyRequest string `koanf:"verify_request"`
	AfterLogin    string `koanf:"after_login"`
}

// DatabaseConfig selects the user store backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Seed   bool   `koanf:"seed"`
}

// RedisConfig points at the Redis instance holding email link tokens. An
// empty URL keeps tokens in memory.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// ProvidersConfig groups the OAuth providers.
type ProvidersConfig struct {
	GitHub OAuthProviderConfig `koanf:"github"`
	Google OAuthProviderConfig `koanf:"google"`
}

// OAuthProviderConfig holds OAuth client credentials.
type OAuthProviderConfig struct {
	Enabled      bool     `koanf:"enabled"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	Scopes       []string `koanf:"scopes"`
}

// EmailConfig configures the email link provider and its SMTP transport.
type EmailConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	User     string        `koanf:"user"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:         "taskflow",
		SessionTTL:     DefaultSessionTTL,
		RefreshAfter:   24 * time.Hour,
		StoreTimeout:   DefaultStoreTimeout,
		PasswordPolicy: PolicyAcceptAny,
		BaseURL:        "http://localhost:3000",
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Cookie: CookieConfig{
			Name:     "taskflow.session-token",
			Path:     "/",
			SameSite: "Lax",
		},
		Pages: PagesConfig{
			SignIn:        "/auth/signin",
			Error:         "/auth/error",
			VerifyRequest: "/auth/verify-request",
			AfterLogin:    "/",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "file:taskflow.db?cache=shared",
		},
		Email: EmailConfig{
			Port:     587,
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Normalize derives implicit settings: a provider with any credential set is
// enabled, and a postgres URL selects the postgres driver.
func (c *Config) Normalize() {
	for _, p := range []*OAuthProviderConfig{&c.Providers.GitHub, &c.Providers.Google} {
		if p.ClientID != "" || p.ClientSecret != "" {
			p.Enabled = true
		}
	}
	if c.Email.Host != "" || c.Email.From != "" {
		c.Email.Enabled = true
	}
	dsn := strings.ToLower(c.Database.DSN)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		c.Database.Driver = DriverPostgres
	}
	c.PasswordPolicy = strings.ToLower(strings.TrimSpace(c.PasswordPolicy))
}

// Validate returns an error for any configuration that must stop startup.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.SessionTTL, validation.Required),
		validation.Field(&c.StoreTimeout, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.PasswordPolicy, validation.In(PolicyAcceptAny, PolicyBcrypt)),
		validation.Field(&c.Cookie),
		validation.Field(&c.Database),
		validation.Field(&c.Providers),
		validation.Field(&c.Email),
	)
}

// Validate implements validation.Validatable.
func (c CookieConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.SameSite, validation.In("Lax", "Strict", "None", "lax", "strict", "none")),
	)
}

// Validate implements validation.Validatable.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (c ProvidersConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.GitHub),
		validation.Field(&c.Google),
	)
}

// Validate implements validation.Validatable. A disabled provider is always
// valid; an enabled one needs both credentials.
func (c OAuthProviderConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
	)
}

// Validate implements validation.Validatable. The email provider needs a mail
// transport and a sender address.
func (c EmailConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.From, validation.Required, validation.By(validateAddress)),
		validation.Field(&c.TokenTTL, validation.Required),
	)
}

func validateAddress(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("must be a valid email address")
	}
	return nil
}
