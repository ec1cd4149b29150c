package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"

	"github.com/taskflowhq/go-auth"
	"github.com/taskflowhq/go-auth/activitymap"
	"github.com/taskflowhq/go-auth/magiclink"
	"github.com/taskflowhq/go-auth/metrics"
	"github.com/taskflowhq/go-auth/middleware/csrf"
	"github.com/taskflowhq/go-auth/middleware/jwtware"
	"github.com/taskflowhq/go-auth/social"
	"github.com/taskflowhq/go-auth/social/providers/github"
	"github.com/taskflowhq/go-auth/social/providers/google"
)

// ConfigPathEnv names the optional YAML config file.
const ConfigPathEnv = "TASKFLOW_CONFIG"

// App is the wired sign-in service.
type App struct {
	cfg      *auth.Config
	logger   auth.Logger
	db       *bun.DB
	users    auth.Users
	auther   *auth.Auther
	cookies  *auth.CookieManager
	registry *prometheus.Registry
	links    magiclink.Store
	server   *fiber.App
	srv      router.Server[*fiber.App]
	closers  []func() error
}

type options struct {
	logWriter io.Writer
	db        *bun.DB
	mailer    magiclink.Mailer
	linkStore magiclink.Store
	providers []social.SocialProvider
}

// Option overrides a dependency, mostly for tests.
type Option func(*options)

// WithLogWriter sends JSON logs to w instead of the console logger.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithDB uses db instead of opening cfg.Database. The caller closes it.
func WithDB(db *bun.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithMailer replaces the SMTP mailer.
func WithMailer(m magiclink.Mailer) Option {
	return func(o *options) {
		o.mailer = m
	}
}

// WithLinkStore replaces the email link token store.
func WithLinkStore(s magiclink.Store) Option {
	return func(o *options) {
		o.linkStore = s
	}
}

// WithSocialProviders replaces the providers built from cfg.Providers.
func WithSocialProviders(providers ...social.SocialProvider) Option {
	return func(o *options) {
		o.providers = providers
	}
}

// New wires every component from cfg. The database schema is created when
// missing and demo users are seeded when cfg.Database.Seed is set.
func New(ctx context.Context, cfg *auth.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	a := &App{cfg: cfg, logger: auth.NewLogger(o.logWriter, cfg.Debug)}

	if err := a.openDatabase(ctx, o.db); err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(a.registry)

	tokens := auth.NewTokenService([]byte(cfg.Secret), cfg.SessionTTL, cfg.Issuer, cfg.Audience,
		auth.WithTokenLogger(a.logger),
	)
	a.auther = auth.NewAuther(a.users, tokens,
		auth.WithPasswordPolicy(passwordPolicy(cfg.PasswordPolicy)),
		auth.WithStoreTimeout(cfg.StoreTimeout),
		auth.WithLogger(a.logger),
		auth.WithMetrics(collector),
		auth.WithActivitySink(activityLogger(a.logger)),
	)
	a.cookies = auth.NewCookieManager(cfg.Cookie, cfg.SessionTTL)

	if err := a.routes(o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openDatabase(ctx context.Context, db *bun.DB) error {
	if db == nil {
		opened, closer, err := openPersistence(ctx, a.cfg)
		if err != nil {
			return err
		}
		db = opened
		a.closers = append(a.closers, closer)
	} else if err := auth.Migrate(ctx, db); err != nil {
		return err
	}
	a.db = db

	a.users = auth.NewUsersRepository(db)
	if a.cfg.Database.Seed {
		if _, err := auth.SeedDemoUsers(ctx, a.users, a.logger); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) routes(o *options) error {
	cfg := a.cfg

	a.server = fiber.New(fiber.Config{
		AppName:               "taskflow-auth",
		DisableStartupMessage: true,
	})
	a.server.Use(recover.New())
	// prometheus exposes a net/http handler, mounted on fiber directly
	a.server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(a.registry))).Name("metrics")

	a.srv = router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return a.server
	})
	r := a.srv.Router()

	group := r.Group("/auth")
	group.Use(csrf.New(csrf.Config{
		SecureKey:    csrfKey(cfg.Secret),
		Skip:         csrf.JSONRequests,
		CookieSecure: cfg.Cookie.Secure,
	}))
	csrf.RegisterRoutes(group)

	auth.RegisterAuthRoutes(group, auth.NewHTTPController(a.auther, a.cookies, cfg.Pages, a.logger))

	// the email routes go first so /callback/email is not read as a provider
	if cfg.Email.Enabled {
		provider, err := a.emailProvider(o)
		if err != nil {
			return err
		}
		magiclink.RegisterRoutes(group, magiclink.NewHTTPController(provider, a.auther, a.cookies, cfg.Pages))
	}

	providers := o.providers
	if providers == nil {
		providers = oauthProviders(cfg)
	}
	if len(providers) > 0 {
		sa := social.NewSocialAuthenticator(a.auther, social.SocialAuthConfig{
			DefaultRedirectURL: cfg.Pages.AfterLogin,
			StateSecret:        cfg.Secret,
		}, withProviders(providers)...)
		social.NewHTTPController(sa, a.cookies, social.HTTPConfig{
			CookieSecure: cfg.Cookie.Secure,
			Pages:        cfg.Pages,
		}).RegisterRoutes(group)
	}

	r.Get("/api/me", func(c router.Context) error {
		return c.JSON(router.StatusOK, auth.SessionPayload(jwtware.FromContext(c)))
	}, jwtware.New(jwtware.Config{
		Sessions:     a.auther.Sessions(),
		Tokens:       a.cookies,
		RefreshAfter: cfg.RefreshAfter,
	})).SetName("api.me")

	r.Get("/healthz", a.health).SetName("healthz")
	return nil
}

func (a *App) emailProvider(o *options) (*magiclink.Provider, error) {
	cfg := a.cfg

	store := o.linkStore
	if store == nil {
		if cfg.Redis.URL != "" {
			rs, err := magiclink.NewRedisStoreFromURL(cfg.Redis.URL)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, rs.Close)
			store = rs
		} else {
			a.logger.Warn("email link tokens are kept in memory; set REDIS_URL to share them across instances")
			store = magiclink.NewMemoryStore()
		}
	}
	a.links = store

	mailer := o.mailer
	if mailer == nil {
		mailer = magiclink.NewSMTPMailer(magiclink.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
		})
	}

	return magiclink.NewProvider(store, mailer, magiclink.Config{
		BaseURL:  cfg.BaseURL,
		From:     cfg.Email.From,
		TokenTTL: cfg.Email.TokenTTL,
	}, magiclink.WithLogger(a.logger)), nil
}

func (a *App) health(c router.Context) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]any{"database": "ok"}
	status := router.StatusOK
	if err := a.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if p, ok := a.links.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = "ok"
		if err := p.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, checks)
}

// Handler returns the fiber app, for tests and embedding.
func (a *App) Handler() *fiber.App {
	return a.server
}

// Auther returns the sign-in flow.
func (a *App) Auther() *auth.Auther {
	return a.auther
}

// Users returns the user repository.
func (a *App) Users() auth.Users {
	return a.users
}

// Serve listens on cfg.HTTP.Addr until ctx is done, then shuts down
// gracefully.
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.srv.Serve(a.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	if err := a.server.ShutdownWithTimeout(a.cfg.HTTP.ShutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.logger.Info("http server stopped")
	return nil
}

// Close releases the resources New opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run is the binary entry point. args are os.Args[1:].
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHealthcheck {
		return runHealthcheck(os.Getenv("PORT"))
	}

	cfg, err := auth.LoadConfig(os.Getenv(ConfigPathEnv))
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, w, cfg)
	case CommandSeed:
		cfg.Database.Seed = true
		return runMigrate(ctx, w, cfg)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}

// runMigrate creates the schema and, for the seed command, the demo users.
func runMigrate(ctx context.Context, w io.Writer, cfg *auth.Config) error {
	db, closer, err := openPersistence(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer closer()
	fmt.Fprintln(w, "migrations applied")

	if cfg.Database.Seed {
		logger := auth.NewLogger(nil, cfg.Debug)
		seeded, err := auth.SeedDemoUsers(ctx, auth.NewUsersRepository(db), logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "seeded %d demo users\n", len(seeded))
	}
	return nil
}

// runHealthcheck probes /healthz on the local listener.
func runHealthcheck(port string) error {
	if port == "" {
		port = "3000"
	}
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + port + "/healthz")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func passwordPolicy(name string) auth.PasswordPolicy {
	if strings.EqualFold(name, auth.PolicyBcrypt) {
		return auth.BcryptPolicy{}
	}
	return auth.AcceptAnyPassword{}
}

func oauthProviders(cfg *auth.Config) []social.SocialProvider {
	var providers []social.SocialProvider
	if p := cfg.Providers.GitHub; p.Enabled {
		providers = append(providers, github.New(github.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			CallbackURL:  cfg.BaseURL + "/auth/callback/github",
			Scopes:       p.Scopes,
		}))
	}
	if p := cfg.Providers.Google; p.Enabled {
		providers = append(providers, google.New(google.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			CallbackURL:  cfg.BaseURL + "/auth/callback/google",
			Scopes:       p.Scopes,
		}))
	}
	return providers
}

func withProviders(providers []social.SocialProvider) []social.SocialAuthOption {
	opts := make([]social.SocialAuthOption, 0, len(providers))
	for _, p := range providers {
		opts = append(opts, social.WithProvider(p))
	}
	return opts
}

func activityLogger(logger auth.Logger) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
		logger.Info("auth activity", activitymap.Normalize(e).Args()...)
		return nil
	})
}

func csrfKey(secret string) []byte {
	sum := sha256.Sum256([]byte("csrf:" + secret))
	return sum[:]
}
