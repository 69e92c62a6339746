package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/carely/go-auth"
	"github.com/carely/go-auth/activity/amqpsink"
	"github.com/carely/go-auth/config"
	"github.com/carely/go-auth/middleware/ratelimit"
	"github.com/carely/go-auth/persistence"
)

type App struct {
	config *config.Config
	logger *glog.BaseLogger
	db     *bun.DB
	repo   auth.RepositoryManager
	rdb    *redis.Client
	sink   *amqpsink.Sink
	srv    *fiber.App
	errc   chan error
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: newLogger(cfg.Log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		app.GetLogger("app").Error("server failed", "error", err)
		app.Close()
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case err := <-app.errc:
		if err != nil {
			app.GetLogger("app").Error("server stopped", "error", err)
			app.Close()
			os.Exit(1)
		}
	}

	app.GetLogger("app").Info("shutting down")
	if err := app.srv.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout); err != nil {
		app.GetLogger("app").Error("shutdown failed", "error", err)
	}
	app.Close()
}

func newLogger(cfg config.Log) *glog.BaseLogger {
	pretty := cfg.Format == "pretty"
	switch {
	case pretty && cfg.Trace:
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	case pretty:
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	case cfg.Trace:
		return glog.NewLogger(
			glog.WithLevel(glog.Trace),
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	default:
		return glog.NewLogger(
			glog.WithName("app"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
}

func (a *App) Start(ctx context.Context) error {
	if err := a.withPersistence(ctx); err != nil {
		return err
	}

	tokens := auth.NewTokenServiceFromConfig(a.config.Auth, a.GetLogger("tokens"))
	validator := a.tokenValidator(tokens)

	var sink auth.ActivitySink
	if a.config.AMQP.URL != "" {
		s, err := amqpsink.Dial(a.config.AMQP.URL, a.config.AMQP.Queue)
		if err != nil {
			return err
		}
		a.sink = s
		sink = s
	}

	gateway := auth.NewAuthenticator(a.repo, tokens, a.config.Auth).
		WithLogger(a.GetLogger("auth")).
		WithActivitySink(sink)

	ctrl := auth.NewAuthController(gateway, validator, a.repo,
		auth.WithControllerLogger(a.GetLogger("http")),
		auth.WithPageSize(a.config.Auth.PageSize),
		auth.WithTokenLifetime(tokens.Expiration()),
		auth.WithLoginGuards(a.loginLimiter()),
	).WithActivitySink(sink)

	publicPaths := a.config.Auth.PublicPaths
	if len(publicPaths) == 0 {
		publicPaths = nil
	}

	a.srv = auth.NewApp(ctrl, validator, publicPaths, a.GetLogger("http"))
	return a.serve()
}

// serve binds the listener before returning, bind errors never reach errc
func (a *App) serve() error {
	ln, err := net.Listen("tcp", a.config.HTTP.Addr)
	if err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "failed to bind http listener").
			WithMetadata(map[string]any{"addr": a.config.HTTP.Addr})
	}

	a.errc = make(chan error, 1)
	go func() {
		a.GetLogger("app").Info("listening", "addr", ln.Addr().String())
		a.errc <- a.srv.Listener(ln)
	}()
	return nil
}

func (a *App) withPersistence(ctx context.Context) error {
	db, err := persistence.Open(ctx, persistence.Options{
		Driver: a.config.Database.Driver,
		DSN:    a.config.Database.DSN,
		Debug:  a.config.Database.Debug,
	})
	if err != nil {
		return err
	}
	a.db = db

	applied, err := persistence.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		a.GetLogger("persistence").Info("migrations applied", "migrations", applied)
	}

	a.repo = auth.NewRepositoryManager(db)
	a.repo.MustValidate()

	return auth.NewRoleService(a.repo).
		WithLogger(a.GetLogger("roles")).
		EnsureRoles(ctx, auth.RoleNameAdmin, auth.RoleNameOwner, auth.RoleNameCarer, a.config.Auth.DefaultRole)
}

func (a *App) tokenValidator(current *auth.TokenService) auth.TokenValidator {
	if a.config.Auth.PreviousSecret == "" {
		return current
	}
	previous := auth.NewTokenService(
		a.config.Auth.PreviousSecret,
		a.config.Auth.Expiration,
		auth.WithTokenIssuer(a.config.Auth.Issuer),
		auth.WithTokenLogger(a.GetLogger("tokens")),
	)
	return auth.NewRotatingTokenValidator(current, previous)
}

func (a *App) loginLimiter() fiber.Handler {
	rl := a.config.RateLimit
	cfg := ratelimit.Config{
		Enabled:        rl.Enabled && a.config.Redis.Addr != "",
		Capacity:       rl.Capacity,
		RefillTokens:   rl.RefillTokens,
		RefillInterval: rl.RefillInterval,
		TTL:            rl.TTL,
		KeyStrategy:    rl.KeyStrategy,
		Prefix:         rl.Prefix,
		LimitReached: func(_ *fiber.Ctx, _ ratelimit.Decision) error {
			return auth.ErrTooManyLoginAttempts
		},
		ErrorListener: func(c *fiber.Ctx, err error) {
			a.GetLogger("ratelimit").Warn("rate limiter unavailable", "path", c.Path(), "error", err)
		},
	}
	if !cfg.Enabled {
		return ratelimit.New(nil, cfg)
	}

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})
	return ratelimit.New(ratelimit.NewRedisLimiter(a.rdb, cfg), cfg)
}

func (a *App) Close() {
	if a.sink != nil {
		_ = a.sink.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
