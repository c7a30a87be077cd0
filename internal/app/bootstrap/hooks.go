package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/signup/app"
	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/httputil"
	"github.com/dalemusser/signup/internal/app/features/landing"
	"github.com/dalemusser/signup/internal/app/features/register"
	"github.com/dalemusser/signup/internal/app/resources"
	"github.com/dalemusser/signup/internal/app/store"
	"github.com/dalemusser/signup/internal/domain/registration"
	"github.com/dalemusser/signup/metrics"
	"github.com/dalemusser/signup/pantry/health"
	"github.com/dalemusser/signup/pantry/jobs"
	"github.com/dalemusser/signup/pantry/pprof"
	"github.com/dalemusser/signup/pantry/ratelimit"
	"github.com/dalemusser/signup/pantry/session"
	"github.com/dalemusser/signup/pantry/version"
	"github.com/dalemusser/signup/pantry/websocket"
	"github.com/dalemusser/signup/router"
	"github.com/dalemusser/signup/templates"
	"go.uber.org/zap"
)

// LoadConfig loads the core config and the SIGNUP_ app keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, vals, err := config.LoadWithAppConfig(logger, envPrefix, appKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := appConfigFrom(vals)
	if err != nil {
		return nil, AppConfig{}, err
	}
	logger.Info("signup build", zap.String("version", version.Get().String()))
	return coreCfg, appCfg, nil
}

// ConnectDB opens the page snapshot store and starts the shared workers.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (*DBDeps, error) {
	snaps, err := openSnapshots(ctx, coreCfg, appCfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("page store connected", zap.String("backend", appCfg.SessionStore))

	return &DBDeps{
		Snapshots: snaps,
		Delayer:   jobs.NewDelayer(logger.Named("delayer")),
		Hub:       websocket.NewHub(),
		Limiter:   ratelimit.NewKeyLimiter(appCfg.EventRate, appCfg.EventBurst, appCfg.PageTTL),
	}, nil
}

func openSnapshots(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (session.Store, error) {
	switch appCfg.SessionStore {
	case StoreRedis:
		s, err := session.NewRedisStoreWithConfig(ctx, session.RedisStoreConfig{
			Address:     appCfg.RedisAddr,
			Password:    appCfg.RedisPassword,
			DB:          appCfg.RedisDB,
			DialTimeout: coreCfg.DBConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return s, nil
	case StoreMemory:
		return session.NewMemoryStoreWithConfig(session.MemoryStoreConfig{
			CleanupInterval: appCfg.SweepInterval,
			Logger:          logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown session store %q", appCfg.SessionStore)
}

// EnsureSchema loads the validation rules, checks the store answers, and
// starts the page registry and its idle sweep.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps *DBDeps, logger *zap.Logger) error {
	rules, err := appCfg.Rules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if appCfg.RulesFile != "" {
		logger.Info("validation rules loaded", zap.String("file", appCfg.RulesFile))
	}
	if err := deps.Snapshots.Ping(ctx); err != nil {
		return fmt.Errorf("page store unreachable: %w", err)
	}

	deps.Pages = store.NewPages(store.Options{
		Config:    rules,
		Layout:    registration.DefaultLayout(),
		Scheduler: deps.Delayer,
		Snapshots: deps.Snapshots,
		TTL:       appCfg.PageTTL,
		OnChange:  register.Broadcaster(deps.Hub, logger),
		Logger:    logger,
	})
	deps.Sweeper = jobs.Every(jobs.PeriodicJob{
		Name:     "page-sweep",
		Interval: appCfg.SweepInterval,
		Handler:  deps.Pages.SweepJob,
	}, logger)
	return nil
}

// BuildHandler boots the templates and assembles the router.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps *DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps == nil || deps.Pages == nil {
		return nil, errors.New("page store not initialised")
	}
	httputil.SetJSONLogger(logger)

	resources.Register()
	engine := templates.New()
	if err := engine.Boot(logger); err != nil {
		return nil, fmt.Errorf("boot templates: %w", err)
	}
	templates.UseEngine(engine, logger)

	r := router.New(coreCfg, logger)

	health.Mount(r, map[string]health.Check{"page_store": deps.Snapshots.Ping}, logger)
	version.Mount(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if appCfg.EnablePprof {
		pprof.Mount(r, nil)
		logger.Warn("pprof endpoints enabled for loopback clients")
	}
	r.Handle("/static/*", http.StripPrefix("/static", resources.StaticHandler()))

	reg := register.NewHandler(deps.Pages, deps.Hub, deps.Limiter, register.Options{
		Live:   liveConfig(appCfg),
		Accept: acceptOptions(coreCfg),
	}, logger)
	r.Mount("/register", reg.Routes())
	r.Mount("/", landing.Routes())

	return r, nil
}

func liveConfig(appCfg AppConfig) websocket.Config {
	cfg := websocket.DefaultConfig()
	cfg.PingInterval = appCfg.WSPingInterval
	if cfg.PingInterval > 0 && cfg.PongTimeout > cfg.PingInterval {
		cfg.PongTimeout = cfg.PingInterval
	}
	return cfg
}

// acceptOptions lets cross-origin pages open the live channel when CORS
// allows them. Otherwise only same-origin upgrades are accepted.
func acceptOptions(coreCfg *config.CoreConfig) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if coreCfg.CORS.EnableCORS {
		opts.OriginPatterns = append([]string(nil), coreCfg.CORS.CORSAllowedOrigins...)
	}
	return opts
}

// Shutdown stops the workers and closes the store. Pages close before the
// hub so that dropped live connections do not delete snapshots.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps *DBDeps, logger *zap.Logger) error {
	if deps == nil {
		return nil
	}
	var errs []error
	if deps.Sweeper != nil {
		if err := deps.Sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
		}
	}
	if deps.Pages != nil {
		deps.Pages.Close()
	}
	deps.Hub.Close()
	deps.Delayer.Stop()
	deps.Limiter.Stop()
	if err := deps.Snapshots.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page store: %w", err))
	}
	logger.Info("backends closed")
	return errors.Join(errs...)
}

// Hooks wires the service into the app lifecycle.
var Hooks = app.Hooks[AppConfig, *DBDeps]{
	Name:         "signup",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	EnsureSchema: EnsureSchema,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}
