// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/logging"
	"github.com/dalemusser/signup/metrics"
	"github.com/dalemusser/signup/server"
	"go.uber.org/zap"
)

// Hooks are the integration points an application provides to Run.
type Hooks[C any, D any] struct {
	// Name is used only for logging.
	Name string

	// LoadConfig returns the core config and the app-specific config.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// ConnectDB opens the backends the app needs. It should respect
	// core.DBConnectTimeout.
	ConnectDB func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (D, error)

	// EnsureSchema runs startup checks that need the backends. Optional.
	EnsureSchema func(ctx context.Context, core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) error

	// BuildHandler constructs the final http.Handler: router, middleware
	// and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) (http.Handler, error)

	// Shutdown releases what ConnectDB opened. It runs after the server
	// has stopped, with a context bounded by core.HTTP.ShutdownTimeout.
	// Optional.
	Shutdown func(ctx context.Context, core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) error
}

// Run executes the standard startup sequence:
//
//  1. Bootstrap logger
//  2. Load core + app config (Hooks.LoadConfig)
//  3. Build the final logger from core config
//  4. Register default metrics
//  5. Connect backends (Hooks.ConnectDB)
//  6. Startup checks (Hooks.EnsureSchema, if provided)
//  7. Wire shutdown signals to a context
//  8. Build the HTTP handler (Hooks.BuildHandler)
//  9. Serve until ctx is canceled, then run Hooks.Shutdown
//
// Any failure is logged and returned; the caller decides the exit code.
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) error {
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()
	bootstrap.Info("bootstrap logger initialized", zap.String("app", hooks.Name))

	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.Info("config loaded",
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.LogLevel),
	)

	logger, err := logging.BuildLogger(coreCfg.LogLevel, coreCfg.Env)
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("logger initialized", zap.String("app", hooks.Name))

	metrics.RegisterDefault(logger)

	connectCtx, cancelConnect := context.WithTimeout(ctx, coreCfg.DBConnectTimeout)
	db, err := hooks.ConnectDB(connectCtx, coreCfg, appCfg, logger)
	cancelConnect()
	if err != nil {
		logger.Error("backend connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}

	shutdown := func() {
		if hooks.Shutdown == nil {
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), coreCfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := hooks.Shutdown(sctx, coreCfg, appCfg, db, logger); err != nil {
			logger.Warn("shutdown hook failed", zap.Error(err))
		}
	}

	if hooks.EnsureSchema != nil {
		schemaCtx, cancel := context.WithTimeout(ctx, coreCfg.IndexBootTimeout)
		err := hooks.EnsureSchema(schemaCtx, coreCfg, appCfg, db, logger)
		cancel()
		if err != nil {
			logger.Error("startup checks failed", zap.Error(err))
			shutdown()
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, db, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		shutdown()
		return fmt.Errorf("build handler: %w", err)
	}

	serveErr := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger)
	shutdown()
	if serveErr != nil {
		logger.Error("server exited with error", zap.Error(serveErr))
		return serveErr
	}
	logger.Info("server stopped")
	return nil
}
