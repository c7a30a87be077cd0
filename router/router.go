// router/router.go
package router

import (
	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/logging"
	"github.com/dalemusser/signup/metrics"
	"github.com/dalemusser/signup/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New creates a chi.Router with the standard middleware stack:
//   - RequestID, RealIP
//   - Recoverer (panic → 500)
//   - security headers and CORS from config
//   - body size limit (MaxRequestBodyBytes)
//   - compression from config
//   - metrics HTTP middleware
//   - request logging
//   - NotFound / MethodNotAllowed JSON handlers
//
// Health, metrics and feature routes are mounted by the caller.
func New(coreCfg *config.CoreConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))

	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))
	r.Use(middleware.CompressFromConfig(coreCfg, logger))

	r.Use(metrics.HTTPMetrics)
	r.Use(logging.RequestLogger(logger))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
