package middleware

import (
	"net/http"

	"github.com/dalemusser/signup/httputil"
	"github.com/dalemusser/signup/logging"
	"go.uber.org/zap"
)

// NotFoundHandler answers unmatched paths with the JSON error envelope.
// Pass it to chi.Router.NotFound.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return routeMiss(logger, http.StatusNotFound, "not_found", "no such resource")
}

// MethodNotAllowedHandler answers a known path hit with the wrong method.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return routeMiss(logger, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed here")
}

func routeMiss(logger *zap.Logger, status int, code, message string) http.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("route miss",
			zap.Int("status", status),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		httputil.JSONError(w, status, code, message)
	}
}
