// health/health.go
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/signup/httputil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Check represents a single health probe. It returns nil if the dependency
// is healthy.
type Check func(ctx context.Context) error

// Response is the JSON structure returned by the health handler.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CheckTimeout bounds each probe.
const CheckTimeout = 2 * time.Second

// Handler returns an http.Handler that runs the checks concurrently on each
// request. With no checks it is a plain liveness probe. Any failing check
// turns the response into a 503 with "status": "error".
func Handler(checks map[string]Check, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), CheckTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			anyErr  bool
			results = make(map[string]string, len(checks))
		)
		for name, check := range checks {
			if check == nil {
				mu.Lock()
				results[name] = "ok"
				mu.Unlock()
				continue
			}
			wg.Add(1)
			go func(name string, check Check) {
				defer wg.Done()
				err := check(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					results[name] = "ok"
					return
				}
				anyErr = true
				results[name] = "error: " + err.Error()
				if logger != nil {
					logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				}
			}(name, check)
		}
		wg.Wait()

		if anyErr {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "error", Checks: results})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok", Checks: results})
	})
}

// Mount attaches GET /health to r.
func Mount(r chi.Router, checks map[string]Check, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(checks, logger))
}
