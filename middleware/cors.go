// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/signup/config"
	"github.com/go-chi/cors"
)

// defaultCORSHeaders are allowed when cors_allowed_headers is empty: what
// the registration script and htmx send.
var defaultCORSHeaders = []string{"Accept", "Content-Type", "HX-Request", "HX-Target", "HX-Current-URL"}

// CORSFromConfig applies the core config's CORS section, or returns an
// identity middleware when enable_cors is false.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return func(next http.Handler) http.Handler { return next }
	}

	c := coreCfg.CORS
	headers := c.CORSAllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.CORSAllowedOrigins,
		AllowedMethods:   c.CORSAllowedMethods,
		AllowedHeaders:   headers,
		ExposedHeaders:   c.CORSExposedHeaders,
		AllowCredentials: c.CORSAllowCredentials,
		MaxAge:           c.CORSMaxAge,
	})
}
