// middleware/compress.go
package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/dalemusser/signup/config"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// compressibleTypes are the content types the service emits that are worth
// compressing.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"application/javascript",
	"application/json",
	"image/svg+xml",
}

// CompressFromConfig returns a gzip/deflate middleware at
// coreCfg.CompressionLevel, or an identity middleware when compression is
// disabled. Websocket upgrades are never wrapped.
func CompressFromConfig(coreCfg *config.CoreConfig, logger *zap.Logger) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableCompression {
		return func(next http.Handler) http.Handler { return next }
	}
	return Compress(coreCfg.CompressionLevel, logger)
}

// Compress returns a compression middleware. Levels outside 1-9 are
// clamped with a warning.
func Compress(level int, logger *zap.Logger) func(next http.Handler) http.Handler {
	clamped := min(max(level, 1), 9)
	if clamped != level && logger != nil {
		logger.Warn("compression level clamped", zap.Int("requested", level), zap.Int("used", clamped))
	}
	compress := middleware.Compress(clamped, compressibleTypes...)

	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWebsocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
