package logging

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/dalemusser/signup/httputil"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recoverer turns a handler panic into a logged 500. JSON clients get the
// error envelope. http.ErrAbortHandler is re-raised so net/http aborts the
// response.
func Recoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	logger = OrNop(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, max(r.ProtoMajor, 1))
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				logger.Error("panic recovered",
					zap.Any("panic", v),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
				if sent := ww.Status(); sent != 0 {
					logger.Warn("panic after response started", zap.Int("status", sent))
					return
				}
				if httputil.WantsJSON(r) {
					httputil.JSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
