package errors

import (
	"net/http"

	"github.com/dalemusser/signup/httputil"
	"go.uber.org/zap"
)

// HandlerFunc is an http.HandlerFunc that may fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts h to http.HandlerFunc, writing any error it returns.
func Handle(h HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			Write(w, r, err, logger)
		}
	}
}

// Write sends err as the JSON error envelope. Server faults are logged
// with their cause; the client sees only the code and message.
func Write(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	e := From(err)
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError && logger != nil {
		fields := []zap.Field{zap.String("code", e.Code), zap.Error(e.Err)}
		if r != nil {
			fields = append(fields, zap.String("method", r.Method), zap.String("path", r.URL.Path))
		}
		logger.Error("request failed", fields...)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: e.Body()})
}
