// middleware/body.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/signup/httputil"
)

// LimitBodySize caps request bodies at maxBytes. maxBytes <= 0 disables
// the limit.
func LimitBodySize(maxBytes int64) func(next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects requests whose body is not declared as JSON
// ("application/json" or any "+json" type) with 415 and a JSON error.
// Bodiless requests pass through.
func RequireJSON() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength != 0 && !httputil.IsJSONContent(r) {
				httputil.JSONError(w, http.StatusUnsupportedMediaType,
					"unsupported_media_type",
					"Content-Type must be application/json",
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowForms is like RequireJSON but also accepts HTML form posts.
func AllowForms() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength != 0 && !httputil.IsJSONContent(r) && !isForm(r) {
				httputil.JSONError(w, http.StatusUnsupportedMediaType,
					"unsupported_media_type",
					"Content-Type must be application/json or a form encoding",
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isForm(r *http.Request) bool {
	switch mediaType(r.Header.Get("Content-Type")) {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return true
	}
	return false
}
