// pprof/pprof.go
package pprof

import (
	"net"
	"net/http"
	stdpprof "net/http/pprof"

	"github.com/dalemusser/signup/httputil"
	"github.com/go-chi/chi/v5"
)

// Mount attaches the Go profiling handlers under /debug/pprof. Requests
// rejected by allow get a 404, so the endpoints stay invisible. A nil
// allow admits only loopback clients.
func Mount(r chi.Router, allow func(*http.Request) bool) {
	if allow == nil {
		allow = Loopback
	}
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if !allow(req) {
					httputil.JSONError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
					return
				}
				next.ServeHTTP(w, req)
			})
		})

		r.Get("/", stdpprof.Index)
		r.Get("/cmdline", stdpprof.Cmdline)
		r.Get("/profile", stdpprof.Profile)
		r.Get("/symbol", stdpprof.Symbol)
		r.Post("/symbol", stdpprof.Symbol)
		r.Get("/trace", stdpprof.Trace)
		// heap, goroutine, allocs, block, mutex, threadcreate
		r.Get("/{name}", stdpprof.Index)
	})
}

// Loopback admits requests whose remote address is a loopback address.
// Behind RealIP this is the forwarded client address.
func Loopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
