package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// httpRedirectHandler moves plain HTTP requests to the same host and path
// over HTTPS. A Host or URI that could inject headers is refused.
func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !isValidHost(r.Host) || hasControl(uri, true) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

// isValidHost reports whether a Host header is safe to echo into a
// Location header.
func isValidHost(host string) bool {
	if host == "" || strings.ContainsAny(host, `/\`) {
		return false
	}
	name, port, err := net.SplitHostPort(host)
	if err != nil {
		// No port. A bare IPv6 address lands here too.
		name, port = host, ""
	}
	if port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return false
		}
	}
	if strings.HasPrefix(name, "[") {
		ip, _, _ := strings.Cut(strings.TrimSuffix(name[1:], "]"), "%")
		if net.ParseIP(ip) == nil {
			return false
		}
	}
	return name != "" && !hasControl(name, false)
}

// hasControl reports whether s holds a control character. Blanks (space
// and tab) count as control characters unless allowBlank is set.
func hasControl(s string, allowBlank bool) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		if r == ' ' || r == '\t' {
			return !allowBlank
		}
		return r < 0x20 || r == 0x7f
	})
}
