// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/signup/config"
)

// SecurityHeadersOptions configures the security headers middleware. An
// empty string leaves the corresponding header unset.
type SecurityHeadersOptions struct {
	XFrameOptions         string // "DENY" | "SAMEORIGIN"
	XContentTypeOptions   string // "nosniff"
	ReferrerPolicy        string
	XSSProtection         string // "0" disables the legacy filter
	ContentSecurityPolicy string
	PermissionsPolicy     string

	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	// HSTS is sent only on HTTPS requests; 0 disables it.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
	HSTSPreload           bool
}

// DefaultSecurityHeadersOptions returns defaults for a page that is never
// framed and loads only same-origin scripts.
func DefaultSecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XSSProtection:         "0",
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000,
	}
}

type headerPair struct{ name, value string }

// SecurityHeaders returns middleware that sets the configured headers.
// The header set is computed once.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	var always []headerPair
	add := func(name, value string) {
		if value != "" {
			always = append(always, headerPair{name, value})
		}
	}
	add("X-Frame-Options", opts.XFrameOptions)
	add("X-Content-Type-Options", opts.XContentTypeOptions)
	add("Referrer-Policy", opts.ReferrerPolicy)
	add("X-XSS-Protection", opts.XSSProtection)
	add("Content-Security-Policy", opts.ContentSecurityPolicy)
	add("Permissions-Policy", opts.PermissionsPolicy)

	hsts := ""
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
		if opts.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		if opts.HSTSPreload {
			hsts += "; preload"
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, p := range always {
				h.Set(p.name, p.value)
			}
			if hsts != "" && isHTTPS(r) {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// SecurityHeadersFromConfig builds SecurityHeaders from the core config, or
// an identity middleware when enable_security_headers is false.
func SecurityHeadersFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.Security.EnableSecurityHeaders {
		return func(next http.Handler) http.Handler { return next }
	}
	s := coreCfg.Security
	return SecurityHeaders(SecurityHeadersOptions{
		XFrameOptions:         s.XFrameOptions,
		XContentTypeOptions:   s.XContentTypeOptions,
		ReferrerPolicy:        s.ReferrerPolicy,
		XSSProtection:         s.XSSProtection,
		ContentSecurityPolicy: s.ContentSecurityPolicy,
		PermissionsPolicy:     s.PermissionsPolicy,
		HSTSMaxAge:            s.HSTSMaxAge,
		HSTSIncludeSubDomains: s.HSTSIncludeSubDomains,
		HSTSPreload:           s.HSTSPreload,
	})
}
