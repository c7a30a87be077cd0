package middleware

import (
	"compress/gzip"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/signup/config"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, strings.Repeat("<p>signup</p>", 200))
})

func TestSecurityHeaders(t *testing.T) {
	opts := DefaultSecurityHeadersOptions()
	opts.HSTSPreload = true
	h := SecurityHeaders(opts)(ok)

	tests := []struct {
		name     string
		tls      bool
		proto    string
		wantHSTS string
	}{
		{"plain http", false, "", ""},
		{"tls", true, "", "max-age=31536000; preload"},
		{"behind proxy", false, "https", "max-age=31536000; preload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/register", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Strict-Transport-Security"); got != tt.wantHSTS {
				t.Errorf("HSTS = %q, want %q", got, tt.wantHSTS)
			}
			for header, want := range map[string]string{
				"X-Frame-Options":         "DENY",
				"X-Content-Type-Options":  "nosniff",
				"Content-Security-Policy": "default-src 'self'; frame-ancestors 'none'",
			} {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("%s = %q, want %q", header, got, want)
				}
			}
			if rec.Header().Get("Permissions-Policy") != "" {
				t.Error("empty option should leave header unset")
			}
		})
	}
}

func TestSecurityHeadersFromConfig(t *testing.T) {
	cfg := &config.CoreConfig{}
	cfg.Security.EnableSecurityHeaders = true
	cfg.Security.XFrameOptions = "SAMEORIGIN"
	cfg.Security.HSTSMaxAge = 60
	cfg.Security.HSTSIncludeSubDomains = true

	tests := []struct {
		name      string
		cfg       *config.CoreConfig
		wantFrame string
	}{
		{"enabled", cfg, "SAMEORIGIN"},
		{"disabled", &config.CoreConfig{}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.TLS = &tls.ConnectionState{}
			rec := httptest.NewRecorder()
			SecurityHeadersFromConfig(tt.cfg)(ok).ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Frame-Options"); got != tt.wantFrame {
				t.Errorf("X-Frame-Options = %q, want %q", got, tt.wantFrame)
			}
			if tt.wantFrame != "" && rec.Header().Get("Strict-Transport-Security") != "max-age=60; includeSubDomains" {
				t.Errorf("HSTS = %q", rec.Header().Get("Strict-Transport-Security"))
			}
		})
	}
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON()(ok)
	tests := []struct {
		ct   string
		body string
		want int
	}{
		{"application/json", `{}`, http.StatusOK},
		{"application/json; charset=utf-8", `{}`, http.StatusOK},
		{"text/plain", `{}`, http.StatusUnsupportedMediaType},
		{"", `{}`, http.StatusUnsupportedMediaType},
		{"", ``, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		if tt.ct != "" {
			req.Header.Set("Content-Type", tt.ct)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("ct=%q body=%q: status %d, want %d", tt.ct, tt.body, rec.Code, tt.want)
		}
	}
}

func TestAllowForms(t *testing.T) {
	h := AllowForms()(ok)
	for ct, want := range map[string]int{
		"application/x-www-form-urlencoded": http.StatusOK,
		"multipart/form-data; boundary=x":   http.StatusOK,
		"application/json":                  http.StatusOK,
		"text/xml":                          http.StatusUnsupportedMediaType,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status %d, want %d", ct, rec.Code, want)
		}
	}
}

func TestLimitBodySize(t *testing.T) {
	var readErr error
	h := LimitBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if readErr == nil {
		t.Error("body over the limit should fail to read")
	}
}

func TestCompress(t *testing.T) {
	h := Compress(12, nil)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(zr)
	if !strings.HasPrefix(string(body), "<p>signup</p>") {
		t.Errorf("decompressed body = %.40q", body)
	}

	// Websocket upgrades bypass compression.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("upgrade request should not be compressed")
	}
}

func TestCompressFromConfig_Disabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	CompressFromConfig(&config.CoreConfig{}, nil)(ok).ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("disabled compression should pass through")
	}
}

func TestNotFoundHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORSFromConfig(t *testing.T) {
	cfg := &config.CoreConfig{}
	cfg.CORS.EnableCORS = true
	cfg.CORS.CORSAllowedOrigins = []string{"https://app.example"}
	cfg.CORS.CORSAllowedMethods = []string{"GET", "POST"}
	h := CORSFromConfig(cfg)(ok)

	req := httptest.NewRequest(http.MethodOptions, "/register/abc/events", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
