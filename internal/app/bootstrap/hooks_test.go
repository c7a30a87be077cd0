package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/internal/domain/registration"
	"go.uber.org/zap"
)

func defaultValues() config.AppConfigValues {
	vals := make(config.AppConfigValues, len(appKeys))
	for _, k := range appKeys {
		vals[k.Name] = k.Default
	}
	return vals
}

func TestAppConfigFrom_Defaults(t *testing.T) {
	cfg, err := appConfigFrom(defaultValues())
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.SubmitDelay != 2*time.Second || cfg.RedirectDelay != 2*time.Second {
		t.Errorf("delays = %v/%v", cfg.SubmitDelay, cfg.RedirectDelay)
	}
	if cfg.SessionStore != StoreMemory || cfg.SuccessMode != registration.SuccessBanner {
		t.Errorf("store/mode = %q/%q", cfg.SessionStore, cfg.SuccessMode)
	}
}

func TestAppConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{"negative submit delay", "submit_delay", -time.Second, "submit_delay"},
		{"empty landing url", "landing_url", "  ", "landing_url"},
		{"unknown success mode", "success_mode", "toast", "success_mode"},
		{"unknown store", "session_store", "mongo", "session_store"},
		{"redis without address", "redis_addr", "", ""},
		{"zero ttl", "page_ttl", time.Duration(0), "page_ttl"},
		{"zero sweep", "sweep_interval", time.Duration(0), "sweep_interval"},
		{"zero rate", "event_rate", 0.0, "event_rate"},
		{"zero burst", "event_burst", 0, "event_burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := defaultValues()
			vals[tt.key] = tt.val
			if tt.key == "redis_addr" {
				vals["session_store"] = StoreRedis
				tt.want = "redis_addr"
			}
			_, err := appConfigFrom(vals)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestAppConfigFrom_NormalisesCase(t *testing.T) {
	vals := defaultValues()
	vals["success_mode"] = " Alert "
	vals["session_store"] = "MEMORY"
	cfg, err := appConfigFrom(vals)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SuccessMode != registration.SuccessAlert || cfg.SessionStore != StoreMemory {
		t.Errorf("mode/store = %q/%q", cfg.SuccessMode, cfg.SessionStore)
	}
}

func TestRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("labels:\n  submit: Join\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _ := appConfigFrom(defaultValues())
	cfg.RulesFile = path
	cfg.SubmitDelay = 10 * time.Millisecond
	cfg.LandingURL = "/welcome"
	cfg.SuccessMode = registration.SuccessAlert

	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if rules.SubmitLabel != "Join" || rules.SubmitDelay != 10*time.Millisecond {
		t.Errorf("label/delay = %q/%v", rules.SubmitLabel, rules.SubmitDelay)
	}
	if rules.LandingURL != "/welcome" || rules.SuccessMode != registration.SuccessAlert {
		t.Errorf("landing/mode = %q/%q", rules.LandingURL, rules.SuccessMode)
	}

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.Rules(); err == nil {
		t.Error("missing rules file should fail")
	}
}

func TestEnsureSchema_BadRulesFile(t *testing.T) {
	ctx := context.Background()
	core := &config.CoreConfig{Env: "dev", DBConnectTimeout: time.Second}
	appCfg, _ := appConfigFrom(defaultValues())

	deps, err := ConnectDB(ctx, core, appCfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = Shutdown(ctx, core, appCfg, deps, zap.NewNop()) }()

	appCfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := EnsureSchema(ctx, core, appCfg, deps, zap.NewNop()); err == nil {
		t.Fatal("EnsureSchema should fail on a missing rules file")
	}
	if deps.Pages != nil {
		t.Error("pages should not start without rules")
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	core := &config.CoreConfig{Env: "dev", DBConnectTimeout: time.Second, MaxRequestBodyBytes: 1 << 20}
	appCfg, err := appConfigFrom(defaultValues())
	if err != nil {
		t.Fatal(err)
	}

	deps, err := ConnectDB(ctx, core, appCfg, logger)
	if err != nil {
		t.Fatalf("ConnectDB: %v", err)
	}
	if err := EnsureSchema(ctx, core, appCfg, deps, logger); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	h, err := BuildHandler(core, appCfg, deps, logger)
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		path   string
		status int
		ctype  string
		body   string
	}{
		{"/", http.StatusOK, "text/html", "/register"},
		{"/register", http.StatusOK, "text/html", `id="registrationForm"`},
		{"/health", http.StatusOK, "application/json", `"page_store":"ok"`},
		{"/version", http.StatusOK, "application/json", `"go_version"`},
		{"/debug/pprof/", http.StatusNotFound, "application/json", `"not_found"`},
		{"/metrics", http.StatusOK, "text/plain", "go_goroutines"},
		{"/static/signup.js", http.StatusOK, "javascript", "registrationForm"},
		{"/nope", http.StatusNotFound, "application/json", `"not_found"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer res.Body.Close()
			body, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, tt.ctype) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.ctype)
			}
			if !strings.Contains(string(body), tt.body) {
				t.Errorf("body does not contain %q", tt.body)
			}
		})
	}

	// A page created through the router is held by the registry.
	if deps.Pages.Len() == 0 {
		t.Error("GET /register did not create a page")
	}

	res, err := http.Post(srv.URL+"/register/not-a-page/events", "application/json", strings.NewReader(`{"type":"blur","field":"email"}`))
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&env)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Errorf("unknown page events = %d %q", res.StatusCode, env.Error.Code)
	}

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := Shutdown(sctx, core, appCfg, deps, logger); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := deps.Pages.Create(ctx); err == nil {
		t.Error("pages should refuse new sessions after Shutdown")
	}
}

func TestBuildHandler_RequiresPages(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}
	if _, err := BuildHandler(core, AppConfig{}, &DBDeps{}, zap.NewNop()); err == nil {
		t.Error("BuildHandler without pages should fail")
	}
}

func TestAcceptOptions(t *testing.T) {
	core := &config.CoreConfig{}
	if opts := acceptOptions(core); len(opts.OriginPatterns) != 0 {
		t.Errorf("CORS off: patterns = %v", opts.OriginPatterns)
	}
	core.CORS.EnableCORS = true
	core.CORS.CORSAllowedOrigins = []string{"https://app.example"}
	if opts := acceptOptions(core); len(opts.OriginPatterns) != 1 || opts.OriginPatterns[0] != "https://app.example" {
		t.Errorf("CORS on: patterns = %v", opts.OriginPatterns)
	}
}

func TestLiveConfig(t *testing.T) {
	cfg := liveConfig(AppConfig{WSPingInterval: 5 * time.Second})
	if cfg.PingInterval != 5*time.Second || cfg.PongTimeout != 5*time.Second {
		t.Errorf("ping/pong = %v/%v", cfg.PingInterval, cfg.PongTimeout)
	}
	if cfg := liveConfig(AppConfig{}); cfg.PingInterval != 0 {
		t.Errorf("ping should be disabled, got %v", cfg.PingInterval)
	}
}
