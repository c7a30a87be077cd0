package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/signup/config"
	"github.com/dalemusser/signup/internal/domain/registration"
)

// envPrefix prefixes the app keys in the environment, e.g.
// SIGNUP_SUBMIT_DELAY.
const envPrefix = "SIGNUP"

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// AppConfig holds the signup service settings.
type AppConfig struct {
	SubmitDelay   time.Duration
	RedirectDelay time.Duration
	LandingURL    string
	SuccessMode   registration.SuccessMode

	// RulesFile optionally overrides messages, patterns and the password
	// policy. Empty means the stock rules.
	RulesFile string

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PageTTL       time.Duration
	SweepInterval time.Duration

	// EventRate and EventBurst bound live-feedback events per page and
	// client.
	EventRate  float64
	EventBurst int

	WSPingInterval time.Duration

	// EnablePprof mounts /debug/pprof for loopback clients.
	EnablePprof bool
}

var appKeys = []config.AppKey{
	{Name: "submit_delay", Default: 2 * time.Second, Desc: "Delay before the simulated account creation completes"},
	{Name: "redirect_delay", Default: 2 * time.Second, Desc: "Delay between the success message and the redirect"},
	{Name: "landing_url", Default: "/", Desc: "Where the page navigates after a successful registration"},
	{Name: "success_mode", Default: string(registration.SuccessBanner), Desc: "Success display: banner or alert"},
	{Name: "rules_file", Default: "", Desc: "YAML file overriding validation messages and patterns"},
	{Name: "session_store", Default: StoreMemory, Desc: "Page snapshot store: memory or redis"},
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis address when session_store=redis"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "page_ttl", Default: 30 * time.Minute, Desc: "How long an idle page session is kept"},
	{Name: "sweep_interval", Default: time.Minute, Desc: "How often idle pages are evicted"},
	{Name: "event_rate", Default: 20.0, Desc: "Live events per second allowed per page and client"},
	{Name: "event_burst", Default: 40, Desc: "Burst size for live events"},
	{Name: "ws_ping_interval", Default: 30 * time.Second, Desc: "Websocket keepalive ping interval (0 disables)"},
	{Name: "enable_pprof", Default: false, Desc: "Serve /debug/pprof to loopback clients"},
}

func appConfigFrom(vals config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		SubmitDelay:    vals.Duration("submit_delay", 2*time.Second),
		RedirectDelay:  vals.Duration("redirect_delay", 2*time.Second),
		LandingURL:     strings.TrimSpace(vals.String("landing_url")),
		SuccessMode:    registration.SuccessMode(strings.ToLower(strings.TrimSpace(vals.String("success_mode")))),
		RulesFile:      strings.TrimSpace(vals.String("rules_file")),
		SessionStore:   strings.ToLower(strings.TrimSpace(vals.String("session_store"))),
		RedisAddr:      strings.TrimSpace(vals.String("redis_addr")),
		RedisPassword:  vals.String("redis_password"),
		RedisDB:        vals.Int("redis_db"),
		PageTTL:        vals.Duration("page_ttl", 30*time.Minute),
		SweepInterval:  vals.Duration("sweep_interval", time.Minute),
		EventRate:      vals.Float64("event_rate"),
		EventBurst:     vals.Int("event_burst"),
		WSPingInterval: vals.Duration("ws_ping_interval", 30*time.Second),
		EnablePprof:    vals.Bool("enable_pprof"),
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	var errs []error
	if c.SubmitDelay < 0 {
		errs = append(errs, errors.New("submit_delay must not be negative"))
	}
	if c.RedirectDelay < 0 {
		errs = append(errs, errors.New("redirect_delay must not be negative"))
	}
	if c.LandingURL == "" {
		errs = append(errs, errors.New("landing_url is required"))
	}
	switch c.SuccessMode {
	case registration.SuccessBanner, registration.SuccessAlert:
	default:
		errs = append(errs, fmt.Errorf("success_mode must be %q or %q, got %q",
			registration.SuccessBanner, registration.SuccessAlert, c.SuccessMode))
	}
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required when session_store=redis"))
		}
		if c.RedisDB < 0 {
			errs = append(errs, errors.New("redis_db must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("session_store must be %q or %q, got %q", StoreMemory, StoreRedis, c.SessionStore))
	}
	if c.PageTTL <= 0 {
		errs = append(errs, errors.New("page_ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.EventRate <= 0 || c.EventBurst < 1 {
		errs = append(errs, errors.New("event_rate must be positive and event_burst at least 1"))
	}
	if c.WSPingInterval < 0 {
		errs = append(errs, errors.New("ws_ping_interval must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("app config: %w", errors.Join(errs...))
	}
	return nil
}

// Rules returns the registration rules: the stock ones, overridden by the
// rules file when set, with this config's timings and landing URL.
func (c AppConfig) Rules() (registration.Config, error) {
	rules := registration.DefaultConfig()
	if c.RulesFile != "" {
		var err error
		rules, err = rules.LoadRulesFile(c.RulesFile)
		if err != nil {
			return registration.Config{}, err
		}
	}
	rules.SubmitDelay = c.SubmitDelay
	rules.RedirectDelay = c.RedirectDelay
	rules.LandingURL = c.LandingURL
	rules.SuccessMode = c.SuccessMode
	return rules, nil
}
