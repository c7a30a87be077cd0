// config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dalemusser/signup/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// HTTPConfig groups HTTP/HTTPS ports and server timeouts.
type HTTPConfig struct {
	HTTPPort  int  `mapstructure:"http_port"`
	HTTPSPort int  `mapstructure:"https_port"`
	UseHTTPS  bool `mapstructure:"use_https"`

	// Timeouts are parsed separately by parseDurationFlexible.
	ReadTimeout       time.Duration `mapstructure:"-"`
	ReadHeaderTimeout time.Duration `mapstructure:"-"`
	WriteTimeout      time.Duration `mapstructure:"-"`
	IdleTimeout       time.Duration `mapstructure:"-"`
	ShutdownTimeout   time.Duration `mapstructure:"-"`
}

// TLSConfig groups manual TLS and Let's Encrypt (http-01) settings.
type TLSConfig struct {
	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	UseLetsEncrypt      bool   `mapstructure:"use_lets_encrypt"`
	LetsEncryptEmail    string `mapstructure:"lets_encrypt_email"`
	LetsEncryptCacheDir string `mapstructure:"lets_encrypt_cache_dir"`
	Domain              string `mapstructure:"domain"`

	// ACMEDirectoryURL overrides the ACME directory, e.g. the Let's Encrypt
	// staging endpoint. Empty means production.
	ACMEDirectoryURL string `mapstructure:"acme_directory_url"`
}

// CORSConfig groups all CORS behavior and lists.
type CORSConfig struct {
	EnableCORS           bool     `mapstructure:"enable_cors"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposedHeaders   []string `mapstructure:"cors_exposed_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`
}

// SecurityConfig groups the response security headers.
type SecurityConfig struct {
	EnableSecurityHeaders bool   `mapstructure:"enable_security_headers"`
	XFrameOptions         string `mapstructure:"x_frame_options"`
	XContentTypeOptions   string `mapstructure:"x_content_type_options"`
	ReferrerPolicy        string `mapstructure:"referrer_policy"`
	XSSProtection         string `mapstructure:"x_xss_protection"`
	HSTSMaxAge            int    `mapstructure:"hsts_max_age"`
	HSTSIncludeSubDomains bool   `mapstructure:"hsts_include_subdomains"`
	HSTSPreload           bool   `mapstructure:"hsts_preload"`
	ContentSecurityPolicy string `mapstructure:"content_security_policy"`
	PermissionsPolicy     string `mapstructure:"permissions_policy"`
}

// CoreConfig holds the configuration every service shares.
type CoreConfig struct {
	// runtime
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …

	// grouped config
	HTTP     HTTPConfig     `mapstructure:",squash"`
	TLS      TLSConfig      `mapstructure:",squash"`
	CORS     CORSConfig     `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`

	// startup timeouts for the backing store
	DBConnectTimeout time.Duration `mapstructure:"-"`
	IndexBootTimeout time.Duration `mapstructure:"-"`

	// HTTP behavior
	MaxRequestBodyBytes int64 `mapstructure:"max_request_body_bytes"`
	EnableCompression   bool  `mapstructure:"enable_compression"`
	CompressionLevel    int   `mapstructure:"compression_level"`
}

// Dump returns a pretty JSON string of the config for debugging.
func (c CoreConfig) Dump() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

// durationKey is a duration-valued core key and where it lands.
type durationKey struct {
	name string
	def  time.Duration
	dst  func(*CoreConfig) *time.Duration
}

var durationKeys = []durationKey{
	{"read_timeout", 15 * time.Second, func(c *CoreConfig) *time.Duration { return &c.HTTP.ReadTimeout }},
	{"read_header_timeout", 10 * time.Second, func(c *CoreConfig) *time.Duration { return &c.HTTP.ReadHeaderTimeout }},
	{"write_timeout", 60 * time.Second, func(c *CoreConfig) *time.Duration { return &c.HTTP.WriteTimeout }},
	{"idle_timeout", 120 * time.Second, func(c *CoreConfig) *time.Duration { return &c.HTTP.IdleTimeout }},
	{"shutdown_timeout", 15 * time.Second, func(c *CoreConfig) *time.Duration { return &c.HTTP.ShutdownTimeout }},
	{"db_connect_timeout", 10 * time.Second, func(c *CoreConfig) *time.Duration { return &c.DBConnectTimeout }},
	{"index_boot_timeout", 30 * time.Second, func(c *CoreConfig) *time.Duration { return &c.IndexBootTimeout }},
}

var listKeys = []string{
	"cors_allowed_origins",
	"cors_allowed_methods",
	"cors_allowed_headers",
	"cors_exposed_headers",
}

// Load merges defaults → config.* file(s) → env vars → explicit flags into one CoreConfig.
// Final precedence (highest wins): flags(explicit) > env > config > defaults.
func Load(logger *zap.Logger) (*CoreConfig, error) {
	core, _, err := LoadWithAppConfig(logger, "", nil)
	return core, err
}

// LoadWithAppConfig loads the core config plus the app keys, which are read
// from the same config files and flags and from env vars under appPrefix.
func LoadWithAppConfig(logger *zap.Logger, appPrefix string, keys []AppKey) (*CoreConfig, AppConfigValues, error) {
	return load(logger, pflag.CommandLine, os.Args[1:], ".", appPrefix, keys)
}

func load(logger *zap.Logger, fs *pflag.FlagSet, args []string, dir, appPrefix string, keys []AppKey) (*CoreConfig, AppConfigValues, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 0) Optionally load .env (real env still wins over .env)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
		logger.Info("Loaded .env file")
	}

	// 1) Define flags (only *explicitly set* flags will override)
	registerCoreFlags(fs)
	if err := registerAppFlags(fs, keys); err != nil {
		return nil, nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("parse flags: %w", err)
	}

	// 2) Viper + env
	v := viper.New()
	v.SetEnvPrefix("SIGNUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range allKeys() {
		_ = v.BindEnv(k)
	}

	// 3) Optional config.* files (yaml|yml|json|toml)
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := filepath.Join(dir, "config."+ext)
		b, err := os.ReadFile(file)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("cannot read config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", file, err)
		}
		logger.Info("Loaded config file", zap.String("file", file))
	}

	// 4) Defaults (lowest precedence)
	setDefaults(v)

	// 5) Apply *explicit* flags (highest precedence)
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	// 6) Normalize list keys (accept JSON strings → []string)
	if err := normalizeListKeys(logger, v, listKeys...); err != nil {
		return nil, nil, err
	}

	// 7) Build struct
	var cfg CoreConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unable to decode core config: %w", err)
	}
	var badDurations []string
	for _, dk := range durationKeys {
		d, err := parseDurationFlexible(v.Get(dk.name), dk.def)
		if err == nil && d == 0 {
			d, err = dk.def, errors.New("must be > 0")
		}
		if err != nil {
			badDurations = append(badDurations, fmt.Sprintf("%s: %v", dk.name, err))
		}
		*dk.dst(&cfg) = d
	}

	// 8) Validate
	if err := validateCoreConfig(cfg, badDurations); err != nil {
		return nil, nil, err
	}

	app, err := loadAppConfig(logger, v, fs, appPrefix, keys)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, app, nil
}

func registerCoreFlags(fs *pflag.FlagSet) {
	fs.String("env", "dev", `Runtime environment "dev"|"prod"`)
	fs.String("log_level", "debug", "Log level")

	fs.Int("http_port", 8080, "HTTP port")
	fs.Int("https_port", 443, "HTTPS port")
	fs.Bool("use_https", false, "Serve HTTPS")
	fs.String("read_timeout", "15s", "HTTP read timeout")
	fs.String("read_header_timeout", "10s", "HTTP read header timeout")
	fs.String("write_timeout", "60s", "HTTP write timeout")
	fs.String("idle_timeout", "120s", "HTTP keep-alive idle timeout")
	fs.String("shutdown_timeout", "15s", "Graceful shutdown timeout")

	// TLS / Let’s Encrypt
	fs.Bool("use_lets_encrypt", false, "Use Let's Encrypt (http-01)")
	fs.String("lets_encrypt_email", "", "ACME account e-mail")
	fs.String("lets_encrypt_cache_dir", "letsencrypt-cache", "ACME cache dir")
	fs.String("acme_directory_url", "", "ACME directory URL (empty = Let's Encrypt production)")
	fs.String("cert_file", "", "TLS cert file (manual TLS)")
	fs.String("key_file", "", "TLS key file  (manual TLS)")
	fs.String("domain", "", "Domain for TLS or ACME")

	// Store timeouts
	fs.String("db_connect_timeout", "10s", "Startup timeout for connecting the page store")
	fs.String("index_boot_timeout", "30s", "Startup timeout for loading rules")

	// misc / CORS
	fs.Bool("enable_compression", true, "Enable HTTP compression")
	fs.Int("compression_level", 5, "gzip/deflate level 1-9")
	fs.Bool("enable_cors", false, "Enable CORS")
	fs.String("cors_allowed_origins", "", `JSON array of origins, e.g. '["https://a.example","https://b.example"]'`)
	fs.String("cors_allowed_methods", "", `JSON array of methods, e.g. '["GET","POST"]'`)
	fs.String("cors_allowed_headers", "", `JSON array of headers, e.g. '["Accept","Content-Type"]'`)
	fs.String("cors_exposed_headers", "", `JSON array of headers, e.g. '["Link"]'`)
	fs.Bool("cors_allow_credentials", false, "CORS: allow credentials")
	fs.Int("cors_max_age", 0, "CORS: max age seconds (0 disables cache)")

	// Security headers
	fs.Bool("enable_security_headers", true, "Send security headers")
	fs.String("x_frame_options", "DENY", "X-Frame-Options value")
	fs.String("x_content_type_options", "nosniff", "X-Content-Type-Options value")
	fs.String("referrer_policy", "strict-origin-when-cross-origin", "Referrer-Policy value")
	fs.String("x_xss_protection", "0", "X-XSS-Protection value")
	fs.Int("hsts_max_age", 31536000, "HSTS max-age seconds (0 disables)")
	fs.Bool("hsts_include_subdomains", false, "HSTS includeSubDomains")
	fs.Bool("hsts_preload", false, "HSTS preload")
	fs.String("content_security_policy", defaultCSP, "Content-Security-Policy value")
	fs.String("permissions_policy", "", "Permissions-Policy value")

	fs.Int64("max_request_body_bytes", 1<<20, "Max HTTP request body size in bytes (0 = unlimited)")
}

const defaultCSP = "default-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

func allKeys() []string {
	return []string{
		"env", "log_level",
		"http_port", "https_port", "use_https",
		"read_timeout", "read_header_timeout", "write_timeout", "idle_timeout", "shutdown_timeout",
		"use_lets_encrypt", "lets_encrypt_email", "lets_encrypt_cache_dir", "acme_directory_url",
		"cert_file", "key_file", "domain",
		"db_connect_timeout", "index_boot_timeout",
		"enable_compression", "compression_level",
		"enable_cors",
		"cors_allowed_origins", "cors_allowed_methods", "cors_allowed_headers",
		"cors_exposed_headers", "cors_allow_credentials", "cors_max_age",
		"enable_security_headers", "x_frame_options", "x_content_type_options",
		"referrer_policy", "x_xss_protection", "hsts_max_age", "hsts_include_subdomains",
		"hsts_preload", "content_security_policy", "permissions_policy",
		"max_request_body_bytes",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "debug")

	v.SetDefault("http_port", 8080)
	v.SetDefault("https_port", 443)
	v.SetDefault("use_https", false)
	for _, dk := range durationKeys {
		v.SetDefault(dk.name, dk.def.String())
	}

	v.SetDefault("use_lets_encrypt", false)
	v.SetDefault("lets_encrypt_email", "")
	v.SetDefault("lets_encrypt_cache_dir", "letsencrypt-cache")
	v.SetDefault("acme_directory_url", "")
	v.SetDefault("cert_file", "")
	v.SetDefault("key_file", "")
	v.SetDefault("domain", "")

	v.SetDefault("enable_compression", true)
	v.SetDefault("compression_level", 5)

	// Neutral CORS defaults
	v.SetDefault("enable_cors", false)
	v.SetDefault("cors_allowed_origins", []string{})
	v.SetDefault("cors_allowed_methods", []string{})
	v.SetDefault("cors_allowed_headers", []string{})
	v.SetDefault("cors_exposed_headers", []string{})
	v.SetDefault("cors_allow_credentials", false)
	v.SetDefault("cors_max_age", 0)

	v.SetDefault("enable_security_headers", true)
	v.SetDefault("x_frame_options", "DENY")
	v.SetDefault("x_content_type_options", "nosniff")
	v.SetDefault("referrer_policy", "strict-origin-when-cross-origin")
	v.SetDefault("x_xss_protection", "0")
	v.SetDefault("hsts_max_age", 31536000)
	v.SetDefault("hsts_include_subdomains", false)
	v.SetDefault("hsts_preload", false)
	v.SetDefault("content_security_policy", defaultCSP)
	v.SetDefault("permissions_policy", "")

	v.SetDefault("max_request_body_bytes", int64(1<<20))
}

// normalizeListKeys coerces JSON-string values into []string for the given keys.
func normalizeListKeys(logger *zap.Logger, v *viper.Viper, keys ...string) error {
	for _, key := range keys {
		arr, err := toStringList(v.Get(key))
		if err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		if arr == nil {
			if val := v.Get(key); val != nil {
				if _, ok := val.([]string); !ok {
					logger.Warn("unexpected type for list key; expected JSON array/string",
						zap.String("key", key), zap.Any("value", val))
				}
			}
			continue
		}
		v.Set(key, arr)
	}
	return nil
}

// toStringList accepts a JSON array string or a decoded list. It returns
// nil for values it leaves alone.
func toStringList(val any) ([]string, error) {
	switch t := val.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("expects a JSON array string, got %q: %w", s, err)
		}
		return arr, nil
	case []any:
		arr := make([]string, 0, len(t))
		for _, e := range t {
			arr = append(arr, fmt.Sprint(e))
		}
		return arr, nil
	}
	return nil, nil
}

func validateCoreConfig(cfg CoreConfig, badDurations []string) error {
	var missing []string
	invalid := append([]string(nil), badDurations...)

	switch cfg.Env {
	case "dev", "prod":
	default:
		invalid = append(invalid, `env must be "dev" or "prod"`)
	}
	if !logging.IsValidLogLevel(cfg.LogLevel) {
		invalid = append(invalid, fmt.Sprintf("log_level %q is not a zap level", cfg.LogLevel))
	}

	// TLS / ACME consistency
	if cfg.TLS.UseLetsEncrypt && !cfg.HTTP.UseHTTPS {
		invalid = append(invalid, "use_lets_encrypt=true requires use_https=true")
	}
	if cfg.TLS.UseLetsEncrypt && (strings.TrimSpace(cfg.TLS.CertFile) != "" || strings.TrimSpace(cfg.TLS.KeyFile) != "") {
		invalid = append(invalid, "use_lets_encrypt=true cannot be combined with cert_file/key_file")
	}
	if cfg.TLS.UseLetsEncrypt {
		if strings.TrimSpace(cfg.TLS.Domain) == "" {
			missing = append(missing, "SIGNUP_DOMAIN (or --domain) for Let's Encrypt")
		}
		if s := strings.TrimSpace(cfg.TLS.LetsEncryptEmail); s == "" {
			missing = append(missing, "SIGNUP_LETS_ENCRYPT_EMAIL (or --lets_encrypt_email)")
		} else if !strings.Contains(s, "@") {
			invalid = append(invalid, "lets_encrypt_email must look like an email address")
		}
	}

	// Manual TLS requirements
	if cfg.HTTP.UseHTTPS && !cfg.TLS.UseLetsEncrypt {
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			missing = append(missing, "SIGNUP_CERT_FILE and SIGNUP_KEY_FILE (or --cert_file/--key_file) for manual TLS")
		}
	}

	// Port sanity
	if cfg.HTTP.HTTPPort <= 0 || cfg.HTTP.HTTPPort > 65535 {
		invalid = append(invalid, "http_port must be in 1..65535")
	}
	if cfg.HTTP.HTTPSPort <= 0 || cfg.HTTP.HTTPSPort > 65535 {
		invalid = append(invalid, "https_port must be in 1..65535")
	}
	if cfg.HTTP.UseHTTPS {
		if cfg.HTTP.HTTPPort == cfg.HTTP.HTTPSPort {
			invalid = append(invalid, "http_port and https_port cannot be equal when use_https=true")
		}
		if cfg.HTTP.HTTPSPort == 80 {
			invalid = append(invalid, "https_port cannot be 80; port 80 is used by the ACME/redirect server")
		}
	}

	// CORS sanity
	if cfg.CORS.EnableCORS {
		if len(cfg.CORS.CORSAllowedOrigins) == 0 {
			missing = append(missing, "CORS: cors_allowed_origins (JSON array) required when enable_cors=true")
		}
		if len(cfg.CORS.CORSAllowedMethods) == 0 {
			missing = append(missing, "CORS: cors_allowed_methods (JSON array) required when enable_cors=true")
		}
		for _, o := range cfg.CORS.CORSAllowedOrigins {
			if o == "*" && cfg.CORS.CORSAllowCredentials {
				invalid = append(invalid, `CORS: cannot use "*" in cors_allowed_origins when cors_allow_credentials=true`)
				break
			}
		}
		if cfg.CORS.CORSMaxAge < 0 {
			invalid = append(invalid, "CORS: cors_max_age must be >= 0")
		}
	}

	if cfg.EnableCompression && (cfg.CompressionLevel < 1 || cfg.CompressionLevel > 9) {
		invalid = append(invalid, "compression_level must be in 1..9")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		invalid = append(invalid, "hsts_max_age must be >= 0")
	}
	if cfg.MaxRequestBodyBytes < 0 {
		invalid = append(invalid, "max_request_body_bytes must be >= 0")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("core configuration errors: %s", strings.Join(parts, " | "))
}
