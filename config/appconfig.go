// config/appconfig.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey defines a configuration key owned by the application. App keys
// load with the same precedence as core keys: flags > env > config files >
// defaults.
type AppKey struct {
	// Name is the key name (e.g., "submit_delay", "redis_addr").
	// This is used as-is for config files and CLI flags.
	// For env vars it is uppercased and prefixed (e.g., SIGNUP_SUBMIT_DELAY).
	Name string

	// Default is the default value if not set elsewhere. Its type fixes the
	// key's type. Supported: string, int, int64, bool, float64,
	// time.Duration, []string.
	Default any

	// Desc is a short description for --help output.
	Desc string
}

// AppConfigValues holds the loaded app configuration values, each coerced
// to the type of its key's Default.
type AppConfigValues map[string]any

// String returns a string value or empty string if not found/wrong type.
func (a AppConfigValues) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Int returns an int value or 0 if not found/wrong type.
func (a AppConfigValues) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Int64 returns an int64 value or 0 if not found/wrong type.
func (a AppConfigValues) Int64(key string) int64 {
	switch v := a[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Float64 returns a float64 value or 0 if not found/wrong type.
func (a AppConfigValues) Float64(key string) float64 {
	v, _ := a[key].(float64)
	return v
}

// Bool returns a bool value or false if not found/wrong type.
func (a AppConfigValues) Bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// StringSlice returns a []string value or nil if not found/wrong type.
func (a AppConfigValues) StringSlice(key string) []string {
	v, _ := a[key].([]string)
	return v
}

// Duration returns a duration value, or def if the key is missing.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	if v, ok := a[key].(time.Duration); ok {
		return v
	}
	return def
}

// registerAppFlags registers command-line flags for app config keys.
// Must be called before the flag set is parsed.
func registerAppFlags(fs *pflag.FlagSet, keys []AppKey) error {
	for _, key := range keys {
		if fs.Lookup(key.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", key.Name)
		}

		switch d := key.Default.(type) {
		case string:
			fs.String(key.Name, d, key.Desc)
		case int:
			fs.Int(key.Name, d, key.Desc)
		case int64:
			fs.Int64(key.Name, d, key.Desc)
		case bool:
			fs.Bool(key.Name, d, key.Desc)
		case float64:
			fs.Float64(key.Name, d, key.Desc)
		case time.Duration:
			fs.String(key.Name, d.String(), key.Desc)
		case []string:
			fs.String(key.Name, "", key.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
		}
	}
	return nil
}

// loadAppConfig resolves app keys. Config file values come from v, which
// already merged config.*; env vars use envPrefix.
func loadAppConfig(logger *zap.Logger, v *viper.Viper, fs *pflag.FlagSet, envPrefix string, keys []AppKey) (AppConfigValues, error) {
	result := make(AppConfigValues, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	appV := viper.New()
	appV.SetEnvPrefix(envPrefix)
	appV.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	appV.AutomaticEnv()

	for _, key := range keys {
		appV.SetDefault(key.Name, key.Default)
		_ = appV.BindEnv(key.Name)

		if v.InConfig(key.Name) {
			appV.SetDefault(key.Name, v.Get(key.Name))
		}
		if f := fs.Lookup(key.Name); f != nil && f.Changed {
			_ = appV.BindPFlag(key.Name, f)
		}
	}

	var bad []string
	for _, key := range keys {
		val, err := coerce(appV.Get(key.Name), key.Default)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", key.Name, err))
			continue
		}
		result[key.Name] = val
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("app configuration errors: invalid: %s", strings.Join(bad, ", "))
	}

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		if isSecretKey(key.Name) {
			fields = append(fields, zap.String(key.Name, "[REDACTED]"))
			continue
		}
		fields = append(fields, zap.Any(key.Name, result[key.Name]))
	}
	logger.Info("app config loaded", fields...)

	return result, nil
}

// coerce converts raw to the type of def. Env vars and flags arrive as
// strings, config files as whatever the decoder produced.
func coerce(raw, def any) (any, error) {
	switch d := def.(type) {
	case string:
		return cast.ToStringE(raw)
	case int:
		return cast.ToIntE(raw)
	case int64:
		return cast.ToInt64E(raw)
	case bool:
		return cast.ToBoolE(raw)
	case float64:
		return cast.ToFloat64E(raw)
	case time.Duration:
		if dur, ok := raw.(time.Duration); ok {
			return dur, nil
		}
		return parseDurationFlexible(raw, d)
	case []string:
		if s, ok := raw.([]string); ok {
			return s, nil
		}
		arr, err := toStringList(raw)
		if err != nil {
			return nil, err
		}
		if arr == nil {
			return d, nil
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unsupported type %T", def)
}

func isSecretKey(name string) bool {
	n := strings.ToLower(name)
	for _, s := range [...]string{"key", "secret", "password", "token"} {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}
