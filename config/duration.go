package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errNegativeDuration = errors.New("duration must not be negative")

// parseDurationFlexible reads a duration the way config sources deliver
// one: a Go duration string ("90s", "1500ms"), seconds as a number or a
// numeric string ("120", "1.5"), or a time.Duration. Empty input and types
// that carry no duration yield def. Zero is allowed; keys that need a
// positive value check for it themselves.
func parseDurationFlexible(raw any, def time.Duration) (time.Duration, error) {
	var d time.Duration
	switch t := raw.(type) {
	case time.Duration:
		d = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		parsed, err := parseDurationString(s)
		if err != nil {
			return def, err
		}
		d = parsed
	case int:
		d = seconds(float64(t))
	case int32:
		d = seconds(float64(t))
	case int64:
		d = seconds(float64(t))
	case float64:
		d = seconds(t)
	default:
		return def, nil
	}
	if d < 0 {
		return def, errNegativeDuration
	}
	return d, nil
}

func parseDurationString(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return seconds(f), nil
	}
	return 0, fmt.Errorf("cannot parse duration %q", s)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
