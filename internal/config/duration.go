package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration string. Empty means
// unset (0); negatives are rejected because every duration in this config
// is an interval or timeout.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for an
// unset value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Heartbeat returns H for this config. Anything unset or unparsable falls
// back to the default rather than failing: H is validated at load time and
// this accessor runs on hot paths.
func (c *Config) Heartbeat() time.Duration {
	d, err := ParseDurationOrDefault("heartbeat_interval", c.HeartbeatInterval, DefaultHeartbeatInterval)
	if err != nil || d <= 0 {
		return DefaultHeartbeatInterval
	}
	return d
}
