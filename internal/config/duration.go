package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

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

var timeStringRe = regexp.MustCompile(`^(\d+)([smhd]?)$`)

var timeUnits = map[string]int{"": 1, "s": 1, "m": 60, "h": 3600, "d": 86400}

// ParseTimeString converts "90", "60s", "5m", "2h" or "1d" to seconds.
// Negative numbers clamp to 0. When the result is 0 and s is not literally
// "0", def is parsed instead.
func ParseTimeString(s, def string) int {
	n := parseTimeString(s)
	if n == 0 && strings.TrimSpace(s) != "0" {
		return parseTimeString(def)
	}
	return n
}

func parseTimeString(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0
		}
		return int(f)
	}
	m := timeStringRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v * timeUnits[m[2]]
}

// ParseRetention accepts a Go duration ("720h") or a time string ("30d").
func ParseRetention(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return def, nil
		}
		return d, nil
	}
	if !timeStringRe.MatchString(strings.ToLower(s)) {
		return 0, fmt.Errorf("%s: invalid retention %q", path, raw)
	}
	secs := parseTimeString(s)
	if secs <= 0 {
		return def, nil
	}
	return time.Duration(secs) * time.Second, nil
}
