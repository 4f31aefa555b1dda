package popup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"popengine/internal/config"
)

// wirePopup is one entry of the {"popups": [...]} document. Optional values
// are encoded as false or null when absent.
type wirePopup struct {
	InstanceID             json.RawMessage `json:"instanceId"`
	ShowOnExitIntent       json.RawMessage `json:"showOnExitIntent"`
	ShowAfterTime          json.RawMessage `json:"showAfterTime"`
	ShowAfterScroll        json.RawMessage `json:"showAfterScroll"`
	CloseButton            json.RawMessage `json:"closeButton"`
	CloseButtonLabel       json.RawMessage `json:"closeButtonLabel"`
	CloseOutsideClick      json.RawMessage `json:"closeOutsideClick"`
	ReappearDelay          json.RawMessage `json:"reappearDelay"`
	IsModal                json.RawMessage `json:"isModal"`
	CloseOnEscape          json.RawMessage `json:"closeOnEscape"`
	OpenAnimation          json.RawMessage `json:"openAnimation"`
	CloseAnimation         json.RawMessage `json:"closeAnimation"`
	OpenAnimationDuration  json.RawMessage `json:"openAnimationDuration"`
	CloseAnimationDuration json.RawMessage `json:"closeAnimationDuration"`
}

// DecodeConfigs parses a {"popups": [...]} document. Every error wraps
// ErrInvalidConfig.
func DecodeConfigs(raw []byte) ([]Config, error) {
	var doc struct {
		Popups json.RawMessage `json:"popups"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !isArray(doc.Popups) {
		return nil, fmt.Errorf("%w: popups must be a list", ErrInvalidConfig)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(doc.Popups, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	out := make([]Config, 0, len(entries))
	for i, e := range entries {
		cfg, err := decodeOne(e)
		if err != nil {
			return nil, fmt.Errorf("%w: popups[%d]: %v", ErrInvalidConfig, i, err)
		}
		out = append(out, cfg)
	}
	if err := validateConfigs(out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeOne(raw json.RawMessage) (Config, error) {
	var w wirePopup
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Config{}, err
	}

	var (
		c   Config
		err error
	)
	if c.InstanceID, err = requiredString("instanceId", w.InstanceID); err != nil {
		return Config{}, err
	}
	if c.ShowOnExitIntent, err = optBool("showOnExitIntent", w.ShowOnExitIntent, false); err != nil {
		return Config{}, err
	}
	if c.ShowAfterTime, err = optInt("showAfterTime", w.ShowAfterTime); err != nil {
		return Config{}, err
	}
	if c.ShowAfterScroll, err = optInt("showAfterScroll", w.ShowAfterScroll); err != nil {
		return Config{}, err
	}
	hasButton, err := optBool("closeButton", w.CloseButton, true)
	if err != nil {
		return Config{}, err
	}
	if c.CloseButtonLabel, err = optString("closeButtonLabel", w.CloseButtonLabel); err != nil {
		return Config{}, err
	}
	if !hasButton {
		c.CloseButtonLabel = nil
	}
	if c.CloseOnOutsideClick, err = optBool("closeOutsideClick", w.CloseOutsideClick, false); err != nil {
		return Config{}, err
	}
	if c.ReappearDelaySeconds, err = reappearDelay(w.ReappearDelay); err != nil {
		return Config{}, err
	}
	if c.IsModal, err = optBool("isModal", w.IsModal, false); err != nil {
		return Config{}, err
	}
	if c.CloseOnEscape, err = optBool("closeOnEscape", w.CloseOnEscape, true); err != nil {
		return Config{}, err
	}
	open, err := optString("openAnimation", w.OpenAnimation)
	if err != nil {
		return Config{}, err
	}
	if open != nil {
		c.OpenAnimation = *open
	}
	closeAnim, err := optString("closeAnimation", w.CloseAnimation)
	if err != nil {
		return Config{}, err
	}
	if closeAnim != nil {
		c.CloseAnimation = *closeAnim
	}
	if c.OpenAnimationDurationMs, err = optInt("openAnimationDuration", w.OpenAnimationDuration); err != nil {
		return Config{}, err
	}
	if c.CloseAnimationDurationMs, err = optInt("closeAnimationDuration", w.CloseAnimationDuration); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Longest delays and durations that still fit a time.Duration.
const (
	maxSeconds = math.MaxInt64 / int64(time.Second)
	maxMillis  = math.MaxInt64 / int64(time.Millisecond)
)

func tooLong(v *int, max int64) bool { return v != nil && int64(*v) > max }

// validateConfigs checks the list-level invariants.
func validateConfigs(list []Config) error {
	seen := make(map[string]struct{}, len(list))
	for i, c := range list {
		if strings.TrimSpace(c.InstanceID) == "" {
			return fmt.Errorf("%w: popups[%d]: instanceId is empty", ErrInvalidConfig, i)
		}
		if _, dup := seen[c.InstanceID]; dup {
			return fmt.Errorf("%w: duplicate instanceId %q", ErrInvalidConfig, c.InstanceID)
		}
		seen[c.InstanceID] = struct{}{}
		if s := c.ShowAfterScroll; s != nil && (*s < 0 || *s > 100) {
			return fmt.Errorf("%w: %s: showAfterScroll %d outside 0..100", ErrInvalidConfig, c.InstanceID, *s)
		}
		if t := c.ShowAfterTime; t != nil && *t < 0 {
			return fmt.Errorf("%w: %s: showAfterTime must be >= 0", ErrInvalidConfig, c.InstanceID)
		}
		if c.ReappearDelaySeconds < 0 {
			return fmt.Errorf("%w: %s: reappearDelay must be >= 0", ErrInvalidConfig, c.InstanceID)
		}
		if tooLong(c.ShowAfterTime, maxSeconds) || int64(c.ReappearDelaySeconds) > maxSeconds {
			return fmt.Errorf("%w: %s: delay exceeds %d seconds", ErrInvalidConfig, c.InstanceID, maxSeconds)
		}
		if tooLong(c.OpenAnimationDurationMs, maxMillis) || tooLong(c.CloseAnimationDurationMs, maxMillis) {
			return fmt.Errorf("%w: %s: animation duration exceeds %d ms", ErrInvalidConfig, c.InstanceID, maxMillis)
		}
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

// absent reports whether raw encodes an absent optional (missing, null or false).
func absent(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false"))
}

func requiredString(name string, raw json.RawMessage) (string, error) {
	if absent(raw) {
		return "", fmt.Errorf("%s is required", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: %v", name, err)
	}
	return s, nil
}

func optBool(name string, raw json.RawMessage, def bool) (bool, error) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return def, nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return false, fmt.Errorf("%s: %v", name, err)
	}
	return v, nil
}

// optInt decodes false/null as absent. Negative numbers are absent as well.
func optInt(name string, raw json.RawMessage) (*int, error) {
	if absent(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if f != float64(int(f)) {
		return nil, fmt.Errorf("%s: %v is not an integer", name, f)
	}
	if f < 0 {
		return nil, nil
	}
	v := int(f)
	return &v, nil
}

func optString(name string, raw json.RawMessage) (*string, error) {
	if absent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// reappearDelay accepts seconds or a time string ("1d").
func reappearDelay(raw json.RawMessage) (int, error) {
	if absent(raw) {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0, nil
		}
		return int(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("reappearDelay: must be seconds or a time string")
	}
	return config.ParseTimeString(s, "0"), nil
}
