package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	DefaultNamespace   = "kntnt_popup"
	DefaultClassPrefix = "kntnt-popup"
)

type Config struct {
	// Namespace prefixes persisted record keys and lifecycle event names.
	Namespace string `json:"namespace,omitempty"`
	// ClassPrefix prefixes the dialog class and the duration style properties.
	ClassPrefix string `json:"class_prefix,omitempty"`

	Logging       LoggingConfig       `json:"logging"`
	Storage       *StorageConfig      `json:"storage,omitempty"`
	Maintenance   *MaintenanceConfig  `json:"maintenance,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty"`

	Popups []PopupEntry `json:"popups"`
}

// NamespaceOrDefault returns the configured namespace or DefaultNamespace.
func (c *Config) NamespaceOrDefault() string {
	if c == nil || c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

func (c *Config) ClassPrefixOrDefault() string {
	if c == nil || c.ClassPrefix == "" {
		return DefaultClassPrefix
	}
	return c.ClassPrefix
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// SamplePerSec caps per-second debug lines on hot paths (scroll events).
	SamplePerSec int `json:"sample_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls where reappearance records are persisted.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./popengine.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MaintenanceConfig controls periodic pruning of stale reappearance records.
//
// Schedule is a cron expression (seconds field optional, descriptors such as
// "@daily" accepted). Retention is a duration string ("720h") or a time
// string ("30d").
type MaintenanceConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule,omitempty"`
	Retention string `json:"retention,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// ObservabilityConfig controls the optional metrics/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:9464"
	Prefix        string `json:"prefix,omitempty"` // pprof prefix, default: "/debug/pprof/"
	Pprof         bool   `json:"pprof,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// PopupEntry is one element of the popups list. It is either a wire record
// (camelCase keys, decoded later by the engine) or a shortcode-style
// attribute map wrapped as {"attributes": {...}}.
type PopupEntry struct {
	Wire       json.RawMessage
	Attributes map[string]any
}

func (p *PopupEntry) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("popup entry must be an object: %w", err)
	}
	raw, ok := fields["attributes"]
	if !ok {
		p.Wire = append(json.RawMessage(nil), b...)
		p.Attributes = nil
		return nil
	}
	if len(fields) != 1 {
		return fmt.Errorf("popup entry: \"attributes\" cannot be mixed with other keys")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return fmt.Errorf("popup attributes: %w", err)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	p.Wire = nil
	p.Attributes = attrs
	return nil
}

func (p PopupEntry) MarshalJSON() ([]byte, error) {
	if p.Attributes != nil {
		return json.Marshal(map[string]any{"attributes": p.Attributes})
	}
	if len(p.Wire) == 0 {
		return []byte("null"), nil
	}
	return p.Wire, nil
}

// PopupsJSON renders the popups list as the wire document the engine
// consumes: {"popups": [...]}. Attribute entries are resolved with r;
// entries without an id get "<classPrefix>-<n>" where n counts from 1.
func (c *Config) PopupsJSON(r AttrResolver) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage(`{"popups":[]}`), nil
	}
	if r == nil {
		r = DefaultAttrResolver()
	}
	list := make([]json.RawMessage, 0, len(c.Popups))
	generated := 0
	for i, e := range c.Popups {
		if e.Attributes == nil {
			list = append(list, e.Wire)
			continue
		}
		w, err := r.Wire(e.Attributes)
		if err != nil {
			return nil, fmt.Errorf("popups[%d]: %w", i, err)
		}
		if id, _ := w["instanceId"].(string); id == "" {
			generated++
			w["instanceId"] = fmt.Sprintf("%s-%d", c.ClassPrefixOrDefault(), generated)
		}
		b, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("popups[%d]: %w", i, err)
		}
		list = append(list, b)
	}
	return json.Marshal(struct {
		Popups []json.RawMessage `json:"popups"`
	}{Popups: list})
}
