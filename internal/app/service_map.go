package app

import (
	"fmt"

	"popengine/internal/maintenance"
	"popengine/internal/observability"
	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

func mapLoggingConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		SamplePerSec: cfg.Logging.SamplePerSec,
	}
}

func mapObservabilityConfig(cfg *Config) (observability.Config, error) {
	if cfg == nil {
		return observability.Config{}, nil
	}
	return observability.FromConfig(cfg.Observability)
}

func mapMaintenanceConfig(cfg *Config) (maintenance.Config, error) {
	return maintenance.FromConfig(cfg)
}

// validatePopups renders and decodes the popup list the way the engine will.
func validatePopups(cfg *Config) error {
	raw, err := cfg.PopupsJSON(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", popup.ErrInvalidConfig, err)
	}
	_, err = popup.DecodeConfigs(raw)
	return err
}

// validate is installed on the ConfigManager so a bad hot reload is rejected
// before it is published.
func validate(cfg *Config) error {
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapObservabilityConfig(cfg); err != nil {
		return err
	}
	if _, err := mapMaintenanceConfig(cfg); err != nil {
		return err
	}
	return validatePopups(cfg)
}
