package config

import (
	"sort"
	"strings"

	logx "popengine/pkg/logx"
)

// SummarizeConfigChange returns (1) a sorted list of changed sections and
// (2) safe structured attrs for logging (never includes tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.NamespaceOrDefault() != newCfg.NamespaceOrDefault() ||
		oldCfg.ClassPrefixOrDefault() != newCfg.ClassPrefixOrDefault() {
		changed = append(changed, "namespace")
		attrs = append(attrs,
			logx.String("namespace", newCfg.NamespaceOrDefault()),
			logx.String("class_prefix", newCfg.ClassPrefixOrDefault()),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Int("logging.sample_per_sec", newCfg.Logging.SamplePerSec),
		)
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	oM, nM := derefMaintenance(oldCfg.Maintenance), derefMaintenance(newCfg.Maintenance)
	if oM != nM {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", nM.Enabled),
			logx.String("maintenance.schedule", nM.Schedule),
			logx.String("maintenance.retention", nM.Retention),
		)
	}

	oO, nO := oldCfg.Observability, newCfg.Observability
	tokenFlip := (strings.TrimSpace(oO.Token) != "") != (strings.TrimSpace(nO.Token) != "")
	oO.Token, nO.Token = "", ""
	if oO != nO || tokenFlip {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", nO.Enabled),
			logx.String("observability.addr", strings.TrimSpace(nO.Addr)),
			logx.Bool("observability.pprof", nO.Pprof),
			logx.Bool("observability.token_set", strings.TrimSpace(newCfg.Observability.Token) != ""),
			logx.Bool("observability.allow_insecure", nO.AllowInsecure),
		)
	}

	if len(oldCfg.Popups) != len(newCfg.Popups) || hashPopups(oldCfg) != hashPopups(newCfg) {
		changed = append(changed, "popups")
		attrs = append(attrs, logx.Int("popups.count", len(newCfg.Popups)))
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefMaintenance(m *MaintenanceConfig) MaintenanceConfig {
	if m == nil {
		return MaintenanceConfig{}
	}
	return *m
}
