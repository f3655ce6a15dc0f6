package config

import (
	"reflect"
	"sort"
	"strings"

	logx "practicebot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Discord (never log token)
	if (strings.TrimSpace(oldCfg.Discord.Token) != "") != (strings.TrimSpace(newCfg.Discord.Token) != "") {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_set", strings.TrimSpace(newCfg.Discord.Token) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		(strings.TrimSpace(oldCfg.Storage.Path) != "") != (strings.TrimSpace(newCfg.Storage.Path) != "") ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Platform
	if strings.TrimSpace(oldCfg.Platform.BaseURL) != strings.TrimSpace(newCfg.Platform.BaseURL) ||
		strings.TrimSpace(oldCfg.Platform.Timeout) != strings.TrimSpace(newCfg.Platform.Timeout) {
		changed = append(changed, "platform")
		attrs = append(attrs,
			logx.String("platform.base_url", strings.TrimSpace(newCfg.Platform.BaseURL)),
			logx.String("platform.timeout", strings.TrimSpace(newCfg.Platform.Timeout)),
		)
	}

	// Maintenance
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Int("maintenance.stats_workers", newCfg.Maintenance.StatsWorkers),
			logx.Bool("maintenance.boundary_guard", newCfg.Maintenance.BoundaryGuard),
		)
	}

	// Broadcast
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.workers", newCfg.Broadcast.Workers),
			logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
		)
	}

	// Role ladders (summarize only)
	if !reflect.DeepEqual(oldCfg.Roles, newCfg.Roles) {
		changed = append(changed, "roles")
		attrs = append(attrs,
			logx.Int("roles.server_count", len(newCfg.Roles)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
