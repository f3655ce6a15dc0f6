package config

// Config is the full bot configuration. Files may be JSON or YAML; both are
// decoded strictly (unknown fields rejected).
type Config struct {
	Discord     DiscordConfig                `json:"discord"`
	Logging     LoggingConfig                `json:"logging"`
	Storage     StorageConfig                `json:"storage"`
	Platform    PlatformConfig               `json:"platform"`
	Maintenance MaintenanceConfig            `json:"maintenance"`
	Broadcast   BroadcastConfig              `json:"broadcast,omitempty"`
	Roles       map[string][]MilestoneConfig `json:"roles,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console bool           `json:"console"`
	File    FileLogsConfig `json:"file,omitempty"`
}

type FileLogsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// PlatformConfig points at the practice platform's REST API.
type PlatformConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout string `json:"timeout,omitempty"`
}

// MaintenanceConfig controls the scheduled maintenance engine.
//
// Defaults (when fields are omitted/zero):
//   - stats_workers: 8
//   - boundary_guard: false (a duplicate boundary-matching tick repeats
//     boundary actions, matching the timer-fires-once assumption)
type MaintenanceConfig struct {
	StatsWorkers  int  `json:"stats_workers,omitempty"`
	BoundaryGuard bool `json:"boundary_guard,omitempty"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// MilestoneConfig is one rung of a server's role ladder. Roles maps server
// IDs (as strings) to ladders.
type MilestoneConfig struct {
	RoleID    int64 `json:"role_id"`
	MinSolved int   `json:"min_solved"`
}
