package config

import "time"

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig  `mapstructure:"service"`
	Log       LogConfig      `mapstructure:"log"`
	Monitors  CommandSet     `mapstructure:"monitors"`
	Reporters CommandSet     `mapstructure:"reporters"`
	Report    ReportConfig   `mapstructure:"report"`
	History   HistoryConfig  `mapstructure:"history"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Schedule  ScheduleConfig `mapstructure:"schedule"`
	Server    ServerConfig   `mapstructure:"server"`
}

// ServiceConfig contains global settings.
type ServiceConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

// LogConfig describes the run log sink.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Format     string `mapstructure:"format"`
}

// CommandSet lists monitors or reporters: inline "<name>: <command>"
// entries, an optional definition file and the concurrency to run them with.
type CommandSet struct {
	File    string            `mapstructure:"file"`
	Inline  []string          `mapstructure:"inline"`
	Args    map[string]string `mapstructure:"args"`
	Workers int               `mapstructure:"workers"`
}

// ReportConfig customises the failure report.
type ReportConfig struct {
	// Header is a text/template rendered into the report under the summary line.
	Header string `mapstructure:"header"`
}

// HistoryConfig enables the sqlite run history.
type HistoryConfig struct {
	Path      string `mapstructure:"path"`
	Retention int    `mapstructure:"retention"`
}

// MetricsConfig controls prometheus output.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"`
}

// ScheduleConfig drives the watch command.
type ScheduleConfig struct {
	Cron                string        `mapstructure:"cron"`
	MaintenanceWindows  []string      `mapstructure:"maintenance_windows"`
	MaintenanceDuration time.Duration `mapstructure:"maintenance_duration"`
}

// ServerConfig configures the optional status endpoint.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
	// Allow lists the client IPs or CIDR blocks admitted; empty admits all.
	Allow []string `mapstructure:"allow"`
}

// Default returns the built-in configuration. Every call returns a fresh
// value, so callers may modify it freely.
func Default() Config {
	return Config{
		Service: ServiceConfig{Name: "obtmon", Timezone: "UTC"},
		Log: LogConfig{
			File:       "logs/obtmon.log",
			Level:      "warning",
			MaxSizeMB:  1,
			MaxBackups: 10,
			Format:     "plain",
		},
		Monitors:  CommandSet{File: "conf/monitors.conf", Workers: 1},
		Reporters: CommandSet{File: "conf/reporters.conf", Workers: 1},
		History:   HistoryConfig{Retention: 30},
		Metrics:   MetricsConfig{Namespace: "obtmon"},
		Schedule:  ScheduleConfig{MaintenanceDuration: time.Hour},
	}
}
