package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/matcher"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LOGMON_MONITORING_LOG_FILE
const EnvPrefix = "LOGMON"

const (
	TransportSMTP     = "smtp"
	TransportTelegram = "telegram"

	defaultPollIntervalSeconds = 5
	maxAutoBackoff             = 2 * time.Second
)

// Config holds all configuration for the monitor
type Config struct {
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Offset     OffsetConfig     `mapstructure:"offset" yaml:"offset"`
	Transport  TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
}

// MonitoringConfig describes the monitored file and the alert condition
type MonitoringConfig struct {
	LogFile             string `mapstructure:"log_file" yaml:"log_file"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	BackoffMillis       int    `mapstructure:"backoff_ms" yaml:"backoff_ms"` // 0 = derived from poll interval
	AlertMarker         string `mapstructure:"alert_marker" yaml:"alert_marker"`
	MatchMode           string `mapstructure:"match_mode" yaml:"match_mode"` // substring or regex
	CaseInsensitive     bool   `mapstructure:"case_insensitive" yaml:"case_insensitive"`
	Bootstrap           bool   `mapstructure:"bootstrap" yaml:"bootstrap"` // create the log file if absent
	MaxReadBytes        int64  `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`
}

// OffsetConfig selects where the consumed offset is persisted
type OffsetConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // file or bolt
	Path    string `mapstructure:"path" yaml:"path"`       // record or database path
}

// TransportConfig holds notification transport settings
type TransportConfig struct {
	Kind           string   `mapstructure:"kind" yaml:"kind"`         // smtp or telegram
	Endpoint       string   `mapstructure:"endpoint" yaml:"endpoint"` // smtp host:port or bot API base URL
	Username       string   `mapstructure:"username" yaml:"username"`
	Password       string   `mapstructure:"password" yaml:"password"`
	Token          string   `mapstructure:"token" yaml:"token"`
	From           string   `mapstructure:"from" yaml:"from"`
	To             []string `mapstructure:"to" yaml:"to"`
	ChatID         string   `mapstructure:"chat_id" yaml:"chat_id"`
	Subject        string   `mapstructure:"subject" yaml:"subject"`
	TLS            string   `mapstructure:"tls" yaml:"tls"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Protocol string `mapstructure:"protocol" yaml:"protocol"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig enables the ClickHouse mirror of alert outcomes
type HistoryConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	ClickHouseHost     string `mapstructure:"clickhouse_host" yaml:"clickhouse_host"`
	ClickHousePort     int    `mapstructure:"clickhouse_port" yaml:"clickhouse_port"`
	ClickHouseDB       string `mapstructure:"clickhouse_db" yaml:"clickhouse_db"`
	ClickHouseUser     string `mapstructure:"clickhouse_user" yaml:"clickhouse_user"`
	ClickHousePassword string `mapstructure:"clickhouse_password" yaml:"clickhouse_password"`
}

// ValidationError reports an invalid or missing setting
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// SetDefaults registers every key so environment overrides bind during Unmarshal
// Required values default to empty and are rejected by Validate
func SetDefaults(v *viper.Viper) {
	v.SetDefault("monitoring.log_file", "")
	v.SetDefault("monitoring.poll_interval_seconds", defaultPollIntervalSeconds)
	v.SetDefault("monitoring.backoff_ms", 0)
	v.SetDefault("monitoring.alert_marker", "")
	v.SetDefault("monitoring.match_mode", matcher.ModeSubstring)
	v.SetDefault("monitoring.case_insensitive", false)
	v.SetDefault("monitoring.bootstrap", true)
	v.SetDefault("monitoring.max_read_bytes", 0)

	v.SetDefault("offset.backend", "file")
	v.SetDefault("offset.path", "")

	v.SetDefault("transport.kind", TransportSMTP)
	v.SetDefault("transport.endpoint", "")
	v.SetDefault("transport.username", "")
	v.SetDefault("transport.password", "")
	v.SetDefault("transport.token", "")
	v.SetDefault("transport.from", "")
	v.SetDefault("transport.to", []string{})
	v.SetDefault("transport.chat_id", "")
	v.SetDefault("transport.subject", "")
	v.SetDefault("transport.tls", "mandatory")
	v.SetDefault("transport.timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.protocol", "grpc")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.clickhouse_host", "localhost")
	v.SetDefault("history.clickhouse_port", 9000)
	v.SetDefault("history.clickhouse_db", "logs")
	v.SetDefault("history.clickhouse_user", "default")
	v.SetDefault("history.clickhouse_password", "")
}

// Load reads configuration from path (or config.yaml in . and ./configs when empty),
// applies LOGMON_* environment overrides and validates the result
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Searching found nothing: environment-only configuration
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w (run 'init-config' to create one)", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	m := c.Monitoring
	if m.LogFile == "" {
		return &ValidationError{Field: "monitoring.log_file", Reason: "is required"}
	}
	if m.PollIntervalSeconds <= 0 {
		return &ValidationError{Field: "monitoring.poll_interval_seconds", Reason: "must be positive"}
	}
	if m.BackoffMillis < 0 {
		return &ValidationError{Field: "monitoring.backoff_ms", Reason: "must not be negative"}
	}
	if m.BackoffMillis > 0 && c.BackoffDelay() >= c.PollInterval() {
		return &ValidationError{Field: "monitoring.backoff_ms", Reason: "must be shorter than the poll interval"}
	}
	if m.AlertMarker == "" {
		return &ValidationError{Field: "monitoring.alert_marker", Reason: "is required"}
	}
	if _, err := matcher.New(m.MatchMode, m.AlertMarker, m.CaseInsensitive); err != nil {
		return &ValidationError{Field: "monitoring.alert_marker", Reason: err.Error()}
	}
	if m.MaxReadBytes < 0 {
		return &ValidationError{Field: "monitoring.max_read_bytes", Reason: "must not be negative"}
	}

	switch c.Offset.Backend {
	case "", "file":
	case "bolt":
		if c.Offset.Path == "" {
			return &ValidationError{Field: "offset.path", Reason: "is required for the bolt backend"}
		}
	default:
		return &ValidationError{Field: "offset.backend", Reason: "must be 'file' or 'bolt'"}
	}

	if err := c.Transport.validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return &ValidationError{Field: "metrics.listen", Reason: "is required when metrics are enabled"}
	}

	if c.History.Enabled {
		if c.History.ClickHouseHost == "" {
			return &ValidationError{Field: "history.clickhouse_host", Reason: "is required when history is enabled"}
		}
		if c.History.ClickHousePort <= 0 || c.History.ClickHousePort > 65535 {
			return &ValidationError{Field: "history.clickhouse_port", Reason: "must be between 1 and 65535"}
		}
		if c.History.ClickHouseDB == "" {
			return &ValidationError{Field: "history.clickhouse_db", Reason: "is required when history is enabled"}
		}
	}

	return nil
}

func (t TransportConfig) validate() error {
	if t.TimeoutSeconds <= 0 {
		return &ValidationError{Field: "transport.timeout_seconds", Reason: "must be positive"}
	}

	switch t.Kind {
	case TransportSMTP:
		if t.Endpoint == "" {
			return &ValidationError{Field: "transport.endpoint", Reason: "is required"}
		}
		if t.From == "" {
			return &ValidationError{Field: "transport.from", Reason: "is required"}
		}
		if len(t.To) == 0 {
			return &ValidationError{Field: "transport.to", Reason: "is required"}
		}
		if (t.Username == "") != (t.Password == "") {
			return &ValidationError{Field: "transport.password", Reason: "username and password must be set together"}
		}
		switch t.TLS {
		case "", "mandatory", "opportunistic", "none", "ssl":
		default:
			return &ValidationError{Field: "transport.tls", Reason: "must be one of mandatory, opportunistic, none, ssl"}
		}
	case TransportTelegram:
		if t.Token == "" {
			return &ValidationError{Field: "transport.token", Reason: "is required"}
		}
		if t.ChatID == "" {
			return &ValidationError{Field: "transport.chat_id", Reason: "is required"}
		}
	default:
		return &ValidationError{Field: "transport.kind", Reason: "must be 'smtp' or 'telegram'"}
	}

	return nil
}

// PollInterval returns the sleep between poll cycles
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalSeconds) * time.Second
}

// BackoffDelay returns the retry delay after a recoverable error
// Unset, it is half the poll interval capped at 2s
func (c *Config) BackoffDelay() time.Duration {
	if c.Monitoring.BackoffMillis > 0 {
		return time.Duration(c.Monitoring.BackoffMillis) * time.Millisecond
	}
	d := c.PollInterval() / 2
	if d > maxAutoBackoff {
		d = maxAutoBackoff
	}
	return d
}

// TransportTimeout returns the bound on a single send
func (c *Config) TransportTimeout() time.Duration {
	return time.Duration(c.Transport.TimeoutSeconds) * time.Second
}
