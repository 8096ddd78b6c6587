package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultHeader = `# Log alert monitor configuration.
# Every key can be overridden with an environment variable, e.g.
#   LOGMON_MONITORING_LOG_FILE=/var/log/app.log
#   LOGMON_TRANSPORT_PASSWORD=...
`

// Default returns a starter configuration with placeholder transport credentials
func Default() Config {
	return Config{
		Monitoring: MonitoringConfig{
			LogFile:             "sample.log",
			PollIntervalSeconds: defaultPollIntervalSeconds,
			AlertMarker:         "CRITICAL ERROR",
			MatchMode:           "substring",
			Bootstrap:           true,
		},
		Offset: OffsetConfig{
			Backend: "file",
		},
		Transport: TransportConfig{
			Kind:           TransportSMTP,
			Endpoint:       "smtp.gmail.com:587",
			Username:       "your-email@gmail.com",
			Password:       "your-app-password",
			From:           "your-email@gmail.com",
			To:             []string{"recipient@example.com"},
			TLS:            "mandatory",
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Protocol: "grpc",
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
			Path:   "/metrics",
		},
		History: HistoryConfig{
			ClickHouseHost: "localhost",
			ClickHousePort: 9000,
			ClickHouseDB:   "logs",
			ClickHouseUser: "default",
		},
	}
}

// WriteDefault writes the starter configuration to path
// An existing file is never overwritten
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	// Credentials live here
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
