// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spyhelmet/helmetmon/internal/buffer"
	"github.com/spyhelmet/helmetmon/internal/channel"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "500ms", "10s", "2m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all monitor configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Poll     PollConfig      `yaml:"poll"`
	Channels []ChannelConfig `yaml:"channels"`
	HTTP     HTTPConfig      `yaml:"http"`
	Alerts   AlertsConfig    `yaml:"alerts"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds prediction service connection settings.
type ServerConfig struct {
	URL           string   `yaml:"url"`
	PredictPath   string   `yaml:"predict_path"`
	ReportPath    string   `yaml:"report_path"`
	ReportTimeout Duration `yaml:"report_timeout"`
}

// PollConfig holds polling cadence and feed health settings.
type PollConfig struct {
	Interval       Duration `yaml:"interval"`
	RequestTimeout Duration `yaml:"request_timeout"`
	StaleAfter     Duration `yaml:"stale_after"`
	Pulse          Duration `yaml:"pulse"`
}

// ChannelConfig binds a chart channel to its eviction policy.
// Exactly one of Limit (count policy) or Window (time policy) is set.
type ChannelConfig struct {
	Name   string   `yaml:"name"`
	Limit  int      `yaml:"limit,omitempty"`
	Window Duration `yaml:"window,omitempty"`
}

// HTTPConfig holds the read-only view server settings.
// An empty Listen disables the server.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// AlertsConfig holds alert forwarding settings.
type AlertsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the alert transition publisher.
// No brokers means publishing is disabled.
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	QueueSize int      `yaml:"queue_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			URL:           "http://localhost:8000",
			PredictPath:   "/live_predict",
			ReportPath:    "/generate_weekly_report",
			ReportTimeout: Duration{30 * time.Second},
		},
		Poll: PollConfig{
			Interval:       Duration{500 * time.Millisecond},
			RequestTimeout: Duration{2 * time.Second},
			StaleAfter:     Duration{10 * time.Second},
			Pulse:          Duration{200 * time.Millisecond},
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8090",
		},
		Alerts: AlertsConfig{
			Kafka: KafkaConfig{
				Topic:     "helmet.alerts",
				QueueSize: 256,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
	for _, s := range channel.DefaultSpecs() {
		cfg.Channels = append(cfg.Channels, FromSpec(s))
	}
	return cfg
}

// FromSpec converts a channel spec to its config form.
func FromSpec(s channel.Spec) ChannelConfig {
	if s.Policy.Kind == buffer.KindTime {
		return ChannelConfig{Name: s.Name, Window: Duration{s.Policy.Window}}
	}
	return ChannelConfig{Name: s.Name, Limit: s.Policy.Limit}
}

// Spec converts the channel config to a registry spec.
func (c ChannelConfig) Spec() channel.Spec {
	if c.Window.Duration > 0 {
		return channel.Spec{Name: c.Name, Policy: buffer.TimePolicy(c.Window.Duration)}
	}
	return channel.Spec{Name: c.Name, Policy: buffer.CountPolicy(c.Limit)}
}

// ChannelSpecs returns the registry specs for every configured channel.
func (c *Config) ChannelSpecs() []channel.Spec {
	specs := make([]channel.Spec, 0, len(c.Channels))
	for _, ch := range c.Channels {
		specs = append(specs, ch.Spec())
	}
	return specs
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	URL    string
	Listen string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cli.URL != "" {
		cfg.Server.URL = cli.URL
	}
	if cli.Listen != "" {
		cfg.HTTP.Listen = cli.Listen
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("HM_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if listen, ok := os.LookupEnv("HM_HTTP_LISTEN"); ok {
		cfg.HTTP.Listen = listen
	}
	if brokers := os.Getenv("HM_KAFKA_BROKERS"); brokers != "" {
		cfg.Alerts.Kafka.Brokers = splitList(brokers)
	}
	if level := os.Getenv("HM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server URL must be an absolute http(s) URL (got: %s)", c.Server.URL)
	}
	if c.Poll.Interval.Duration <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.Poll.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("poll request timeout must be > 0")
	}
	if c.Poll.StaleAfter.Duration <= 0 {
		return fmt.Errorf("stale threshold must be > 0")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range c.Channels {
		if ch.Limit > 0 && ch.Window.Duration > 0 {
			return fmt.Errorf("channel %s: set either limit or window, not both", ch.Name)
		}
		if err := ch.Spec().Policy.Validate(); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	if len(c.Alerts.Kafka.Brokers) > 0 && c.Alerts.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}
