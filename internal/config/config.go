package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPattern         = "ERROR|CRITICAL"
	DefaultDebounce        = 1 * time.Second
	DefaultBackend         = "fsnotify"
	DefaultWatchPoll       = 500 * time.Millisecond
	DefaultDispatchPoll    = 500 * time.Millisecond
	DefaultDeliveryTimeout = 5 * time.Second
	DefaultJoinTimeout     = 2 * time.Second
	DefaultHistorySize     = 200
	DefaultHistoryTTL      = 1 * time.Hour
	DefaultLogLevel        = "info"
	DefaultAuthHeader      = "x-api-key"
)

// Config is the top-level tailalert configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Watch    WatchConfig    `yaml:"watch"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// WatchConfig describes the single watched file and how changes are observed.
type WatchConfig struct {
	// Path is the log file to tail.
	Path string `yaml:"path"`

	// Pattern is the RE2 expression a line must contain to raise an alert.
	Pattern string `yaml:"pattern"`

	// Debounce is the minimum interval between change events handed to the
	// detector. Events inside the interval are coalesced.
	Debounce time.Duration `yaml:"debounce"`

	// Backend selects the change notification source: fsnotify | poll.
	Backend string `yaml:"backend"`

	// PollInterval is how often the poll backend stats the directory.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StartAtEnd skips content that exists before startup instead of
	// replaying it as alerts.
	StartAtEnd bool `yaml:"start_at_end"`

	// FollowRecreate keeps detection alive when the file is deleted, waiting
	// for it to be created again. When false a missing file stops detection.
	FollowRecreate bool `yaml:"follow_recreate"`
}

// AlertsConfig holds dispatcher tuning and the delivery destinations.
type AlertsConfig struct {
	// PollInterval bounds each wait on the alert queue.
	PollInterval time.Duration `yaml:"poll_interval"`

	// DeliveryTimeout bounds each call to a single destination.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// DrainOnShutdown delivers messages still queued when shutdown begins.
	DrainOnShutdown bool `yaml:"drain_on_shutdown"`

	// HistorySize is how many dispatched alerts the status server remembers.
	HistorySize int `yaml:"history_size"`

	// HistoryTTL is how long a dispatched alert stays in the history.
	HistoryTTL time.Duration `yaml:"history_ttl"`

	Destinations []DestinationConfig `yaml:"destinations"`
}

// DestinationConfig defines one delivery target.
type DestinationConfig struct {
	// Type is one of: webhook | slack.
	Type string `yaml:"type"`

	// RawURL is a literal webhook URL. URLEnv takes precedence when set.
	RawURL string `yaml:"url"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`

	// TokenEnv is the name of the environment variable holding the Slack token.
	TokenEnv string `yaml:"token_env"`

	// RawToken is a literal Slack token, normally only set from the command line.
	RawToken string `yaml:"-"`

	// Channel is the Slack channel ID alerts are posted to.
	Channel string `yaml:"channel"`
}

// URL returns the webhook URL, resolved from the environment when URLEnv is set.
func (d DestinationConfig) URL() string {
	if d.URLEnv != "" {
		if v := os.Getenv(d.URLEnv); v != "" {
			return v
		}
	}
	return d.RawURL
}

// Token returns the Slack token, resolved from the environment when TokenEnv is set.
func (d DestinationConfig) Token() string {
	if d.TokenEnv != "" {
		if v := os.Getenv(d.TokenEnv); v != "" {
			return v
		}
	}
	return d.RawToken
}

// ShutdownConfig bounds how long shutdown waits on each goroutine.
type ShutdownConfig struct {
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// ServerConfig configures the optional status server.
type ServerConfig struct {
	// HTTPPort is the port for the REST API, metrics and WebSocket stream.
	// Zero disables the server.
	HTTPPort int `yaml:"http_port"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication on the status server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read parses the YAML file at path over the defaults without validating it.
// Callers that layer command-line flags on top must call Validate afterwards.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Pattern:      DefaultPattern,
			Debounce:     DefaultDebounce,
			Backend:      DefaultBackend,
			PollInterval: DefaultWatchPoll,
		},
		Alerts: AlertsConfig{
			PollInterval:    DefaultDispatchPoll,
			DeliveryTimeout: DefaultDeliveryTimeout,
			HistorySize:     DefaultHistorySize,
			HistoryTTL:      DefaultHistoryTTL,
		},
		Shutdown: ShutdownConfig{JoinTimeout: DefaultJoinTimeout},
		Log:      LogConfig{Level: DefaultLogLevel},
	}
}

// Validate checks required fields and structural constraints. It is exported
// so callers that patch the tree from flags can re-check it.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Watch.Path == "" {
		return fmt.Errorf("watch.path is required")
	}
	if cfg.Watch.Pattern == "" {
		return fmt.Errorf("watch.pattern is required")
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	switch cfg.Watch.Backend {
	case "fsnotify", "poll":
	default:
		return fmt.Errorf("watch.backend %q unknown: want fsnotify|poll", cfg.Watch.Backend)
	}
	if cfg.Watch.Backend == "poll" && cfg.Watch.PollInterval <= 0 {
		return fmt.Errorf("watch.poll_interval must be positive")
	}
	if cfg.Alerts.PollInterval <= 0 {
		return fmt.Errorf("alerts.poll_interval must be positive")
	}
	if cfg.Alerts.DeliveryTimeout <= 0 {
		return fmt.Errorf("alerts.delivery_timeout must be positive")
	}
	if cfg.Alerts.HistorySize < 0 {
		return fmt.Errorf("alerts.history_size must not be negative")
	}
	if cfg.Shutdown.JoinTimeout <= 0 {
		return fmt.Errorf("shutdown.join_timeout must be positive")
	}
	for i, d := range cfg.Alerts.Destinations {
		switch d.Type {
		case "webhook":
			if d.URLEnv == "" && d.RawURL == "" {
				return fmt.Errorf("destinations[%d]: webhook needs url or url_env", i)
			}
		case "slack":
			if d.Channel == "" {
				return fmt.Errorf("destinations[%d]: slack channel is required", i)
			}
		default:
			return fmt.Errorf("destinations[%d]: unknown type %q", i, d.Type)
		}
	}
	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [0, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
