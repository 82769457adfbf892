package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drivewatch/drivewatch/internal/alert"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Default values applied when fields are absent from the config file.
const (
	DefaultPriority           = 1
	DefaultSnoozeDuration     = 60 * time.Minute
	DefaultEvaluationInterval = 2 * time.Second
	DefaultDispatchInterval   = 5 * time.Second
	DefaultHistoryWindow      = 7 * 24 * time.Hour
	DefaultHTTPPort           = 8080
	DefaultGRPCPort           = 50051
	DefaultFailureProbability = 0.4
	DefaultDevicesFile        = "devices.yaml"
	DefaultChannelTimeout     = 10 * time.Second
)

// Telemetry source kinds.
const (
	SourceSimulated  = "simulated"
	SourcePrometheus = "prometheus"
)

// Config is the full drivewatch configuration document.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// Thresholds map failure probabilities to alert levels.
	Thresholds alert.Thresholds `yaml:"thresholds"`

	// Priorities weights components for ranking. Components not listed use
	// DefaultPriority.
	Priorities      map[string]int `yaml:"priorities"`
	DefaultPriority int            `yaml:"default_priority"`

	Notifications NotificationConfig `yaml:"notifications"`
	Channels      ChannelsConfig     `yaml:"channels"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Server        ServerConfig       `yaml:"server"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`

	// DevicesFile is the path of the registered device directory.
	DevicesFile string `yaml:"devices_file"`
}

// NotificationConfig controls admission of alerts to the notification channels.
type NotificationConfig struct {
	// EnableMobileAlerts is the master switch for the dispatch loop.
	EnableMobileAlerts bool `yaml:"enable_mobile_alerts"`

	// DisplayAlerts logs the ranked alert list after each evaluation cycle.
	DisplayAlerts bool `yaml:"display_alerts"`

	// SnoozeDuration is used when a snooze request gives no duration.
	SnoozeDuration time.Duration `yaml:"snooze_duration"`

	Cooldowns  Cooldowns  `yaml:"cooldowns"`
	QuietHours QuietHours `yaml:"quiet_hours"`
}

// Cooldowns is the minimum time between two notifications of the same level
// for one component.
type Cooldowns struct {
	High   time.Duration `yaml:"high"`
	Medium time.Duration `yaml:"medium"`
	Low    time.Duration `yaml:"low"`
}

// For returns the cooldown for level. None has no cooldown.
func (c Cooldowns) For(l alert.Level) time.Duration {
	switch l {
	case alert.High:
		return c.High
	case alert.Medium:
		return c.Medium
	case alert.Low:
		return c.Low
	default:
		return 0
	}
}

// QuietHours is a daily window, [Start, End) in whole hours, during which
// notifications are held back. Start > End wraps past midnight and
// Start == End is an empty window.
type QuietHours struct {
	Respect         bool `yaml:"respect"`
	Start           int  `yaml:"start"`
	End             int  `yaml:"end"`
	OverrideForHigh bool `yaml:"override_for_high"`

	// Location is an IANA zone name. Empty means the process local zone.
	Location string `yaml:"location,omitempty"`
}

// Zone resolves Location. Validate guarantees it loads.
func (q QuietHours) Zone() *time.Location {
	if q.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(q.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// ChannelsConfig holds per-channel settings. Channels are dispatched in the
// fixed order push, sms, email.
type ChannelsConfig struct {
	Push    PushConfig    `yaml:"push"`
	SMS     SMSConfig     `yaml:"sms"`
	Email   EmailConfig   `yaml:"email"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// PushConfig publishes notifications to a NATS subject consumed by the
// mobile push relay.
type PushConfig struct {
	Enabled bool          `yaml:"enabled"`
	NATSURL string        `yaml:"nats_url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// SMSConfig posts messages to an HTTP SMS gateway.
type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	APIKeyEnv  string `yaml:"api_key_env"`
	FromNumber string `yaml:"from_number"`

	// RatePerMinute caps outgoing messages. Zero disables the limit.
	RatePerMinute int           `yaml:"rate_per_minute"`
	Timeout       time.Duration `yaml:"timeout"`
}

// APIKey returns the gateway API key resolved from the environment.
func (s SMSConfig) APIKey() string { return getenv(s.APIKeyEnv) }

// EmailConfig sends notifications through an SMTP relay.
type EmailConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SMTPAddr    string `yaml:"smtp_addr"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	FromAddress string `yaml:"from_address"`

	// Timeout bounds one send: dial, STARTTLS, auth and submission.
	Timeout time.Duration `yaml:"timeout"`
}

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string { return getenv(e.PasswordEnv) }

// BreakerConfig wraps every channel in a circuit breaker when MaxFailures > 0.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout is how long an open breaker rejects sends before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// MonitorConfig sets the two loop periods and the history query default.
type MonitorConfig struct {
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
	DispatchInterval   time.Duration `yaml:"dispatch_interval"`
	HistoryWindow      time.Duration `yaml:"history_window"`
}

// ServerConfig holds the listener ports and inbound authentication.
type ServerConfig struct {
	HTTPPort int        `yaml:"http_port"`
	GRPCPort int        `yaml:"grpc_port"`
	Auth     AuthConfig `yaml:"auth"`
}

// TelemetryConfig selects where sensor readings come from.
type TelemetryConfig struct {
	// Source is one of: simulated | prometheus.
	Source string `yaml:"source"`

	// Endpoint is the metrics URL scraped when Source is prometheus.
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Auth     AuthConfig    `yaml:"auth"`

	// FailureProbability is the chance per cycle that the simulated provider
	// perturbs one component towards failure.
	FailureProbability float64 `yaml:"failure_probability"`

	// Seed fixes the simulated provider's random sequence. Zero seeds from
	// the clock.
	Seed int64 `yaml:"seed,omitempty"`
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header,omitempty"`
	// KeyEnv names the environment variable that holds the API key.
	KeyEnv string `yaml:"key_env,omitempty"`

	// TokenEnv names the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env,omitempty"`

	Username    string `yaml:"username,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// DefaultAuthHeader carries the API key when Header is unset.
const DefaultAuthHeader = "x-api-key"

// EffectiveHeader returns Header lowercased, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAuthHeader
	}
	return strings.ToLower(a.Header)
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return getenv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return getenv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return getenv(a.PasswordEnv) }

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Thresholds: alert.DefaultThresholds,
		Priorities: map[string]int{
			"engine":       5,
			"brakes":       5,
			"transmission": 4,
			"electrical":   3,
			"battery":      2,
		},
		DefaultPriority: DefaultPriority,
		Notifications: NotificationConfig{
			EnableMobileAlerts: true,
			DisplayAlerts:      true,
			SnoozeDuration:     DefaultSnoozeDuration,
			Cooldowns: Cooldowns{
				High:   30 * time.Minute,
				Medium: 120 * time.Minute,
				Low:    360 * time.Minute,
			},
			QuietHours: QuietHours{
				Respect:         true,
				Start:           22,
				End:             7,
				OverrideForHigh: true,
			},
		},
		Channels: ChannelsConfig{
			Push:  PushConfig{Subject: "drivewatch.push", Timeout: DefaultChannelTimeout},
			SMS:   SMSConfig{Timeout: DefaultChannelTimeout},
			Email: EmailConfig{Timeout: DefaultChannelTimeout},
		},
		Monitor: MonitorConfig{
			EvaluationInterval: DefaultEvaluationInterval,
			DispatchInterval:   DefaultDispatchInterval,
			HistoryWindow:      DefaultHistoryWindow,
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Auth:     AuthConfig{Mode: "none"},
		},
		Telemetry: TelemetryConfig{
			Source:             SourceSimulated,
			Timeout:            DefaultChannelTimeout,
			FailureProbability: DefaultFailureProbability,
		},
		DevicesFile: DefaultDevicesFile,
	}
}

// Parse decodes a YAML document on top of Default and validates the result.
// A priorities table in the document replaces the default table entirely;
// the default table applies only when the document has none.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	defaults := cfg.Priorities
	cfg.Priorities = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if cfg.Priorities == nil {
		cfg.Priorities = defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, falling back to Default when the file is missing
// or invalid. The returned error explains the fallback and is nil when path
// loaded cleanly.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	return data, nil
}

// Save validates cfg and writes it to path. The file is replaced atomically
// so a concurrent Watch never reads a partial document.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".drivewatch-*.yaml")
	if err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	return nil
}

// PriorityFor returns the ranking weight for component.
func (c *Config) PriorityFor(component string) int {
	if p, ok := c.Priorities[component]; ok {
		return p
	}
	return c.DefaultPriority
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Priorities = make(map[string]int, len(c.Priorities))
	for k, v := range c.Priorities {
		out.Priorities[k] = v
	}
	return &out
}

// Validate checks ranges and structural constraints. Every error wraps
// ErrInvalid.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.DefaultPriority < 0 {
		return invalid("default_priority must not be negative")
	}
	for comp, p := range c.Priorities {
		if comp == "" {
			return invalid("priorities: empty component name")
		}
		if p < 0 {
			return invalid("priorities[%s] must not be negative", comp)
		}
	}

	n := c.Notifications
	if n.SnoozeDuration <= 0 {
		return invalid("notifications.snooze_duration must be positive")
	}
	for _, l := range alert.Levels {
		if n.Cooldowns.For(l) < 0 {
			return invalid("notifications.cooldowns.%s must not be negative", l)
		}
	}
	q := n.QuietHours
	if q.Start < 0 || q.Start > 23 || q.End < 0 || q.End > 23 {
		return invalid("notifications.quiet_hours start and end must be within 0..23")
	}
	if q.Location != "" {
		if _, err := time.LoadLocation(q.Location); err != nil {
			return invalid("notifications.quiet_hours.location: %v", err)
		}
	}

	ch := c.Channels
	if ch.Push.Enabled && (ch.Push.NATSURL == "" || ch.Push.Subject == "") {
		return invalid("channels.push: nats_url and subject are required when enabled")
	}
	if ch.SMS.Enabled && ch.SMS.Endpoint == "" {
		return invalid("channels.sms: endpoint is required when enabled")
	}
	if ch.SMS.RatePerMinute < 0 {
		return invalid("channels.sms.rate_per_minute must not be negative")
	}
	if ch.Email.Enabled && (ch.Email.SMTPAddr == "" || ch.Email.FromAddress == "") {
		return invalid("channels.email: smtp_addr and from_address are required when enabled")
	}
	if ch.Push.Timeout < 0 || ch.SMS.Timeout < 0 || ch.Email.Timeout < 0 {
		return invalid("channels: timeouts must not be negative")
	}
	if ch.Breaker.OpenTimeout < 0 {
		return invalid("channels.breaker.open_timeout must not be negative")
	}

	m := c.Monitor
	if m.EvaluationInterval <= 0 {
		return invalid("monitor.evaluation_interval must be positive")
	}
	if m.DispatchInterval <= 0 {
		return invalid("monitor.dispatch_interval must be positive")
	}
	if m.HistoryWindow <= 0 {
		return invalid("monitor.history_window must be positive")
	}

	if !validPort(c.Server.HTTPPort) {
		return invalid("server.http_port %d out of range", c.Server.HTTPPort)
	}
	if !validPort(c.Server.GRPCPort) {
		return invalid("server.grpc_port %d out of range", c.Server.GRPCPort)
	}
	if err := validAuthMode("server.auth", c.Server.Auth.Mode); err != nil {
		return err
	}

	t := c.Telemetry
	switch t.Source {
	case SourceSimulated:
	case SourcePrometheus:
		if t.Endpoint == "" {
			return invalid("telemetry.endpoint is required for source %q", t.Source)
		}
	default:
		return invalid("telemetry.source: unknown source %q", t.Source)
	}
	if t.FailureProbability < 0 || t.FailureProbability > 1 {
		return invalid("telemetry.failure_probability must be within [0,1]")
	}
	if err := validAuthMode("telemetry.auth", t.Auth.Mode); err != nil {
		return err
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func validAuthMode(field, mode string) error {
	switch mode {
	case "apikey", "bearer", "basic", "none", "":
		return nil
	default:
		return invalid("%s: unknown auth mode %q", field, mode)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
