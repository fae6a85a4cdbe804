package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported playout engines. The set is closed: any other value is rejected
// by Validate.
const (
	EngineCasparCG = "casparcg"
)

// Config is the root configuration structure for the playout worker.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Storages  []StorageConfig `yaml:"storages"`
	Channels  []ChannelConfig `yaml:"channels"`
}

// SiteConfig identifies the installation. The site name prefixes playout
// file names and MQTT topics.
type SiteConfig struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"data_dir"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP control API settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the status push endpoint.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains control API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings. An empty secret leaves the
// control API open, which is the usual setup on an isolated playout network.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PluginsConfig points at the directory holding plugin manifests.
type PluginsConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig maps a storage id to its local mount point.
type StorageConfig struct {
	ID   int    `yaml:"id"`
	Path string `yaml:"path"`
}

// ChannelConfig describes one playout channel.
type ChannelConfig struct {
	ID               int            `yaml:"id"`
	Name             string         `yaml:"name"`
	Engine           string         `yaml:"engine"`
	FPS              float64        `yaml:"fps"`
	ControllerPort   int            `yaml:"controller_port"`
	PlayoutStorage   int            `yaml:"playout_storage"`
	PlayoutDir       string         `yaml:"playout_dir"`
	PlayoutContainer string         `yaml:"playout_container"`
	AllowRemote      bool           `yaml:"allow_remote"`
	LiveSource       string         `yaml:"live_source"`
	Plugins          []string       `yaml:"plugins"`
	RecoverOnStart   bool           `yaml:"recover_on_start"`
	Caspar           CasparCGConfig `yaml:"caspar"`
}

// CasparCGConfig holds the device connection settings for the casparcg engine.
type CasparCGConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	OSCPort   int    `yaml:"osc_port"`
	Channel   int    `yaml:"channel"`
	FeedLayer int    `yaml:"feed_layer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NEBULA_SECTION_KEY
// For example: NEBULA_DATABASE_PATH, NEBULA_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, applying defaults, environment
// overrides and validation exactly as Load does.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyChannelDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:    "nebula",
			DataDir: "./data",
		},
		Database: DatabaseConfig{
			Path:        "./data/nebula.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nebula-playout",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 42100,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 720,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Plugins: PluginsConfig{
			Dir: "./plugins/playout",
		},
	}
}

// applyChannelDefaults fills per-channel settings the YAML left empty.
func (c *Config) applyChannelDefaults() {
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Engine == "" {
			ch.Engine = EngineCasparCG
		}
		if ch.FPS == 0 {
			ch.FPS = 25
		}
		if ch.PlayoutContainer == "" {
			ch.PlayoutContainer = "mxf"
		}
		if ch.Name == "" {
			ch.Name = fmt.Sprintf("Channel %d", ch.ID)
		}
		if ch.Caspar.Host == "" {
			ch.Caspar.Host = "localhost"
		}
		if ch.Caspar.Port == 0 {
			ch.Caspar.Port = 5250
		}
		if ch.Caspar.OSCPort == 0 {
			ch.Caspar.OSCPort = 5253
		}
		if ch.Caspar.Channel == 0 {
			ch.Caspar.Channel = 1
		}
		if ch.Caspar.FeedLayer == 0 {
			ch.Caspar.FeedLayer = 10
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEBULA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEBULA_SITE_NAME"); v != "" {
		cfg.Site.Name = v
	}

	// Database
	if v := os.Getenv("NEBULA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("NEBULA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NEBULA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NEBULA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NEBULA_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("NEBULA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("NEBULA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Channel problems (missing or duplicate ids, unknown engines) make the
// worker refuse to start; they are reported together with every other
// problem found.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.Name == "" {
		errs = append(errs, "site.name is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	storageIDs := make(map[int]bool, len(c.Storages))
	for _, s := range c.Storages {
		if s.ID <= 0 {
			errs = append(errs, "storages: id must be positive")
			continue
		}
		if storageIDs[s.ID] {
			errs = append(errs, fmt.Sprintf("storages: duplicate id %d", s.ID))
		}
		storageIDs[s.ID] = true
	}

	if len(c.Channels) == 0 {
		errs = append(errs, "at least one playout channel is required")
	}

	channelIDs := make(map[int]bool, len(c.Channels))
	ports := map[int]string{c.API.Port: "api.port"}
	for _, ch := range c.Channels {
		errs = append(errs, ch.validate(storageIDs)...)
		if channelIDs[ch.ID] {
			errs = append(errs, fmt.Sprintf("channels: duplicate id %d", ch.ID))
		}
		channelIDs[ch.ID] = true

		if ch.ControllerPort != 0 {
			if owner, taken := ports[ch.ControllerPort]; taken {
				errs = append(errs, fmt.Sprintf("channels[%d].controller_port %d already used by %s", ch.ID, ch.ControllerPort, owner))
			}
			ports[ch.ControllerPort] = fmt.Sprintf("channel %d", ch.ID)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (ch ChannelConfig) validate(storageIDs map[int]bool) []string {
	var errs []string
	prefix := fmt.Sprintf("channels[%d]", ch.ID)

	if ch.ID <= 0 {
		errs = append(errs, "channels: id must be positive")
	}
	if ch.Engine != EngineCasparCG {
		errs = append(errs, fmt.Sprintf("%s.engine %q is not supported", prefix, ch.Engine))
	}
	if ch.FPS <= 0 {
		errs = append(errs, prefix+".fps must be positive")
	}
	if ch.ControllerPort < 0 || ch.ControllerPort > 65535 {
		errs = append(errs, prefix+".controller_port must be between 1 and 65535")
	}
	if ch.PlayoutStorage != 0 && !storageIDs[ch.PlayoutStorage] {
		errs = append(errs, fmt.Sprintf("%s.playout_storage %d is not a configured storage", prefix, ch.PlayoutStorage))
	}
	if ch.Caspar.Port < 1 || ch.Caspar.Port > 65535 {
		errs = append(errs, prefix+".caspar.port must be between 1 and 65535")
	}
	if ch.Caspar.OSCPort < 1 || ch.Caspar.OSCPort > 65535 {
		errs = append(errs, prefix+".caspar.osc_port must be between 1 and 65535")
	}

	return errs
}

// Channel returns the configuration of the channel with the given id.
func (c *Config) Channel(id int) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// FrameDuration returns the nominal duration of one frame on the channel.
func (ch ChannelConfig) FrameDuration() time.Duration {
	if ch.FPS <= 0 {
		return 40 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / ch.FPS)
}
