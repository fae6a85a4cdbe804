package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
site:
  name: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
storages:
  - id: 1
    path: "/mnt/nebula_01"
channels:
  - id: 1
    name: "Main"
    fps: 25
    controller_port: 42101
    playout_storage: 1
    playout_dir: "media.dir"
    live_source: "DECKLINK 1"
    plugins: ["nowplaying"]
    caspar:
      host: "10.0.0.5"
`

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(validYAML), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.Name != "test-site" {
		t.Errorf("Site.Name = %q, want %q", cfg.Site.Name, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if len(cfg.Channels) != 1 {
		t.Fatalf("len(Channels) = %d, want 1", len(cfg.Channels))
	}

	ch := cfg.Channels[0]
	if ch.Engine != EngineCasparCG {
		t.Errorf("Engine = %q, want default %q", ch.Engine, EngineCasparCG)
	}
	if ch.Caspar.Host != "10.0.0.5" {
		t.Errorf("Caspar.Host = %q, want %q", ch.Caspar.Host, "10.0.0.5")
	}
	if ch.Caspar.Port != 5250 || ch.Caspar.OSCPort != 5253 {
		t.Errorf("Caspar ports = %d/%d, want 5250/5253", ch.Caspar.Port, ch.Caspar.OSCPort)
	}
	if ch.Caspar.Channel != 1 || ch.Caspar.FeedLayer != 10 {
		t.Errorf("Caspar channel/layer = %d-%d, want 1-10", ch.Caspar.Channel, ch.Caspar.FeedLayer)
	}
	if ch.PlayoutContainer != "mxf" {
		t.Errorf("PlayoutContainer = %q, want mxf", ch.PlayoutContainer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestParse_UnknownEngine(t *testing.T) {
	content := strings.Replace(validYAML, `name: "Main"`, `name: "Main"
    engine: "vlc"`, 1)

	_, err := Parse([]byte(content))
	if err == nil {
		t.Fatal("Parse() expected error for unknown engine")
	}
	if !strings.Contains(err.Error(), `engine "vlc" is not supported`) {
		t.Errorf("error = %v, want unsupported engine message", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validChannel := func() ChannelConfig {
		return ChannelConfig{
			ID:     1,
			Engine: EngineCasparCG,
			FPS:    25,
			Caspar: CasparCGConfig{Port: 5250, OSCPort: 5253, Channel: 1, FeedLayer: 10},
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(_ *Config) {},
		},
		{
			name:    "missing site name",
			modify:  func(c *Config) { c.Site.Name = "" },
			wantErr: "site.name is required",
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "invalid QoS",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "short jwt secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "security.jwt.secret",
		},
		{
			name:    "no channels",
			modify:  func(c *Config) { c.Channels = nil },
			wantErr: "at least one playout channel",
		},
		{
			name: "duplicate channel",
			modify: func(c *Config) {
				c.Channels = append(c.Channels, validChannel())
			},
			wantErr: "duplicate id 1",
		},
		{
			name:    "zero fps",
			modify:  func(c *Config) { c.Channels[0].FPS = 0 },
			wantErr: "fps must be positive",
		},
		{
			name:    "unknown playout storage",
			modify:  func(c *Config) { c.Channels[0].PlayoutStorage = 9 },
			wantErr: "playout_storage 9",
		},
		{
			name:    "controller port collides with api",
			modify:  func(c *Config) { c.Channels[0].ControllerPort = c.API.Port },
			wantErr: "already used by api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Channels = []ChannelConfig{validChannel()}
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NEBULA_DATABASE_PATH", "/env/nebula.db")
	t.Setenv("NEBULA_MQTT_HOST", "broker.local")
	t.Setenv("NEBULA_JWT_SECRET", "env-secret-that-is-long-enough-123456")
	t.Setenv("NEBULA_SITE_NAME", "studio")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/nebula.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.Security.JWT.Secret != "env-secret-that-is-long-enough-123456" {
		t.Errorf("JWT.Secret not overridden")
	}
	if cfg.Site.Name != "studio" {
		t.Errorf("Site.Name = %q", cfg.Site.Name)
	}
}

func TestChannelLookupAndFrameDuration(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ch, ok := cfg.Channel(1)
	if !ok {
		t.Fatal("Channel(1) not found")
	}
	if got := ch.FrameDuration(); got != 40*time.Millisecond {
		t.Errorf("FrameDuration() = %v, want 40ms", got)
	}
	if _, ok := cfg.Channel(2); ok {
		t.Error("Channel(2) found, want missing")
	}
}
