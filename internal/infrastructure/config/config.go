package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the yaml configuration. Loading is layered:
// built-in defaults, then the file, then MOTIONCORE_* environment
// variables for the handful of values that differ per deployment.
type Config struct {
	System    SystemConfig    `yaml:"system"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Motion    MotionConfig    `yaml:"motion"`
	Devices   []DeviceRecord  `yaml:"devices"`
}

// SystemConfig identifies the rig this instance controls.
type SystemConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig holds SQLite settings for the motion journal store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// MQTTConfig configures the telemetry bus connection.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the backoff between reconnect attempts,
// in seconds. MaxAttempts of zero retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the state-stream endpoint. Intervals and
// timeouts are in seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig configures the optional time-series sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds token signing settings. The secret has no default and
// must come from the file or MOTIONCORE_JWT_SECRET.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// MotionConfig sets the timing constants of the motion subsystem.
// Durations accept yaml strings like "50ms".
type MotionConfig struct {
	// Simulation selects the in-process transport instead of the TCP link.
	Simulation bool `yaml:"simulation"`

	// StagePollInterval is the stage family poll period. Default: 50ms.
	StagePollInterval time.Duration `yaml:"stage_poll_interval"`

	// GantryPollInterval is the gantry family poll period. Default: 200ms.
	GantryPollInterval time.Duration `yaml:"gantry_poll_interval"`

	// StalenessWindow is how long cached status flags are trusted before a
	// direct hardware re-query. Default: 200ms.
	StalenessWindow time.Duration `yaml:"staleness_window"`

	// WaitPollInterval is the IsMoving poll period inside
	// WaitForMotionCompletion. Default: 50ms.
	WaitPollInterval time.Duration `yaml:"wait_poll_interval"`

	// SystemVelocity is the stage family system velocity applied at connect
	// time when non-zero (mm/s).
	SystemVelocity float64 `yaml:"system_velocity"`
}

// DeviceRecord is one configured motion device.
type DeviceRecord struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// InstalledAxes is a space-separated axis list, e.g. "X Y Z U V W".
	// Empty means the family default axis set.
	InstalledAxes string `yaml:"installed_axes"`
	Enabled       bool   `yaml:"enabled"`
	// Family is "stage" or "gantry".
	Family string `yaml:"family"`
}

// Load reads and validates the configuration at path. Values absent from
// the file keep their defaults; environment variables win over both.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			ID:   "rig-001",
			Name: "Motion Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/motioncore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "motioncore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
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
			JWT: JWTConfig{AccessTokenTTL: 15},
		},
		Motion: MotionConfig{
			StagePollInterval:  50 * time.Millisecond,
			GantryPollInterval: 200 * time.Millisecond,
			StalenessWindow:    200 * time.Millisecond,
			WaitPollInterval:   50 * time.Millisecond,
		},
	}
}

// applyEnv overlays MOTIONCORE_* environment variables. Only operational
// knobs and secrets are overridable; structural settings (devices, timing)
// live in the file.
func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		set func(v string)
	}{
		{"MOTIONCORE_DATABASE_PATH", func(v string) { c.Database.Path = v }},
		{"MOTIONCORE_MQTT_HOST", func(v string) { c.MQTT.Broker.Host = v }},
		{"MOTIONCORE_MQTT_USERNAME", func(v string) { c.MQTT.Auth.Username = v }},
		{"MOTIONCORE_MQTT_PASSWORD", func(v string) { c.MQTT.Auth.Password = v }},
		{"MOTIONCORE_API_HOST", func(v string) { c.API.Host = v }},
		{"MOTIONCORE_API_PORT", func(v string) {
			if port, err := strconv.Atoi(v); err == nil {
				c.API.Port = port
			}
		}},
		{"MOTIONCORE_INFLUXDB_TOKEN", func(v string) { c.InfluxDB.Token = v }},
		{"MOTIONCORE_MOTION_SIMULATION", func(v string) { c.Motion.Simulation = v == "true" || v == "1" }},
		{"MOTIONCORE_JWT_SECRET", func(v string) { c.Security.JWT.Secret = v }},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			o.set(v)
		}
	}
}

// Validate collects every problem rather than stopping at the first, so
// a bad config file is fixable in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.System.ID == "" {
		errs = append(errs, "system.id is required")
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

	// The API commands physical motion hardware; a forged token could
	// drive a stage into an obstruction. No secret, no startup.
	const minJWTSecretLength = 32
	switch {
	case c.Security.JWT.Secret == "":
		errs = append(errs, "security.jwt.secret is required (set MOTIONCORE_JWT_SECRET environment variable)")
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	for i, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
		}
		if d.Family != "" && d.Family != "stage" && d.Family != "gantry" {
			errs = append(errs, fmt.Sprintf("devices[%d].family must be \"stage\" or \"gantry\"", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
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
