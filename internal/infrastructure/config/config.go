package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tank Relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Serial   SerialConfig   `yaml:"serial"`
	Tank     TankConfig     `yaml:"tank"`
	Publish  PublishConfig  `yaml:"publish"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SiteConfig identifies this relay instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SerialConfig contains the radio receiver's serial line settings.
type SerialConfig struct {
	// Device is the serial device path (HC-12 receiver).
	Device string `yaml:"device"`

	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"` // none, odd, even, mark, space
	StopBits string `yaml:"stop_bits"`

	// ReadTimeout bounds a single line read (seconds).
	// Absence of data within the timeout is not an error.
	ReadTimeout int `yaml:"read_timeout"`

	// ReopenDelay is the pause before reopening a faulted channel (milliseconds).
	// Default 0: reopen immediately, retry forever.
	ReopenDelay int `yaml:"reopen_delay"`
}

// TankConfig holds the tank calibration constants, all in centimetres.
type TankConfig struct {
	Height int64 `yaml:"height"`

	// MinLevel is the water column that maps to 0%.
	MinLevel int64 `yaml:"min_level"`

	// MaxLevel is the water column that maps to 100%.
	// When zero it is derived as Height - MaxLevelOffset.
	MaxLevel       int64 `yaml:"max_level"`
	MaxLevelOffset int64 `yaml:"max_level_offset"`
}

// PublishConfig controls the publication cadence and topic layout.
type PublishConfig struct {
	// Interval is the publication period (seconds).
	Interval int `yaml:"interval"`

	// HealthInterval is the bridge health report period (seconds).
	HealthInterval int `yaml:"health_interval"`

	// DiscoveryPrefix is the Home Assistant discovery prefix.
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// NodePrefix is prepended to the sensor id to form the node id (tank_1).
	NodePrefix string `yaml:"node_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// WebDir, when set to an existing directory, serves the status page
	// from disk instead of the embedded copy.
	WebDir string `yaml:"web_dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite settings for the sensor inventory.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. .env file in the working directory, if present
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: TANKRELAY_SECTION_KEY.
// The relay's historical MQTT_* variables are honoured as well.
//
// Parameters:
//   - path: Path to the YAML configuration file
//   - optional: When true a missing file is not an error (defaults + env only)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	// A missing .env is normal in production.
	_ = godotenv.Load() //nolint:errcheck // optional file

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
		// Env-only deployment
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Tank.MaxLevel == 0 {
		cfg.Tank.MaxLevel = cfg.Tank.Height - cfg.Tank.MaxLevelOffset
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the values the relay shipped with.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "tank-relay",
			Name: "Water Tank Relay",
		},
		Serial: SerialConfig{
			Device:      "/dev/serial0",
			BaudRate:    9600,
			DataBits:    8,
			Parity:      "none",
			StopBits:    "1",
			ReadTimeout: 2,
		},
		Tank: TankConfig{
			Height:         190,
			MinLevel:       30,
			MaxLevelOffset: 25,
		},
		Publish: PublishConfig{
			Interval:        5,
			HealthInterval:  30,
			DiscoveryPrefix: "homeassistant",
			NodePrefix:      "tank_",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tank_water_level_sensor",
			},
			QoS:       0,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    5000,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/tankrelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Legacy relay variables first so TANKRELAY_* wins when both are set.
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	setInt(&cfg.MQTT.Broker.Port, "MQTT_PORT")
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	setInt(&cfg.MQTT.KeepAlive, "MQTT_KEEP_ALIVE_INTERVAL")

	// MQTT
	if v := os.Getenv("TANKRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	setInt(&cfg.MQTT.Broker.Port, "TANKRELAY_MQTT_PORT")
	if v := os.Getenv("TANKRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TANKRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Serial
	if v := os.Getenv("TANKRELAY_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	setInt(&cfg.Serial.BaudRate, "TANKRELAY_SERIAL_BAUD_RATE")

	// Tank calibration
	setInt64(&cfg.Tank.Height, "TANKRELAY_TANK_HEIGHT")
	setInt64(&cfg.Tank.MinLevel, "TANKRELAY_TANK_MIN_LEVEL")
	setInt64(&cfg.Tank.MaxLevel, "TANKRELAY_TANK_MAX_LEVEL")

	// Publication
	setInt(&cfg.Publish.Interval, "TANKRELAY_PUBLISH_INTERVAL")

	// API
	if v := os.Getenv("TANKRELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	setInt(&cfg.API.Port, "TANKRELAY_API_PORT")

	// Database
	if v := os.Getenv("TANKRELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("TANKRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// setInt overwrites dst when the variable holds a valid integer.
// Unparseable values are ignored; Validate reports what remains wrong.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Serial
	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, "serial.data_bits must be between 5 and 8")
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		errs = append(errs, "serial.parity must be none, odd, even, mark or space")
	}
	switch c.Serial.StopBits {
	case "1", "1.5", "2":
	default:
		errs = append(errs, "serial.stop_bits must be 1, 1.5 or 2")
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, "serial.read_timeout must be positive")
	}
	if c.Serial.ReopenDelay < 0 {
		errs = append(errs, "serial.reopen_delay cannot be negative")
	}

	// Tank: max == min would divide by zero in the level conversion.
	if c.Tank.Height <= 0 {
		errs = append(errs, "tank.height must be positive")
	}
	if c.Tank.MaxLevel == c.Tank.MinLevel {
		errs = append(errs, "tank.max_level must differ from tank.min_level")
	}

	// Publication
	if c.Publish.Interval <= 0 {
		errs = append(errs, "publish.interval must be positive")
	}
	if c.Publish.DiscoveryPrefix == "" {
		errs = append(errs, "publish.discovery_prefix is required")
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled is true")
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

// GetPublishInterval returns the publication cadence as a Duration.
func (c *Config) GetPublishInterval() time.Duration {
	return time.Duration(c.Publish.Interval) * time.Second
}

// GetHealthInterval returns the health report period as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Publish.HealthInterval) * time.Second
}

// GetSerialReadTimeout returns the serial read timeout as a Duration.
func (c *Config) GetSerialReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeout) * time.Second
}

// GetSerialReopenDelay returns the fault reopen pause as a Duration.
func (c *Config) GetSerialReopenDelay() time.Duration {
	return time.Duration(c.Serial.ReopenDelay) * time.Millisecond
}
