package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	GPIB        GPIBConfig        `yaml:"gpib"`
	Integration IntegrationConfig `yaml:"integration"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Admin       AdminConfig       `yaml:"admin"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthRequired   bool     `yaml:"auth_required"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration. An empty URL disables messaging.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GPIBConfig controls the simulated instrument sessions
type GPIBConfig struct {
	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
	// LatencyScale multiplies every simulated bus latency. Defaults to 1;
	// zero disables waiting.
	LatencyScale       float64 `yaml:"latency_scale"`
	AutoConnect        bool    `yaml:"auto_connect"`
	AutoConnectWorkers int     `yaml:"auto_connect_workers"`
}

// IntegrationConfig configures measurement forwarding
type IntegrationConfig struct {
	HTTP HTTPIntegrationConfig `yaml:"http"`
	MQTT MQTTIntegrationConfig `yaml:"mqtt"`
}

// HTTPIntegrationConfig configures the webhook target
type HTTPIntegrationConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// MQTTIntegrationConfig configures the MQTT target
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BrokerURL    string `yaml:"broker_url"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPattern string `yaml:"topic_pattern"`
	QoS          byte   `yaml:"qos"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AdminConfig holds the bootstrap administrator credentials
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applying environment
// overrides and defaults before validating the result.
func Parse(data []byte) (*Config, error) {
	// Keys absent from the document keep these values
	cfg := Config{GPIB: GPIBConfig{LatencyScale: 1}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("API_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parse API_PORT: %w", err)
		}
		c.API.Port = p
	}

	if seed := os.Getenv("GPIB_SEED"); seed != "" {
		s, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("parse GPIB_SEED: %w", err)
		}
		c.GPIB.Seed = s
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "GPIB Control API"
	}
	if c.Server.Version == "" {
		c.Server.Version = "1.0.0"
	}

	if c.API.Port == 0 {
		c.API.Port = 8000
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "gpib"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = "gpib-server"
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.GPIB.AutoConnectWorkers <= 0 {
		c.GPIB.AutoConnectWorkers = 4
	}

	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 10 * time.Second
	}
	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "gpib/instruments/{instrument_id}/{type}"
	}
	if c.Integration.MQTT.ClientID == "" {
		c.Integration.MQTT.ClientID = "gpib-forwarder"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks values that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port out of range: %d", c.API.Port)
	}

	if c.GPIB.LatencyScale < 0 {
		return fmt.Errorf("gpib latency_scale must not be negative: %v", c.GPIB.LatencyScale)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}

	if c.API.AuthRequired && c.JWT.Secret == "" {
		return fmt.Errorf("api auth_required needs jwt secret")
	}

	if c.Integration.HTTP.Enabled && c.Integration.HTTP.Endpoint == "" {
		return fmt.Errorf("http integration enabled without endpoint")
	}

	if c.Integration.MQTT.Enabled && c.Integration.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt integration enabled without broker_url")
	}

	if c.Integration.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2: %d", c.Integration.MQTT.QoS)
	}

	return nil
}

// Address returns the HTTP listen address
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
