package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting of the hub.
type Config struct {
	Database    *DatabaseConfig    `json:"database"`
	HTTP        *HTTPConfig        `json:"http"`
	WebSocket   *WebSocketConfig   `json:"websocket"`
	Auth        *AuthConfig        `json:"auth"`
	Notify      *NotifyConfig      `json:"notify"`
	Negotiation *NegotiationConfig `json:"negotiation"`
}

type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MigrationsPath string        `json:"migrations_path"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig configures bearer token verification. The secret is shared
// with the platform's auth service.
type AuthConfig struct {
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
}

// NotifyConfig sizes the push/email dispatch pool.
type NotifyConfig struct {
	QueueSize       int           `json:"queue_size"`
	Workers         int           `json:"workers"`
	DispatchTimeout time.Duration `json:"dispatch_timeout"`
}

// NegotiationConfig controls the reschedule proposal window.
type NegotiationConfig struct {
	Window        time.Duration `json:"window"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./skillhub.db",
			Timeout:        30 * time.Second,
			MigrationsPath: "./migrations",
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			Secret: "change-me-in-production",
			Issuer: "skillhub",
		},
		Notify: &NotifyConfig{
			QueueSize:       256,
			Workers:         4,
			DispatchTimeout: 10 * time.Second,
		},
		Negotiation: &NegotiationConfig{
			Window:        48 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MigrationsPath == "" {
		return fmt.Errorf("migrations path cannot be empty")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}

	if c.Notify == nil {
		return fmt.Errorf("notify configuration is required")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify queue size must be positive")
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("notify workers must be positive")
	}
	if c.Notify.DispatchTimeout <= 0 {
		return fmt.Errorf("notify dispatch timeout must be positive")
	}

	if c.Negotiation == nil {
		return fmt.Errorf("negotiation configuration is required")
	}
	if c.Negotiation.Window <= 0 {
		return fmt.Errorf("negotiation window must be positive")
	}
	if c.Negotiation.SweepInterval <= 0 {
		return fmt.Errorf("negotiation sweep interval must be positive")
	}

	return nil
}

// LoadFromEnv returns the defaults overridden by SKILLHUB_* environment
// variables. Unparseable values fall back silently.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("SKILLHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("SKILLHUB_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("SKILLHUB_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("SKILLHUB_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("SKILLHUB_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("SKILLHUB_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if migrations := os.Getenv("SKILLHUB_MIGRATIONS_PATH"); migrations != "" {
		config.Database.MigrationsPath = migrations
	}

	if pingInterval := os.Getenv("SKILLHUB_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("SKILLHUB_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("SKILLHUB_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("SKILLHUB_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if secret := os.Getenv("SKILLHUB_AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if issuer := os.Getenv("SKILLHUB_AUTH_ISSUER"); issuer != "" {
		config.Auth.Issuer = issuer
	}

	if queueSize := os.Getenv("SKILLHUB_NOTIFY_QUEUE_SIZE"); queueSize != "" {
		if size, err := strconv.Atoi(queueSize); err == nil {
			config.Notify.QueueSize = size
		}
	}
	if workers := os.Getenv("SKILLHUB_NOTIFY_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Notify.Workers = n
		}
	}
	if dispatchTimeout := os.Getenv("SKILLHUB_NOTIFY_DISPATCH_TIMEOUT"); dispatchTimeout != "" {
		if timeout, err := time.ParseDuration(dispatchTimeout); err == nil {
			config.Notify.DispatchTimeout = timeout
		}
	}

	if window := os.Getenv("SKILLHUB_NEGOTIATION_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Negotiation.Window = d
		}
	}
	if sweep := os.Getenv("SKILLHUB_NEGOTIATION_SWEEP_INTERVAL"); sweep != "" {
		if d, err := time.ParseDuration(sweep); err == nil {
			config.Negotiation.SweepInterval = d
		}
	}

	return config
}

// ConfigFile is the JSON shape for file-based configuration. Durations are
// strings so files can say "30s" instead of nanosecond counts.
type ConfigFile struct {
	Database    *DatabaseConfigFile    `json:"database"`
	HTTP        *HTTPConfigFile        `json:"http"`
	WebSocket   *WebSocketConfigFile   `json:"websocket"`
	Auth        *AuthConfig            `json:"auth"`
	Notify      *NotifyConfigFile      `json:"notify"`
	Negotiation *NegotiationConfigFile `json:"negotiation"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MigrationsPath string `json:"migrations_path"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type NotifyConfigFile struct {
	QueueSize       int    `json:"queue_size"`
	Workers         int    `json:"workers"`
	DispatchTimeout string `json:"dispatch_timeout"`
}

type NegotiationConfigFile struct {
	Window        string `json:"window"`
	SweepInterval string `json:"sweep_interval"`
}

// LoadFromFile reads a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.MigrationsPath != "" {
			config.Database.MigrationsPath = configFile.Database.MigrationsPath
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Auth != nil {
		if configFile.Auth.Secret != "" {
			config.Auth.Secret = configFile.Auth.Secret
		}
		if configFile.Auth.Issuer != "" {
			config.Auth.Issuer = configFile.Auth.Issuer
		}
	}

	if configFile.Notify != nil {
		if configFile.Notify.QueueSize > 0 {
			config.Notify.QueueSize = configFile.Notify.QueueSize
		}
		if configFile.Notify.Workers > 0 {
			config.Notify.Workers = configFile.Notify.Workers
		}
		if configFile.Notify.DispatchTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Notify.DispatchTimeout); err == nil {
				config.Notify.DispatchTimeout = timeout
			}
		}
	}

	if configFile.Negotiation != nil {
		if configFile.Negotiation.Window != "" {
			if d, err := time.ParseDuration(configFile.Negotiation.Window); err == nil {
				config.Negotiation.Window = d
			}
		}
		if configFile.Negotiation.SweepInterval != "" {
			if d, err := time.ParseDuration(configFile.Negotiation.SweepInterval); err == nil {
				config.Negotiation.SweepInterval = d
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. A missing or broken file falls back to the environment layer.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
