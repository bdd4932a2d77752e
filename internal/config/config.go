package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"greenlife-monitor/common/config"
)

// Config dashboard and device-bridge configuration
type Config struct {
	Database  config.DatabaseConfig
	DBEnabled bool
	Redis     config.RedisConfig
	MQTT      config.MQTTConfig

	HTTP struct {
		Addr string
		// AllowedOrigins for the dashboard WebSocket. Empty allows same-host
		// pages only; "*" allows any origin.
		AllowedOrigins []string
	}

	// Identity hosted identity REST API (token verification)
	Identity struct {
		BaseURL string
		APIKey  string
		Timeout time.Duration
	}

	Dashboard struct {
		TelemetryPath     string // document holding the live reading, "health_monitor"
		ProfilePathPrefix string // profile documents live at <prefix>{identity}
		WindowSize        int    // trend window length
		TimeZone          string // time zone for trend labels
	}

	// Channel Redis-backed remote document store
	Channel struct {
		KeyPrefix    string        // document hash key prefix, "rtdb:"
		StreamMaxLen int64         // approximate change-stream length per document
		BlockTimeout time.Duration // XREAD block per poll
		RetryBackoff time.Duration // first wait after a failed read
		MaxBackoff   time.Duration
	}

	Bridge struct {
		TelemetryTopic string
		CommandTopic   string
		CommandTimeout time.Duration // how long a relayed fan command stays pending
		OpsAddr        string        // /healthz and /metrics
	}

	Log config.LogConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	// the audit pool stays small: one insert per fan command
	cfg.Database = config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "greenlife",
		SSLMode:         "disable",
		MaxConns:        5,
		MaxIdle:         2,
		ConnMaxLifetime: 30 * time.Minute,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"

	cfg.Redis = config.RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    100,
		DialTimeout: 5 * time.Second,
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "greenlife-bridge",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.AllowedOrigins = splitList(getEnv("DASHBOARD_ALLOWED_ORIGINS", ""))

	cfg.Identity.BaseURL = getEnv("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com")
	cfg.Identity.APIKey = getEnv("IDENTITY_API_KEY", "")
	cfg.Identity.Timeout = 10 * time.Second

	cfg.Dashboard.TelemetryPath = getEnv("TELEMETRY_PATH", "health_monitor")
	cfg.Dashboard.ProfilePathPrefix = getEnv("PROFILE_PATH_PREFIX", "patients/")
	cfg.Dashboard.WindowSize = getEnvInt("TREND_WINDOW_SIZE", 20)
	cfg.Dashboard.TimeZone = getEnv("DASHBOARD_TIMEZONE", "Local")

	cfg.Channel.KeyPrefix = getEnv("CHANNEL_KEY_PREFIX", "rtdb:")
	cfg.Channel.StreamMaxLen = int64(getEnvInt("CHANNEL_STREAM_MAXLEN", 1000))
	cfg.Channel.BlockTimeout = time.Duration(getEnvInt("CHANNEL_BLOCK_MS", 1000)) * time.Millisecond
	cfg.Channel.RetryBackoff = time.Duration(getEnvInt("CHANNEL_RETRY_MS", 1000)) * time.Millisecond
	cfg.Channel.MaxBackoff = time.Duration(getEnvInt("CHANNEL_MAX_BACKOFF_MS", 30000)) * time.Millisecond

	cfg.Bridge.TelemetryTopic = getEnv("BRIDGE_TELEMETRY_TOPIC", "greenlife/bed/telemetry")
	cfg.Bridge.CommandTopic = getEnv("BRIDGE_COMMAND_TOPIC", "greenlife/bed/command")
	cfg.Bridge.CommandTimeout = time.Duration(getEnvInt("BRIDGE_COMMAND_TIMEOUT", 10)) * time.Second
	cfg.Bridge.OpsAddr = getEnv("BRIDGE_OPS_ADDR", ":9101")

	cfg.Log = config.LogConfig{Level: "info", Format: "json"}
	cfg.Log.LoadFromEnv("LOG")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Dashboard.TimeZone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Dashboard.TimeZone)
}

func (c *Config) validate() error {
	if c.Dashboard.TelemetryPath == "" {
		return fmt.Errorf("TELEMETRY_PATH is empty")
	}
	if c.Dashboard.WindowSize <= 0 {
		return fmt.Errorf("TREND_WINDOW_SIZE must be positive, got %d", c.Dashboard.WindowSize)
	}
	if c.Channel.BlockTimeout <= 0 {
		return fmt.Errorf("CHANNEL_BLOCK_MS must be positive")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must be positive, got %d", c.Redis.PoolSize)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", c.Dashboard.TimeZone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
