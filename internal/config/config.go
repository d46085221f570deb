package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	ChatAPI ChatAPIConfig `mapstructure:"chat_api"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Session SessionConfig `mapstructure:"session"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	StreamPort int    `mapstructure:"stream_port"`
	Host       string `mapstructure:"host"`
}

type GatewayConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	BackoffFactor     float64       `mapstructure:"backoff_factor"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

type ChatAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type SessionConfig struct {
	UserID   string `mapstructure:"user_id"`
	UserName string `mapstructure:"user_name"`
}

type SyncConfig struct {
	GraceDelay      time.Duration `mapstructure:"grace_delay"`
	TypingTTL       time.Duration `mapstructure:"typing_ttl"`
	ToastTTL        time.Duration `mapstructure:"toast_ttl"`
	RefetchInterval time.Duration `mapstructure:"refetch_interval"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.stream_port", 8091)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("gateway.url", "ws://localhost:8081/ws")
	viper.SetDefault("gateway.reconnect_interval", 5*time.Second)
	viper.SetDefault("gateway.backoff_factor", 1.0)
	viper.SetDefault("gateway.max_reconnect_delay", 5*time.Second)
	viper.SetDefault("chat_api.base_url", "http://localhost:8080/api")
	viper.SetDefault("chat_api.timeout", 10*time.Second)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.snapshot_ttl", 30*time.Second)
	viper.SetDefault("sync.grace_delay", time.Second)
	viper.SetDefault("sync.typing_ttl", 2*time.Second)
	viper.SetDefault("sync.toast_ttl", 4*time.Second)
	viper.SetDefault("sync.refetch_interval", 10*time.Second)

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auction-chat/")

	// Environment variable support
	viper.AutomaticEnv()

	// Environment variable mappings
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.stream_port", "SERVER_STREAM_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("gateway.url", "GATEWAY_URL")
	viper.BindEnv("gateway.reconnect_interval", "GATEWAY_RECONNECT_INTERVAL")
	viper.BindEnv("gateway.backoff_factor", "GATEWAY_BACKOFF_FACTOR")
	viper.BindEnv("gateway.max_reconnect_delay", "GATEWAY_MAX_RECONNECT_DELAY")
	viper.BindEnv("chat_api.base_url", "CHAT_API_BASE_URL")
	viper.BindEnv("chat_api.timeout", "CHAT_API_TIMEOUT")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.snapshot_ttl", "REDIS_SNAPSHOT_TTL")
	viper.BindEnv("session.user_id", "SESSION_USER_ID")
	viper.BindEnv("session.user_name", "SESSION_USER_NAME")
	viper.BindEnv("sync.grace_delay", "SYNC_GRACE_DELAY")
	viper.BindEnv("sync.typing_ttl", "SYNC_TYPING_TTL")
	viper.BindEnv("sync.toast_ttl", "SYNC_TOAST_TTL")
	viper.BindEnv("sync.refetch_interval", "SYNC_REFETCH_INTERVAL")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Session.UserID == "" {
		return nil, fmt.Errorf("session.user_id is required")
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Gateway: %s, ChatAPI: %s, Redis: %s, User: %s",
		c.Server.Host,
		c.Server.Port,
		c.Gateway.URL,
		c.ChatAPI.BaseURL,
		c.Redis.Address,
		c.Session.UserID,
	)
}
