package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pairwave/chat-backend/pkg/logger"
)

// Config holds the full application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Chat     ChatConfig     `yaml:"chat"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// GetDSN builds the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StorageConfig attachment blob storage settings. Driver is "local" or "s3".
type StorageConfig struct {
	Driver          string `yaml:"driver"`
	LocalDir        string `yaml:"local_dir"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// JWTConfig token verification settings
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

// CORSConfig cross-origin settings
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// AMQPConfig RabbitMQ settings for the notification pipeline
type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`
}

// ChatConfig chat-specific tunables
type ChatConfig struct {
	NotifyThrottle    time.Duration `yaml:"notify_throttle"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxUploadMB       int64         `yaml:"max_upload_mb"`
}

// Load reads the YAML config file, expanding ${ENV_VAR} references
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Env == "" {
		c.Server.Env = os.Getenv("APP_ENV")
	}
	if c.Server.Env == "" {
		c.Server.Env = "local"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data/blobs"
	}
	if c.JWT.ExpiresIn == 0 {
		c.JWT.ExpiresIn = 24 * time.Hour
	}
	if c.AMQP.Port == 0 {
		c.AMQP.Port = 5672
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "chat.notifications"
	}
	if c.Chat.NotifyThrottle == 0 {
		c.Chat.NotifyThrottle = 5 * time.Minute
	}
	if c.Chat.RequestsPerMinute == 0 {
		c.Chat.RequestsPerMinute = 120
	}
	if c.Chat.MaxUploadMB == 0 {
		c.Chat.MaxUploadMB = 50
	}
}

func (c *Config) validate() error {
	if c.Storage.Driver != "local" && c.Storage.Driver != "s3" {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage driver s3 requires a bucket")
	}
	return nil
}

// IsDevelopment reports whether the server runs in a development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "local" || c.Server.Env == "development" || c.Server.Env == "dev"
}

// LogResolved logs the effective configuration with secrets redacted
func LogResolved(c *Config) {
	logger.GetLogger().Info().
		Int("server_port", c.Server.Port).
		Str("env", c.Server.Env).
		Str("db_host", c.Database.Host).
		Str("db_name", c.Database.Name).
		Bool("redis_enabled", c.Redis.Enabled).
		Str("storage_driver", c.Storage.Driver).
		Bool("amqp_enabled", c.AMQP.Enabled).
		Dur("notify_throttle", c.Chat.NotifyThrottle).
		Msg("configuration loaded")
}
