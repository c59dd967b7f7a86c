package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the document chat service
type Config struct {
	Env     string        `mapstructure:"env"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// GeminiConfig contains model provider settings
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	UploadDir       string        `mapstructure:"upload_dir"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig contains session-record storage settings. An empty host
// selects the in-memory store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SessionConfig controls idle-session sweeping
type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level    string `mapstructure:"level"`
	FilePath string `mapstructure:"file_path"`
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"env":                      "GO_ENV",
	"gemini.api_key":           "GOOGLE_API_KEY",
	"gemini.model":             "GEMINI_MODEL_NAME",
	"server.address":           "SERVER_ADDR",
	"server.upload_dir":        "UPLOAD_DIR",
	"server.max_upload_bytes":  "MAX_UPLOAD_BYTES",
	"server.shutdown_timeout":  "SHUTDOWN_TIMEOUT",
	"redis.host":               "REDIS_HOST",
	"redis.port":               "REDIS_PORT",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"redis.pool_size":          "REDIS_POOL_SIZE",
	"session.idle_ttl":         "SESSION_IDLE_TTL",
	"session.janitor_interval": "JANITOR_INTERVAL",
	"log.level":                "LOG_LEVEL",
	"log.file_path":            "LOG_FILE_PATH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.upload_dir", "")
	v.SetDefault("server.max_upload_bytes", int64(100<<20))
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("session.idle_ttl", time.Hour)
	v.SetDefault("session.janitor_interval", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "")
}

// Load reads configuration from defaults, an optional config file at path,
// a .env file in the working directory and the environment, in increasing
// order of precedence
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. A missing API key is not an error here:
// the service starts and reports the missing credential per request.
func (c *Config) Validate() error {
	var errs []error
	if c.Gemini.Model == "" {
		errs = append(errs, errors.New("gemini.model must not be empty"))
	}
	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("redis.port %d out of range", c.Redis.Port))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, errors.New("session.idle_ttl must be positive"))
	}
	if c.Session.JanitorInterval <= 0 {
		errs = append(errs, errors.New("session.janitor_interval must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}
