package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Notification backends accepted by NOTIFY_BACKEND.
const (
	NotifyLocal = "local"
	NotifyRedis = "redis"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string   `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey  string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	NotifyBackend   string   `mapstructure:"NOTIFY_BACKEND"`
	RedisURL        string   `mapstructure:"REDIS_URL"`
	MQTTBroker      string   `mapstructure:"MQTT_BROKER"`
	MQTTClientID    string   `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string   `mapstructure:"MQTT_TOPIC_PREFIX"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS",
	"NOTIFY_BACKEND", "REDIS_URL",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("NOTIFY_BACKEND", NotifyLocal)
	v.SetDefault("MQTT_CLIENT_ID", "healthplix-server")
	v.SetDefault("MQTT_TOPIC_PREFIX", "healthplix/changes")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Unmarshal only sees keys viper knows about.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.NotifyBackend = strings.ToLower(strings.TrimSpace(cfg.NotifyBackend))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// every request must carry a token signed by the identity service, so the
// signing key is mandatory.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}

	switch c.NotifyBackend {
	case NotifyLocal:
	case NotifyRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when NOTIFY_BACKEND is %q", NotifyRedis)
		}
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be %q or %q, got %q", NotifyLocal, NotifyRedis, c.NotifyBackend)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
