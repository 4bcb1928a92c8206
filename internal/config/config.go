package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOMATION_DB_PATH.
const EnvPrefix = "AUTOMATION"

type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type PollerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	Retention         time.Duration `mapstructure:"retention"`
	ErrorBackoff      time.Duration `mapstructure:"error_backoff"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
	DefaultInterval   time.Duration `mapstructure:"default_interval"`
}

type AlertsConfig struct {
	EvaluateInterval time.Duration `mapstructure:"evaluate_interval"`
	FreshnessWindow  time.Duration `mapstructure:"freshness_window"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// RedisConfig enables the latest-reading cache when Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MQTTConfig enables the mqtt device family when Broker is set.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "automation.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("poller.reconcile_interval", 300*time.Second)
	v.SetDefault("poller.retention", 90*24*time.Hour)
	v.SetDefault("poller.error_backoff", 60*time.Second)
	v.SetDefault("poller.drain_timeout", 10*time.Second)
	v.SetDefault("poller.default_interval", 60*time.Second)

	v.SetDefault("alerts.evaluate_interval", 30*time.Second)
	v.SetDefault("alerts.freshness_window", 5*time.Minute)

	v.SetDefault("scheduler.tick_interval", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "automation:reading:")
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "automation")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "env-automation")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
}

// Load reads config.yml from the given directories (first match wins) and applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	positive := map[string]time.Duration{
		"poller.reconcile_interval": c.Poller.ReconcileInterval,
		"poller.error_backoff":      c.Poller.ErrorBackoff,
		"poller.drain_timeout":      c.Poller.DrainTimeout,
		"poller.default_interval":   c.Poller.DefaultInterval,
		"alerts.evaluate_interval":  c.Alerts.EvaluateInterval,
		"alerts.freshness_window":   c.Alerts.FreshnessWindow,
		"scheduler.tick_interval":   c.Scheduler.TickInterval,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("config %s must be positive, got %s", key, d)
		}
	}
	if c.Poller.Retention < 0 {
		return fmt.Errorf("config poller.retention must not be negative, got %s", c.Poller.Retention)
	}
	return nil
}
