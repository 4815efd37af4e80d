// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SyncConfig tunes sync run behavior.
type SyncConfig struct {
	DetailConcurrency int  `yaml:"detail_concurrency" mapstructure:"detail_concurrency"`
	DetailTimeoutSecs int  `yaml:"detail_timeout_secs" mapstructure:"detail_timeout_secs"`
	RunTimeoutSecs    int  `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	LockMaxAgeMins    int  `yaml:"lock_max_age_mins" mapstructure:"lock_max_age_mins"`
	Sweep             bool `yaml:"sweep" mapstructure:"sweep"`
	RecordUnchanged   bool `yaml:"record_unchanged" mapstructure:"record_unchanged"`
	IntervalMins      int  `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// DetailTimeout returns the per-fetch timeout as a duration.
func (c SyncConfig) DetailTimeout() time.Duration {
	return time.Duration(c.DetailTimeoutSecs) * time.Second
}

// RunTimeout returns the whole-run timeout as a duration.
func (c SyncConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// LockMaxAge returns the lock expiry as a duration.
func (c SyncConfig) LockMaxAge() time.Duration {
	return time.Duration(c.LockMaxAgeMins) * time.Minute
}

// Interval returns the scheduler period as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMins) * time.Minute
}

// CollectConfig configures portal scraping.
type CollectConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// EnrichConfig configures enrichment request delivery.
type EnrichConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the delivery timeout as a duration.
func (c EnrichConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// NotifyConfig configures run summary notifications.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the delivery timeout as a duration.
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "bidsync.db")
	v.SetDefault("sync.detail_concurrency", 4)
	v.SetDefault("sync.detail_timeout_secs", 30)
	v.SetDefault("sync.run_timeout_secs", 900)
	v.SetDefault("sync.lock_max_age_mins", 30)
	v.SetDefault("sync.sweep", false)
	v.SetDefault("sync.interval_mins", 60)
	v.SetDefault("collect.user_agent", "bidsync/1.0 (+https://github.com/d28khalil/Bidnology-sub001)")
	v.SetDefault("collect.timeout_secs", 30)
	v.SetDefault("collect.rate_per_sec", 2)
	v.SetDefault("collect.burst", 4)
	v.SetDefault("collect.max_retries", 3)
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for a given run mode. Modes gate which
// fields are required: "sync" needs a reachable store, "serve" additionally
// needs a usable port.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}
	checkSync := func() {
		if c.Sync.DetailConcurrency < 1 || c.Sync.DetailConcurrency > 32 {
			problems = append(problems, "sync.detail_concurrency must be between 1 and 32")
		}
		if c.Sync.RunTimeoutSecs <= 0 {
			problems = append(problems, "sync.run_timeout_secs must be > 0")
		}
		if c.Sync.DetailTimeoutSecs <= 0 {
			problems = append(problems, "sync.detail_timeout_secs must be > 0")
		}
	}

	switch mode {
	case "sync":
		checkStore()
		checkSync()
	case "serve":
		checkStore()
		checkSync()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Sync.IntervalMins <= 0 {
			problems = append(problems, "sync.interval_mins must be > 0")
		}
	case "admin":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
