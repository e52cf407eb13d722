// Package config loads service configuration with viper: defaults, then an
// optional YAML config file, then DUOCHAT_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Version  VersionConfig  `mapstructure:"version"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	// Backend selects the persistence engine: "pebble" or "sqlite".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type AuthConfig struct {
	SecretKey          string  `mapstructure:"secret_key"`
	AllowEmptyPassword bool    `mapstructure:"allow_empty_password"`
	RateRPS            float64 `mapstructure:"rate_rps"`
	RateBurst          int     `mapstructure:"rate_burst"`
}

type RealtimeConfig struct {
	// ClearPresenceOnDisconnect drops a user's viewing state when their
	// last connection closes. Off by default so a brief reconnect doesn't
	// spuriously stop seen-receipts for a screen that is still open.
	ClearPresenceOnDisconnect bool `mapstructure:"clear_presence_on_disconnect"`
}

type NotifyConfig struct {
	// Delay before the unseen check fires and a push may go out.
	Delay      time.Duration `mapstructure:"delay"`
	ExpoURL    string        `mapstructure:"expo_url"`
	WebhookURL string        `mapstructure:"webhook_url"`
}

type UploadConfig struct {
	Dir string `mapstructure:"dir"`
}

type VersionConfig struct {
	Latest      string `mapstructure:"latest"`
	DownloadURL string `mapstructure:"download_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. configFile may be empty, in which case only a
// config.yaml found in the working directory is considered, and its absence
// is fine.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.addr", ":3000")
	v.SetDefault("store.backend", "pebble")
	v.SetDefault("store.path", "data/duochat")
	v.SetDefault("auth.secret_key", "change-me-in-production")
	v.SetDefault("auth.allow_empty_password", true)
	v.SetDefault("auth.rate_rps", 5.0)
	v.SetDefault("auth.rate_burst", 10)
	v.SetDefault("realtime.clear_presence_on_disconnect", false)
	v.SetDefault("notify.delay", 2*time.Second)
	v.SetDefault("notify.expo_url", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("version.latest", "1.0.0")
	v.SetDefault("version.download_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix("DUOCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "pebble", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q (want pebble or sqlite)", c.Store.Backend)
	}
	if c.Notify.Delay < 0 {
		return fmt.Errorf("notify.delay must not be negative")
	}
	return nil
}
