// Package config loads the process configuration from configs/config.yml,
// an optional .env file and OILFOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OILFOX_BRIDGE_PASSWORD.
const EnvPrefix = "OILFOX"

type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// BridgeConfig is the cloud account section. It is not validated here: an
// unusable bridge section shows up as the bridge's CONFIGURATION_ERROR
// status instead of stopping the process.
type BridgeConfig struct {
	ID                   string        `mapstructure:"id"`
	Hostname             string        `mapstructure:"hostname"`
	Email                string        `mapstructure:"email"`
	Password             string        `mapstructure:"password"`
	RefreshIntervalHours int           `mapstructure:"refresh_interval_hours"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
}

type DiscoveryConfig struct {
	AutoApprove bool `mapstructure:"auto_approve"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type StreamConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ValidationError reports an unusable setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

var defaults = map[string]any{
	"port":                          "8080",
	"log.level":                     logger.InfoLevel,
	"db.path":                       "oilfox.db",
	"bridge.id":                     "oilfox",
	"bridge.hostname":               "api.oilfox.io",
	"bridge.email":                  "",
	"bridge.password":               "",
	"bridge.refresh_interval_hours": 6,
	"bridge.read_timeout":           "10s",
	"bridge.connect_timeout":        "15s",
	"discovery.auto_approve":        false,
	"auth.signing_key":              "",
	"auth.token_ttl":                "1h",
	"stream.interval":               "2s",
}

// Load reads envFile (ignored when missing), then the YAML file at path
// (ignored when missing) and applies environment overrides.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
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

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Port) == "":
		return &ValidationError{Field: "port", Message: "must not be empty"}
	case !logger.ValidLevel(c.Log.Level):
		return &ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	case strings.TrimSpace(c.DB.Path) == "":
		return &ValidationError{Field: "db.path", Message: "must not be empty"}
	case strings.TrimSpace(c.Bridge.ID) == "" || strings.Contains(c.Bridge.ID, ":"):
		return &ValidationError{Field: "bridge.id", Message: "must be a non-empty id without ':'"}
	case c.Auth.SigningKey == "":
		return &ValidationError{Field: "auth.signing_key", Message: "must be set (OILFOX_AUTH_SIGNING_KEY)"}
	case c.Auth.TokenTTL <= 0:
		return &ValidationError{Field: "auth.token_ttl", Message: "must be positive"}
	case c.Stream.Interval <= 0:
		return &ValidationError{Field: "stream.interval", Message: "must be positive"}
	}
	return nil
}

// ToBridge converts the section into the bridge configuration.
func (b BridgeConfig) ToBridge() bridge.Config {
	return bridge.Config{
		Hostname:        strings.TrimSpace(b.Hostname),
		Email:           strings.TrimSpace(b.Email),
		Password:        b.Password,
		RefreshInterval: time.Duration(b.RefreshIntervalHours) * time.Hour,
		ReadTimeout:     b.ReadTimeout,
		ConnectTimeout:  b.ConnectTimeout,
	}
}
