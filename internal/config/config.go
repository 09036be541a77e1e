// Package config loads service configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FORECAST_HTTP_ADDR.
const EnvPrefix = "FORECAST"

// Config is the full service configuration.
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Models      ModelsConfig      `mapstructure:"models"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	ThingsBoard ThingsBoardConfig `mapstructure:"thingsboard"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
	Generate    GenerateConfig    `mapstructure:"generate"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type ModelsConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	// CacheSize bounds the model cache; 0 never evicts.
	CacheSize int `mapstructure:"cache_size"`
}

type ForecastConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	StorageOffset time.Duration `mapstructure:"storage_offset"`
}

type ThingsBoardConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	EntityType string        `mapstructure:"entity_type"`
	LagKey     string        `mapstructure:"lag_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	// JWTSecret enables bearer auth when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GenerateConfig struct {
	HorizonDays int `mapstructure:"horizon_days"`
}

// Load reads configuration. path may be empty; a missing file is an error only when
// path is given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string][]string{
		"database.url":         {"FORECAST_DATABASE_URL", "DATABASE_URL", "PG_DSN"},
		"http.addr":            {"FORECAST_HTTP_ADDR", "HTTP_ADDR"},
		"thingsboard.base_url": {"FORECAST_THINGSBOARD_BASE_URL", "TB_BASE_URL"},
		"thingsboard.token":    {"FORECAST_THINGSBOARD_TOKEN", "TB_TOKEN"},
		"auth.jwt_secret":      {"FORECAST_AUTH_JWT_SECRET", "AUTH_JWT_SECRET", "JWT_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("forecast")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("models.base_dir", ".")
	v.SetDefault("models.cache_size", 0)
	v.SetDefault("forecast.timezone", "America/Sao_Paulo")
	v.SetDefault("forecast.storage_offset", "3h")
	v.SetDefault("thingsboard.base_url", "")
	v.SetDefault("thingsboard.token", "")
	v.SetDefault("thingsboard.entity_type", "DEVICE")
	v.SetDefault("thingsboard.lag_key", "ocupacao")
	v.SetDefault("thingsboard.timeout", "10s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("generate.horizon_days", 7)
}

// Validate checks values that do not depend on the command being run.
func (c *Config) Validate() error {
	if c.Models.CacheSize < 0 {
		return errors.New("config: models.cache_size must be >= 0")
	}
	if c.Generate.HorizonDays <= 0 {
		return errors.New("config: generate.horizon_days must be positive")
	}
	if _, err := time.LoadLocation(c.Forecast.Timezone); err != nil {
		return fmt.Errorf("config: forecast.timezone: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireDatabase reports a missing database url.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("config: database.url (DATABASE_URL or PG_DSN) is required")
	}
	return nil
}
