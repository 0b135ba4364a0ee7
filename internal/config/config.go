package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ramanngartan/arealens-geocode/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Insights InsightsConfig `yaml:"insights" mapstructure:"insights"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres/PostGIS backend.
type StoreConfig struct {
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// GeocoderConfig holds geocoding provider settings.
type GeocoderConfig struct {
	Token   string  `yaml:"token" mapstructure:"token"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PipelineConfig configures the batch geocoding pipeline.
type PipelineConfig struct {
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	BatchesPerSecond float64 `yaml:"batches_per_second" mapstructure:"batches_per_second"`
}

// InsightsConfig configures dense-area and whitespace computation.
type InsightsConfig struct {
	DenseAreaCount   int     `yaml:"dense_area_count" mapstructure:"dense_area_count"`
	WhitespaceCount  int     `yaml:"whitespace_count" mapstructure:"whitespace_count"`
	WhitespaceMaxKm  float64 `yaml:"whitespace_max_km" mapstructure:"whitespace_max_km"`
	RadiusClampMinKm float64 `yaml:"radius_clamp_min_km" mapstructure:"radius_clamp_min_km"`
	RadiusClampMaxKm float64 `yaml:"radius_clamp_max_km" mapstructure:"radius_clamp_max_km"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("AREALENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty-string entries register env-only keys so
	// AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("geocoder.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("geocoder.base_url", "https://api.mapbox.com")
	v.SetDefault("geocoder.rps", 10)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.batches_per_second", 5)
	v.SetDefault("insights.dense_area_count", 3)
	v.SetDefault("insights.whitespace_count", 3)
	v.SetDefault("insights.whitespace_max_km", 3.0)
	v.SetDefault("insights.radius_clamp_min_km", 0.5)
	v.SetDefault("insights.radius_clamp_max_km", 3.0)

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
