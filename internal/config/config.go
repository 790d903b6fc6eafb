package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	GeoServer GeoServerConfig `yaml:"geoserver" mapstructure:"geoserver"`
	Style     StyleConfig     `yaml:"style" mapstructure:"style"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the metadata store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataConfig points at the PostGIS database holding the layer tables
// being styled. Falls back to the store URL when empty.
type DataConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// DataURL returns the layer-data connection string, falling back to the
// store connection when no dedicated data URL is configured.
func (c *Config) DataURL() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return c.Store.DatabaseURL
}

// GeoServerConfig holds GeoServer REST credentials and endpoint.
type GeoServerConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	Workspace   string `yaml:"workspace" mapstructure:"workspace"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StyleConfig holds generation defaults and statistics limits.
type StyleConfig struct {
	DefaultPalette  string  `yaml:"default_palette" mapstructure:"default_palette"`
	DefaultClasses  int     `yaml:"default_classes" mapstructure:"default_classes"`
	FillOpacity     float64 `yaml:"fill_opacity" mapstructure:"fill_opacity"`
	StrokeColor     string  `yaml:"stroke_color" mapstructure:"stroke_color"`
	StrokeWidth     float64 `yaml:"stroke_width" mapstructure:"stroke_width"`
	CacheTTLHours   int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	JenksSampleSize int     `yaml:"jenks_sample_size" mapstructure:"jenks_sample_size"`
	DistinctLimit   int     `yaml:"distinct_limit" mapstructure:"distinct_limit"`
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
	v.SetEnvPrefix("STYLEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

// Default returns a config populated with only the built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("data.schema", "public")
	v.SetDefault("geoserver.base_url", "http://localhost:8080/geoserver/rest")
	v.SetDefault("geoserver.username", "admin")
	v.SetDefault("geoserver.workspace", "topp")
	v.SetDefault("geoserver.timeout_secs", 30)
	v.SetDefault("style.default_palette", "YlOrRd")
	v.SetDefault("style.default_classes", 5)
	v.SetDefault("style.fill_opacity", 0.7)
	v.SetDefault("style.stroke_color", "#333333")
	v.SetDefault("style.stroke_width", 1.0)
	v.SetDefault("style.cache_ttl_hours", 24)
	v.SetDefault("style.jenks_sample_size", 10000)
	v.SetDefault("style.distinct_limit", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the configuration for a run mode. Mode "cli" covers
// the one-shot commands; mode "serve" additionally requires a usable
// HTTP port.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and < 65536")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if c.Style.FillOpacity < 0 || c.Style.FillOpacity > 1 {
		problems = append(problems, "style.fill_opacity must be between 0 and 1")
	}
	if c.Style.DefaultClasses < 1 || c.Style.DefaultClasses > 12 {
		problems = append(problems, "style.default_classes must be between 1 and 12")
	}
	if c.Style.DistinctLimit < 1 {
		problems = append(problems, "style.distinct_limit must be >= 1")
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
