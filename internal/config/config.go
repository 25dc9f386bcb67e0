package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Development DevelopmentConfig `mapstructure:"development"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig selects the backing store. An empty URL runs the server
// on the in-memory store, which is handy for local development.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type IngestConfig struct {
	Workers   int    `mapstructure:"workers"`
	UploadDir string `mapstructure:"upload_dir"`
}

type DevelopmentConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Enable environment variables
	viper.SetEnvPrefix("CHESSLOG")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.url", "")
	viper.SetDefault("ingest.workers", 4)
	viper.SetDefault("ingest.upload_dir", "uploads")
	viper.SetDefault("development.debug", false)
	viper.SetDefault("development.log_level", "info")

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return loadDefaults(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Ingest: IngestConfig{
			Workers:   4,
			UploadDir: "uploads",
		},
		Development: DevelopmentConfig{
			Debug:    false,
			LogLevel: "info",
		},
	}
}
