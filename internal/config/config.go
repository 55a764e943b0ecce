package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "COLLECTOR"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "collector.db"
	defaultUploadDir      = "uploads"
	defaultMaxUploadBytes = 25 * 1000 * 1000 // 25 MB
	defaultLogLevel       = "info"
)

// AppConfig captures runtime configuration for the collector service.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	UploadDir      string
	MaxUploadBytes int64
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("upload.dir", defaultUploadDir)
	configViper.SetDefault("upload.max_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		UploadDir:      configViper.GetString("upload.dir"),
		MaxUploadBytes: configViper.GetInt64("upload.max_bytes"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("upload.dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}
