package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "RESERVA"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "reserva.db"
	defaultLogLevel      = "info"
	defaultSweepInterval = time.Minute
	defaultCORSOrigins   = "*"
)

// AppConfig captures runtime configuration for the reservation API server.
// Operating parameters of the engine itself (hours, delay, quota) live in the
// database settings row, not here.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SweepInterval time.Duration
	CORSOrigins   []string
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
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("sweep.interval", defaultSweepInterval.String())
	configViper.SetDefault("cors.origins", defaultCORSOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SweepInterval: configViper.GetDuration("sweep.interval"),
		CORSOrigins:   splitOrigins(configViper.GetString("cors.origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("cors.origins is required")
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
