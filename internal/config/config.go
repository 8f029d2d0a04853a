// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/syla-platform/execution-service/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"execution-service"`
	Port        int    `env:"PORT" envDefault:"8082"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://127.0.0.1/"`

	// Workers is the number of queue-draining workers started in-process.
	Workers int `env:"WORKERS" envDefault:"4"`
	// MaxCodeBytes caps the submitted code size.
	MaxCodeBytes int64 `env:"MAX_CODE_BYTES" envDefault:"1048576"`
	// ProfilesFile optionally points at a YAML file overriding or extending
	// the built-in language profile table.
	ProfilesFile string `env:"PROFILES_FILE"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"6m"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Sweeper configuration: running records older than the hard timeout cap
	// plus SweeperGrace are failed by the sweeper.
	SweeperInterval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`
	SweeperGrace    time.Duration `env:"SWEEPER_GRACE" envDefault:"2m"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// LoadProfiles returns the language profile table: the built-in defaults,
// overlaid with entries from ProfilesFile when set. Override entries with
// missing fields inherit the built-in values for that tag.
func (c Config) LoadProfiles() (domain.ProfileTable, error) {
	table := domain.DefaultProfiles()
	if c.ProfilesFile == "" {
		return table, nil
	}
	b, err := os.ReadFile(c.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadProfiles: %w", err)
	}
	var overrides map[string]domain.LanguageProfile
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return nil, fmt.Errorf("op=config.LoadProfiles: parse %s: %w", c.ProfilesFile, err)
	}
	for tag, p := range overrides {
		base := table[tag]
		if p.Image == "" {
			p.Image = base.Image
		}
		if p.SourceFilename == "" {
			p.SourceFilename = base.SourceFilename
		}
		if len(p.Argv) == 0 {
			p.Argv = base.Argv
		}
		table[tag] = p
	}
	return table, nil
}
