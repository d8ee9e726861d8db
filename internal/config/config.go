// Package config provides configuration loading for the simulator service.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/brushsim/internal/brush"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Params     brush.Params     `yaml:"params"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP and scheduler settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	TickInterval time.Duration `yaml:"tick_interval"` // wall-clock pacing between ticks
	Speed        float64       `yaml:"speed"`         // pacing multiplier, 0 = paused
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// SimulationConfig holds the tunable constants of the contact model.
type SimulationConfig struct {
	Timestep            float64 `yaml:"timestep"`              // simulated seconds per tick
	DoseIncrement       float64 `yaml:"dose_increment"`        // dose per contacting nodule per tick
	LowContactThreshold float64 `yaml:"low_contact_threshold"` // dose at or below which contact is "low"
	ColorNormalization  float64 `yaml:"color_normalization"`   // dose mapped to the top of the colour ramp
}

// AuthConfig holds the site password. PasswordHash is the lowercase hex
// SHA-256 digest; Password is hashed at load time when no digest is given.
type AuthConfig struct {
	PasswordHash string `yaml:"password_hash"`
	Password     string `yaml:"password"`
}

// Enabled reports whether a password is configured.
func (a AuthConfig) Enabled() bool {
	return a.Digest() != ""
}

// Digest returns the expected password digest, preferring the stored hash.
func (a AuthConfig) Digest() string {
	if a.PasswordHash != "" {
		return strings.ToLower(a.PasswordHash)
	}
	if a.Password != "" {
		return HashPassword(a.Password)
	}
	return ""
}

// HashPassword returns the lowercase hex SHA-256 digest of pw.
func HashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// DatabaseConfig locates the run archive.
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty disables the archive
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies environment overrides. If path is empty, only the defaults
// and environment are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("BRUSHSIM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRUSHSIM_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("BRUSHSIM_DB"); v != "" {
		c.Database.Path = v
	}
	if v := getenv("BRUSHSIM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("SITE_PASSWORD_HASH"); v != "" {
		c.Auth.PasswordHash = v
	}
	if v := getenv("SITE_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}
	return nil
}

// Validate checks the loaded configuration, including the default
// parameter set.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Speed < 0 {
		return fmt.Errorf("server.speed must be >= 0")
	}
	if c.Server.TickInterval <= 0 {
		return fmt.Errorf("server.tick_interval must be > 0")
	}
	if c.Simulation.Timestep <= 0 {
		return fmt.Errorf("simulation.timestep must be > 0")
	}
	if c.Simulation.DoseIncrement <= 0 {
		return fmt.Errorf("simulation.dose_increment must be > 0")
	}
	if c.Simulation.LowContactThreshold < 0 {
		return fmt.Errorf("simulation.low_contact_threshold must be >= 0")
	}
	if c.Simulation.ColorNormalization <= 0 {
		return fmt.Errorf("simulation.color_normalization must be > 0")
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
