// Package config loads the fpsim server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/fpsim/engine"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Sensors int          `yaml:"sensors"`
	Engine  EngineConfig `yaml:"engine"`
}

// ServerConfig holds listener and storage settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	DataDir  string `yaml:"data_dir"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
	LogLevel string `yaml:"log_level"`
	// Journal selects the journal backend: "bbolt", "postgres" or "memory".
	Journal     string `yaml:"journal"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EngineConfig mirrors engine.Config with YAML-friendly durations.
type EngineConfig struct {
	Seed           uint64        `yaml:"seed"`
	StepDelay      time.Duration `yaml:"step_delay"`
	EnrollSteps    int           `yaml:"enroll_steps"`
	AuthSteps      int           `yaml:"auth_steps"`
	DetectSteps    int           `yaml:"detect_steps"`
	MatchRate      float64       `yaml:"match_rate"`
	MaxEnrollments int           `yaml:"max_enrollments"`
	Lockout        LockoutConfig `yaml:"lockout"`
}

// LockoutConfig mirrors engine.LockoutConfig.
type LockoutConfig struct {
	TimedThreshold     int           `yaml:"timed_threshold"`
	PermanentThreshold int           `yaml:"permanent_threshold"`
	Duration           time.Duration `yaml:"duration"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	ec := engine.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:     8443,
			DataDir:  "./data",
			LogLevel: "info",
			Journal:  "bbolt",
		},
		Sensors: 1,
		Engine: EngineConfig{
			Seed:           ec.Seed,
			StepDelay:      ec.StepDelay,
			EnrollSteps:    ec.EnrollSteps,
			AuthSteps:      ec.AuthSteps,
			DetectSteps:    ec.DetectSteps,
			MatchRate:      ec.MatchRate,
			MaxEnrollments: ec.MaxEnrollments,
			Lockout: LockoutConfig{
				TimedThreshold:     ec.Lockout.TimedThreshold,
				PermanentThreshold: ec.Lockout.PermanentThreshold,
				Duration:           ec.Lockout.Duration,
			},
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Server.Journal {
	case "bbolt", "memory":
	case "postgres":
		if c.Server.PostgresDSN == "" {
			errs = append(errs, errors.New("server.postgres_dsn is required for the postgres journal"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.journal must be bbolt, postgres or memory, got %q", c.Server.Journal))
	}
	if c.Sensors < 1 {
		errs = append(errs, errors.New("sensors must be at least 1"))
	}
	if c.Engine.MatchRate < 0 || c.Engine.MatchRate > 1 {
		errs = append(errs, fmt.Errorf("engine.match_rate %v not in [0,1]", c.Engine.MatchRate))
	}
	if c.Engine.StepDelay < 0 {
		errs = append(errs, errors.New("engine.step_delay must not be negative"))
	}
	if c.Engine.EnrollSteps < 1 || c.Engine.AuthSteps < 1 || c.Engine.DetectSteps < 1 {
		errs = append(errs, errors.New("engine step counts must be at least 1"))
	}
	return errors.Join(errs...)
}

// EngineOptions converts the engine section into engine options.
func (c Config) EngineOptions() []engine.Option {
	e := c.Engine
	return []engine.Option{engine.WithConfig(engine.Config{
		Seed:           e.Seed,
		StepDelay:      e.StepDelay,
		EnrollSteps:    e.EnrollSteps,
		AuthSteps:      e.AuthSteps,
		DetectSteps:    e.DetectSteps,
		MatchRate:      e.MatchRate,
		MaxEnrollments: e.MaxEnrollments,
		Lockout: engine.LockoutConfig{
			TimedThreshold:     e.Lockout.TimedThreshold,
			PermanentThreshold: e.Lockout.PermanentThreshold,
			Duration:           e.Lockout.Duration,
		},
	})}
}
