package engine

import (
	"log/slog"
	"time"

	"github.com/jmcleod/fpsim/hat"
)

// DefaultSeed seeds the engine's random stream unless WithSeed is given.
// It matches the default seed of the Mersenne Twister used by the reference
// fake engine, so runs are reproducible across test executions.
const DefaultSeed uint64 = 5489

// Config holds the tunable parameters of a simulated sensor.
type Config struct {
	Seed           uint64
	StepDelay      time.Duration
	EnrollSteps    int
	AuthSteps      int
	DetectSteps    int
	MatchRate      float64
	MaxEnrollments int
	Lockout        LockoutConfig
}

// LockoutConfig controls when failed authentications lock the sensor.
type LockoutConfig struct {
	// TimedThreshold consecutive failures start a timed lockout. Zero disables it.
	TimedThreshold int
	// PermanentThreshold failures since the last reset lock permanently. Zero disables it.
	PermanentThreshold int
	Duration           time.Duration
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Seed:           DefaultSeed,
		StepDelay:      100 * time.Millisecond,
		EnrollSteps:    5,
		AuthSteps:      2,
		DetectSteps:    1,
		MatchRate:      0.8,
		MaxEnrollments: 5,
		Lockout: LockoutConfig{
			TimedThreshold:     5,
			PermanentThreshold: 20,
			Duration:           30 * time.Second,
		},
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithSeed sets the seed of the engine's random stream.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.cfg.Seed = seed
	}
}

// WithStepDelay sets how long each simulated capture step sleeps.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.cfg.StepDelay = d
	}
}

// WithMatchRate sets the probability that an authentication attempt matches.
func WithMatchRate(rate float64) Option {
	return func(e *Engine) {
		e.cfg.MatchRate = rate
	}
}

// WithMaxEnrollments caps the size of the enrollment set.
func WithMaxEnrollments(n int) Option {
	return func(e *Engine) {
		e.cfg.MaxEnrollments = n
	}
}

// WithLockout sets the lockout policy.
func WithLockout(cfg LockoutConfig) Option {
	return func(e *Engine) {
		e.cfg.Lockout = cfg
	}
}

// WithTokenSigner signs the tokens reported on successful authentication.
// Without a signer the token MAC is left zero.
func WithTokenSigner(s *hat.Signer) Option {
	return func(e *Engine) {
		e.signer = s
	}
}

// WithUserID sets the user id stamped into authentication tokens.
func WithUserID(id int64) Option {
	return func(e *Engine) {
		e.userID = id
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}
