package mcmcda

import (
	"log/slog"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Config holds proposer parameters.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Maximum target speed, distance units per frame
	VBar float64
	// Maximum number of frames a track may skip between consecutive detections
	DBar int
	// Maximum number of frames growth may skip during birth and extension
	BBar int
	// Probability of stopping growth after a frame where nothing was admitted
	Gamma float64
	// Variance of detection position noise (per axis)
	NoiseVariance float64
	// Density of clutter used against the motion score. Zero means "Gaussian density one sigma away"
	ClutterDensity float64
	// Candidates with lower probability are never admitted by growth
	MinAdmitProbability float64
	// Move distribution for associations with two or more tracks
	MoveWeights MoveWeights
	// Bound of the proposal loop
	MaxAttempts int
	// Estimator predicting where tracks continue
	MotionModel MotionModel

	// Random source. Proposer is not safe for concurrent use, neither is the source
	Rand *rand.Rand

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring proposer
type Option func(*Config)

// WithMaxSpeed sets v_bar
func WithMaxSpeed(vBar float64) Option {
	return func(c *Config) {
		c.VBar = vBar
	}
}

// WithMaxSkip sets d_bar
func WithMaxSkip(dBar int) Option {
	return func(c *Config) {
		c.DBar = dBar
	}
}

// WithMaxGrowthSkip sets b_bar
func WithMaxGrowthSkip(bBar int) Option {
	return func(c *Config) {
		c.BBar = bBar
	}
}

// WithGamma sets probability of stopping growth
func WithGamma(gamma float64) Option {
	return func(c *Config) {
		c.Gamma = gamma
	}
}

// WithNoiseVariance sets detection noise variance
func WithNoiseVariance(variance float64) Option {
	return func(c *Config) {
		c.NoiseVariance = variance
	}
}

// WithClutterDensity sets clutter density
func WithClutterDensity(density float64) Option {
	return func(c *Config) {
		c.ClutterDensity = density
	}
}

// WithMinAdmitProbability sets admission threshold of growth
func WithMinAdmitProbability(p float64) Option {
	return func(c *Config) {
		c.MinAdmitProbability = p
	}
}

// WithMoveWeights sets move distribution used for two or more tracks
func WithMoveWeights(weights MoveWeights) Option {
	return func(c *Config) {
		c.MoveWeights = weights
	}
}

// WithMaxAttempts bounds proposal loop
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithMotionModel selects motion estimator
func WithMotionModel(model MotionModel) Option {
	return func(c *Config) {
		c.MotionModel = model
	}
}

// WithRand sets random source
func WithRand(rng *rand.Rand) Option {
	return func(c *Config) {
		c.Rand = rng
	}
}

// WithSeed sets deterministic random source
func WithSeed(seed1, seed2 uint64) Option {
	return func(c *Config) {
		c.Rand = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		VBar:                5.0,
		DBar:                5,
		BBar:                8,
		Gamma:               0.1,
		NoiseVariance:       1.0,
		ClutterDensity:      0.0,
		MinAdmitProbability: 0.15,
		MoveWeights:         DefaultMoveWeights(),
		MaxAttempts:         1000,
		MotionModel:         MotionLeastSquares,
		Rand:                rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Logger:              slog.Default().With("component", "mcmcda"),
	}
}

// Apply applies functional options to the config
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks parameter ranges
func (c *Config) Validate() error {
	switch {
	case c.VBar <= 0:
		return errors.Wrapf(ErrInvalidConfig, "v_bar must be positive, got %v", c.VBar)
	case c.DBar < 1:
		return errors.Wrapf(ErrInvalidConfig, "d_bar must be at least 1, got %d", c.DBar)
	case c.BBar < 1:
		return errors.Wrapf(ErrInvalidConfig, "b_bar must be at least 1, got %d", c.BBar)
	case c.Gamma <= 0 || c.Gamma >= 1:
		return errors.Wrapf(ErrInvalidConfig, "gamma must be in (0, 1), got %v", c.Gamma)
	case c.NoiseVariance <= 0:
		return errors.Wrapf(ErrInvalidConfig, "noise variance must be positive, got %v", c.NoiseVariance)
	case c.ClutterDensity < 0:
		return errors.Wrapf(ErrInvalidConfig, "clutter density must not be negative, got %v", c.ClutterDensity)
	case c.MinAdmitProbability < 0 || c.MinAdmitProbability >= 1:
		return errors.Wrapf(ErrInvalidConfig, "admission threshold must be in [0, 1), got %v", c.MinAdmitProbability)
	case c.MaxAttempts < 1:
		return errors.Wrapf(ErrInvalidConfig, "max attempts must be at least 1, got %d", c.MaxAttempts)
	case c.MotionModel > MotionKalman:
		return errors.Wrapf(ErrInvalidConfig, "unknown motion model %d", c.MotionModel)
	case c.Rand == nil:
		return errors.Wrap(ErrInvalidConfig, "random source is required")
	case c.Logger == nil:
		return errors.Wrap(ErrInvalidConfig, "logger is required")
	}
	if err := c.MoveWeights.validate(); err != nil {
		return err
	}
	return nil
}
