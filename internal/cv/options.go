package cv

import "fmt"

// MatchConfig configures signature extraction and matching
type MatchConfig struct {
	// SpreadT is the spread width per pyramid level; its length is the
	// number of levels. The last level is scored on a SpreadT-strided grid.
	SpreadT []int

	ColorFeatures   int     // features per template from color
	WeakThreshold   float32 // gradient magnitude for a live code
	StrongThreshold float32 // gradient magnitude for a template feature

	DepthFeatures            int
	DepthDistanceThreshold   int     // mm
	DepthDifferenceThreshold int     // mm
	DepthExtractThreshold    int     // px
	FocalLength              float64 // px

	// SeedThreshold caps the coarse score a grid position needs to be
	// refined. The final score is always taken at the base level.
	SeedThreshold float64

	Workers int // templates scored in parallel, 1 = sequential
}

// DefaultMatchConfig returns recommended settings for VGA RGB-D input
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		SpreadT:                  []int{5, 8},
		ColorFeatures:            63,
		WeakThreshold:            10,
		StrongThreshold:          55,
		DepthFeatures:            63,
		DepthDistanceThreshold:   2000,
		DepthDifferenceThreshold: 50,
		DepthExtractThreshold:    2,
		FocalLength:              571,
		SeedThreshold:            75,
		Workers:                  1,
	}
}

// NewMatchConfig applies options on top of the defaults
func NewMatchConfig(opts ...Option) *MatchConfig {
	c := DefaultMatchConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate rejects settings the matcher cannot run with
func (c *MatchConfig) Validate() error {
	if len(c.SpreadT) == 0 {
		return fmt.Errorf("%w: at least one pyramid level is required", ErrInvalidConfig)
	}
	for l, t := range c.SpreadT {
		if t < 1 {
			return fmt.Errorf("%w: spread at level %d must be positive, got %d", ErrInvalidConfig, l, t)
		}
	}
	if c.ColorFeatures < 0 || c.DepthFeatures < 0 {
		return fmt.Errorf("%w: feature counts must not be negative", ErrInvalidConfig)
	}
	if c.ColorFeatures+c.DepthFeatures == 0 {
		return fmt.Errorf("%w: no modality would contribute features", ErrInvalidConfig)
	}
	if !(c.SeedThreshold >= 0 && c.SeedThreshold <= 100) {
		return fmt.Errorf("%w: seed threshold must be within [0, 100], got %v", ErrInvalidConfig, c.SeedThreshold)
	}
	if c.FocalLength <= 0 {
		return fmt.Errorf("%w: focal length must be positive", ErrInvalidConfig)
	}
	return nil
}

// clone returns a copy that does not share SpreadT with c
func (c *MatchConfig) clone() *MatchConfig {
	out := *c
	out.SpreadT = append([]int(nil), c.SpreadT...)
	return &out
}

// Modalities builds the modality list; color first, then depth
func (c *MatchConfig) Modalities() []Modality {
	return []Modality{
		NewColorGradient(c.WeakThreshold, c.StrongThreshold, c.ColorFeatures),
		NewDepthNormal(c.DepthDistanceThreshold, c.DepthDifferenceThreshold,
			c.DepthFeatures, c.DepthExtractThreshold, c.FocalLength),
	}
}

// Option adjusts a MatchConfig
type Option func(*MatchConfig)

// WithSpread sets the per-level spread widths
func WithSpread(t ...int) Option {
	return func(c *MatchConfig) {
		c.SpreadT = append([]int(nil), t...)
	}
}

// WithFeatures sets the feature budget per modality
func WithFeatures(color, depth int) Option {
	return func(c *MatchConfig) {
		c.ColorFeatures = color
		c.DepthFeatures = depth
	}
}

// WithGradientThresholds sets the weak and strong gradient magnitudes
func WithGradientThresholds(weak, strong float32) Option {
	return func(c *MatchConfig) {
		c.WeakThreshold = weak
		c.StrongThreshold = strong
	}
}

// WithFocalLength sets the depth camera focal length in pixels
func WithFocalLength(f float64) Option {
	return func(c *MatchConfig) {
		c.FocalLength = f
	}
}

// WithWorkers sets how many templates are scored concurrently
func WithWorkers(n int) Option {
	return func(c *MatchConfig) {
		c.Workers = n
	}
}

// WithSeedThreshold sets the coarse score cap for refinement seeds
func WithSeedThreshold(t float64) Option {
	return func(c *MatchConfig) {
		c.SeedThreshold = t
	}
}
