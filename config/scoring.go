package config

import (
	"fmt"

	"github.com/goclaw/manifest/pkg/scoring"
)

// ScorerConfig converts the scoring section to a scoring.Config, applying
// weight overrides to the built-in dimensions.
func (s *ScoringConfig) ScorerConfig() (scoring.Config, error) {
	cfg := scoring.DefaultConfig()
	cfg.Boundaries = scoring.TierBoundaries{
		SimpleMax:   s.Boundaries.SimpleMax,
		StandardMax: s.Boundaries.StandardMax,
		ComplexMax:  s.Boundaries.ComplexMax,
	}
	cfg.ConfidenceThreshold = s.ConfidenceThreshold
	if s.SigmoidK > 0 {
		cfg.SigmoidK = s.SigmoidK
	}
	if s.ShortMessageLength > 0 {
		cfg.ShortMessageLength = s.ShortMessageLength
	}
	if s.LargeContextTokens > 0 {
		cfg.LargeContextTokens = s.LargeContextTokens
	}
	if len(s.Weights) > 0 {
		dims, err := scoring.OverrideWeights(cfg.Dimensions, s.Weights)
		if err != nil {
			return scoring.Config{}, fmt.Errorf("scoring.weights: %w", err)
		}
		cfg.Dimensions = dims
	}
	return cfg, nil
}

// NewScorer builds a scorer from the scoring section.
func (s *ScoringConfig) NewScorer() (*scoring.Scorer, error) {
	cfg, err := s.ScorerConfig()
	if err != nil {
		return nil, err
	}
	return scoring.NewScorer(cfg)
}
