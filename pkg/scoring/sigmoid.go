package scoring

import (
	"fmt"
	"math"
)

// DefaultSigmoidK is the steepness of the confidence curve.
const DefaultSigmoidK = 8.0

// TierBoundaries are the three cut points between the four tiers.
type TierBoundaries struct {
	SimpleMax   float64 `json:"simpleMax"`
	StandardMax float64 `json:"standardMax"`
	ComplexMax  float64 `json:"complexMax"`
}

// DefaultBoundaries returns the built-in cut points.
func DefaultBoundaries() TierBoundaries {
	return TierBoundaries{SimpleMax: 0.0, StandardMax: 0.12, ComplexMax: 0.25}
}

// Validate checks that the cut points are strictly increasing.
func (b TierBoundaries) Validate() error {
	if !(b.SimpleMax < b.StandardMax && b.StandardMax < b.ComplexMax) {
		return fmt.Errorf("tier boundaries must satisfy simpleMax < standardMax < complexMax, got %v < %v < %v",
			b.SimpleMax, b.StandardMax, b.ComplexMax)
	}
	return nil
}

// ScoreToTier maps a score onto a tier. A score equal to a boundary falls
// into the higher tier.
func ScoreToTier(score float64, b TierBoundaries) Tier {
	switch {
	case score < b.SimpleMax:
		return TierSimple
	case score < b.StandardMax:
		return TierStandard
	case score < b.ComplexMax:
		return TierComplex
	default:
		return TierReasoning
	}
}

// ComputeConfidence grows with the distance from score to the nearest
// boundary. The result is always in [0.5, 1).
func ComputeConfidence(score float64, b TierBoundaries, k float64) float64 {
	distance := math.Min(math.Abs(score-b.SimpleMax),
		math.Min(math.Abs(score-b.StandardMax), math.Abs(score-b.ComplexMax)))
	return 1 / (1 + math.Exp(-k*distance))
}
