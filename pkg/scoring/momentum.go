package scoring

// MaxMomentumHistory is the number of recent tiers momentum considers.
const MaxMomentumHistory = 5

var tierMomentumScore = map[Tier]float64{
	TierSimple:    -0.2,
	TierStandard:  0.0,
	TierComplex:   0.2,
	TierReasoning: 0.4,
}

// MomentumWeight returns how much session history should count for a
// message of the given length. Short follow-ups lean on history the most.
func MomentumWeight(length int) float64 {
	switch {
	case length >= 100:
		return 0
	case length >= 30:
		return 0.3 * float64(100-length) / 70
	case length <= 0:
		return 0.6
	default:
		return 0.6 - 0.3*float64(length)/30
	}
}

// ApplyMomentum blends raw with the average score of the newest recent
// tiers. Nil or empty history leaves raw untouched.
func ApplyMomentum(raw float64, lastMessageLength int, recent []Tier) (float64, MomentumInfo) {
	if len(recent) == 0 {
		return raw, MomentumInfo{}
	}
	if len(recent) > MaxMomentumHistory {
		recent = recent[:MaxMomentumHistory]
	}

	sum := 0.0
	for _, t := range recent {
		sum += tierMomentumScore[t]
	}
	avg := sum / float64(len(recent))

	w := MomentumWeight(lastMessageLength)
	effective := (1-w)*raw + w*avg

	return effective, MomentumInfo{
		HistoryLength:   len(recent),
		HistoryAvgScore: avg,
		MomentumWeight:  w,
		Applied:         w > 0 && effective != raw,
	}
}
