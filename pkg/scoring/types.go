// Package scoring classifies chat-completion requests into complexity tiers.
//
// A Scorer is built once from a Config and is safe for concurrent use. Each
// call to Score runs a single deterministic pass: text extraction, keyword
// scanning, 23 weighted dimensions, session momentum blending, tier mapping
// and the post-hoc floors.
package scoring

import (
	"fmt"
	"strings"
)

// Tier is a complexity tier, ordered by expected task difficulty and cost.
type Tier string

const (
	TierSimple    Tier = "simple"
	TierStandard  Tier = "standard"
	TierComplex   Tier = "complex"
	TierReasoning Tier = "reasoning"
)

// AllTiers lists the tiers in ascending order.
var AllTiers = []Tier{TierSimple, TierStandard, TierComplex, TierReasoning}

// Rank returns the ordinal of the tier, or -1 for unknown values.
func (t Tier) Rank() int {
	switch t {
	case TierSimple:
		return 0
	case TierStandard:
		return 1
	case TierComplex:
		return 2
	case TierReasoning:
		return 3
	default:
		return -1
	}
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// MaxTier returns the higher of two tiers.
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Reason explains why a tier was chosen.
type Reason string

const (
	ReasonScored       Reason = "scored"
	ReasonAmbiguous    Reason = "ambiguous"
	ReasonShortMessage Reason = "short_message"
	ReasonFormalLogic  Reason = "formal_logic_override"
	ReasonToolDetected Reason = "tool_detected"
	ReasonLargeContext Reason = "large_context"
	ReasonMomentum     Reason = "momentum"
	ReasonHeartbeat    Reason = "heartbeat"
)

// Message is a chat message as seen by the scorer. Content is the decoded
// JSON value: a string, an array of content blocks, nil, or any scalar.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Input is the scoring view of a request.
type Input struct {
	Messages    []Message `json:"messages"`
	Tools       []any     `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	RecentTiers []Tier    `json:"recentTiers,omitempty"`
}

// FloorInput is the view read by the post-hoc floors. It is kept separate
// from Input so a caller can score without tools yet still floor on them.
type FloorInput struct {
	Messages   []Message
	Tools      []any
	ToolChoice any
}

// FloorsFrom returns the floor view matching an Input.
func FloorsFrom(in Input) FloorInput {
	return FloorInput{Messages: in.Messages, Tools: in.Tools, ToolChoice: in.ToolChoice}
}

// ExtractedText is scorable user text with its recency weight.
type ExtractedText struct {
	Text           string
	PositionWeight float64
	MessageIndex   int
}

// TrieMatch is one keyword occurrence found by the trie.
type TrieMatch struct {
	Keyword   string
	Dimension string
	Position  int
}

// Direction tells whether a dimension pushes the score up or down.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// DimensionConfig describes one weighted signal. Dimensions without keywords
// are computed by dedicated structural or contextual functions.
type DimensionConfig struct {
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`
	Keywords  []string  `json:"keywords,omitempty"`
}

// DimensionScore is the outcome of one dimension.
type DimensionScore struct {
	Name            string   `json:"name"`
	RawScore        float64  `json:"rawScore"`
	Weight          float64  `json:"weight"`
	WeightedScore   float64  `json:"weightedScore"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
}

// MomentumInfo reports how session history influenced the score.
type MomentumInfo struct {
	HistoryLength   int     `json:"historyLength"`
	HistoryAvgScore float64 `json:"historyAvgScore"`
	MomentumWeight  float64 `json:"momentumWeight"`
	Applied         bool    `json:"applied"`
}

// Result is the immutable outcome of scoring one request.
type Result struct {
	Tier       Tier             `json:"tier"`
	Score      float64          `json:"score"`
	Confidence float64          `json:"confidence"`
	Reason     Reason           `json:"reason"`
	Dimensions []DimensionScore `json:"dimensions"`
	Momentum   *MomentumInfo    `json:"momentum"`
}
