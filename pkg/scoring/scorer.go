package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Config configures a Scorer.
type Config struct {
	Boundaries          TierBoundaries
	ConfidenceThreshold float64
	SigmoidK            float64
	Dimensions          []DimensionConfig

	// ShortMessageLength is the exclusive upper bound, in characters, of
	// the short-message override.
	ShortMessageLength int

	// LargeContextTokens is the estimated token count above which the
	// large-context floor applies.
	LargeContextTokens int

	FormalLogicKeywords []string
}

// DefaultConfig returns the built-in scorer configuration.
func DefaultConfig() Config {
	return Config{
		Boundaries:          DefaultBoundaries(),
		ConfidenceThreshold: 0.55,
		SigmoidK:            DefaultSigmoidK,
		Dimensions:          DefaultDimensions(),
		ShortMessageLength:  30,
		LargeContextTokens:  50_000,
		FormalLogicKeywords: FormalLogicKeywords,
	}
}

var computedDimensions = map[string]struct{}{
	DimTokenCount:           {},
	DimNestedListDepth:      {},
	DimConditionalLogic:     {},
	DimCodeRatio:            {},
	DimConstraintDensity:    {},
	DimExpectedOutputLength: {},
	DimRepetitionRequest:    {},
	DimToolCount:            {},
	DimConversationDepth:    {},
}

// Scorer holds a prebuilt keyword trie and the scoring configuration.
type Scorer struct {
	cfg         Config
	trie        *KeywordTrie
	formalLogic []*regexp.Regexp
}

// NewScorer validates cfg and builds the keyword trie.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Boundaries.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be within [0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.SigmoidK <= 0 {
		cfg.SigmoidK = DefaultSigmoidK
	}
	if cfg.ShortMessageLength <= 0 {
		cfg.ShortMessageLength = 30
	}
	if cfg.LargeContextTokens <= 0 {
		cfg.LargeContextTokens = 50_000
	}
	if len(cfg.FormalLogicKeywords) == 0 {
		cfg.FormalLogicKeywords = FormalLogicKeywords
	}

	var sets []KeywordSet
	seen := make(map[string]struct{}, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		if d.Name == "" {
			return nil, fmt.Errorf("dimension name cannot be empty")
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate dimension %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.Weight < 0 || d.Weight > 1 {
			return nil, fmt.Errorf("dimension %q weight must be within [0,1], got %v", d.Name, d.Weight)
		}
		if d.Direction != DirectionUp && d.Direction != DirectionDown {
			return nil, fmt.Errorf("dimension %q has invalid direction %q", d.Name, d.Direction)
		}
		if len(d.Keywords) > 0 {
			sets = append(sets, KeywordSet{Dimension: d.Name, Keywords: d.Keywords})
			continue
		}
		if _, ok := computedDimensions[d.Name]; !ok {
			return nil, fmt.Errorf("dimension %q has no keywords and no built-in scorer", d.Name)
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.FormalLogicKeywords))
	for _, kw := range cfg.FormalLogicKeywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
	}

	return &Scorer{
		cfg:         cfg,
		trie:        NewKeywordTrie(sets),
		formalLogic: patterns,
	}, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score classifies one request, reading the floors from in itself.
func (s *Scorer) Score(in Input) *Result {
	return s.ScoreWithFloors(in, FloorsFrom(in))
}

// ScoreWithFloors classifies in while the tool and large-context floors read
// f. Floors are decided before the confidence check, so a floored result is
// never demoted to the ambiguous fallback.
func (s *Scorer) ScoreWithFloors(in Input, f FloorInput) *Result {
	if len(in.Messages) == 0 {
		return &Result{Tier: TierStandard, Score: 0, Confidence: 0.4, Reason: ReasonAmbiguous}
	}

	texts := ExtractUserTexts(in.Messages)
	lastUserText := ""
	if len(texts) > 0 {
		lastUserText = texts[len(texts)-1].Text
	}

	if s.countFormalLogic(lastUserText) >= 2 {
		return &Result{Tier: TierReasoning, Score: 0.5, Confidence: 0.95, Reason: ReasonFormalLogic}
	}

	lastLen := utf8.RuneCountInString(lastUserText)
	noTools := len(in.Tools) == 0 && len(f.Tools) == 0
	if lastLen > 0 && lastLen < s.cfg.ShortMessageLength && noTools && len(in.RecentTiers) == 0 {
		return &Result{Tier: TierSimple, Score: -0.3, Confidence: 0.9, Reason: ReasonShortMessage}
	}

	combined := combinedText(texts)
	matches := s.trie.Scan(combined)

	dims := make([]DimensionScore, 0, len(s.cfg.Dimensions))
	raw := 0.0
	for _, d := range s.cfg.Dimensions {
		ds := DimensionScore{Name: d.Name, Weight: d.Weight}
		if len(d.Keywords) > 0 {
			ds.RawScore, ds.MatchedKeywords = scoreKeywordDimension(d, matches, texts)
		} else {
			ds.RawScore = s.computedScore(d, in, combined)
		}
		ds.WeightedScore = ds.RawScore * d.Weight
		raw += ds.WeightedScore
		dims = append(dims, ds)
	}

	effective, momentum := ApplyMomentum(raw, lastLen, in.RecentTiers)

	result := &Result{
		Tier:       ScoreToTier(effective, s.cfg.Boundaries),
		Score:      effective,
		Reason:     ReasonScored,
		Dimensions: dims,
	}
	if in.RecentTiers != nil {
		result.Momentum = &momentum
	}

	floored := s.applyFloors(result, f)
	result.Confidence = ComputeConfidence(effective, s.cfg.Boundaries, s.cfg.SigmoidK)

	if !floored && result.Confidence < s.cfg.ConfidenceThreshold {
		result.Tier = TierStandard
		result.Reason = ReasonAmbiguous
	}
	if momentum.Applied && result.Reason == ReasonScored {
		result.Reason = ReasonMomentum
	}
	return result
}

func (s *Scorer) applyFloors(r *Result, f FloorInput) bool {
	fired := false
	if len(f.Tools) > 0 && !isToolChoiceNone(f.ToolChoice) {
		r.Tier = MaxTier(r.Tier, TierStandard)
		r.Reason = ReasonToolDetected
		fired = true
	}
	if EstimateTokens(f.Messages) > s.cfg.LargeContextTokens {
		r.Tier = MaxTier(r.Tier, TierComplex)
		r.Reason = ReasonLargeContext
		fired = true
	}
	return fired
}

func (s *Scorer) computedScore(d DimensionConfig, in Input, combined string) float64 {
	var v float64
	switch d.Name {
	case DimTokenCount:
		v = scoreTokenCount(combined)
	case DimNestedListDepth:
		v = scoreNestedListDepth(combined)
	case DimConditionalLogic:
		v = scoreConditionalLogic(combined)
	case DimCodeRatio:
		v = scoreCodeRatio(combined)
	case DimConstraintDensity:
		v = scoreConstraintDensity(combined)
	case DimExpectedOutputLength:
		v = scoreExpectedOutputLength(combined, in.MaxTokens)
	case DimRepetitionRequest:
		v = scoreRepetitionRequest(combined)
	case DimToolCount:
		v = scoreToolCount(in.Tools, in.ToolChoice)
	case DimConversationDepth:
		v = scoreConversationDepth(in.Messages)
	}
	if d.Direction == DirectionDown {
		v = -v
	}
	return v
}

// countFormalLogic counts distinct formal-logic keywords in text.
func (s *Scorer) countFormalLogic(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, p := range s.formalLogic {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func isToolChoiceNone(toolChoice any) bool {
	s, ok := toolChoice.(string)
	return ok && s == "none"
}
