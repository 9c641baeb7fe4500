package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDimensions(t *testing.T) {
	dims := DefaultDimensions()
	require.Len(t, dims, 23)

	total := 0.0
	names := make(map[string]struct{})
	for _, d := range dims {
		total += d.Weight
		names[d.Name] = struct{}{}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Len(t, names, 23)
}

func TestOverrideWeights(t *testing.T) {
	dims, err := OverrideWeights(DefaultDimensions(), map[string]float64{DimCodeRatio: 0.5})
	require.NoError(t, err)
	for _, d := range dims {
		if d.Name == DimCodeRatio {
			assert.Equal(t, 0.5, d.Weight)
		}
	}
	for _, d := range DefaultDimensions() {
		if d.Name == DimCodeRatio {
			assert.Equal(t, 0.05, d.Weight)
		}
	}

	_, err = OverrideWeights(DefaultDimensions(), map[string]float64{"nope": 1})
	assert.Error(t, err)
}

func TestScoreKeywordDimension_DensityCluster(t *testing.T) {
	dim := DimensionConfig{Name: "x", Weight: 1, Direction: DirectionUp, Keywords: []string{"alpha"}}
	trie := NewKeywordTrie([]KeywordSet{{Dimension: "x", Keywords: dim.Keywords}})

	clustered := []ExtractedText{{Text: "alpha alpha alpha", PositionWeight: 0.25}}
	score, kws := scoreKeywordDimension(dim, trie.Scan(clustered[0].Text), clustered)
	assert.InDelta(t, 0.375, score, 1e-9)
	assert.Equal(t, []string{"alpha"}, kws)

	gap := strings.Repeat(" ", 250)
	spread := []ExtractedText{{Text: "alpha" + gap + "alpha" + gap + "alpha", PositionWeight: 0.25}}
	score, _ = scoreKeywordDimension(dim, trie.Scan(spread[0].Text), spread)
	assert.InDelta(t, 0.25, score, 1e-9)
}

func TestScoreKeywordDimension_DownwardAndClamped(t *testing.T) {
	dim := DimensionConfig{Name: "x", Weight: 1, Direction: DirectionDown, Keywords: []string{"hello", "thanks"}}
	trie := NewKeywordTrie([]KeywordSet{{Dimension: "x", Keywords: dim.Keywords}})

	texts := []ExtractedText{
		{Text: "hello thanks", PositionWeight: 1.0},
		{Text: "hello thanks", PositionWeight: 0.5},
	}
	score, _ := scoreKeywordDimension(dim, trie.Scan(combinedText(texts)), texts)
	assert.Equal(t, -1.0, score)

	score, kws := scoreKeywordDimension(dim, nil, texts)
	assert.Zero(t, score)
	assert.Nil(t, kws)
}

func TestStructuralDimensions(t *testing.T) {
	assert.Equal(t, -0.5, scoreTokenCount(""))
	assert.Equal(t, -0.5, scoreTokenCount(strings.Repeat("a", 196)))
	assert.InDelta(t, 0.3, scoreTokenCount(strings.Repeat("a", 2000)), 1e-9)
	assert.Equal(t, 0.5, scoreTokenCount(strings.Repeat("a", 2004)))

	assert.Equal(t, 0.0, scoreNestedListDepth("no lists here"))
	assert.Equal(t, 0.3, scoreNestedListDepth("- a\n- b"))
	assert.Equal(t, 0.9, scoreNestedListDepth("- a\n  - b\n    - c"))
	assert.Equal(t, 0.6, scoreNestedListDepth("1. a\n\t2. b"))

	assert.Equal(t, 0.6, scoreConditionalLogic("if it rains then stay inside, otherwise go out"))
	assert.Equal(t, 0.0, scoreConditionalLogic("plain request"))

	assert.Equal(t, 0.9, scoreCodeRatio("```go\nx := 1\n```"))
	assert.InDelta(t, 0.1875, scoreCodeRatio("use `x` here"), 1e-9)
	assert.Equal(t, 0.0, scoreCodeRatio(""))

	assert.Equal(t, 0.9, scoreConstraintDensity("Return at most 5 items in exactly 3 lines"))
	assert.Equal(t, 0.0, scoreConstraintDensity("nothing constrained in this sentence"))
}

func TestContextualDimensions(t *testing.T) {
	assert.Equal(t, 0.6, scoreExpectedOutputLength("a comprehensive and detailed answer", 0))
	assert.Equal(t, 0.9, scoreExpectedOutputLength("a comprehensive and detailed answer", 10000))
	assert.Equal(t, 0.9, scoreExpectedOutputLength("detailed", 10000))
	assert.Equal(t, 0.5, scoreExpectedOutputLength("detailed", 5000))
	assert.Equal(t, 0.3, scoreExpectedOutputLength("no phrases here", 9000))
	assert.Equal(t, 0.0, scoreExpectedOutputLength("", 0))

	assert.Equal(t, 0.6, scoreRepetitionRequest("give me 5 variations"))
	assert.Equal(t, 0.3, scoreRepetitionRequest("2 options please"))
	assert.Equal(t, 0.9, scoreRepetitionRequest("20 different ideas"))
	assert.Equal(t, 0.0, scoreRepetitionRequest("one idea"))

	tools := func(n int) []any { return make([]any, n) }
	tests := []struct {
		name   string
		tools  []any
		choice any
		want   float64
	}{
		{name: "none supplied", want: 0},
		{name: "one tool", tools: tools(1), want: 0.1},
		{name: "five tools", tools: tools(5), want: 0.3},
		{name: "required", tools: tools(5), choice: "required", want: 0.5},
		{name: "named tool", tools: tools(1), choice: map[string]any{"type": "function"}, want: 0.3},
		{name: "many tools capped", tools: tools(12), choice: "any", want: 0.9},
		{name: "choice none", tools: tools(5), choice: "none", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreToolCount(tt.tools, tt.choice), 1e-9)
		})
	}

	depth := []Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	}
	assert.Equal(t, 0.1, scoreConversationDepth(depth))
	assert.Equal(t, 0.0, scoreConversationDepth(depth[:3]))
}
