package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUserTexts_PositionWeights(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
		{Role: "user", Content: "third"},
		{Role: "user", Content: "fourth"},
	}

	texts := ExtractUserTexts(messages)
	require.Len(t, texts, 4)

	weights := make([]float64, len(texts))
	for i, tx := range texts {
		weights[i] = tx.PositionWeight
	}
	assert.Equal(t, []float64{0.25, 0.25, 0.5, 1.0}, weights)
	assert.Equal(t, "fourth", texts[3].Text)
	assert.Equal(t, 5, texts[3].MessageIndex)
}

func TestExtractUserTexts_ContentShapes(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: []any{
			map[string]any{"type": "text", "text": "look at this"},
			map[string]any{"type": "image_url", "image_url": map[string]any{"url": "http://x"}},
			map[string]any{"type": "text", "text": "and this"},
		}},
		{Role: "user", Content: nil},
		{Role: "user", Content: 42},
		{Role: "user", Content: ""},
	}

	texts := ExtractUserTexts(messages)
	require.Len(t, texts, 1)
	assert.Equal(t, "look at this\nand this", texts[0].Text)
	assert.Equal(t, 1.0, texts[0].PositionWeight)
}

func TestExtractUserTexts_NoUserMessages(t *testing.T) {
	texts := ExtractUserTexts([]Message{{Role: "system", Content: "rules"}})
	assert.Empty(t, texts)
}

func TestEstimateTokens(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "abcde"},
		{Role: "user", Content: "abcd"},
		{Role: "tool", Content: map[string]any{"k": "v"}},
		{Role: "user", Content: nil},
	}
	// 2 + 1 + ceil(len(`{"k":"v"}`)/4)=3
	assert.Equal(t, 6, EstimateTokens(messages))
}

func TestContentString(t *testing.T) {
	assert.Equal(t, "", ContentString(nil))
	assert.Equal(t, "plain", ContentString("plain"))
	assert.Equal(t, `[{"type":"text"}]`, ContentString([]any{map[string]any{"type": "text"}}))
	assert.Equal(t, "3.5", ContentString(3.5))
}
