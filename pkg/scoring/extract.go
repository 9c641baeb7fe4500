package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ExtractUserTexts returns the scorable text of every user message in order.
// The newest user text weighs 1.0, the one before 0.5, all older ones 0.25.
func ExtractUserTexts(messages []Message) []ExtractedText {
	var out []ExtractedText
	for i, m := range messages {
		if m.Role != "user" {
			continue
		}
		text := textContent(m.Content)
		if text == "" {
			continue
		}
		out = append(out, ExtractedText{Text: text, MessageIndex: i})
	}

	for i := range out {
		switch age := len(out) - 1 - i; age {
		case 0:
			out[i].PositionWeight = 1.0
		case 1:
			out[i].PositionWeight = 0.5
		default:
			out[i].PositionWeight = 0.25
		}
	}
	return out
}

// textContent returns string content as-is and joins the text blocks of
// array content. Any other shape has no scorable text.
func textContent(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, block := range c {
			b, ok := block.(map[string]any)
			if !ok || b["type"] != "text" {
				continue
			}
			if s, ok := b["text"].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// ContentString coerces any content value to a string for size estimates.
func ContentString(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any, map[string]any:
		b, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(c)
	}
}

// EstimateTokens approximates the token count of all messages at four
// characters per token, system and developer messages included.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += int(math.Ceil(float64(len(ContentString(m.Content))) / 4))
	}
	return total
}

func combinedText(texts []ExtractedText) string {
	parts := make([]string, len(texts))
	for i, t := range texts {
		parts[i] = t.Text
	}
	return strings.Join(parts, "\n")
}
