package provider

import (
	"strings"

	"github.com/tidwall/gjson"
)

// TokenUsage is the token accounting reported by an upstream.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// ExtractUsage reads the OpenAI usage block of a response body.
func ExtractUsage(body []byte) (TokenUsage, bool) {
	u := gjson.GetBytes(body, "usage")
	if !u.IsObject() {
		return TokenUsage{}, false
	}
	return TokenUsage{
		InputTokens:  int(u.Get("prompt_tokens").Int()),
		OutputTokens: int(u.Get("completion_tokens").Int()),
	}, true
}

// usageFromStreamLine reads usage from one SSE data line in either wire
// format. Gemini reports cumulative counts so the last line wins.
func usageFromStreamLine(line string) (TokenUsage, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return TokenUsage{}, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || data == "[DONE]" || !gjson.Valid(data) {
		return TokenUsage{}, false
	}

	if u := gjson.Get(data, "usage"); u.IsObject() {
		return TokenUsage{
			InputTokens:  int(u.Get("prompt_tokens").Int()),
			OutputTokens: int(u.Get("completion_tokens").Int()),
		}, true
	}
	if u := gjson.Get(data, "usageMetadata"); u.IsObject() {
		return TokenUsage{
			InputTokens:  int(u.Get("promptTokenCount").Int()),
			OutputTokens: int(u.Get("candidatesTokenCount").Int()),
		}, true
	}
	return TokenUsage{}, false
}
