package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

var outputLengthPhrases = []string{
	"comprehensive", "detailed", "in detail", "thorough", "thoroughly", "exhaustive",
	"complete guide", "full implementation", "step-by-step guide", "long-form",
	"essay", "whitepaper", "explain everything", "cover all", "extensive",
}

var repetitionPattern = regexp.MustCompile(
	`(?i)\b(\d+)\s+(?:different\s+|distinct\s+|unique\s+)?(?:variations|variants|options|alternatives|examples|versions|ideas|suggestions|drafts|ways to|times)\b`)

func scoreExpectedOutputLength(text string, maxTokens int) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, p := range outputLengthPhrases {
		if strings.Contains(lower, p) {
			hits++
		}
	}

	// Summed in hundredths so the 0.9 cap is exact.
	points := 0
	switch {
	case hits >= 2:
		points = 60
	case hits == 1:
		points = 30
	}

	switch {
	case maxTokens > 8000:
		points += 30
	case maxTokens > 4000:
		points += 20
	}
	return float64(min(points, 90)) / 100
}

// scoreRepetitionRequest looks for "<N> variations", "<N> ways to" and the
// like, keyed on the largest N found.
func scoreRepetitionRequest(text string) float64 {
	n := 0
	for _, m := range repetitionPattern.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil && v > n {
			n = v
		}
	}
	switch {
	case n <= 1:
		return 0
	case n <= 3:
		return 0.3
	case n <= 9:
		return 0.6
	default:
		return 0.9
	}
}

func scoreToolCount(tools []any, toolChoice any) float64 {
	if s, ok := toolChoice.(string); ok && s == "none" {
		return 0
	}

	n := len(tools)
	points := 0
	switch {
	case n == 0:
		return 0
	case n <= 2:
		points = 10
	case n <= 5:
		points = 30
	case n <= 10:
		points = 60
	default:
		points = 90
	}

	if forcesToolUse(toolChoice) {
		points += 20
	}
	return float64(min(points, 90)) / 100
}

// forcesToolUse reports whether tool_choice names a specific tool or
// requires any tool call.
func forcesToolUse(toolChoice any) bool {
	switch c := toolChoice.(type) {
	case string:
		return c == "any" || c == "required"
	case map[string]any:
		return true
	default:
		return false
	}
}

func scoreConversationDepth(messages []Message) float64 {
	n := 0
	for _, m := range messages {
		if !isInstructionRole(m.Role) {
			n++
		}
	}
	switch {
	case n <= 2:
		return 0
	case n <= 5:
		return 0.1
	case n <= 10:
		return 0.3
	case n <= 20:
		return 0.5
	default:
		return 0.7
	}
}

func isInstructionRole(role string) bool {
	return role == "system" || role == "developer"
}
