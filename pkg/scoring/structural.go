package scoring

import (
	"regexp"
	"strings"
)

var (
	listLinePattern = regexp.MustCompile(`^([ \t]*)(?:[-*+•]|\d+[.)])\s+\S`)

	conditionalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bif\b[^.?!\n]*\bthen\b`),
		regexp.MustCompile(`(?i)\bunless\b`),
		regexp.MustCompile(`(?i)\botherwise\b`),
		regexp.MustCompile(`(?i)\bdepending on\b`),
		regexp.MustCompile(`(?i)\bin case\b`),
		regexp.MustCompile(`(?i)\beither\b[^.?!\n]*\bor\b`),
		regexp.MustCompile(`(?i)\belse\b`),
		regexp.MustCompile(`(?i)\bwhen\b[^.?!\n]*\b(?:should|must)\b`),
		regexp.MustCompile(`(?i)\bprovided that\b`),
	}

	fencedCodePattern = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`[^`\n]+`")

	constraintPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bat (?:most|least)\b`),
		regexp.MustCompile(`(?i)\bexactly \d+`),
		regexp.MustCompile(`(?i)\bno (?:more|fewer|less) than\b`),
		regexp.MustCompile(`(?i)\bwithin \d+`),
		regexp.MustCompile(`(?i)\bmust not\b`),
		regexp.MustCompile(`(?i)\b(?:maximum|minimum) of\b`),
		regexp.MustCompile(`(?i)\bunder \d+ (?:words|characters|lines|ms|seconds)\b`),
		regexp.MustCompile(`\bO\([^)]{1,20}\)`),
		regexp.MustCompile(`/\^?[^/\s]{2,}\$?/[gimsuy]*`),
	}
)

// scoreTokenCount ramps from -0.5 below 50 estimated tokens to 0.3 at 500,
// and jumps to 0.5 above that.
func scoreTokenCount(text string) float64 {
	tokens := float64(len(text)) / 4
	switch {
	case tokens < 50:
		return -0.5
	case tokens <= 500:
		return -0.5 + 0.8*(tokens-50)/450
	default:
		return 0.5
	}
}

// scoreNestedListDepth counts the distinct indentation widths used by
// bullet and numbered list lines.
func scoreNestedListDepth(text string) float64 {
	widths := make(map[int]struct{})
	for _, line := range strings.Split(text, "\n") {
		m := listLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		widths[len(strings.ReplaceAll(m[1], "\t", "    "))] = struct{}{}
	}
	return stepScore(len(widths))
}

func scoreConditionalLogic(text string) float64 {
	hits := 0
	for _, p := range conditionalPatterns {
		hits += len(p.FindAllStringIndex(text, -1))
	}
	return stepScore(hits)
}

// scoreCodeRatio weighs fenced code fully and inline code at half against
// total length.
func scoreCodeRatio(text string) float64 {
	if text == "" {
		return 0
	}
	codeChars := 0.0
	for _, block := range fencedCodePattern.FindAllString(text, -1) {
		codeChars += float64(len(block))
	}
	rest := fencedCodePattern.ReplaceAllString(text, "")
	for _, span := range inlineCodePattern.FindAllString(rest, -1) {
		codeChars += float64(len(span)) * 0.5
	}
	ratio := codeChars / float64(len(text))
	return min(ratio*1.5, 0.9)
}

// scoreConstraintDensity maps constraint hits per 100 words linearly from
// 0 at density 0.5 to 0.9 at density 3.
func scoreConstraintDensity(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	hits := 0
	for _, p := range constraintPatterns {
		hits += len(p.FindAllStringIndex(text, -1))
	}
	density := float64(hits) / float64(words) * 100
	switch {
	case density <= 0.5:
		return 0
	case density >= 3:
		return 0.9
	default:
		return 0.9 * (density - 0.5) / 2.5
	}
}

// stepScore maps a count to 0, 0.3, 0.6 or 0.9 for 0, 1, 2 and 3+.
func stepScore(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.3
	case n == 2:
		return 0.6
	default:
		return 0.9
	}
}
