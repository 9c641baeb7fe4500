package scoring

import (
	"sort"
	"strings"
)

const (
	densityWindow     = 200
	densityMinMatches = 3
	densityMultiplier = 1.5
)

// scoreKeywordDimension scores one keyword dimension from the trie matches
// of the combined text. It returns the raw score and the distinct keywords
// that matched.
func scoreKeywordDimension(dim DimensionConfig, matches []TrieMatch, texts []ExtractedText) (float64, []string) {
	var own []TrieMatch
	for _, m := range matches {
		if m.Dimension == dim.Name {
			own = append(own, m)
		}
	}
	if len(own) == 0 {
		return 0, nil
	}

	multiplier := 1.0
	if hasDensityCluster(own) {
		multiplier = densityMultiplier
	}

	total := 0.0
	for _, t := range texts {
		chunk := strings.ToLower(t.Text)
		count := 0
		for _, m := range own {
			if strings.Contains(chunk, m.Keyword) {
				count++
			}
		}
		total += float64(count) * t.PositionWeight * multiplier
	}

	score := clamp(total/float64(max(1, len(own))), -1, 1)
	if dim.Direction == DirectionDown {
		score = -score
	}
	return score, distinctKeywords(own)
}

// hasDensityCluster reports whether at least three matches fall inside one
// window of densityWindow characters.
func hasDensityCluster(matches []TrieMatch) bool {
	if len(matches) < densityMinMatches {
		return false
	}
	positions := make([]int, len(matches))
	for i, m := range matches {
		positions[i] = m.Position
	}
	sort.Ints(positions)
	for i := 0; i+densityMinMatches-1 < len(positions); i++ {
		if positions[i+densityMinMatches-1]-positions[i] <= densityWindow {
			return true
		}
	}
	return false
}

func distinctKeywords(matches []TrieMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m.Keyword]; ok {
			continue
		}
		seen[m.Keyword] = struct{}{}
		out = append(out, m.Keyword)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
