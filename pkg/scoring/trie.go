package scoring

import "strings"

// MaxScanLength bounds the number of input bytes a scan will look at.
const MaxScanLength = 100_000

// KeywordSet is the keyword list of one dimension.
type KeywordSet struct {
	Dimension string
	Keywords  []string
}

type trieNode struct {
	children map[byte]*trieNode
	// terminal entries for keywords ending at this node
	ends []trieEnd
}

type trieEnd struct {
	keyword   string
	dimension string
}

// KeywordTrie finds word-bounded keyword occurrences for many dimensions in
// one pass.
//
// Matching does a plain trie descent from every start offset rather than
// building failure links. Cost is O(len(text) * longest keyword), which is
// fine for keyword sets of a few hundred entries and inputs capped at
// MaxScanLength.
type KeywordTrie struct {
	root *trieNode
}

// NewKeywordTrie builds a trie from the given keyword sets. Keywords are
// lower-cased; empty keywords are ignored.
func NewKeywordTrie(sets []KeywordSet) *KeywordTrie {
	t := &KeywordTrie{root: newTrieNode()}
	for _, set := range sets {
		for _, kw := range set.Keywords {
			t.insert(strings.ToLower(kw), set.Dimension)
		}
	}
	return t
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[byte]*trieNode)}
}

func (t *KeywordTrie) insert(keyword, dimension string) {
	if keyword == "" {
		return
	}
	node := t.root
	for i := 0; i < len(keyword); i++ {
		c := keyword[i]
		next, ok := node.children[c]
		if !ok {
			next = newTrieNode()
			node.children[c] = next
		}
		node = next
	}
	for _, e := range node.ends {
		if e.dimension == dimension {
			return
		}
	}
	node.ends = append(node.ends, trieEnd{keyword: keyword, dimension: dimension})
}

// Scan returns every word-bounded keyword occurrence in text. Duplicate and
// overlapping occurrences are all reported.
func (t *KeywordTrie) Scan(text string) []TrieMatch {
	if len(text) > MaxScanLength {
		text = text[:MaxScanLength]
	}
	lower := strings.ToLower(text)

	var matches []TrieMatch
	for start := 0; start < len(lower); start++ {
		if start > 0 && isWordByte(lower[start-1]) {
			continue
		}
		node := t.root
		for i := start; i < len(lower); i++ {
			next, ok := node.children[lower[i]]
			if !ok {
				break
			}
			node = next
			if len(node.ends) == 0 {
				continue
			}
			if end := i + 1; end < len(lower) && isWordByte(lower[end]) {
				continue
			}
			for _, e := range node.ends {
				matches = append(matches, TrieMatch{
					Keyword:   e.keyword,
					Dimension: e.dimension,
					Position:  start,
				})
			}
		}
	}
	return matches
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}
