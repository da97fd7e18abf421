package lexicon

import (
	"sort"
	"strings"
	"unicode"
)

// Text is a tokenized, lower-cased view of a document that answers
// whole-word and whole-phrase queries.
type Text struct {
	tokens []string
	index  map[string][]int
}

// NewText tokenizes s
func NewText(s string) *Text {
	tokens := Tokenize(s)
	index := make(map[string][]int, len(tokens))
	for i, tok := range tokens {
		index[tok] = append(index[tok], i)
	}
	return &Text{tokens: tokens, index: index}
}

// Tokenize lower-cases s and splits it into words. Apostrophes and hyphens
// between letters stay inside a word ("can't", "co-founder").
func Tokenize(s string) []string {
	runes := []rune(strings.ToLower(s))
	var tokens []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		case (r == '\'' || r == '’' || r == '-') && len(cur) > 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
			if r == '’' {
				r = '\''
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Words returns the tokens in document order
func (t *Text) Words() []string {
	return t.tokens
}

// WordCount is the number of tokens
func (t *Text) WordCount() int {
	return len(t.tokens)
}

// Count returns how many times phrase occurs on token boundaries
func (t *Text) Count(phrase string) int {
	want := Tokenize(phrase)
	if len(want) == 0 {
		return 0
	}

	count := 0
	for _, start := range t.index[want[0]] {
		if start+len(want) > len(t.tokens) {
			continue
		}
		ok := true
		for j := 1; j < len(want); j++ {
			if t.tokens[start+j] != want[j] {
				ok = false
				break
			}
		}
		if ok {
			count++
		}
	}
	return count
}

// Has reports whether phrase occurs at least once
func (t *Text) Has(phrase string) bool {
	return t.Count(phrase) > 0
}

// Matches returns the distinct phrases of list present in the text, in list order
func (t *Text) Matches(list []string) []string {
	var out []string
	seen := make(map[string]bool, len(list))
	for _, phrase := range list {
		key := strings.Join(Tokenize(phrase), " ")
		if key == "" || seen[key] {
			continue
		}
		if t.Has(phrase) {
			seen[key] = true
			out = append(out, phrase)
		}
	}
	return out
}

// Occurrences sums Count over every distinct phrase of list
func (t *Text) Occurrences(list []string) int {
	total := 0
	seen := make(map[string]bool, len(list))
	for _, phrase := range list {
		key := strings.Join(Tokenize(phrase), " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		total += t.Count(phrase)
	}
	return total
}

// CategoryHits returns, per category, how many distinct keywords matched
func (t *Text) CategoryHits(categories map[string][]string) map[string]int {
	hits := make(map[string]int, len(categories))
	for name, words := range categories {
		hits[name] = len(t.Matches(words))
	}
	return hits
}

// SortedKeys returns the keys of a category table in a stable order
func SortedKeys(categories map[string][]string) []string {
	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set builds a lookup of single-word entries
func Set(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}
