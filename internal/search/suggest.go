package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

// DefaultSuggestions is the number of completions returned when the caller
// does not ask for a specific count.
const DefaultSuggestions = 5

// Suggest completes the last word of query with words found in titles,
// keeping the words before it as a prefix. Candidates are ranked by fuzzy
// match score against the partial word.
func Suggest(query string, titles []string, n int) []string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return []string{}
	}
	if n <= 0 {
		n = DefaultSuggestions
	}

	last := words[len(words)-1]
	prefix := strings.Join(words[:len(words)-1], " ")

	matches := fuzzy.Find(last, vocabulary(titles))
	out := make([]string, 0, min(n, len(matches)))
	for _, match := range matches {
		if len(out) == n {
			break
		}
		out = append(out, strings.TrimSpace(prefix+" "+match.Str))
	}
	return out
}

// vocabulary returns the distinct lower-cased words of titles, sorted.
func vocabulary(titles []string) []string {
	seen := make(map[string]struct{})
	for _, title := range titles {
		for _, word := range strings.Fields(title) {
			word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			}))
			if word != "" {
				seen[word] = struct{}{}
			}
		}
	}

	words := make([]string, 0, len(seen))
	for word := range seen {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}
