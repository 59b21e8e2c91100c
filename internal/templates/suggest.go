package templates

import (
	"sort"
	"strings"
	"unicode"
)

const (
	baseMatch    = 40
	keywordScore = 12
	maxMatch     = 98
)

// Suggestion is a library template scored against a use case.
type Suggestion struct {
	Info
	Match int `json:"match"`
}

// Suggest scores every library template by keyword overlap with the use case,
// current tools and goals. Results are sorted by match, best first; equal
// scores keep catalog order.
func Suggest(useCase string, currentTools, goals []string) []Suggestion {
	words := map[string]bool{}
	for _, text := range append([]string{useCase}, append(currentTools, goals...)...) {
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			words[w] = true
		}
	}

	out := make([]Suggestion, 0, len(catalog))
	for _, info := range catalog {
		match := baseMatch
		for _, k := range info.Keywords {
			if words[k] {
				match += keywordScore
			}
		}
		if match > maxMatch {
			match = maxMatch
		}
		out = append(out, Suggestion{Info: info, Match: match})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Match > out[j].Match })
	return out
}
