package matcher

import (
	"regexp"
	"strings"

	"jobmate/watch-service/internal/slug"
)

// wordBreak separates words; punctuation splits tokens even without
// surrounding spaces ("parveke,sauna").
var wordBreak = regexp.MustCompile(`[^\p{L}\p{M}\p{N}]+`)

// words slugs each word of s.
func words(s string) []string {
	var out []string
	for _, w := range wordBreak.Split(s, -1) {
		sw := slug.String(w)
		if sw == "" {
			continue
		}
		out = append(out, strings.Split(sw, "-")...)
	}
	return out
}

// tokenize splits text into slug tokens.
func tokenize(parts []string) []string {
	var tokens []string
	for _, p := range parts {
		tokens = append(tokens, words(p)...)
	}
	return tokens
}

// matchWords reports whether any term matches the tokens of text.
func matchWords(text []string, terms []string) bool {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	for _, term := range terms {
		if matchTerm(tokens, term) {
			return true
		}
	}
	return false
}

func matchTerm(tokens []string, term string) bool {
	prefix, wildcard := strings.CutSuffix(term, Wildcard)
	want := words(prefix)
	if len(want) == 0 {
		return false
	}
	// Multi-token terms ("etelä-suomi") must appear as a consecutive run;
	// the wildcard applies to the last token only.
	for i := 0; i+len(want) <= len(tokens); i++ {
		if phraseAt(tokens[i:i+len(want)], want, wildcard) {
			return true
		}
	}
	return false
}

func phraseAt(window, want []string, wildcard bool) bool {
	last := len(want) - 1
	for j, w := range want {
		if j == last && wildcard {
			if !strings.HasPrefix(window[j], w) {
				return false
			}
			continue
		}
		if window[j] != w {
			return false
		}
	}
	return true
}
