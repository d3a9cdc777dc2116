// Package slug canonicalizes free-text attribute values into comparable
// slugs. Slugs are only compared, never displayed.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// foldTable maps accented Latin letters (already lowercased) to their
// ASCII base. Letters outside the table lose their combining marks through
// NFD decomposition instead.
var foldTable = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a", 'æ': "ae",
	'ç': "c",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ð': "d", 'ñ': "n",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
	'þ': "th", 'ß': "ss",
	'š': "s", 'ž': "z",
}

// Normalize converts v to its slug. Strings are used as-is; numbers and
// booleans are first rendered in canonical form. Any other type yields "".
func Normalize(v any) string {
	s, ok := text(v)
	if !ok {
		return ""
	}
	return String(s)
}

// String slugifies s.
func String(s string) string {
	s = cases.Lower(language.Und).String(s)
	s = fold(s)
	s = stripMarks(s)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Equal reports whether a and b normalize to the same slug.
func Equal(a, b any) bool {
	return Normalize(a) == Normalize(b)
}

func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := foldTable[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case interface{ Text() (string, bool) }:
		return t.Text()
	}
	return "", false
}
