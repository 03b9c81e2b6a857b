package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var innerWhitespace = regexp.MustCompile(`\s\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// characters that cannot appear in file or directory names on at least
// one supported platform
const forbiddenPathRunes = `/\|":?*<>{}`

// Sanitize turns display text scraped off a page into a name that is safe
// to use as a file or directory name. Idempotent.
func Sanitize(raw string) string {
	// scraped text can arrive double-escaped, decode until stable
	s := raw
	for {
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, " \t\n")
	s = innerWhitespace.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenPathRunes, r) {
			return '_'
		}
		return r
	}, s)
	return s
}
