// Package sanitize strips markup from user-supplied text and validates
// email addresses before anything reaches the record store.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	tagLike     = regexp.MustCompile(`<[^>]*>`)
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// String removes script blocks and any remaining tag-like substrings, trims
// surrounding whitespace and truncates the result to maxLength runes.
func String(input string, maxLength int) string {
	out := scriptBlock.ReplaceAllString(input, "")
	out = tagLike.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	if maxLength > 0 && utf8.RuneCountInString(out) > maxLength {
		out = strings.TrimSpace(string([]rune(out)[:maxLength]))
	}
	return out
}

// Value is String for loosely typed input. Anything that is not a string
// yields "".
func Value(v any, maxLength int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return String(s, maxLength)
}

// Email reports whether value looks like an email address.
func Email(value string) bool {
	return emailRegexp.MatchString(value)
}
