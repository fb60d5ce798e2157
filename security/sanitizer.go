package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = bluemonday.StrictPolicy()
	nameRegex  = regexp.MustCompile(`^[\p{L}\p{N} _\-.!?']+$`)
)

// TruncateText drops NUL bytes and cuts input to maxRunes. Markup is kept.
func TruncateText(input string, maxRunes int) string {
	input = strings.ReplaceAll(input, "\x00", "")
	if maxRunes > 0 && utf8.RuneCountInString(input) > maxRunes {
		input = string([]rune(input)[:maxRunes])
	}
	return input
}

// RenderText strips markup from contestant-supplied text and escapes the rest
// for insertion into an HTML page.
func RenderText(input string) string {
	return htmlPolicy.Sanitize(input)
}

// ValidName checks a contestant display name: 2 to 16 characters of letters,
// digits, spaces and a little punctuation.
func ValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 2 && n <= 16 && nameRegex.MatchString(name)
}
