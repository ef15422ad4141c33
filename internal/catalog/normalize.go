package catalog

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases, and collapses internal whitespace.
// Program names are stored and matched in this form.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeCode upper-cases and trims a course code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncateChars returns at most n runes of text.
func TruncateChars(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// NormalizeSemester maps free-text teaching periods to the stored labels.
// Both autumn and spring yields "Hele året"; block periods win over plain
// semesters in the order August, Juni, Januar. Returns "" when nothing matches.
func NormalizeSemester(value string) string {
	v := strings.ToLower(value)
	if v == "" {
		return ""
	}

	hasAutumn := strings.Contains(v, "høst")
	hasSpring := strings.Contains(v, "vår")
	if hasAutumn && hasSpring {
		return "Hele året"
	}

	for _, p := range []struct{ needle, label string }{
		{"august", "August"},
		{"juni", "Juni"},
		{"januar", "Januar"},
	} {
		if strings.Contains(v, p.needle) {
			return p.label
		}
	}
	if hasAutumn {
		return "Høst"
	}
	if hasSpring {
		return "Vår"
	}
	return ""
}
