package intent

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// cue is a phrase of one or more tokens. When prefix is set the last token
// matches any word starting with it.
type cue struct {
	words  []string
	prefix bool
}

func parseCue(s string) cue {
	s = strings.ToLower(strings.TrimSpace(s))
	c := cue{}
	if strings.HasSuffix(s, "*") {
		c.prefix = true
		s = strings.TrimSuffix(s, "*")
	}
	c.words = strings.Fields(s)
	return c
}

func (c cue) matchAt(tokens []string, i int) bool {
	if i+len(c.words) > len(tokens) {
		return false
	}
	last := len(c.words) - 1
	for j, w := range c.words {
		tok := tokens[i+j]
		if j == last && c.prefix {
			if !strings.HasPrefix(tok, w) {
				return false
			}
			continue
		}
		if tok != w {
			return false
		}
	}
	return true
}

// CueSet matches when any of its cues occurs in the token stream.
type CueSet []cue

// Cues builds a CueSet. "hva skjer hvis" is a phrase, "frist*" a prefix.
func Cues(phrases ...string) CueSet {
	set := make(CueSet, 0, len(phrases))
	for _, p := range phrases {
		if c := parseCue(p); len(c.words) > 0 {
			set = append(set, c)
		}
	}
	return set
}

// Match reports whether any cue occurs in tokens.
func (s CueSet) Match(tokens []string) bool {
	for i := range tokens {
		for _, c := range s {
			if c.matchAt(tokens, i) {
				return true
			}
		}
	}
	return false
}
