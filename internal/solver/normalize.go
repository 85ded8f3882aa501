package solver

import (
	"strings"
	"unicode"
)

// fillerTokens are noise words injected into challenge text that carry no
// arithmetic meaning.
var fillerTokens = map[string]struct{}{
	"um":  {},
	"umm": {},
}

// basicPunct is the punctuation allowed to survive normalization. Everything
// else outside letters and digits is treated as decorative noise.
const basicPunct = ".,?!%+-/*'"

// Normalize strips the deliberate noise out of a challenge prompt: random
// case, decorative characters, duplicated letters and filler tokens.
// Normalizing an already-normalized string returns it unchanged.
func Normalize(raw string) string {
	lowered := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case strings.ContainsRune(basicPunct, r):
			b.WriteRune(r)
		}
	}

	collapsed := collapseRepeatedLetters(b.String())

	// Collapse whitespace and drop isolated filler tokens.
	fields := strings.Fields(collapsed)
	out := fields[:0]
	for _, f := range fields {
		if _, filler := fillerTokens[strings.Trim(f, basicPunct)]; filler {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// collapseRepeatedLetters reduces runs of the same letter to one occurrence
// ("loooobssterr" -> "lobster"). Digits are left alone so numbers like 100
// survive.
func collapseRepeatedLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
