package registry

import (
	"strconv"
	"unicode"
)

// NaturalLess orders identifiers treating embedded numeric substrings as
// integers, so "ch2" sorts before "ch10".
func NaturalLess(a, b string) bool {
	at, bt := tokenize(a), tokenize(b)
	for i := 0; i < len(at) && i < len(bt); i++ {
		x, y := at[i], bt[i]
		if x == y {
			continue
		}
		xi, xErr := strconv.Atoi(x)
		yi, yErr := strconv.Atoi(y)
		if xErr == nil && yErr == nil {
			return xi < yi
		}
		return x < y
	}
	return len(at) < len(bt)
}

// tokenize splits an identifier into alternating non-digit and digit runs.
func tokenize(s string) []string {
	var tokens []string
	start := 0
	digit := false
	for i, r := range s {
		d := unicode.IsDigit(r)
		if i == 0 {
			digit = d
			continue
		}
		if d != digit {
			tokens = append(tokens, s[start:i])
			start = i
			digit = d
		}
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}
