package harvest

import "unicode"

// Truncate caps s at max bytes-as-runes, preserving whole runes.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// TitleCase upper-cases the first letter of every word and lower-cases the
// rest, so "machine learning TOOLS" becomes "Machine Learning Tools".
func TitleCase(s string) string {
	runes := []rune(s)
	prevLetter := false
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if prevLetter {
				runes[i] = unicode.ToLower(r)
			} else {
				runes[i] = unicode.ToUpper(r)
			}
			prevLetter = true
			continue
		}
		prevLetter = false
	}
	return string(runes)
}
