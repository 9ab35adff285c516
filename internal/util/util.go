package util

import "strings"

// TruncateString shortens s to at most maxLen runes, ending in "..." when
// cut. With preserveWords the cut moves back to the last whitespace.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBefore(runes, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

// PrefixRunes returns the first n runes of s without any marker.
func PrefixRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Plural picks singular or plural by count.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func lastSpaceBefore(runes []rune, pos int) int {
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
