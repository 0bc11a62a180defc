package helpers

import (
	"net/url"
	"strings"
)

// QueryValue returns the first value of key in q, or def when the key is absent or empty
func QueryValue(q url.Values, key, def string) string {
	v := q.Get(key)
	if v == "" {
		return def
	}
	return v
}

// DecodePlus turns '+' separators left in an already-decoded value into spaces
func DecodePlus(s string) string {
	return strings.ReplaceAll(s, "+", " ")
}

// LastNonBlankLine returns the last line of s that is not blank, trimmed
func LastNonBlankLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
