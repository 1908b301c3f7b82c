package utils

import (
	"net/url"
	"strings"
	"unicode"
	"unsafe"
)

func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// NormalizeQuery lowercases the query and collapses every whitespace run into one space.
func NormalizeQuery(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), unicode.IsSpace)
	return strings.Join(fields, " ")
}

// Hostname returns the host of rawURL without a leading "www.", or "" when it cannot be parsed.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
