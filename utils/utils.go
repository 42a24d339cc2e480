package utils

import (
	"fmt"
	"strings"
)

// UrlQuery makes a free-text search query safe for a URL query string
// by replacing spaces with plus signs.
func UrlQuery(s string) string {
	return strings.ReplaceAll(s, " ", "+")
}

// Str renders any value as a string, with nil becoming the empty
// string instead of "<nil>".
func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
