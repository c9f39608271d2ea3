package util

import "strings"

// SafeTruncate truncates s to maxLen bytes without panicking. It is used to
// log a recognisable prefix of tokens and codes.
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                  // "short"
//	SafeTruncate("test", -1)                   // ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// SplitList splits s on sep, trims whitespace around every element and drops
// empty ones. An empty s yields nil.
func SplitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinList is the inverse of SplitList for non-empty elements.
func JoinList(items []string, sep string) string {
	return strings.Join(items, sep)
}

// JoinPath joins a base path and a route name with exactly one slash:
//
//	JoinPath("/oauth2/", "authorize") // "/oauth2/authorize"
//	JoinPath("", "info")              // "/info"
func JoinPath(base, name string) string {
	base = strings.TrimRight(base, "/")
	name = strings.TrimLeft(name, "/")
	return base + "/" + name
}
