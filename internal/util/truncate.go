package util

import (
	"fmt"
	"strings"
)

// DefaultBodyMaxLen bounds how much of a remote response body is logged or
// echoed back in error messages.
const DefaultBodyMaxLen = 1024

// Truncate shortens s to maxLen bytes, noting the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBody trims whitespace from a response body and truncates it to
// DefaultBodyMaxLen.
func TruncateBody(b []byte) string {
	return Truncate(strings.TrimSpace(string(b)), DefaultBodyMaxLen)
}

// MaskSecret keeps the last four characters of a secret for display.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
