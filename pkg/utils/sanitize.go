package utils

import (
	"regexp"
	"strings"
)

var invalidSegmentChars = regexp.MustCompile(`[^a-z0-9._-]+`) // Anything outside a clean URL path segment
var consecutiveHyphens = regexp.MustCompile(`-{2,}`)
const maxSegmentLength = 100

// SanitizeRouteSegment turns a file or directory name into a URL path segment:
// lowercase, spaces and unsafe characters become hyphens.
func SanitizeRouteSegment(name string) string {
	sanitized := invalidSegmentChars.ReplaceAllString(strings.ToLower(name), "-")
	sanitized = consecutiveHyphens.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	if len(sanitized) > maxSegmentLength {
		sanitized = strings.Trim(sanitized[:maxSegmentLength], "-.")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}
