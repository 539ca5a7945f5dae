// Package security masks secrets in text headed for reports. Log lines
// and source snippets routinely leak tokens and connection strings;
// everything surfaced as evidence passes through here first.
package security

import (
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

// SensitivePatterns match secret material in free-form text. Each
// pattern keeps the key name (group 1) and redacts the value.
var SensitivePatterns = []*regexp.Regexp{
	// api_key=..., apikey: "..."
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)[=:]\s*["']?([a-zA-Z0-9_-]{16,})["']?`),
	// Authorization: Bearer ...
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{16,})`),
	// password=..., pwd: '...', including connection strings
	regexp.MustCompile(`(?i)(password|passwd|pwd)[=:]\s*["']?([^"'\s&;]+)["']?`),
	// secret=..., token: ...
	regexp.MustCompile(`(?i)(secret|token)[=:]\s*["']?([a-zA-Z0-9_.-]{16,})["']?`),
	// user:password@host in URLs
	regexp.MustCompile(`(://[^/:@\s]+:)([^@\s]+)(@)`),
	// bare long hex strings (session ids, digests used as keys)
	regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`),
}

// MaskSensitiveData redacts secret values while keeping the key names,
// so evidence stays readable.
func MaskSensitiveData(data string) string {
	result := data
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			switch len(parts) {
			case 4: // url credentials: keep scheme and @host
				return parts[1] + redacted + parts[3]
			case 3:
				return parts[1] + redacted
			default:
				return redacted
			}
		})
	}
	return result
}

// SanitizeEvidence masks each evidence line in place and returns the slice.
func SanitizeEvidence(evidence []string) []string {
	for i, line := range evidence {
		evidence[i] = MaskSensitiveData(line)
	}
	return evidence
}

// SanitizeSnippet masks a multi-line code snippet line by line, so the
// masking cannot join text across line boundaries.
func SanitizeSnippet(snippet string) string {
	if snippet == "" {
		return ""
	}
	lines := strings.Split(snippet, "\n")
	for i, line := range lines {
		lines[i] = MaskSensitiveData(line)
	}
	return strings.Join(lines, "\n")
}

// MaskAPIKey shows only the first and last 4 characters of a key.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}

// SanitizeError masks secret material in an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}
