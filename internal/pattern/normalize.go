// Package pattern normalizes failure messages into stable signatures and
// tracks their occurrence counts across runs.
package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"

	"github.com/tareqmamari/execintel/internal/model"
)

// substitution rewrites one class of volatile token into its placeholder.
// Order matters: earlier classes must not be shadowed by later, greedier
// ones (URLs before paths, UUIDs before bare hex, timestamps before bare
// numbers).
type substitution struct {
	re          *regexp.Regexp
	placeholder string
}

var substitutions = []substitution{
	{regexp.MustCompile(`https?://[^\s"']+`), "<URL>"},
	{regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "<UUID>"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:z|[+-]\d{2}:?\d{2})?\b`), "<TS>"},
	{regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(?:[.,]\d+)?\b`), "<TS>"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "<TS>"},
	{regexp.MustCompile(`\b0x[0-9a-f]+\b`), "<ADDR>"},
	{regexp.MustCompile(`"[^"]*"`), "<STR>"},
	{regexp.MustCompile(`'[^']*'`), "<STR>"},
	{regexp.MustCompile(`\b[a-z]:\\[^\s:"']+`), "<PATH>"},
	{regexp.MustCompile(`(?:/[\w.\-]+){2,}/?`), "<PATH>"},
	{regexp.MustCompile(`\b[\w.\-]+(?:/[\w.\-]+)+\.[a-z0-9]{1,5}\b`), "<PATH>"},
	{regexp.MustCompile(`\b[0-9a-f]{8,}\b`), "<NUM>"},
	// No trailing \b so numbers glued to unit suffixes ("30000ms") collapse too.
	{regexp.MustCompile(`\b\d+(?:\.\d+)?`), "<NUM>"},
}

// noisePrefixes are framework decorations stripped from the start of each
// line before hashing, so the same failure hashes identically whether it
// came from a pytest "E " block, a bracketed level tag, or a robot row.
var noisePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^\[(?:error|warn|warning|info|debug|fatal|fail|failed)\]\s*`),
	regexp.MustCompile(`^(?:error|fail|failed|fatal|warning)\s*:\s*`),
	regexp.MustCompile(`^e\s+`),
	regexp.MustCompile(`^\|\s*(?:fail|error)\s*\|\s*`),
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize converts a failure message into its stable form: lowercased,
// volatile tokens replaced with placeholders, noise prefixes stripped, and
// whitespace collapsed. The result is deterministic for any input.
func Normalize(message string) string {
	lowered := strings.ToLower(message)

	lines := strings.Split(lowered, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		for _, re := range noisePrefixes {
			line = re.ReplaceAllString(line, "")
		}
		lines[i] = line
	}
	normalized := strings.Join(lines, " ")

	for _, sub := range substitutions {
		normalized = sub.re.ReplaceAllString(normalized, sub.placeholder)
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(normalized, " "))
}

// Hash returns the deduplication key for a signal: the first 16 hex chars
// of SHA-256 over the signal type and the normalized message.
func Hash(signalType model.SignalType, normalizedMessage string) string {
	sum := sha256.Sum256([]byte(string(signalType) + "|" + normalizedMessage))
	return hex.EncodeToString(sum[:])[:16]
}

// HashMessage normalizes and hashes in one step.
func HashMessage(signalType model.SignalType, message string) (hash, normalized string) {
	normalized = Normalize(message)
	return Hash(signalType, normalized), normalized
}

// Boost converts an occurrence count into the frequency confidence boost:
// 0.15 * log(1+n)/log(1+nCap), clamped to [0, 0.15]. Diminishing returns,
// reaching the cap exactly at n = nCap.
func Boost(n int64, nCap int) float64 {
	if n <= 0 || nCap < 1 {
		return 0
	}
	boost := 0.15 * math.Log(1+float64(n)) / math.Log(1+float64(nCap))
	if boost > 0.15 {
		return 0.15
	}
	if boost < 0 {
		return 0
	}
	return boost
}
