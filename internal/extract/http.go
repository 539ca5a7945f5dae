package extract

import (
	"regexp"
	"strings"

	"github.com/tareqmamari/execintel/internal/model"
)

var (
	httpMethodURLRe = regexp.MustCompile(`(?i)\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(https?://[^\s"']+|/[\w\-./?=&%:]+)`)
	httpStatusRe    = regexp.MustCompile(`\b([45]\d{2})\b`)
)

func newHTTPExtractor() *keywordExtractor {
	return &keywordExtractor{
		name:       "http",
		signalType: model.SignalHTTPError,
		confidence: confHTTP,
		patterns: []pattern{
			pat("http-status", `(?i)\bhttp(?:/\d\.\d)?\s+(?:status\s+)?[45]\d{2}\b`),
			pat("status-code", `(?i)\bstatus(?:[ _]?code)?\s*(?:is|was|[:=])?\s*<?[45]\d{2}>?`),
			pat("response-code", `(?i)response\s*(?:code|status)?\s*\[?[45]\d{2}\]?`),
			pat("returned-error", `(?i)\b(?:returned|received|got|responded with)\s+(?:a\s+)?[45]\d{2}\b`),
			pat("reason-phrase", `(?i)\b[45]\d{2}\s+(?:internal server error|bad request|unauthorized|forbidden|not found|method not allowed|conflict|unprocessable entity|too many requests|service unavailable|bad gateway|gateway time ?out)`),
			pat("server-error", `(?i)\binternal server error\b`),
		},
		// Adapters that understand their framework's payload put the status
		// code in event metadata; honor it even when the text never says
		// "status".
		probe: func(ev *model.ExecutionEvent) (string, string, bool) {
			code := ev.Metadata[model.MetadataStatusCode]
			if len(code) == 3 && (code[0] == '4' || code[0] == '5') {
				return "structured-status", "http " + code, true
			}
			return "", "", false
		},
		capture: func(meta map[string]string, ev *model.ExecutionEvent, corpus string, hits []string) {
			if m := httpMethodURLRe.FindStringSubmatch(corpus); m != nil {
				setIfAbsent(meta, model.MetadataMethod, strings.ToUpper(m[1]))
				setIfAbsent(meta, model.MetadataURL, m[2])
			}
			if code := ev.Metadata[model.MetadataStatusCode]; code != "" {
				setIfAbsent(meta, model.MetadataStatusCode, code)
				return
			}
			// Prefer the status inside the matched text over the first
			// 4xx/5xx-looking number anywhere in the event.
			for _, hit := range hits {
				if m := httpStatusRe.FindStringSubmatch(hit); m != nil {
					setIfAbsent(meta, model.MetadataStatusCode, m[1])
					return
				}
			}
			if m := httpStatusRe.FindStringSubmatch(corpus); m != nil {
				setIfAbsent(meta, model.MetadataStatusCode, m[1])
			}
		},
	}
}
