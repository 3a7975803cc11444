package pii

import (
	"fmt"
	"log/slog"
)

// ScanOutput checks a completion for PII leaks. High-severity findings (SSN,
// credit card, API key) are redacted in place with [<TYPE>_REDACTED] markers;
// medium and low findings are reported but left intact. Returns the possibly
// redacted text, the leak report, and whether any redaction happened.
func ScanOutput(text string) (string, []Leak, bool) {
	if text == "" {
		return text, nil, false
	}

	var leaks []Leak
	redacted := false

	for _, spec := range patterns {
		matches := spec.re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		leaks = append(leaks, Leak{
			Type:     spec.piiType,
			Count:    len(matches),
			Severity: spec.severity,
		})
		if spec.severity == SeverityHigh {
			text = spec.re.ReplaceAllString(text, fmt.Sprintf("[%s_REDACTED]", spec.piiType))
			redacted = true
		}
	}

	if len(leaks) > 0 {
		slog.Warn("PII leak in completion", "leaks", len(leaks), "redacted", redacted)
	}

	return text, leaks, redacted
}
