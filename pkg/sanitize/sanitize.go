// Package sanitize normalizes raw prompt text before any security analysis
// runs. Steps are ordered so later stages see canonical text: compatibility
// normalization defeats homoglyph bypasses, escaping happens before
// whitespace collapse, truncation is last.
package sanitize

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxInputLength is the post-normalization cap, in runes. Longer inputs are
// truncated with a warning.
const MaxInputLength = 10000

var (
	nulBytes      = regexp.MustCompile(`\x00`)
	pathTraversal = regexp.MustCompile(`\.\.[/\\]`)
)

// Input sanitizes raw prompt text and reports what was changed or flagged.
// Path traversal sequences are only warned about here; blocking is the threat
// detector's call.
func Input(text string) (string, []string) {
	var warnings []string

	// 1. Compatibility normalization (NFKC)
	text = norm.NFKC.String(text)

	// 2. Strip NUL bytes
	if nulBytes.MatchString(text) {
		warnings = append(warnings, "Null bytes detected and removed")
		text = nulBytes.ReplaceAllString(text, "")
	}

	// 3. Flag path traversal sequences
	if pathTraversal.MatchString(text) {
		warnings = append(warnings, "Path traversal pattern detected")
	}

	// 4. HTML escape
	text = html.EscapeString(text)

	// 5. Collapse whitespace runs
	text = strings.Join(strings.Fields(text), " ")

	// 6. Length cap
	if runes := []rune(text); len(runes) > MaxInputLength {
		warnings = append(warnings, fmt.Sprintf("Input truncated from %d to %d characters", len(runes), MaxInputLength))
		text = string(runes[:MaxInputLength])
	}

	return text, warnings
}
