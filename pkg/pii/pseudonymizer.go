package pii

import (
	"fmt"
	"log/slog"
	"strings"
)

// Mapping pairs an allocated token with the literal it replaced.
type Mapping struct {
	Token   string
	Literal string
}

// Map records token→literal substitutions in allocation order. Restoration
// must apply mappings in this order to be the exact inverse of
// pseudonymization.
type Map []Mapping

// Lookup returns the literal recorded for token.
func (m Map) Lookup(token string) (string, bool) {
	for _, e := range m {
		if e.Token == token {
			return e.Literal, true
		}
	}
	return "", false
}

// Pseudonymizer replaces PII literals with opaque tokens within a single
// request. Each distinct literal gets exactly one token, numbered per type
// starting at 1, so repeated literals map to the same token. Not safe for
// concurrent use; allocate one per request.
type Pseudonymizer struct {
	counters  map[string]int
	byLiteral map[string]string
	mapping   Map
}

// NewPseudonymizer returns an empty pseudonymizer.
func NewPseudonymizer() *Pseudonymizer {
	return &Pseudonymizer{
		counters:  make(map[string]int),
		byLiteral: make(map[string]string),
	}
}

// Process substitutes tokens for every PII literal in text and reports what
// was found. Sensitive keywords are detected without modifying the text.
func (p *Pseudonymizer) Process(text string) (string, []Detection) {
	var detections []Detection

	// Keyword scan runs against the original text, not the substituted one,
	// so allocated tokens (e.g. [API_KEY_1]) cannot trigger it.
	lower := strings.ToLower(text)

	for _, spec := range patterns {
		count := 0
		text = spec.re.ReplaceAllStringFunc(text, func(literal string) string {
			count++
			return p.tokenFor(spec.piiType, literal)
		})
		if count > 0 {
			detections = append(detections, Detection{Type: spec.piiType, Count: count})
		}
	}

	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			detections = append(detections, Detection{Type: TypeSensitiveKeyword, Keyword: kw})
		}
	}

	if len(detections) > 0 {
		// Types and counts only; literals and tokens never reach the log.
		summary := make([]string, 0, len(detections))
		for _, d := range detections {
			if d.Type == TypeSensitiveKeyword {
				summary = append(summary, TypeSensitiveKeyword)
				continue
			}
			summary = append(summary, fmt.Sprintf("%s:%d", d.Type, d.Count))
		}
		slog.Info("PII pseudonymized", "detections", strings.Join(summary, ","))
	}

	return text, detections
}

// tokenFor returns the stable token for literal, allocating one on first
// sight.
func (p *Pseudonymizer) tokenFor(piiType, literal string) string {
	if tok, ok := p.byLiteral[literal]; ok {
		return tok
	}
	p.counters[piiType]++
	tok := fmt.Sprintf("[%s_%d]", piiType, p.counters[piiType])
	p.byLiteral[literal] = tok
	p.mapping = append(p.mapping, Mapping{Token: tok, Literal: literal})
	return tok
}

// Map returns the substitutions made so far, in allocation order.
func (p *Pseudonymizer) Map() Map {
	return p.mapping
}

// Restore replaces every token recorded in m with its original literal,
// applying mappings in allocation order. This is the only sanctioned path
// from token back to literal.
func Restore(text string, m Map) string {
	for _, e := range m {
		text = strings.ReplaceAll(text, e.Token, e.Literal)
	}
	return text
}
