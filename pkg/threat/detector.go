// Package threat implements pattern-based detection of injection attacks in
// prompt text. Detection is pure CPU work with no I/O; misses are reported as
// absent findings, never as errors.
package threat

import (
	"regexp"
)

// Type identifies a threat category.
type Type string

const (
	TypeSQLInjection     Type = "sql_injection"
	TypeXSS              Type = "xss"
	TypeCommandInjection Type = "command_injection"
	TypePathTraversal    Type = "path_traversal"
)

// Report is the finding of a single detector run.
type Report struct {
	Type       Type     `json:"threat_type"`
	Confidence float64  `json:"confidence"`
	Matches    []string `json:"matches"`
}

// reportMatchLimit caps how many raw matches a report retains.
const reportMatchLimit = 5

// BlockThreshold is the confidence at or above which a detected threat blocks
// the request.
const BlockThreshold = 0.7

type detector struct {
	threatType Type
	perMatch   float64
	patterns   []*regexp.Regexp
}

// confidence scales with match count: every hit adds perMatch, capped at 1.
func (d detector) run(text string) (Report, bool) {
	var matches []string
	for _, re := range d.patterns {
		matches = append(matches, re.FindAllString(text, -1)...)
	}
	if len(matches) == 0 {
		return Report{}, false
	}

	conf := float64(len(matches)) * d.perMatch
	if conf > 1.0 {
		conf = 1.0
	}
	kept := matches
	if len(kept) > reportMatchLimit {
		kept = kept[:reportMatchLimit]
	}
	return Report{Type: d.threatType, Confidence: conf, Matches: kept}, true
}

var detectors = []detector{
	{
		threatType: TypeSQLInjection,
		perMatch:   0.3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bunion\b.*\bselect\b`),
			regexp.MustCompile(`(?i)\bselect\b.*\bfrom\b`),
			regexp.MustCompile(`(?i)\binsert\b.*\binto\b`),
			regexp.MustCompile(`(?i)\bupdate\b.*\bset\b`),
			regexp.MustCompile(`(?i)\bdelete\b.*\bfrom\b`),
			regexp.MustCompile(`(?i)\bdrop\b.*\btable\b`),
			regexp.MustCompile(`(?i)\bexec\b.*\(`),
			regexp.MustCompile(`(?i)\bexecute\b.*\(`),
			regexp.MustCompile(`--|#|/\*`),
			regexp.MustCompile(`(?i)\bor\b.*=`),
			regexp.MustCompile(`(?i)\band\b.*=`),
			regexp.MustCompile(`(?i)'.*\bor\b.*'.*=.*'`),
			regexp.MustCompile(`1\s*=\s*1`),
			regexp.MustCompile(`(?i)sleep\(|benchmark\(|waitfor\s+delay`),
		},
	},
	{
		threatType: TypeXSS,
		perMatch:   0.3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>`),
			regexp.MustCompile(`(?i)</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)on\w+\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
			regexp.MustCompile(`(?i)<img[^>]*src`),
			regexp.MustCompile(`(?i)eval\s*\(`),
			regexp.MustCompile(`(?i)expression\s*\(`),
			regexp.MustCompile(`(?i)vbscript:`),
			regexp.MustCompile(`(?i)data:text/html`),
		},
	},
	{
		threatType: TypeCommandInjection,
		perMatch:   0.3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile("[;&|`$]"),
			regexp.MustCompile(`\$\(.*\)`),
			regexp.MustCompile("`.*`"),
			regexp.MustCompile(`&&|\|\|`),
			regexp.MustCompile(`>\s*/|<\s*/`),
			regexp.MustCompile(`(?i)\bcat\b|\bls\b|\bwhoami\b|\bpwd\b`),
			regexp.MustCompile(`(?i)\bcurl\b|\bwget\b|\bnc\b|\bnetcat\b`),
			regexp.MustCompile(`(?i)\bchmod\b|\bchown\b|\brm\b`),
		},
	},
	{
		threatType: TypePathTraversal,
		perMatch:   0.4,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\.\./`),
			regexp.MustCompile(`\.\.\\`),
			regexp.MustCompile(`(?i)%2e%2e%2f`),
			regexp.MustCompile(`(?i)%2e%2e/`),
			regexp.MustCompile(`(?i)\.\.%2f`),
		},
	},
}

// DetectAll runs every detector over text and returns one report per detected
// threat category, in fixed catalog order.
func DetectAll(text string) []Report {
	var reports []Report
	for _, d := range detectors {
		if r, ok := d.run(text); ok {
			reports = append(reports, r)
		}
	}
	return reports
}

// MaxConfidence returns the highest confidence among reports, or 0.
func MaxConfidence(reports []Report) float64 {
	max := 0.0
	for _, r := range reports {
		if r.Confidence > max {
			max = r.Confidence
		}
	}
	return max
}
