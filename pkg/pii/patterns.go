// Package pii implements detection, reversible pseudonymization, and output
// scanning of personally identifiable information.
//
// Input side: literals are replaced by opaque tokens of the form [<TYPE>_<n>]
// and the token→literal mapping is retained so the caller-visible response can
// be restored after validation. Output side: completions are scanned with the
// same patterns and high-severity findings are redacted in place.
//
// Logging rule: neither PII literals nor allocated tokens are ever logged.
// Only the detection type and count may appear in logs.
package pii

import "regexp"

// Severity classifies how damaging a leaked PII type is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Detection type names. These appear in detection reports and inside
// pseudonymization tokens.
const (
	TypeSSN              = "SSN"
	TypeCreditCard       = "CREDIT_CARD"
	TypeEmail            = "EMAIL"
	TypePhone            = "PHONE"
	TypeAPIKey           = "API_KEY"
	TypeIPAddress        = "IP_ADDRESS"
	TypeSensitiveKeyword = "SENSITIVE_KEYWORD"
)

// patternSpec binds a PII type to its compiled pattern and severity.
type patternSpec struct {
	piiType  string
	severity Severity
	re       *regexp.Regexp
}

// patterns is the fixed detection catalog, in substitution order. Order
// matters: credit cards must be tokenized before the phone pattern can see
// their digit groups, and emails before the key pattern can see long local
// parts.
var patterns = []patternSpec{
	{TypeSSN, SeverityHigh, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{TypeCreditCard, SeverityHigh, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{TypeEmail, SeverityMedium, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{TypePhone, SeverityMedium, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{TypeAPIKey, SeverityHigh, regexp.MustCompile(`\b[A-Za-z0-9_-]{32,}\b`)},
	{TypeIPAddress, SeverityLow, regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// sensitiveKeywords are flagged without modifying the text. A keyword hit
// signals the caller may be handing credentials to the model; it is reported,
// never substituted.
var sensitiveKeywords = []string{
	"password", "secret", "api_key", "token", "private_key", "credential",
}

// Detection reports one PII finding on the input side.
type Detection struct {
	Type    string `json:"type"`
	Count   int    `json:"count,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// Leak reports one PII finding in a completion.
type Leak struct {
	Type     string   `json:"type"`
	Count    int      `json:"count,omitempty"`
	Severity Severity `json:"severity"`
}
