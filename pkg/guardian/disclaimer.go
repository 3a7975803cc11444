package guardian

import "strings"

// Advice categories that trigger a disclaimer.
const (
	AdviceMedical   = "medical"
	AdviceFinancial = "financial"
	AdviceLegal     = "legal"
)

// adviceKeywordThreshold is how many lexicon hits a category needs before its
// disclaimer is appended.
const adviceKeywordThreshold = 2

// adviceLexicons are checked in priority order: medical wins over financial
// wins over legal.
var adviceLexicons = []struct {
	category string
	keywords []string
}{
	{AdviceMedical, []string{
		"diagnos", "treatment", "medication", "symptom", "disease",
		"prescription", "medical", "health", "doctor", "therapy",
		"cure", "condition", "illness",
	}},
	{AdviceFinancial, []string{
		"invest", "stock", "trading", "financial advice", "portfolio",
		"tax", "return on investment", "roi", "dividend", "crypto",
		"bitcoin", "retirement", "savings",
	}},
	{AdviceLegal, []string{
		"legal", "lawsuit", "contract", "attorney", "law",
		"court", "regulation", "compliance", "liability", "rights",
	}},
}

var disclaimers = map[string]string{
	AdviceMedical:   "\n\n⚠️ **Medical Disclaimer**: This information is for educational purposes only and is not medical advice. Please consult a licensed healthcare professional for medical concerns.",
	AdviceFinancial: "\n\n⚠️ **Financial Disclaimer**: This is not financial advice. Consult a certified financial advisor before making investment decisions.",
	AdviceLegal:     "\n\n⚠️ **Legal Disclaimer**: This is not legal advice. Consult a qualified attorney for legal matters.",
}

// DetectAdviceType returns the advice category of text, or "" when no lexicon
// reaches the keyword threshold. Matching is case-insensitive substring
// matching, so "diagnos" covers diagnose, diagnosis and diagnostic.
func DetectAdviceType(text string) string {
	lower := strings.ToLower(text)
	for _, lexicon := range adviceLexicons {
		hits := 0
		for _, keyword := range lexicon.keywords {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		if hits >= adviceKeywordThreshold {
			return lexicon.category
		}
	}
	return ""
}

// InjectDisclaimer appends the category's disclaimer to text. Unknown
// categories append nothing.
func InjectDisclaimer(text, category string) string {
	return text + disclaimers[category]
}
