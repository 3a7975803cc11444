package guardian

import "regexp"

// refusalPatterns match canned model refusals. Truly harmful requests are
// blocked upstream before generation, so a refusal here is a suspected false
// refusal of a legitimate request.
var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I (cannot|can't|am unable to|won't)`),
	regexp.MustCompile(`(?i)I (don't|do not) have (access|the ability)`),
	regexp.MustCompile(`(?i)(Sorry|Apologies),? (I|but I) (cannot|can't)`),
	regexp.MustCompile(`(?i)I'm not (able|allowed|permitted)`),
	regexp.MustCompile(`(?i)as an AI`),
	regexp.MustCompile(`(?i)I don't actually (have|know|provide)`),
}

// DetectRefusal reports whether text contains a canned refusal phrase.
func DetectRefusal(text string) bool {
	for _, pattern := range refusalPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
