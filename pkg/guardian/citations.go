package guardian

import (
	"regexp"
	"strings"
)

// Citation shapes recognized in completions.
var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	arxivPattern      = regexp.MustCompile(`(?i)arXiv:\d{4}\.\d{4,5}`)
	doiPattern        = regexp.MustCompile(`10\.\d{4,}/\S+`)
	paperTitlePattern = regexp.MustCompile(`"([^"]{20,})"`)
)

// vagueClaimPhrases are appeals to authority that need a concrete citation
// to back them.
var vagueClaimPhrases = []string{
	"according to research",
	"studies show",
	"experts say",
	"it has been proven",
}

// VerifyCitations checks the citations in text against a domain blocklist and
// flags vague claims made without any concrete source. It returns whether the
// citations check out and the list of findings.
func VerifyCitations(text string, blocklist []string) (bool, []string) {
	var fake []string

	urls := urlPattern.FindAllString(text, -1)
	for _, url := range urls {
		lower := strings.ToLower(url)
		for _, domain := range blocklist {
			if strings.Contains(lower, domain) {
				fake = append(fake, "Suspicious URL: "+url)
				break
			}
		}
	}

	hasCitations := len(urls) > 0 ||
		arxivPattern.MatchString(text) ||
		doiPattern.MatchString(text) ||
		paperTitlePattern.MatchString(text)
	if !hasCitations {
		lower := strings.ToLower(text)
		for _, phrase := range vagueClaimPhrases {
			if strings.Contains(lower, phrase) {
				fake = append(fake, "Vague claims without citations")
				break
			}
		}
	}

	return len(fake) == 0, fake
}
