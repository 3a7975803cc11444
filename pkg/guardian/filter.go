package guardian

import (
	"regexp"

	"github.com/clestiq/clestiq/pkg/models"
)

// filterAction is what the moderation mode does with a detected category.
type filterAction string

const (
	actionBlock filterAction = "block"
	actionWarn  filterAction = "warn"
	actionAllow filterAction = "allow"
)

// categorySpec binds a content category to its pattern set and the confidence
// assigned to any hit.
type categorySpec struct {
	name       string
	confidence float64
	patterns   []*regexp.Regexp
}

// contentCategories is the fixed classification catalog. Order matters:
// block and warn reasons list categories in this order.
var contentCategories = []categorySpec{
	{
		name:       "harmful",
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(kill|murder|harm|hurt)\s+(yourself|someone|people)\b`),
			regexp.MustCompile(`(?i)\b(make|create|build)\s+(bomb|weapon|explosive)\b`),
			regexp.MustCompile(`(?i)\b(how\s+to|instructions\s+for)\s+(hack|steal|break\s+into)\b`),
		},
	},
	{
		name:       "inappropriate",
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(explicit|adult|nsfw)\b`),
			regexp.MustCompile(`(?i)profanity|obscene|vulgar`),
		},
	},
	{
		name:       "sensitive",
		confidence: 0.6,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(political|religious|controversial)\b`),
			regexp.MustCompile(`(?i)\b(suicide|self-harm|depression)\b`),
		},
	},
}

// moderationRules maps each mode to its per-category action table.
var moderationRules = map[models.ModerationMode]map[string]filterAction{
	models.ModerationStrict: {
		"harmful": actionBlock, "inappropriate": actionBlock, "sensitive": actionBlock,
	},
	models.ModerationModerate: {
		"harmful": actionBlock, "inappropriate": actionWarn, "sensitive": actionAllow,
	},
	models.ModerationRelaxed: {
		"harmful": actionBlock, "inappropriate": actionAllow, "sensitive": actionAllow,
	},
	models.ModerationRaw: {
		"harmful": actionAllow, "inappropriate": actionAllow, "sensitive": actionAllow,
	},
}

// rulesFor returns the action table for mode, falling back to moderate for
// anything unrecognized.
func rulesFor(mode models.ModerationMode) map[string]filterAction {
	if rules, ok := moderationRules[mode]; ok {
		return rules
	}
	return moderationRules[models.ModerationModerate]
}

// categoryHit is one detected category with its fixed confidence.
type categoryHit struct {
	category   string
	confidence float64
}

// classify runs the pattern catalog over text and returns the detected
// categories in catalog order.
func classify(text string) []categoryHit {
	var hits []categoryHit
	for _, spec := range contentCategories {
		for _, pattern := range spec.patterns {
			if pattern.MatchString(text) {
				hits = append(hits, categoryHit{category: spec.name, confidence: spec.confidence})
				break
			}
		}
	}
	return hits
}

// filterOutcome is the content filter verdict before any toxicity scoring.
type filterOutcome struct {
	// Filtered is set when anything was blocked or flagged.
	Filtered bool
	// Warnings lists categories the mode flags for review.
	Warnings []string
	// Blocked is set when the mode blocks a detected category.
	Blocked bool
	// Issues are the block reason segments, joined with "; " by the caller.
	Issues []string
	// MaxConfidence is the highest pattern confidence among hits, 0 when
	// nothing matched. It doubles as the toxicity score when no judge runs.
	MaxConfidence float64
}

// filterContent classifies text and crosses the result with the moderation
// mode's action table. Empty text and raw mode always pass.
func filterContent(text string, mode models.ModerationMode) filterOutcome {
	var out filterOutcome
	if text == "" || mode == models.ModerationRaw {
		return out
	}

	rules := rulesFor(mode)
	for _, hit := range classify(text) {
		if hit.confidence > out.MaxConfidence {
			out.MaxConfidence = hit.confidence
		}
		switch rules[hit.category] {
		case actionBlock:
			out.Blocked = true
			out.Issues = append(out.Issues, hit.category+": blocked")
		case actionWarn:
			out.Warnings = append(out.Warnings, hit.category+": flagged for review")
		}
	}
	out.Filtered = out.Blocked || len(out.Warnings) > 0
	return out
}
