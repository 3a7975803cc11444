// Package models defines the shared request/response envelopes and the
// pipeline state record carried through Gateway, Sentinel, and Guardian.
package models

// ModerationMode selects the action table applied to detected content
// categories on the output side.
type ModerationMode string

const (
	ModerationStrict   ModerationMode = "strict"
	ModerationModerate ModerationMode = "moderate"
	ModerationRelaxed  ModerationMode = "relaxed"
	ModerationRaw      ModerationMode = "raw"
)

// Valid reports whether m is a recognized moderation mode.
func (m ModerationMode) Valid() bool {
	switch m {
	case ModerationStrict, ModerationModerate, ModerationRelaxed, ModerationRaw:
		return true
	}
	return false
}

// OutputFormat selects the wire shape of the completion returned to the caller.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatToon OutputFormat = "toon"
)

// Valid reports whether f is a recognized output format.
func (f OutputFormat) Valid() bool {
	return f == FormatJSON || f == FormatToon
}

// BrandTone names the tone a completion is checked against when tone
// checking is enabled.
type BrandTone string

const (
	ToneProfessional BrandTone = "professional"
	ToneCasual       BrandTone = "casual"
	ToneTechnical    BrandTone = "technical"
	ToneFriendly     BrandTone = "friendly"
)

// Valid reports whether t is a recognized brand tone.
func (t BrandTone) Valid() bool {
	switch t {
	case ToneProfessional, ToneCasual, ToneTechnical, ToneFriendly:
		return true
	}
	return false
}

// DefaultToxicityThreshold is applied when a request does not set one.
const DefaultToxicityThreshold = 0.7

// Settings is the per-request policy bundle. Every pipeline step is gated by
// its flag here; zero value disables everything.
type Settings struct {
	SanitizeInput      bool `json:"sanitize_input"`
	PIIMasking         bool `json:"pii_masking"`
	DetectThreats      bool `json:"detect_threats"`
	ToonMode           bool `json:"toon_mode"`
	ContentFilter      bool `json:"content_filter"`
	HallucinationCheck bool `json:"hallucination_check"`
	CitationCheck      bool `json:"citation_check"`
	ToneCheck          bool `json:"tone_check"`
	AutoDisclaimers    bool `json:"auto_disclaimers"`
	FalseRefusalCheck  bool `json:"false_refusal_check"`

	// BrandTone is required when ToneCheck is set.
	BrandTone BrandTone `json:"brand_tone,omitempty"`

	// ToxicityThreshold in [0,1]; 0 means "use default".
	ToxicityThreshold float64 `json:"toxicity_threshold,omitempty"`
}

// EffectiveToxicityThreshold resolves the configured threshold, falling back
// to the default when unset.
func (s Settings) EffectiveToxicityThreshold() float64 {
	if s.ToxicityThreshold <= 0 {
		return DefaultToxicityThreshold
	}
	return s.ToxicityThreshold
}
