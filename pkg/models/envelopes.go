package models

import "github.com/clestiq/clestiq/pkg/pii"

// Wire envelopes shared by the three services. Field names are part of the
// HTTP contract between Gateway, Sentinel and Guardian; renaming them breaks
// callers.

// ChatRequest is the body of POST /chat, both on the public Gateway surface
// and on the internal Gateway to Sentinel hop. ClientIP and UserAgent are
// overwritten by the Gateway before forwarding, so callers cannot spoof
// them. Settings is a pointer so the Gateway can tell "not provided" from
// "all flags off" and fill in the deployment defaults.
type ChatRequest struct {
	Query           string         `json:"query" binding:"required"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	Model           string         `json:"model,omitempty"`
	Moderation      ModerationMode `json:"moderation,omitempty"`
	OutputFormat    OutputFormat   `json:"output_format,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Settings        *Settings      `json:"settings,omitempty"`

	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ChatResponse is the public success envelope returned by the Gateway.
type ChatResponse struct {
	Response *string         `json:"response"`
	App      string          `json:"app"`
	Metrics  ResponseMetrics `json:"metrics"`
}

// ErrorResponse is the envelope for 4xx/5xx bodies. Blocked requests carry
// the machine-parseable reason; server errors carry only a generic detail.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// TokenUsage records provider token consumption for one model call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NewTokenUsage builds a usage record with the total derived from its parts.
func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{Input: input, Output: output, Total: input + output}
}

// ResponseMetrics is the per-request metrics block of the response envelope.
// Judge-backed fields are pointers: nil means the check did not run or its
// judge failed, which is distinct from a negative finding.
type ResponseMetrics struct {
	SecurityScore    float64     `json:"security_score"`
	TokensSaved      int         `json:"tokens_saved"`
	TokenUsage       *TokenUsage `json:"token_usage,omitempty"`
	ModelUsed        string      `json:"model_used,omitempty"`
	ThreatsDetected  int         `json:"threats_detected"`
	PIIRedacted      int         `json:"pii_redacted"`
	ProcessingTimeMS float64     `json:"processing_time_ms"`

	HallucinationDetected *bool    `json:"hallucination_detected,omitempty"`
	CitationsVerified     *bool    `json:"citations_verified,omitempty"`
	ToneCompliant         *bool    `json:"tone_compliant,omitempty"`
	DisclaimerInjected    *bool    `json:"disclaimer_injected,omitempty"`
	FalseRefusalDetected  *bool    `json:"false_refusal_detected,omitempty"`
	ToxicityScore         *float64 `json:"toxicity_score,omitempty"`
}

// SentinelResult is the verdict Sentinel returns to the Gateway, covering
// both passed and blocked outcomes.
type SentinelResult struct {
	Blocked     bool            `json:"is_blocked"`
	BlockReason string          `json:"block_reason,omitempty"`
	Response    *string         `json:"llm_response"`
	Metrics     ResponseMetrics `json:"metrics"`

	// StageLatencies maps pipeline stage name to elapsed milliseconds.
	StageLatencies map[string]float64 `json:"stage_latencies_ms,omitempty"`
}

// Guardrails carries the per-request output policy values.
type Guardrails struct {
	BrandTone         BrandTone `json:"brand_tone,omitempty"`
	ToxicityThreshold float64   `json:"toxicity_threshold,omitempty"`
}

// GuardianConfig carries the per-check enable flags for one validation pass.
type GuardianConfig struct {
	EnableContentFilter         bool `json:"enable_content_filter"`
	EnablePIIScanner            bool `json:"enable_pii_scanner"`
	EnableToonDecoder           bool `json:"enable_toon_decoder"`
	EnableHallucinationDetector bool `json:"enable_hallucination_detector"`
	EnableCitationVerifier      bool `json:"enable_citation_verifier"`
	EnableToneChecker           bool `json:"enable_tone_checker"`
	EnableRefusalDetector       bool `json:"enable_refusal_detector"`
	EnableDisclaimerInjector    bool `json:"enable_disclaimer_injector"`
}

// ValidateRequest is the body of Sentinel's POST /validate call to Guardian.
// The PII map never travels with it; token restoration stays on the Sentinel
// side. LLMResponse may be empty: an empty completion passes validation
// untouched.
type ValidateRequest struct {
	LLMResponse    string         `json:"llm_response"`
	ModerationMode ModerationMode `json:"moderation_mode,omitempty"`
	OutputFormat   OutputFormat   `json:"output_format,omitempty"`
	Guardrails     Guardrails     `json:"guardrails"`
	OriginalQuery  string         `json:"original_query,omitempty"`
	Config         GuardianConfig `json:"config"`
}

// ValidateResponse is Guardian's verdict on one completion.
type ValidateResponse struct {
	ValidatedResponse  *string    `json:"validated_response"`
	ValidationPassed   bool       `json:"validation_passed"`
	ContentBlocked     bool       `json:"content_blocked"`
	ContentBlockReason string     `json:"content_block_reason,omitempty"`
	ContentWarnings    []string   `json:"content_warnings,omitempty"`
	OutputPIILeaks     []pii.Leak `json:"output_pii_leaks,omitempty"`
	OutputRedacted     bool       `json:"output_redacted"`
	WasToon            bool       `json:"was_toon"`

	HallucinationDetected *bool            `json:"hallucination_detected,omitempty"`
	HallucinationDetails  string           `json:"hallucination_details,omitempty"`
	CitationsVerified     *bool            `json:"citations_verified,omitempty"`
	FakeCitations         []string         `json:"fake_citations,omitempty"`
	ToneCompliant         *bool            `json:"tone_compliant,omitempty"`
	ToneViolationReason   string           `json:"tone_violation_reason,omitempty"`
	DisclaimerInjected    *bool            `json:"disclaimer_injected,omitempty"`
	DisclaimerText        string           `json:"disclaimer_text,omitempty"`
	FalseRefusalDetected  *bool            `json:"false_refusal_detected,omitempty"`
	ToxicityScore         *float64         `json:"toxicity_score,omitempty"`
	ToxicityDetails       *ToxicityDetails `json:"toxicity_details,omitempty"`

	Metrics GuardianMetrics `json:"metrics"`
}

// ToxicityDetails carries the toxicity judge's category breakdown.
type ToxicityDetails struct {
	ToxicityScore float64  `json:"toxicity_score"`
	Categories    []string `json:"categories,omitempty"`
}

// GuardianMetrics summarizes one validation pass.
type GuardianMetrics struct {
	ModerationMode   ModerationMode `json:"moderation_mode"`
	WarningsCount    int            `json:"warnings_count"`
	PIILeaksCount    int            `json:"pii_leaks_count"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}
