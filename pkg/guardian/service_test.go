package guardian

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/telemetry"
)

// captureSink records emitted events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []telemetry.SecurityEvent
}

func (s *captureSink) EmitSecurityEvent(event telemetry.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) all() []telemetry.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.SecurityEvent(nil), s.events...)
}

func newTestService(model *fakeModel, audit telemetry.AuditSink) *Service {
	var judge *Judge
	if model != nil {
		judge = NewJudge(model, time.Second)
	}
	return NewService(judge, models.ModerationModerate, testBlocklist, audit)
}

func TestValidate_CleanResponsePasses(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "The capital of France is Paris.",
	})

	assert.True(t, resp.ValidationPassed)
	assert.False(t, resp.ContentBlocked)
	require.NotNil(t, resp.ValidatedResponse)
	assert.Equal(t, "The capital of France is Paris.", *resp.ValidatedResponse)
	assert.Equal(t, models.ModerationModerate, resp.Metrics.ModerationMode)
	assert.Zero(t, resp.Metrics.WarningsCount)
	assert.Greater(t, resp.Metrics.ProcessingTimeMS, 0.0)
}

func TestValidate_EmptyResponsePasses(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{LLMResponse: ""})

	assert.True(t, resp.ValidationPassed)
	require.NotNil(t, resp.ValidatedResponse)
	assert.Empty(t, *resp.ValidatedResponse)
}

func TestValidate_RawModeNeverBlocks(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:    "you should kill yourself",
		ModerationMode: models.ModerationRaw,
	})

	assert.True(t, resp.ValidationPassed)
	assert.False(t, resp.ContentBlocked)
}

func TestValidate_HarmfulBlockedWithPatternToxicity(t *testing.T) {
	sink := &captureSink{}
	svc := newTestService(nil, sink)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "you should kill yourself",
	})

	assert.False(t, resp.ValidationPassed)
	assert.True(t, resp.ContentBlocked)
	assert.Nil(t, resp.ValidatedResponse)
	assert.Contains(t, resp.ContentBlockReason, "harmful: blocked")
	// Pattern confidence 0.8 also crosses the default toxicity threshold.
	assert.Contains(t, resp.ContentBlockReason, "toxicity score 0.80 exceeds threshold 0.7")
	require.NotNil(t, resp.ToxicityScore)
	assert.InDelta(t, 0.8, *resp.ToxicityScore, 1e-9)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventContentBlocked, events[0].EventType)
	assert.Equal(t, telemetry.SeverityHigh, events[0].Severity)
	assert.Equal(t, []string{resp.ContentBlockReason}, events[0].PolicyViolated)
	assert.InDelta(t, 0.8, events[0].ThreatScore, 1e-9)
}

func TestValidate_WarningWithRaisedThreshold(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "this is nsfw material",
		Guardrails:  models.Guardrails{ToxicityThreshold: 0.8},
	})

	assert.True(t, resp.ValidationPassed)
	assert.Equal(t, []string{"inappropriate: flagged for review"}, resp.ContentWarnings)
	assert.Equal(t, 1, resp.Metrics.WarningsCount)
	require.NotNil(t, resp.ToxicityScore)
	assert.InDelta(t, 0.7, *resp.ToxicityScore, 1e-9)
}

func TestValidate_SensitiveAllowedInModerate(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "a controversial topic in the news",
	})

	assert.True(t, resp.ValidationPassed)
	assert.Empty(t, resp.ContentWarnings)
	require.NotNil(t, resp.ToxicityScore)
	assert.InDelta(t, 0.6, *resp.ToxicityScore, 1e-9)
}

func TestValidate_JudgeToxicityBlocks(t *testing.T) {
	model := &fakeModel{reply: `{"toxicity_score": 0.8, "categories": ["harassment"]}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "You are a wonderful person.",
		Guardrails:  models.Guardrails{ToxicityThreshold: 0.5},
		Config:      models.GuardianConfig{EnableContentFilter: true},
	})

	assert.False(t, resp.ValidationPassed)
	assert.True(t, resp.ContentBlocked)
	assert.Nil(t, resp.ValidatedResponse)
	assert.Equal(t, "Toxicity score 0.80 exceeds threshold 0.5", resp.ContentBlockReason)
	require.NotNil(t, resp.ToxicityScore)
	assert.InDelta(t, 0.8, *resp.ToxicityScore, 1e-9)
	require.NotNil(t, resp.ToxicityDetails)
	assert.Equal(t, []string{"harassment"}, resp.ToxicityDetails.Categories)
}

func TestValidate_JudgeToxicityBelowThresholdPasses(t *testing.T) {
	model := &fakeModel{reply: `{"toxicity_score": 0.2, "categories": []}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "You are a wonderful person.",
		Config:      models.GuardianConfig{EnableContentFilter: true},
	})

	assert.True(t, resp.ValidationPassed)
	require.NotNil(t, resp.ToxicityScore)
	assert.InDelta(t, 0.2, *resp.ToxicityScore, 1e-9)
}

func TestValidate_PatternBlockSkipsJudges(t *testing.T) {
	model := &fakeModel{reply: `{"toxicity_score": 0.0}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:   "you should kill yourself",
		OriginalQuery: "hello",
		Config: models.GuardianConfig{
			EnableContentFilter:         true,
			EnableHallucinationDetector: true,
			EnableToneChecker:           true,
		},
	})

	assert.True(t, resp.ContentBlocked)
	assert.Equal(t, "harmful: blocked", resp.ContentBlockReason)
	assert.Zero(t, model.calls())
	// No judge ran, so no score accompanies the pattern block.
	assert.Nil(t, resp.ToxicityScore)
}

func TestValidate_JudgeFailureLeavesFlagsAbsent(t *testing.T) {
	model := &fakeModel{err: errors.New("judge offline")}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:   "A plain answer.",
		OriginalQuery: "a question",
		Config: models.GuardianConfig{
			EnableContentFilter:         true,
			EnableHallucinationDetector: true,
			EnableToneChecker:           true,
		},
	})

	assert.True(t, resp.ValidationPassed)
	assert.Nil(t, resp.ToxicityScore)
	assert.Nil(t, resp.HallucinationDetected)
	assert.Nil(t, resp.ToneCompliant)
}

func TestValidate_HallucinationFlagSet(t *testing.T) {
	model := &fakeModel{reply: `{"hallucination_detected": true, "confidence": 0.9, "details": "invented a source"}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:   "According to Smith 2019, the answer is 7.",
		OriginalQuery: "what is the answer",
		Config:        models.GuardianConfig{EnableHallucinationDetector: true},
	})

	assert.True(t, resp.ValidationPassed)
	require.NotNil(t, resp.HallucinationDetected)
	assert.True(t, *resp.HallucinationDetected)
	assert.Equal(t, "invented a source", resp.HallucinationDetails)
}

func TestValidate_HallucinationRequiresOriginalQuery(t *testing.T) {
	model := &fakeModel{reply: `{"hallucination_detected": true, "confidence": 0.9}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "An answer.",
		Config:      models.GuardianConfig{EnableHallucinationDetector: true},
	})

	assert.Zero(t, model.calls())
	assert.Nil(t, resp.HallucinationDetected)
}

func TestValidate_ToneCheckUsesBrandTone(t *testing.T) {
	model := &fakeModel{reply: `{"tone_compliant": false, "detected_tone": "casual", "violation_reason": "too informal"}`}
	svc := newTestService(model, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "yo, here's the thing",
		Guardrails:  models.Guardrails{BrandTone: models.ToneTechnical},
		Config:      models.GuardianConfig{EnableToneChecker: true},
	})

	require.NotNil(t, resp.ToneCompliant)
	assert.False(t, *resp.ToneCompliant)
	assert.Equal(t, "too informal", resp.ToneViolationReason)
	assert.Contains(t, model.lastPrompt(), "Desired Tone: technical")
}

func TestValidate_ToneCheckDefaultsToProfessional(t *testing.T) {
	model := &fakeModel{reply: `{"tone_compliant": true, "detected_tone": "professional"}`}
	svc := newTestService(model, nil)

	svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "Greetings.",
		Config:      models.GuardianConfig{EnableToneChecker: true},
	})

	assert.Contains(t, model.lastPrompt(), "Desired Tone: professional")
}

func TestValidate_CitationVerifier(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "See http://example.com/proof for details.",
		Config:      models.GuardianConfig{EnableCitationVerifier: true},
	})

	require.NotNil(t, resp.CitationsVerified)
	assert.False(t, *resp.CitationsVerified)
	assert.Equal(t, []string{"Suspicious URL: http://example.com/proof"}, resp.FakeCitations)
}

func TestValidate_RefusalDetector(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "As an AI, I cannot help with that.",
		Config:      models.GuardianConfig{EnableRefusalDetector: true},
	})

	require.NotNil(t, resp.FalseRefusalDetected)
	assert.True(t, *resp.FalseRefusalDetected)
}

func TestValidate_DisclaimerInjected(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "Common symptoms include fever; treatment usually starts with rest.",
		Config:      models.GuardianConfig{EnableDisclaimerInjector: true},
	})

	assert.True(t, resp.ValidationPassed)
	require.NotNil(t, resp.DisclaimerInjected)
	assert.True(t, *resp.DisclaimerInjected)
	assert.Equal(t, AdviceMedical, resp.DisclaimerText)
	require.NotNil(t, resp.ValidatedResponse)
	assert.True(t, strings.HasSuffix(*resp.ValidatedResponse, disclaimers[AdviceMedical]))
}

func TestValidate_DisclaimerNotNeeded(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "The capital of France is Paris.",
		Config:      models.GuardianConfig{EnableDisclaimerInjector: true},
	})

	require.NotNil(t, resp.DisclaimerInjected)
	assert.False(t, *resp.DisclaimerInjected)
	assert.Empty(t, resp.DisclaimerText)
	assert.Equal(t, "The capital of France is Paris.", *resp.ValidatedResponse)
}

func TestValidate_PIILeakRedacted(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse: "Your SSN is 123-45-6789.",
		Config:      models.GuardianConfig{EnablePIIScanner: true},
	})

	assert.True(t, resp.ValidationPassed)
	assert.True(t, resp.OutputRedacted)
	require.NotNil(t, resp.ValidatedResponse)
	assert.Contains(t, *resp.ValidatedResponse, "[SSN_REDACTED]")
	assert.NotContains(t, *resp.ValidatedResponse, "123-45-6789")
	require.NotEmpty(t, resp.OutputPIILeaks)
	assert.Equal(t, len(resp.OutputPIILeaks), resp.Metrics.PIILeaksCount)
}

func TestValidate_ToonDecoded(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:  `{res:"All clear",s:T}`,
		OutputFormat: models.FormatJSON,
		Config:       models.GuardianConfig{EnableToonDecoder: true},
	})

	assert.True(t, resp.WasToon)
	require.NotNil(t, resp.ValidatedResponse)
	assert.Contains(t, *resp.ValidatedResponse, `"response": "All clear"`)
	assert.Contains(t, *resp.ValidatedResponse, `"system": true`)
}

func TestValidate_ToonKeptForToonFormat(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:  `{res:"All clear",s:T}`,
		OutputFormat: models.FormatToon,
		Config:       models.GuardianConfig{EnableToonDecoder: true},
	})

	assert.False(t, resp.WasToon)
	assert.Equal(t, `{res:"All clear",s:T}`, *resp.ValidatedResponse)
}

func TestValidate_InvalidModeFallsBackToDefault(t *testing.T) {
	svc := newTestService(nil, nil)

	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:    "hello",
		ModerationMode: models.ModerationMode("lenient"),
	})

	assert.Equal(t, models.ModerationModerate, resp.Metrics.ModerationMode)
}

func TestValidate_JudgesRunConcurrently(t *testing.T) {
	// One shared reply parses as a clean verdict for all three judges.
	model := &fakeModel{
		reply: `{"toxicity_score": 0.1, "categories": [], "hallucination_detected": false, "tone_compliant": true, "detected_tone": "professional"}`,
		delay: 100 * time.Millisecond,
	}
	svc := newTestService(model, nil)

	start := time.Now()
	resp := svc.Validate(context.Background(), models.ValidateRequest{
		LLMResponse:   "A plain answer to a plain question.",
		OriginalQuery: "a plain question",
		Config: models.GuardianConfig{
			EnableContentFilter:         true,
			EnableHallucinationDetector: true,
			EnableToneChecker:           true,
		},
	})
	elapsed := time.Since(start)

	assert.True(t, resp.ValidationPassed)
	assert.Equal(t, 3, model.calls())
	// Three 100ms judge calls dispatched together must not take anywhere
	// near the 300ms a sequential run would.
	assert.Less(t, elapsed, 200*time.Millisecond)
	require.NotNil(t, resp.HallucinationDetected)
	require.NotNil(t, resp.ToneCompliant)
	require.NotNil(t, resp.ToxicityScore)
}
