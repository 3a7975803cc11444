// Package sentinel implements the input-security service: it runs the
// staged input pipeline over each prompt, fans out to the model provider and
// an adversarial security audit in parallel, hands safe completions to
// Guardian for output validation, and restores pseudonymized PII before the
// verdict goes back to the Gateway.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/pii"
	"github.com/clestiq/clestiq/pkg/provider"
	"github.com/clestiq/clestiq/pkg/sanitize"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/threat"
	"github.com/clestiq/clestiq/pkg/toon"
)

// Pipeline stage names used for latency accounting.
const (
	stageSanitization    = "sanitization"
	stagePIIMasking      = "pii_masking"
	stageThreatDetection = "threat_detection"
	stageToonConversion  = "toon_conversion"
	stageParallelLLM     = "parallel_llm"
	stageGuardian        = "guardian"
)

// ErrUpstream classifies failures of the remote collaborators (model
// provider, Guardian). The Gateway surfaces them as 503.
var ErrUpstream = errors.New("upstream service unavailable")

// restoreLeftover matches pseudonymization tokens that survived restoration.
// A hit means the PII map lost an entry, which must never happen.
var restoreLeftover = regexp.MustCompile(`\[(?:SSN|CREDIT_CARD|EMAIL|PHONE|API_KEY|IP_ADDRESS)_\d+\]`)

// GuardianCaller is the slice of the Guardian client the pipeline needs.
type GuardianCaller interface {
	Validate(ctx context.Context, req models.ValidateRequest) (*models.ValidateResponse, error)
}

// Service runs the input pipeline for one deployment.
type Service struct {
	pool         *provider.Pool
	guardian     GuardianCaller
	audit        telemetry.AuditSink
	defaultModel string
}

// NewService wires the pipeline. The pool supplies model clients keyed by
// (model, max tokens); guardian validates completions; audit receives
// payload-free security events and may be nil.
func NewService(pool *provider.Pool, guardian GuardianCaller, audit telemetry.AuditSink, defaultModel string) *Service {
	if pool == nil {
		panic("sentinel.NewService: pool is nil")
	}
	if guardian == nil {
		panic("sentinel.NewService: guardian is nil")
	}
	if audit == nil {
		audit = telemetry.NopSink{}
	}
	if defaultModel == "" {
		defaultModel = provider.DefaultModel
	}
	return &Service{pool: pool, guardian: guardian, audit: audit, defaultModel: defaultModel}
}

// Process runs one request through the full input pipeline and returns the
// verdict. A block is a normal result; errors are reserved for upstream
// failures (wrapped ErrUpstream) and internal invariant violations. Panics
// in the pipeline itself degrade to a fail-safe block verdict.
func (s *Service) Process(ctx context.Context, req *models.ChatRequest) (result *models.SentinelResult, err error) {
	state := models.NewRequestState(req)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Input pipeline panicked, failing safe", "panic", r)
			s.audit.EmitSecurityEvent(telemetry.SecurityEvent{
				EventType:      telemetry.EventPipelineFailure,
				Severity:       telemetry.SeverityCritical,
				PolicyViolated: []string{"pipeline_failure"},
				ThreatScore:    1.0,
				ClientIP:       state.ClientIP,
				UserAgent:      state.UserAgent,
			})
			state.Block("Security verification failed", 1.0)
			result, err = s.verdict(state), nil
		}
	}()

	if state.OriginalQuery == "" {
		return s.verdict(state), nil
	}

	s.runInputStages(state)
	if state.Blocked() {
		return s.verdict(state), nil
	}

	if err := s.generateAndValidate(ctx, state); err != nil {
		return nil, err
	}
	return s.verdict(state), nil
}

// runInputStages executes the pure-CPU stages in order: sanitize,
// pseudonymize, threat-detect, compact-encode. A block verdict from the
// threat detectors is terminal; no later stage runs.
func (s *Service) runInputStages(state *models.RequestState) {
	if state.Settings.SanitizeInput {
		start := time.Now()
		text, warnings := sanitize.Input(state.WorkingText)
		state.WorkingText = text
		state.SanitizationWarnings = warnings
		state.RecordLatency(stageSanitization, time.Since(start))
		if len(warnings) > 0 {
			slog.Info("Sanitization produced warnings", "count", len(warnings))
		}
	}

	if state.Settings.PIIMasking {
		start := time.Now()
		p := pii.NewPseudonymizer()
		state.WorkingText, state.PIIDetections = p.Process(state.WorkingText)
		state.PIIMap = p.Map()
		state.RecordLatency(stagePIIMasking, time.Since(start))
	}

	if state.Settings.DetectThreats {
		start := time.Now()
		state.DetectedThreats = threat.DetectAll(state.WorkingText)
		state.RecordLatency(stageThreatDetection, time.Since(start))

		if maxConf := threat.MaxConfidence(state.DetectedThreats); maxConf >= threat.BlockThreshold {
			types := make([]string, 0, len(state.DetectedThreats))
			for _, report := range state.DetectedThreats {
				types = append(types, string(report.Type))
			}
			state.Block(fmt.Sprintf("Security threats detected: %s", strings.Join(types, ", ")), maxConf)
			slog.Warn("High-confidence threats detected", "threats", strings.Join(types, ","), "score", maxConf)
			s.audit.EmitSecurityEvent(telemetry.SecurityEvent{
				EventType:      telemetry.EventThreatBlocked,
				Severity:       telemetry.SeverityHigh,
				PolicyViolated: types,
				ThreatScore:    maxConf,
				ClientIP:       state.ClientIP,
				UserAgent:      state.UserAgent,
			})
			return
		}
	}

	if state.Settings.ToonMode {
		start := time.Now()
		encoded, saved := toon.Encode(state.WorkingText)
		if saved > 0 {
			state.WorkingText = encoded
			state.ToonEncoded = true
			state.TokensSaved = saved
			slog.Info("Compact encoding applied", "tokens_saved", saved)
		}
		state.RecordLatency(stageToonConversion, time.Since(start))
	}
}

// generateAndValidate runs the model fan-out, the Guardian pass, and PII
// restoration. Remote failures come back wrapped in ErrUpstream.
func (s *Service) generateAndValidate(ctx context.Context, state *models.RequestState) error {
	state.ModelUsed = provider.NormalizeModel(state.Model, s.defaultModel)
	client, err := s.pool.Get(state.ModelUsed, state.MaxOutputTokens)
	if err != nil {
		return fmt.Errorf("%w: model client for %s: %w", ErrUpstream, state.ModelUsed, err)
	}

	start := time.Now()
	gen, audit, err := runFanout(ctx, client, state.WorkingText, state.MaxOutputTokens)
	state.RecordLatency(stageParallelLLM, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: model call: %w", ErrUpstream, err)
	}

	state.TokenUsage = models.NewTokenUsage(gen.InputTokens, gen.OutputTokens)

	if audit.IsThreat && audit.Confidence > threat.BlockThreshold {
		state.Block(
			fmt.Sprintf("LLM security: %s (confidence: %.2f)", audit.ThreatType, audit.Confidence),
			audit.Confidence,
		)
		slog.Warn("Security audit flagged threat",
			"threat_type", audit.ThreatType,
			"confidence", audit.Confidence)
		s.audit.EmitSecurityEvent(telemetry.SecurityEvent{
			EventType:      telemetry.EventAuditLLMBlocked,
			Severity:       telemetry.SeverityHigh,
			PolicyViolated: []string{audit.ThreatType},
			ThreatScore:    audit.Confidence,
			ClientIP:       state.ClientIP,
			UserAgent:      state.UserAgent,
		})
		return nil
	}

	state.ModelResponse = gen.Text

	start = time.Now()
	verdict, err := s.guardian.Validate(ctx, buildValidateRequest(state))
	state.RecordLatency(stageGuardian, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: guardian: %w", ErrUpstream, err)
	}
	state.Guardian = verdict

	if verdict.ContentBlocked {
		state.Block(fmt.Sprintf("Output blocked: %s", verdict.ContentBlockReason), state.SecurityScore())
		return nil
	}

	return s.restore(state)
}

// restore swaps pseudonymization tokens back to the original literals in the
// validated response. This is the only place tokens are unmapped. A token
// left behind means the map and the text disagree, which is an invariant
// violation, not a user error.
func (s *Service) restore(state *models.RequestState) error {
	if state.Guardian == nil || state.Guardian.ValidatedResponse == nil {
		return nil
	}
	text := *state.Guardian.ValidatedResponse
	if len(state.PIIMap) > 0 {
		text = pii.Restore(text, state.PIIMap)
		slog.Info("Depseudonymization complete", "tokens_restored", len(state.PIIMap))
	}
	if state.Settings.PIIMasking && restoreLeftover.MatchString(text) {
		s.audit.EmitSecurityEvent(telemetry.SecurityEvent{
			EventType:      telemetry.EventRestoreViolation,
			Severity:       telemetry.SeverityCritical,
			PolicyViolated: []string{"pii_restore_violation"},
			ClientIP:       state.ClientIP,
			UserAgent:      state.UserAgent,
		})
		return errors.New("pii restoration incomplete: unmapped token in validated response")
	}
	state.Guardian.ValidatedResponse = &text
	return nil
}

// buildValidateRequest translates the per-request settings into Guardian's
// feature flags. The PII map stays behind; Guardian only ever sees tokens.
func buildValidateRequest(state *models.RequestState) models.ValidateRequest {
	cfg := models.GuardianConfig{
		EnableContentFilter:         state.Settings.ContentFilter,
		EnablePIIScanner:            state.Settings.PIIMasking,
		EnableToonDecoder:           state.Settings.ToonMode,
		EnableHallucinationDetector: state.Settings.HallucinationCheck,
		EnableCitationVerifier:      state.Settings.CitationCheck,
		EnableToneChecker:           state.Settings.ToneCheck,
		EnableRefusalDetector:       state.Settings.FalseRefusalCheck,
		EnableDisclaimerInjector:    state.Settings.AutoDisclaimers,
	}
	return models.ValidateRequest{
		LLMResponse:    state.ModelResponse,
		ModerationMode: state.Moderation,
		OutputFormat:   state.OutputFormat,
		Guardrails: models.Guardrails{
			BrandTone:         state.Settings.BrandTone,
			ToxicityThreshold: state.Settings.ToxicityThreshold,
		},
		OriginalQuery: state.OriginalQuery,
		Config:        cfg,
	}
}

// verdict assembles the wire result from the final pipeline state.
func (s *Service) verdict(state *models.RequestState) *models.SentinelResult {
	metrics := models.ResponseMetrics{
		SecurityScore:   state.SecurityScore(),
		TokensSaved:     state.TokensSaved,
		ModelUsed:       state.ModelUsed,
		ThreatsDetected: len(state.DetectedThreats),
		PIIRedacted:     len(state.PIIDetections),
	}
	if state.TokenUsage.Total > 0 {
		usage := state.TokenUsage
		metrics.TokenUsage = &usage
	}
	if g := state.Guardian; g != nil {
		metrics.HallucinationDetected = g.HallucinationDetected
		metrics.CitationsVerified = g.CitationsVerified
		metrics.ToneCompliant = g.ToneCompliant
		metrics.DisclaimerInjected = g.DisclaimerInjected
		metrics.FalseRefusalDetected = g.FalseRefusalDetected
		metrics.ToxicityScore = g.ToxicityScore
	}

	result := &models.SentinelResult{
		Blocked:        state.Blocked(),
		BlockReason:    state.BlockReason(),
		Metrics:        metrics,
		StageLatencies: state.Latencies,
	}
	if !state.Blocked() && state.Guardian != nil {
		result.Response = state.Guardian.ValidatedResponse
	}
	return result
}
