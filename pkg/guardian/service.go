// Package guardian implements the output validation service: content
// filtering under a moderation mode, PII leak scanning, compact-format
// decoding, a concurrently dispatched set of judge and pattern checks, and
// disclaimer injection. The pipeline never sees the caller's PII map; token
// restoration stays on the Sentinel side.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/pii"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/toon"
)

// Service runs the output validation pipeline for one deployment.
type Service struct {
	judge             *Judge
	defaultModeration models.ModerationMode
	citationBlocklist []string
	audit             telemetry.AuditSink
}

// NewService wires the pipeline. judge may be nil, in which case judge-backed
// checks are skipped and toxicity falls back to pattern confidence.
func NewService(judge *Judge, defaultModeration models.ModerationMode, citationBlocklist []string, audit telemetry.AuditSink) *Service {
	if !defaultModeration.Valid() {
		defaultModeration = models.ModerationModerate
	}
	if audit == nil {
		audit = telemetry.NopSink{}
	}
	return &Service{
		judge:             judge,
		defaultModeration: defaultModeration,
		citationBlocklist: citationBlocklist,
		audit:             audit,
	}
}

// Validate runs one completion through the output pipeline and returns the
// verdict. It never returns an error: judge failures leave their flags
// absent, and a block is a verdict, not a failure.
func (s *Service) Validate(ctx context.Context, req models.ValidateRequest) models.ValidateResponse {
	start := time.Now()

	mode := req.ModerationMode
	if !mode.Valid() {
		mode = s.defaultModeration
	}
	threshold := req.Guardrails.ToxicityThreshold
	if threshold <= 0 {
		threshold = models.DefaultToxicityThreshold
	}

	response := req.LLMResponse
	var resp models.ValidateResponse

	// 1. Content filter. Pattern classification crossed with the moderation
	// mode's action table; the mode is authoritative and runs for every
	// request. Raw mode and empty completions pass untouched.
	outcome := filterContent(response, mode)
	resp.ContentWarnings = outcome.Warnings
	blocked := outcome.Blocked
	issues := outcome.Issues

	// Without the judge, the toxicity score is the max pattern confidence.
	// With the judge enabled, scoring moves into the concurrent check group
	// below so its latency overlaps the other judges.
	if !req.Config.EnableContentFilter && outcome.MaxConfidence > 0 {
		score := outcome.MaxConfidence
		resp.ToxicityScore = &score
		if score >= threshold {
			blocked = true
			issues = append(issues, fmt.Sprintf("toxicity score %.2f exceeds threshold %v", score, threshold))
		}
	}

	if blocked {
		resp.ContentBlocked = true
		resp.ContentBlockReason = strings.Join(issues, "; ")
		s.finalize(&resp, response, mode, start)
		return resp
	}

	// 2. PII scan. High-severity leaks are redacted in place; everything
	// found is reported.
	if req.Config.EnablePIIScanner {
		response, resp.OutputPIILeaks, resp.OutputRedacted = pii.ScanOutput(response)
	}

	// 3. Decode. A completion that came back in the compact form is expanded
	// to canonical JSON when the caller asked for JSON. Decode failure keeps
	// the raw text.
	if req.Config.EnableToonDecoder && req.OutputFormat != models.FormatToon && toon.IsEncoded(response) {
		resp.WasToon = true
		if decoded, ok := toon.Decode(response); ok {
			if text, ok := canonicalJSON(decoded); ok {
				response = text
				slog.Info("Compact response decoded to JSON")
			}
		}
	}

	// 4. Concurrent checks: the judge calls plus the pattern checks, all
	// dispatched together and joined before the verdict is assembled.
	results := s.runChecks(ctx, req, response)

	if results.toxicity != nil {
		score := results.toxicity.ToxicityScore
		resp.ToxicityScore = &score
		resp.ToxicityDetails = results.toxicity
		if score >= threshold {
			resp.ContentBlocked = true
			resp.ContentBlockReason = fmt.Sprintf("Toxicity score %.2f exceeds threshold %v", score, threshold)
		}
	}
	if results.hallucination != nil {
		detected := results.hallucination.Detected
		resp.HallucinationDetected = &detected
		resp.HallucinationDetails = results.hallucination.Details
	}
	if results.tone != nil {
		compliant := results.tone.Compliant
		resp.ToneCompliant = &compliant
		resp.ToneViolationReason = results.tone.ViolationReason
	}
	resp.CitationsVerified = results.citationsOK
	resp.FakeCitations = results.fakeCitations
	resp.FalseRefusalDetected = results.falseRefusal

	// 5. Disclaimer injection, only on responses that are going out.
	if !resp.ContentBlocked && req.Config.EnableDisclaimerInjector && response != "" {
		category := DetectAdviceType(response)
		injected := category != ""
		resp.DisclaimerInjected = &injected
		if injected {
			response = InjectDisclaimer(response, category)
			resp.DisclaimerText = category
			slog.Info("Disclaimer injected", "advice_type", category)
		}
	}

	s.finalize(&resp, response, mode, start)
	return resp
}

// checkResults carries the joined verdicts of the concurrent checks. A nil
// field means the check was disabled or its judge failed.
type checkResults struct {
	toxicity      *models.ToxicityDetails
	hallucination *HallucinationVerdict
	tone          *ToneVerdict
	citationsOK   *bool
	fakeCitations []string
	falseRefusal  *bool
}

// runChecks dispatches every enabled check concurrently and joins them. Each
// goroutine writes a distinct field; Wait orders the writes before the reads.
// Judge errors are logged and absorbed here, leaving the field nil.
func (s *Service) runChecks(ctx context.Context, req models.ValidateRequest, response string) checkResults {
	var (
		results checkResults
		wg      sync.WaitGroup
	)

	if req.Config.EnableContentFilter && s.judge != nil && response != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := s.judge.ScoreToxicity(ctx, response)
			if err != nil {
				slog.Warn("Toxicity judge failed, leaving score absent", "error", err)
				return
			}
			results.toxicity = verdict
		}()
	}

	if req.Config.EnableHallucinationDetector && s.judge != nil && response != "" && req.OriginalQuery != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := s.judge.DetectHallucination(ctx, req.OriginalQuery, response)
			if err != nil {
				slog.Warn("Hallucination judge failed, leaving flag absent", "error", err)
				return
			}
			results.hallucination = verdict
		}()
	}

	if req.Config.EnableToneChecker && s.judge != nil && response != "" {
		tone := req.Guardrails.BrandTone
		if tone == "" {
			tone = models.ToneProfessional
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := s.judge.CheckTone(ctx, response, tone)
			if err != nil {
				slog.Warn("Tone judge failed, leaving flag absent", "error", err)
				return
			}
			results.tone = verdict
		}()
	}

	if req.Config.EnableCitationVerifier && response != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verified, fake := VerifyCitations(response, s.citationBlocklist)
			results.citationsOK = &verified
			if !verified {
				results.fakeCitations = fake
			}
		}()
	}

	if req.Config.EnableRefusalDetector && response != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detected := DetectRefusal(response)
			results.falseRefusal = &detected
		}()
	}

	wg.Wait()
	return results
}

// finalize stamps the verdict fields and metrics. response is the working
// text after any redaction, decoding, or disclaimer injection; it is dropped
// when the verdict is a block.
func (s *Service) finalize(resp *models.ValidateResponse, response string, mode models.ModerationMode, start time.Time) {
	resp.ValidationPassed = !resp.ContentBlocked
	if resp.ValidationPassed {
		resp.ValidatedResponse = &response
	}
	resp.Metrics = models.GuardianMetrics{
		ModerationMode:   mode,
		WarningsCount:    len(resp.ContentWarnings),
		PIILeaksCount:    len(resp.OutputPIILeaks),
		ProcessingTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
	}

	if resp.ContentBlocked {
		score := 0.0
		if resp.ToxicityScore != nil {
			score = *resp.ToxicityScore
		}
		s.audit.EmitSecurityEvent(telemetry.SecurityEvent{
			EventType:      telemetry.EventContentBlocked,
			Severity:       telemetry.SeverityHigh,
			PolicyViolated: []string{resp.ContentBlockReason},
			ThreatScore:    score,
		})
		slog.Warn("Content blocked", "reason", resp.ContentBlockReason)
		return
	}
	slog.Info("Validation passed",
		"pii_redacted", resp.OutputRedacted,
		"was_toon", resp.WasToon,
		"warnings", len(resp.ContentWarnings))
}

// canonicalJSON renders a decoded value as indented JSON. Scalars decoded
// from a bare string stay as-is.
func canonicalJSON(v any) (string, bool) {
	if text, ok := v.(string); ok {
		return text, true
	}
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false
	}
	return string(encoded), true
}
