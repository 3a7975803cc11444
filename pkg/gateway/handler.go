package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clestiq/clestiq/pkg/config"
	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/sentinel"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/usage"
)

// Explainability headers set on every /chat reply. Headers are authoritative
// for the security decision; the body is authoritative for data.
const (
	HeaderSecurityScore    = "X-Security-Score"
	HeaderSecurityDecision = "X-Security-Decision"
)

// SentinelCaller is the slice of the Sentinel client the handler needs.
type SentinelCaller interface {
	Chat(ctx context.Context, req *models.ChatRequest) (*models.SentinelResult, error)
}

// Handler serves the public chat surface.
type Handler struct {
	sentinel        SentinelCaller
	sentinelTimeout time.Duration
	recorder        *usage.Recorder
	metrics         *telemetry.Metrics
	policies        *config.Policies
}

// NewHandler wires the chat handler. recorder and metrics may be nil, which
// disables accounting and metric emission respectively.
func NewHandler(sentinelClient SentinelCaller, sentinelTimeout time.Duration, recorder *usage.Recorder, metrics *telemetry.Metrics, policies *config.Policies) *Handler {
	if sentinelClient == nil {
		panic("gateway.NewHandler: sentinel client is nil")
	}
	if policies == nil {
		policies = config.DefaultPolicies()
	}
	if sentinelTimeout <= 0 {
		sentinelTimeout = 60 * time.Second
	}
	return &Handler{
		sentinel:        sentinelClient,
		sentinelTimeout: sentinelTimeout,
		recorder:        recorder,
		metrics:         metrics,
		policies:        policies,
	}
}

// Chat handles POST /chat: normalize, dispatch to Sentinel, translate the
// verdict, account usage, emit metrics.
func (h *Handler) Chat(c *gin.Context) {
	start := time.Now()

	cred := boundCredential(c)
	if cred == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Internal server error"})
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: err.Error()})
		return
	}
	if req.Moderation != "" && !req.Moderation.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: fmt.Sprintf("unknown moderation mode %q", req.Moderation)})
		return
	}
	if req.OutputFormat != "" && !req.OutputFormat.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: fmt.Sprintf("unknown output format %q", req.OutputFormat)})
		return
	}
	if req.MaxOutputTokens < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: "max_output_tokens must be positive"})
		return
	}
	if req.Settings != nil && req.Settings.ToneCheck && !req.Settings.BrandTone.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: "tone_check requires a valid brand_tone"})
		return
	}

	h.normalize(&req, c)

	slog.Info("Chat request received",
		"app_name", cred.AppName,
		"app_id", cred.AppID,
		"model", req.Model,
		"moderation", req.Moderation)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.sentinelTimeout)
	defer cancel()

	result, err := h.sentinel.Chat(ctx, &req)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			slog.Error("Sentinel service unavailable", "error", err)
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Detail: "Sentinel service unavailable"})
			return
		}
		slog.Error("Sentinel call failed", "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Internal server error"})
		return
	}

	score := result.Metrics.SecurityScore
	c.Header(HeaderSecurityScore, fmt.Sprintf("%.3f", score))
	if result.Blocked {
		c.Header(HeaderSecurityDecision, "blocked: "+result.BlockReason)
	} else {
		c.Header(HeaderSecurityDecision, "passed")
	}

	if result.Blocked {
		slog.Warn("Request blocked by Sentinel", "app_name", cred.AppName, "reason", result.BlockReason)
		if h.metrics != nil {
			h.metrics.RecordBlocked(cred.AppName, req.Model, result.BlockReason)
			h.metrics.SetSecurityScore(cred.AppName, score)
			h.metrics.AddThreats(cred.AppName, req.Model, result.Metrics.ThreatsDetected)
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Request blocked", Reason: result.BlockReason})
		return
	}

	metrics := result.Metrics
	metrics.ProcessingTimeMS = float64(time.Since(start)) / float64(time.Millisecond)

	h.account(cred.KeyID, &req, &metrics)
	h.emit(cred.AppName, &req, &metrics)

	c.JSON(http.StatusOK, models.ChatResponse{
		Response: result.Response,
		App:      cred.AppName,
		Metrics:  metrics,
	})
}

// normalize fills deployment defaults into the request and stamps the
// caller's network identity, overwriting anything the caller supplied.
func (h *Handler) normalize(req *models.ChatRequest, c *gin.Context) {
	if req.Settings == nil {
		defaults := h.policies.DefaultSettings
		req.Settings = &defaults
	}
	if req.Moderation == "" {
		req.Moderation = models.ModerationModerate
	}
	if req.OutputFormat == "" {
		req.OutputFormat = models.FormatJSON
	}
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()
}

// account enqueues the usage delta for one passed request. Accounting only
// happens when a model call completed; blocked and failed requests never
// reach here.
func (h *Handler) account(keyID string, req *models.ChatRequest, metrics *models.ResponseMetrics) {
	if h.recorder == nil || metrics.TokenUsage == nil {
		return
	}
	model := metrics.ModelUsed
	if model == "" {
		model = req.Model
	}
	h.recorder.Enqueue(usage.Record{
		KeyID:        keyID,
		Model:        model,
		InputTokens:  metrics.TokenUsage.Input,
		OutputTokens: metrics.TokenUsage.Output,
	})
}

// emit publishes the per-request metric set for one passed request.
func (h *Handler) emit(app string, req *models.ChatRequest, metrics *models.ResponseMetrics) {
	if h.metrics == nil {
		return
	}
	model := metrics.ModelUsed
	if model == "" {
		model = req.Model
	}

	h.metrics.RecordPassed(app, model)
	h.metrics.ObserveDuration(app, metrics.ProcessingTimeMS/1000)
	h.metrics.SetSecurityScore(app, metrics.SecurityScore)
	h.metrics.AddThreats(app, model, metrics.ThreatsDetected)
	h.metrics.AddPIIRedacted(app, metrics.PIIRedacted)
	h.metrics.AddTokensSaved(app, model, metrics.TokensSaved)
	if metrics.TokenUsage != nil {
		h.metrics.AddTokens(app, model, metrics.TokenUsage.Input, metrics.TokenUsage.Output, metrics.TokenUsage.Total)
	}
	if metrics.HallucinationDetected != nil && *metrics.HallucinationDetected {
		h.metrics.FlagGuardian(app, telemetry.FlagHallucination)
	}
	if metrics.CitationsVerified != nil && !*metrics.CitationsVerified {
		h.metrics.FlagGuardian(app, telemetry.FlagFakeCitations)
	}
	if metrics.ToneCompliant != nil && !*metrics.ToneCompliant {
		h.metrics.FlagGuardian(app, telemetry.FlagToneViolation)
	}
	if metrics.FalseRefusalDetected != nil && *metrics.FalseRefusalDetected {
		h.metrics.FlagGuardian(app, telemetry.FlagFalseRefusal)
	}
	if metrics.DisclaimerInjected != nil && *metrics.DisclaimerInjected {
		h.metrics.FlagGuardian(app, telemetry.FlagDisclaimerInjected)
	}
	if metrics.ToxicityScore != nil {
		h.metrics.SetToxicity(app, *metrics.ToxicityScore)
	}
}
