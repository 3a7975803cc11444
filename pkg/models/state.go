package models

import (
	"time"

	"github.com/clestiq/clestiq/pkg/pii"
	"github.com/clestiq/clestiq/pkg/threat"
	"github.com/google/uuid"
)

// RequestState is the typed record carried through the input pipeline. One
// instance exists per request; it is created when Sentinel accepts an
// envelope and discarded once the verdict is sent. Only usage counters and
// audit events outlive it.
type RequestState struct {
	RequestID     string
	OriginalQuery string

	// WorkingText is the query after each in-place transform. Once
	// pseudonymization has run it carries opaque tokens instead of PII
	// literals; the literals come back only at the de-pseudonymization
	// boundary.
	WorkingText string

	Model           string
	SystemPrompt    string
	Moderation      ModerationMode
	OutputFormat    OutputFormat
	MaxOutputTokens int
	Settings        Settings
	ClientIP        string
	UserAgent       string

	SanitizationWarnings []string
	PIIDetections        []pii.Detection
	PIIMap               pii.Map
	DetectedThreats      []threat.Report

	ToonEncoded bool
	TokensSaved int

	ModelResponse string
	ModelUsed     string
	TokenUsage    TokenUsage

	// Guardian holds the output-validation verdict once Sentinel has called
	// Guardian; nil until then and on blocked requests.
	Guardian *ValidateResponse

	// Latencies maps stage name to elapsed milliseconds.
	Latencies map[string]float64

	blocked       bool
	blockReason   string
	securityScore float64
}

// NewRequestState seeds pipeline state from an inbound envelope. Defaults
// are applied here so later stages can rely on every field being set.
func NewRequestState(req *ChatRequest) *RequestState {
	moderation := req.Moderation
	if moderation == "" {
		moderation = ModerationModerate
	}
	format := req.OutputFormat
	if format == "" {
		format = FormatJSON
	}
	var settings Settings
	if req.Settings != nil {
		settings = *req.Settings
	}
	return &RequestState{
		RequestID:       uuid.NewString(),
		OriginalQuery:   req.Query,
		WorkingText:     req.Query,
		Model:           req.Model,
		SystemPrompt:    req.SystemPrompt,
		Moderation:      moderation,
		OutputFormat:    format,
		MaxOutputTokens: req.MaxOutputTokens,
		Settings:        settings,
		ClientIP:        req.ClientIP,
		UserAgent:       req.UserAgent,
	}
}

// Block records a terminal verdict. The first reason sticks; later calls
// only raise the score.
func (s *RequestState) Block(reason string, score float64) {
	if !s.blocked {
		s.blocked = true
		s.blockReason = reason
	}
	s.RaiseScore(score)
}

// Blocked reports whether a terminal verdict has been recorded.
func (s *RequestState) Blocked() bool { return s.blocked }

// BlockReason returns the reason from the first Block call, or "".
func (s *RequestState) BlockReason() string { return s.blockReason }

// RaiseScore lifts the security score when the new value is higher. The
// score never decreases within a request.
func (s *RequestState) RaiseScore(score float64) {
	if score > s.securityScore {
		s.securityScore = score
	}
}

// SecurityScore returns the current security score in [0,1].
func (s *RequestState) SecurityScore() float64 { return s.securityScore }

// RecordLatency accumulates the elapsed wall time of one pipeline stage in
// milliseconds.
func (s *RequestState) RecordLatency(stage string, elapsed time.Duration) {
	if s.Latencies == nil {
		s.Latencies = make(map[string]float64)
	}
	s.Latencies[stage] += float64(elapsed.Microseconds()) / 1000.0
}

// StageLatencyTotal sums all recorded per-stage latencies in milliseconds.
func (s *RequestState) StageLatencyTotal() float64 {
	var total float64
	for _, ms := range s.Latencies {
		total += ms
	}
	return total
}
