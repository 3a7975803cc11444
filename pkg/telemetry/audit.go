package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Severity grades a security event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Event types emitted by the pipeline.
const (
	EventThreatBlocked    = "input_threat_blocked"
	EventAuditLLMBlocked  = "llm_security_blocked"
	EventContentBlocked   = "output_content_blocked"
	EventRestoreViolation = "pii_restore_violation"
	EventPipelineFailure  = "pipeline_failure"
)

// SecurityEvent is a payload-free audit record: classification metadata
// only, never prompts, completions, tokens, or PII literals.
type SecurityEvent struct {
	ID             string    `json:"id"`
	EventType      string    `json:"event_type"`
	Severity       Severity  `json:"severity"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	PolicyViolated []string  `json:"policy_violated,omitempty"`
	ThreatScore    float64   `json:"threat_score,omitempty"`
	ClientIP       string    `json:"client_ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// AuditSink receives security events. Implementations must not block the
// caller; request processing never waits on audit delivery.
type AuditSink interface {
	EmitSecurityEvent(event SecurityEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) EmitSecurityEvent(SecurityEvent) {}

const auditBuffer = 512

// AsyncAuditSink queues events on a bounded buffer and writes them from a
// single background goroutine. When the buffer is full events are dropped
// and counted; the sink is lossy by contract.
type AsyncAuditSink struct {
	service string
	events  chan SecurityEvent
	write   func(SecurityEvent)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	emitted atomic.Int64
	dropped atomic.Int64
}

// NewAsyncAuditSink builds a sink stamping events with the given service
// name. Events are written as structured log records.
func NewAsyncAuditSink(service string) *AsyncAuditSink {
	s := &AsyncAuditSink{
		service: service,
		events:  make(chan SecurityEvent, auditBuffer),
		stopCh:  make(chan struct{}),
	}
	s.write = s.logEvent
	return s
}

// Start spawns the writer goroutine. Safe to call multiple times.
func (s *AsyncAuditSink) Start() {
	if s.started {
		slog.Warn("Audit sink already started, ignoring duplicate Start call")
		return
	}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop drains queued events and waits for the writer to exit.
func (s *AsyncAuditSink) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// EmitSecurityEvent queues an event without blocking, filling in the ID,
// timestamp, and service name when unset.
func (s *AsyncAuditSink) EmitSecurityEvent(event SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Service == "" {
		event.Service = s.service
	}

	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Emitted returns how many events have been written.
func (s *AsyncAuditSink) Emitted() int64 { return s.emitted.Load() }

// Dropped returns how many events were lost to a full buffer.
func (s *AsyncAuditSink) Dropped() int64 { return s.dropped.Load() }

func (s *AsyncAuditSink) run() {
	for {
		select {
		case event := <-s.events:
			s.write(event)
			s.emitted.Add(1)
		case <-s.stopCh:
			for {
				select {
				case event := <-s.events:
					s.write(event)
					s.emitted.Add(1)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncAuditSink) logEvent(event SecurityEvent) {
	slog.Info("Security event",
		"event_id", event.ID,
		"event_type", event.EventType,
		"severity", event.Severity,
		"service", event.Service,
		"policy_violated", event.PolicyViolated,
		"threat_score", event.ThreatScore,
		"client_ip", event.ClientIP,
		"user_agent", event.UserAgent)
}
