package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncAuditSinkWritesEvents(t *testing.T) {
	sink := NewAsyncAuditSink("sentinel")

	var mu sync.Mutex
	var written []SecurityEvent
	sink.write = func(e SecurityEvent) {
		mu.Lock()
		written = append(written, e)
		mu.Unlock()
	}

	sink.Start()
	sink.EmitSecurityEvent(SecurityEvent{
		EventType:      EventThreatBlocked,
		Severity:       SeverityHigh,
		PolicyViolated: []string{"sql_injection"},
		ThreatScore:    0.9,
		ClientIP:       "10.0.0.1",
	})
	sink.Stop()

	require.Len(t, written, 1)
	event := written[0]
	assert.Equal(t, EventThreatBlocked, event.EventType)
	assert.Equal(t, SeverityHigh, event.Severity)
	assert.Equal(t, "sentinel", event.Service, "service name filled in")
	assert.NotEmpty(t, event.ID, "event ID filled in")
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Minute)
	assert.EqualValues(t, 1, sink.Emitted())
}

func TestAsyncAuditSinkKeepsCallerFields(t *testing.T) {
	sink := NewAsyncAuditSink("sentinel")

	var written []SecurityEvent
	sink.write = func(e SecurityEvent) { written = append(written, e) }

	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sink.Start()
	sink.EmitSecurityEvent(SecurityEvent{
		ID:        "evt-1",
		EventType: EventPipelineFailure,
		Timestamp: stamp,
		Service:   "guardian",
	})
	sink.Stop()

	require.Len(t, written, 1)
	assert.Equal(t, "evt-1", written[0].ID)
	assert.Equal(t, stamp, written[0].Timestamp)
	assert.Equal(t, "guardian", written[0].Service)
}

func TestAsyncAuditSinkDropsWhenFull(t *testing.T) {
	sink := NewAsyncAuditSink("sentinel")
	// Writer not started, so the buffer fills.
	for i := 0; i < auditBuffer+3; i++ {
		sink.EmitSecurityEvent(SecurityEvent{EventType: EventThreatBlocked})
	}

	assert.EqualValues(t, 3, sink.Dropped())

	// Draining afterwards still delivers the buffered events.
	var written []SecurityEvent
	sink.write = func(e SecurityEvent) { written = append(written, e) }
	sink.Start()
	sink.Stop()
	assert.Len(t, written, auditBuffer)
}

func TestNopSink(t *testing.T) {
	var sink AuditSink = NopSink{}
	sink.EmitSecurityEvent(SecurityEvent{EventType: EventThreatBlocked}) // must not panic
}
