package usage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCounters struct {
	mu       sync.Mutex
	usage    []Record
	requests []string
	touched  []string
}

func (c *recordingCounters) IncrUsage(_ context.Context, keyID, model string, in, out int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = append(c.usage, Record{KeyID: keyID, Model: model, InputTokens: in, OutputTokens: out})
	return nil
}

func (c *recordingCounters) IncrRequests(_ context.Context, keyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, keyID)
	return nil
}

func (c *recordingCounters) TouchLastUsed(_ context.Context, keyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = append(c.touched, keyID)
	return nil
}

type recordingDurable struct {
	mu      sync.Mutex
	records []Record
}

func (d *recordingDurable) RecordUsage(_ context.Context, keyID, model string, in, out int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, Record{KeyID: keyID, Model: model, InputTokens: in, OutputTokens: out})
	return nil
}

func TestRecorderAppliesToBothStores(t *testing.T) {
	counters := &recordingCounters{}
	durable := &recordingDurable{}
	recorder := NewRecorder(counters, durable)

	recorder.Start()
	recorder.Enqueue(Record{KeyID: "key-1", Model: "gemini-3-flash-preview", InputTokens: 100, OutputTokens: 40})
	recorder.Enqueue(Record{KeyID: "key-1", Model: "gemini-3-flash-preview", InputTokens: 5, OutputTokens: 2})
	recorder.Stop()

	require.Len(t, counters.usage, 2)
	assert.Equal(t, 100, counters.usage[0].InputTokens)
	assert.Equal(t, []string{"key-1", "key-1"}, counters.requests)
	assert.Equal(t, []string{"key-1", "key-1"}, counters.touched)
	require.Len(t, durable.records, 2)
	assert.Equal(t, 40, durable.records[0].OutputTokens)
}

func TestRecorderStopDrainsQueued(t *testing.T) {
	durable := &recordingDurable{}
	recorder := NewRecorder(nil, durable)

	// Queue before the worker runs; Stop must still flush everything.
	for i := 0; i < 10; i++ {
		recorder.Enqueue(Record{KeyID: "key-1", Model: "m", InputTokens: i})
	}
	recorder.Start()
	recorder.Stop()

	assert.Len(t, durable.records, 10)
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	recorder := NewRecorder(nil, nil)

	// Worker not started, so the buffer fills; the overflow Enqueue must
	// return instead of blocking.
	for i := 0; i < recordBuffer+5; i++ {
		recorder.Enqueue(Record{KeyID: "key-1"})
	}

	assert.Len(t, recorder.records, recordBuffer)
}

func TestRecorderNilStores(t *testing.T) {
	recorder := NewRecorder(nil, nil)
	recorder.Start()
	recorder.Enqueue(Record{KeyID: "key-1"})
	recorder.Stop() // must not panic
}

func TestRecorderDuplicateStart(t *testing.T) {
	durable := &recordingDurable{}
	recorder := NewRecorder(nil, durable)

	recorder.Start()
	recorder.Start() // no-op
	recorder.Enqueue(Record{KeyID: "key-1", Model: "m"})
	recorder.Stop() // must not hang on a second worker's wg slot

	assert.Len(t, durable.records, 1)
}
