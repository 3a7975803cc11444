// Package usage records per-key token and request accounting. The hot
// counters live in Redis; the durable record is the credential row itself.
// All writes happen off the request path so accounting can never hold up or
// fail a response.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CounterStore keeps the advisory per-key usage counters.
type CounterStore interface {
	// IncrUsage atomically bumps the input/output token counters for one
	// key and model.
	IncrUsage(ctx context.Context, keyID, model string, inputTokens, outputTokens int) error
	// IncrRequests atomically bumps the request counter for one key.
	IncrRequests(ctx context.Context, keyID string) error
	// TouchLastUsed stamps the key's last-used time.
	TouchLastUsed(ctx context.Context, keyID string) error
}

// DurableStore is the persistent usage record on the credential row.
type DurableStore interface {
	RecordUsage(ctx context.Context, keyID, model string, inputTokens, outputTokens int) error
}

// Record is one completed request's accounting delta.
type Record struct {
	KeyID        string
	Model        string
	InputTokens  int
	OutputTokens int
}

const (
	recordBuffer = 256
	applyTimeout = 5 * time.Second
)

// Recorder drains queued usage records onto the counter and durable stores
// from a single background worker. Either store may be nil, in which case
// that half of the accounting is skipped.
type Recorder struct {
	counters CounterStore
	durable  DurableStore

	records  chan Record
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewRecorder builds a Recorder over the given stores.
func NewRecorder(counters CounterStore, durable DurableStore) *Recorder {
	return &Recorder{
		counters: counters,
		durable:  durable,
		records:  make(chan Record, recordBuffer),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the background worker. It is safe to call multiple times;
// subsequent calls are no-ops.
func (r *Recorder) Start() {
	if r.started {
		slog.Warn("Usage recorder already started, ignoring duplicate Start call")
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()
}

// Stop signals the worker to finish and waits for queued records to drain.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Enqueue hands a record to the background worker without blocking. When the
// buffer is full the record is dropped with a warning; accounting loss is
// preferable to a stalled response.
func (r *Recorder) Enqueue(rec Record) {
	select {
	case r.records <- rec:
	default:
		slog.Warn("Usage record buffer full, dropping record",
			"key_id", rec.KeyID,
			"model", rec.Model)
	}
}

func (r *Recorder) run() {
	for {
		select {
		case rec := <-r.records:
			r.apply(rec)
		case <-r.stopCh:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case rec := <-r.records:
					r.apply(rec)
				default:
					return
				}
			}
		}
	}
}

// apply writes one record to both stores. Failures are logged and never
// propagated; the response this record belongs to is long gone.
func (r *Recorder) apply(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	if r.counters != nil {
		if err := r.counters.IncrUsage(ctx, rec.KeyID, rec.Model, rec.InputTokens, rec.OutputTokens); err != nil {
			slog.Error("Failed to bump usage counters", "key_id", rec.KeyID, "error", err)
		}
		if err := r.counters.IncrRequests(ctx, rec.KeyID); err != nil {
			slog.Error("Failed to bump request counter", "key_id", rec.KeyID, "error", err)
		}
		if err := r.counters.TouchLastUsed(ctx, rec.KeyID); err != nil {
			slog.Error("Failed to touch last-used stamp", "key_id", rec.KeyID, "error", err)
		}
	}

	if r.durable != nil {
		if err := r.durable.RecordUsage(ctx, rec.KeyID, rec.Model, rec.InputTokens, rec.OutputTokens); err != nil {
			slog.Error("Failed to persist usage record", "key_id", rec.KeyID, "error", err)
		}
	}
}
