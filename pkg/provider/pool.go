package provider

import (
	"fmt"
	"sync"
)

// Factory builds a ModelClient for a normalized model name and output limit.
type Factory func(model string, maxOutputTokens int) (ModelClient, error)

// DefaultPoolLimit bounds the number of distinct cached clients.
const DefaultPoolLimit = 16

// Pool caches model clients keyed by (model, max_output_tokens). Clients are
// stateless wrappers around a shared transport, so eviction is safe at any
// time.
type Pool struct {
	mu      sync.Mutex
	factory Factory
	clients map[poolKey]ModelClient
	limit   int
}

type poolKey struct {
	model     string
	maxTokens int
}

// NewPool creates a bounded client pool. A limit of zero or less falls back
// to DefaultPoolLimit.
func NewPool(factory Factory, limit int) *Pool {
	if limit <= 0 {
		limit = DefaultPoolLimit
	}
	return &Pool{
		factory: factory,
		clients: make(map[poolKey]ModelClient),
		limit:   limit,
	}
}

// Get returns the cached client for (model, maxOutputTokens), building one
// through the factory on first use.
func (p *Pool) Get(model string, maxOutputTokens int) (ModelClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey{model: model, maxTokens: maxOutputTokens}
	if client, ok := p.clients[key]; ok {
		return client, nil
	}

	client, err := p.factory(model, maxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build client for model %s: %w", model, err)
	}

	if len(p.clients) >= p.limit {
		// Evict an arbitrary entry to stay bounded.
		for k := range p.clients {
			delete(p.clients, k)
			break
		}
	}
	p.clients[key] = client
	return client, nil
}

// Size returns the number of cached clients.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
