package e2e

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/clestiq/clestiq/pkg/provider"
)

// callKind classifies a model call by its prompt shape. The pipeline issues
// five distinct call types against the same provider; routing on shape keeps
// scripts stable under the non-deterministic ordering of concurrent calls.
type callKind string

const (
	callGeneration    callKind = "generation"
	callSecurityAudit callKind = "security_audit"
	callToxicity      callKind = "toxicity_judge"
	callHallucination callKind = "hallucination_judge"
	callTone          callKind = "tone_judge"
)

// classify maps one model call to its kind.
func classify(in provider.GenerateInput) callKind {
	switch {
	case in.System == "You are a security analysis expert.":
		return callSecurityAudit
	case strings.HasPrefix(in.Prompt, "Rate the toxicity"):
		return callToxicity
	case strings.Contains(in.Prompt, "factual accuracy judge"):
		return callHallucination
	case strings.Contains(in.Prompt, "brand tone analyzer"):
		return callTone
	default:
		return callGeneration
	}
}

// LLMScriptEntry defines a single scripted model response.
type LLMScriptEntry struct {
	Text  string        // response body; ignored when Echo or Err is set
	Echo  bool          // return the prompt verbatim (generation calls)
	Err   error         // return an error from Generate()
	Delay time.Duration // sleep before responding, honoring ctx cancellation
}

// kindDefaults are the benign replies returned when a kind's script is
// exhausted: clean audit, zero toxicity, no hallucination, compliant tone.
var kindDefaults = map[callKind]string{
	callGeneration:    "All clear.",
	callSecurityAudit: `{"is_threat": false, "threat_type": "none", "confidence": 0.0, "reasoning": "benign"}`,
	callToxicity:      `{"toxicity_score": 0.0, "categories": []}`,
	callHallucination: `{"hallucination_detected": false, "confidence": 0.9, "details": null}`,
	callTone:          `{"tone_compliant": true, "detected_tone": "professional", "violation_reason": null}`,
}

// ScriptedModelClient implements provider.ModelClient with per-kind response
// scripts. Entries are consumed in order per kind; an exhausted script falls
// back to the kind's benign default, so tests only script what they assert.
type ScriptedModelClient struct {
	mu       sync.Mutex
	scripts  map[callKind][]LLMScriptEntry
	index    map[callKind]int
	captured map[callKind][]provider.GenerateInput
}

// NewScriptedModelClient creates an empty scripted client.
func NewScriptedModelClient() *ScriptedModelClient {
	return &ScriptedModelClient{
		scripts:  make(map[callKind][]LLMScriptEntry),
		index:    make(map[callKind]int),
		captured: make(map[callKind][]provider.GenerateInput),
	}
}

// Script appends one entry to a kind's response script.
func (c *ScriptedModelClient) Script(kind callKind, entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[kind] = append(c.scripts[kind], entry)
}

// Calls returns the captured inputs of one kind, in arrival order.
func (c *ScriptedModelClient) Calls(kind callKind) []provider.GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.GenerateInput(nil), c.captured[kind]...)
}

// CallCount returns how many calls of one kind arrived.
func (c *ScriptedModelClient) CallCount(kind callKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured[kind])
}

// Generate implements provider.ModelClient.
func (c *ScriptedModelClient) Generate(ctx context.Context, in provider.GenerateInput) (*provider.GenerateResult, error) {
	kind := classify(in)

	c.mu.Lock()
	c.captured[kind] = append(c.captured[kind], in)
	var entry LLMScriptEntry
	if i := c.index[kind]; i < len(c.scripts[kind]) {
		entry = c.scripts[kind][i]
		c.index[kind] = i + 1
	} else {
		entry = LLMScriptEntry{Text: kindDefaults[kind]}
	}
	c.mu.Unlock()

	if entry.Delay > 0 {
		select {
		case <-time.After(entry.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if entry.Err != nil {
		return nil, entry.Err
	}

	text := entry.Text
	if entry.Echo {
		text = in.Prompt
	}
	inputTokens := provider.ApproxTokens(in.Prompt)
	if inputTokens == 0 {
		inputTokens = 1
	}
	outputTokens := provider.ApproxTokens(text)
	if outputTokens == 0 {
		outputTokens = 1
	}
	return &provider.GenerateResult{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// Model implements provider.ModelClient.
func (c *ScriptedModelClient) Model() string {
	return provider.DefaultModel
}
