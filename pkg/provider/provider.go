// Package provider holds the model clients used by the pipeline. Every stage
// that needs a completion receives a ModelClient capability; nothing in the
// pipeline constructs provider connections itself.
package provider

import "context"

// GenerateInput is one completion request.
type GenerateInput struct {
	System          string
	Prompt          string
	MaxOutputTokens int
}

// GenerateResult is the provider's reply with token accounting. Token counts
// are provider-reported when available and approximated otherwise.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ModelClient is a request-response connection to one model.
type ModelClient interface {
	// Generate produces a completion for the given input. The context bounds
	// the call; cancellation must abort the in-flight request.
	Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error)

	// Model returns the normalized model identifier this client talks to.
	Model() string
}

const approxCharsPerToken = 4

// ApproxTokens estimates a token count from text length, used when the
// provider does not report usage.
func ApproxTokens(text string) int {
	return len(text) / approxCharsPerToken
}
