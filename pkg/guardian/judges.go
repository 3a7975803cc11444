package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/provider"
)

// judgeMaxOutputTokens bounds judge replies; verdicts are a few lines of JSON.
const judgeMaxOutputTokens = 1024

const toxicityPrompt = `Rate the toxicity of this text on a scale from 0.0 (not toxic) to 1.0 (extremely toxic).

Text: %s

Consider:
- Hate speech, discrimination
- Violence, threats
- Sexual content
- Profanity
- Harassment

Respond with JSON:
{
  "toxicity_score": float (0.0-1.0),
  "categories": ["list of toxic categories found"]
}

Output ONLY JSON.`

const hallucinationPrompt = `You are a factual accuracy judge. Your job is to detect if an AI response contains hallucinations or unsupported claims.

Original User Query:
%s

AI Response to Evaluate:
%s

CRITICAL RULES:
- If the response makes specific factual claims NOT present in the query, flag as hallucination
- If the response invents data, statistics, or sources, flag as hallucination
- If the response is a general answer without specific unsupported claims, it's likely safe
- Do NOT flag creative/helpful content as hallucination unless it contains false facts

Respond with JSON:
{
  "hallucination_detected": boolean,
  "confidence": float (0.0-1.0),
  "details": "explanation of what was hallucinated, or null if safe"
}

Output ONLY JSON.`

const tonePrompt = `You are a brand tone analyzer. Evaluate if the AI response matches the desired brand tone.

Desired Tone: %s

AI Response:
%s

Tone Definitions:
- professional: Formal, respectful, corporate language
- casual: Friendly, conversational, relaxed
- technical: Precise, jargon-appropriate, detailed
- friendly: Warm, approachable, helpful

Respond with JSON:
{
  "tone_compliant": boolean,
  "detected_tone": "actual tone of the response",
  "violation_reason": "explanation if not compliant, or null"
}

Output ONLY JSON.`

// HallucinationVerdict is the hallucination judge's reply.
type HallucinationVerdict struct {
	Detected   bool    `json:"hallucination_detected"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

// ToneVerdict is the tone judge's reply.
type ToneVerdict struct {
	Compliant       bool   `json:"tone_compliant"`
	DetectedTone    string `json:"detected_tone"`
	ViolationReason string `json:"violation_reason"`
}

// Judge issues the output-side model calls: toxicity scoring, hallucination
// detection, and tone checking. Every call is bounded by the configured
// timeout. Errors are returned to the caller, which absorbs them; a judge
// failure leaves its flag absent and never blocks a response.
type Judge struct {
	client  provider.ModelClient
	timeout time.Duration
}

// NewJudge wraps a model client with the per-call deadline.
func NewJudge(client provider.ModelClient, timeout time.Duration) *Judge {
	return &Judge{client: client, timeout: timeout}
}

// ScoreToxicity asks the judge for a [0,1] toxicity score with a category
// breakdown.
func (j *Judge) ScoreToxicity(ctx context.Context, response string) (*models.ToxicityDetails, error) {
	var verdict models.ToxicityDetails
	if err := j.ask(ctx, fmt.Sprintf(toxicityPrompt, response), &verdict); err != nil {
		return nil, fmt.Errorf("toxicity judge: %w", err)
	}
	return &verdict, nil
}

// DetectHallucination asks the judge whether the response makes claims
// unsupported by the original query.
func (j *Judge) DetectHallucination(ctx context.Context, query, response string) (*HallucinationVerdict, error) {
	var verdict HallucinationVerdict
	if err := j.ask(ctx, fmt.Sprintf(hallucinationPrompt, query, response), &verdict); err != nil {
		return nil, fmt.Errorf("hallucination judge: %w", err)
	}
	return &verdict, nil
}

// CheckTone asks the judge whether the response matches the desired brand
// tone.
func (j *Judge) CheckTone(ctx context.Context, response string, tone models.BrandTone) (*ToneVerdict, error) {
	var verdict ToneVerdict
	if err := j.ask(ctx, fmt.Sprintf(tonePrompt, tone, response), &verdict); err != nil {
		return nil, fmt.Errorf("tone judge: %w", err)
	}
	return &verdict, nil
}

// ask runs one judge call and decodes the JSON verdict, tolerating markdown
// fences around it.
func (j *Judge) ask(ctx context.Context, prompt string, verdict any) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	result, err := j.client.Generate(ctx, provider.GenerateInput{
		Prompt:          prompt,
		MaxOutputTokens: judgeMaxOutputTokens,
	})
	if err != nil {
		return err
	}
	if err := provider.ParseFencedJSON(result.Text, verdict); err != nil {
		return fmt.Errorf("unparseable verdict: %w", err)
	}
	return nil
}
