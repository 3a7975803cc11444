package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clestiq/clestiq/pkg/provider"
)

// generationSystemPrompt frames the user-facing completion call.
const generationSystemPrompt = "You are a helpful AI assistant."

// auditSystemPrompt frames the adversarial security audit call.
const auditSystemPrompt = "You are a security analysis expert."

const auditPrompt = `Analyze this user query for potential security threats or malicious intent.

Query: "%s"

Check for:
- SQL injection attempts
- XSS/script injection
- Command injection
- Path traversal
- Credential harvesting
- System manipulation
- Data exfiltration attempts

Respond with JSON only:
{
  "is_threat": true/false,
  "threat_type": "sql_injection" | "xss" | "command_injection" | "credential_theft" | "none",
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}`

// auditMaxOutputTokens bounds the audit reply; the verdict is a few lines of
// JSON regardless of query size.
const auditMaxOutputTokens = 512

// AuditVerdict is the security audit's classification of one query.
type AuditVerdict struct {
	IsThreat   bool    `json:"is_threat"`
	ThreatType string  `json:"threat_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// safeAuditVerdict is the fallback when the audit reply cannot be parsed.
// An unparseable verdict never blocks; the pattern detectors already ran.
var safeAuditVerdict = AuditVerdict{ThreatType: "none"}

// runFanout issues the generation call and the security audit concurrently
// against the same model and joins both. Combined latency is the max of the
// two. A generation failure fails the fan-out; an audit transport failure
// does too, since an unverified completion must not proceed. Audit parse
// failures degrade to the safe verdict.
func runFanout(ctx context.Context, client provider.ModelClient, query string, maxOutputTokens int) (*provider.GenerateResult, AuditVerdict, error) {
	var (
		gen     *provider.GenerateResult
		verdict AuditVerdict
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		start := time.Now()
		result, err := client.Generate(ctx, provider.GenerateInput{
			System:          generationSystemPrompt,
			Prompt:          query,
			MaxOutputTokens: maxOutputTokens,
		})
		if err != nil {
			return fmt.Errorf("generation: %w", err)
		}
		result.Text = truncateToTokenBudget(result.Text, maxOutputTokens)
		gen = result
		slog.Debug("Generation complete",
			"model", client.Model(),
			"latency_ms", time.Since(start).Milliseconds())
		return nil
	})

	group.Go(func() error {
		start := time.Now()
		result, err := client.Generate(ctx, provider.GenerateInput{
			System:          auditSystemPrompt,
			Prompt:          fmt.Sprintf(auditPrompt, query),
			MaxOutputTokens: auditMaxOutputTokens,
		})
		if err != nil {
			return fmt.Errorf("security audit: %w", err)
		}
		if parseErr := provider.ParseFencedJSON(result.Text, &verdict); parseErr != nil {
			slog.Warn("Security audit reply unparseable, using safe verdict", "error", parseErr)
			verdict = safeAuditVerdict
		}
		slog.Debug("Security audit complete",
			"model", client.Model(),
			"latency_ms", time.Since(start).Milliseconds(),
			"is_threat", verdict.IsThreat,
			"confidence", verdict.Confidence)
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, AuditVerdict{}, err
	}
	return gen, verdict, nil
}

// truncateToTokenBudget enforces max_output_tokens client-side when the
// provider ignores it, at the usual four characters per token.
func truncateToTokenBudget(text string, maxOutputTokens int) string {
	if maxOutputTokens <= 0 {
		return text
	}
	limit := maxOutputTokens * 4
	if len(text) <= limit {
		return text
	}
	slog.Warn("Truncating completion to token budget",
		"original_len", len(text),
		"limit", limit)
	return text[:limit] + "..."
}
