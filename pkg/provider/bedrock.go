package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockConfig configures the AWS Bedrock client, the alternate provider
// for deployments that cannot reach Gemini.
type BedrockConfig struct {
	Region  string
	ModelID string

	// EndpointOverride points the client at a custom endpoint, used for VPC
	// endpoints and tests.
	EndpointOverride string
}

// BedrockClient talks to AWS Bedrock using the Anthropic messages format.
type BedrockClient struct {
	modelID string
	client  *bedrockruntime.Client
}

// NewBedrockClient creates a Bedrock client using the standard AWS
// credential chain.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("bedrock model ID is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*bedrockruntime.Options)
	if cfg.EndpointOverride != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointOverride)
		})
	}

	return &BedrockClient{
		modelID: cfg.ModelID,
		client:  bedrockruntime.NewFromConfig(awsCfg, opts...),
	}, nil
}

// Model returns the Bedrock model identifier.
func (c *BedrockClient) Model() string {
	return c.modelID
}

// Generate invokes the model and returns the joined text content.
func (c *BedrockClient) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	body, err := buildAnthropicBody(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build bedrock request: %w", err)
	}

	output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke failed: %w", err)
	}

	result, err := parseAnthropicBody(output.Body)
	if err != nil {
		return nil, err
	}
	if result.InputTokens == 0 {
		result.InputTokens = ApproxTokens(in.Prompt)
	}
	if result.OutputTokens == 0 {
		result.OutputTokens = ApproxTokens(result.Text)
	}
	return result, nil
}

type anthropicMessage struct {
	Role    string               `json:"role"`
	Content []anthropicTextBlock `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
}

func buildAnthropicBody(in GenerateInput) ([]byte, error) {
	maxTokens := in.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		System:           in.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicTextBlock{{Type: "text", Text: in.Prompt}}},
		},
		MaxTokens: maxTokens,
	})
}

func parseAnthropicBody(body []byte) (*GenerateResult, error) {
	var parsed struct {
		Content []anthropicTextBlock `json:"content"`
		Usage   struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &GenerateResult{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
