// Package config loads per-service configuration from the environment plus
// an optional policies.yaml overlay, following a load-merge-validate
// sequence. Each service has its own Load function so a binary only reads
// the variables it actually uses.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Gateway configures the public edge service.
type Gateway struct {
	Port        int    `validate:"min=1,max=65535"`
	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`

	// APIKeySalt is mixed into the one-way key hash. It must match the
	// value used when keys were provisioned.
	APIKeySalt string `validate:"required"`

	SentinelURL     string        `validate:"required,url"`
	SentinelTimeout time.Duration `validate:"gt=0"`

	CredentialCacheTTL time.Duration `validate:"gt=0"`
	PoliciesPath       string
}

// LoadGateway reads Gateway configuration from the environment.
func LoadGateway() (*Gateway, error) {
	cfg := &Gateway{
		Port:               getEnvInt("GATEWAY_PORT", 8000),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		APIKeySalt:         os.Getenv("API_KEY_SALT"),
		SentinelURL:        getEnvOrDefault("SENTINEL_SERVICE_URL", "http://sentinel:8001"),
		SentinelTimeout:    getEnvDuration("SENTINEL_TIMEOUT", 60*time.Second),
		CredentialCacheTTL: getEnvDuration("CREDENTIAL_CACHE_TTL", time.Minute),
		PoliciesPath:       os.Getenv("POLICIES_PATH"),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("gateway configuration invalid: %w", err)
	}
	return cfg, nil
}

// Sentinel configures the input-pipeline service.
type Sentinel struct {
	Port int `validate:"min=1,max=65535"`

	GuardianURL     string        `validate:"required,url"`
	GuardianTimeout time.Duration `validate:"gt=0"`
	ModelTimeout    time.Duration `validate:"gt=0"`

	Provider        string `validate:"oneof=gemini bedrock"`
	GeminiAPIKey    string `validate:"required_if=Provider gemini"`
	BedrockRegion   string `validate:"required_if=Provider bedrock"`
	BedrockModelID  string `validate:"required_if=Provider bedrock"`
	DefaultModel    string `validate:"required"`
	MaxOutputTokens int    `validate:"gt=0"`
	PoolLimit       int    `validate:"gt=0"`
}

// LoadSentinel reads Sentinel configuration from the environment.
func LoadSentinel() (*Sentinel, error) {
	cfg := &Sentinel{
		Port:            getEnvInt("SENTINEL_PORT", 8001),
		GuardianURL:     getEnvOrDefault("GUARDIAN_SERVICE_URL", "http://guardian:8002"),
		GuardianTimeout: getEnvDuration("GUARDIAN_TIMEOUT", 30*time.Second),
		ModelTimeout:    getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		Provider:        getEnvOrDefault("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		BedrockRegion:   os.Getenv("BEDROCK_REGION"),
		BedrockModelID:  os.Getenv("BEDROCK_MODEL_ID"),
		DefaultModel:    getEnvOrDefault("LLM_MODEL_NAME", "gemini-3-flash-preview"),
		MaxOutputTokens: getEnvInt("LLM_MAX_TOKENS", 8192),
		PoolLimit:       getEnvInt("MODEL_POOL_LIMIT", 16),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("sentinel configuration invalid: %w", err)
	}
	return cfg, nil
}

// Guardian configures the output-validation service.
type Guardian struct {
	Port int `validate:"min=1,max=65535"`

	Provider       string `validate:"oneof=gemini bedrock"`
	GeminiAPIKey   string `validate:"required_if=Provider gemini"`
	BedrockRegion  string `validate:"required_if=Provider bedrock"`
	BedrockModelID string `validate:"required_if=Provider bedrock"`

	// JudgeModel runs the hallucination, tone and toxicity checks.
	JudgeModel   string        `validate:"required"`
	JudgeTimeout time.Duration `validate:"gt=0"`

	DefaultModeration models.ModerationMode `validate:"required"`
	PoliciesPath      string
}

// LoadGuardian reads Guardian configuration from the environment.
func LoadGuardian() (*Guardian, error) {
	cfg := &Guardian{
		Port:              getEnvInt("GUARDIAN_PORT", 8002),
		Provider:          getEnvOrDefault("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		BedrockRegion:     os.Getenv("BEDROCK_REGION"),
		BedrockModelID:    os.Getenv("BEDROCK_MODEL_ID"),
		JudgeModel:        getEnvOrDefault("JUDGE_MODEL_NAME", "gemini-3-flash-preview"),
		JudgeTimeout:      getEnvDuration("JUDGE_TIMEOUT", 20*time.Second),
		DefaultModeration: models.ModerationMode(getEnvOrDefault("DEFAULT_MODERATION_MODE", "moderate")),
		PoliciesPath:      os.Getenv("POLICIES_PATH"),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("guardian configuration invalid: %w", err)
	}
	if !cfg.DefaultModeration.Valid() {
		return nil, fmt.Errorf("guardian configuration invalid: unknown moderation mode %q", cfg.DefaultModeration)
	}
	return cfg, nil
}
