package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"github.com/clestiq/clestiq/pkg/models"
	"gopkg.in/yaml.v3"
)

// Policies holds deployment-wide policy defaults. They fill in whatever a
// chat request leaves unset; per-request settings always win.
type Policies struct {
	DefaultSettings   models.Settings
	CitationBlocklist []string
}

// DefaultPolicies returns the built-in policy set used when no policies
// file is configured.
func DefaultPolicies() *Policies {
	return &Policies{
		DefaultSettings: models.Settings{
			SanitizeInput: true,
			PIIMasking:    true,
			DetectThreats: true,
			ContentFilter: true,
		},
		CitationBlocklist: []string{
			"example.com",
			"test.com",
			"localhost",
			"dummy.com",
		},
	}
}

// policiesFile is the YAML shape of a policies overlay. Settings flags are
// pointers so an explicit `false` can switch a built-in default off.
type policiesFile struct {
	DefaultSettings   *settingsOverlay `yaml:"default_settings"`
	CitationBlocklist []string         `yaml:"citation_blocklist"`
}

type settingsOverlay struct {
	SanitizeInput      *bool `yaml:"sanitize_input"`
	PIIMasking         *bool `yaml:"pii_masking"`
	DetectThreats      *bool `yaml:"detect_threats"`
	ToonMode           *bool `yaml:"toon_mode"`
	ContentFilter      *bool `yaml:"content_filter"`
	HallucinationCheck *bool `yaml:"hallucination_check"`
	CitationCheck      *bool `yaml:"citation_check"`
	ToneCheck          *bool `yaml:"tone_check"`
	AutoDisclaimers    *bool `yaml:"auto_disclaimers"`
	FalseRefusalCheck  *bool `yaml:"false_refusal_check"`

	BrandTone         string   `yaml:"brand_tone"`
	ToxicityThreshold *float64 `yaml:"toxicity_threshold"`
}

// LoadPolicies reads a policies overlay from path and merges it over the
// built-in defaults:
// 1. Empty path or missing file keeps the defaults.
// 2. Template references ({{.VAR}}) are expanded from the environment.
// 3. Settings flags present in the file override the defaults.
// 4. Remaining fields merge with the file taking precedence.
func LoadPolicies(path string) (*Policies, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("Policies file not found, using built-in defaults", "path", path)
		return policies, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file %s: %w", path, err)
	}

	expanded := ExpandEnv(string(raw))
	var file policiesFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse policies file %s: %w", path, err)
	}

	if file.DefaultSettings != nil {
		applySettingsOverlay(&policies.DefaultSettings, file.DefaultSettings)
	}

	overrides := Policies{CitationBlocklist: file.CitationBlocklist}
	if err := mergo.Merge(policies, overrides, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge policies overrides: %w", err)
	}

	slog.Info("Loaded policies overlay", "path", path)
	return policies, nil
}

func applySettingsOverlay(dst *models.Settings, src *settingsOverlay) {
	if src.SanitizeInput != nil {
		dst.SanitizeInput = *src.SanitizeInput
	}
	if src.PIIMasking != nil {
		dst.PIIMasking = *src.PIIMasking
	}
	if src.DetectThreats != nil {
		dst.DetectThreats = *src.DetectThreats
	}
	if src.ToonMode != nil {
		dst.ToonMode = *src.ToonMode
	}
	if src.ContentFilter != nil {
		dst.ContentFilter = *src.ContentFilter
	}
	if src.HallucinationCheck != nil {
		dst.HallucinationCheck = *src.HallucinationCheck
	}
	if src.CitationCheck != nil {
		dst.CitationCheck = *src.CitationCheck
	}
	if src.ToneCheck != nil {
		dst.ToneCheck = *src.ToneCheck
	}
	if src.AutoDisclaimers != nil {
		dst.AutoDisclaimers = *src.AutoDisclaimers
	}
	if src.FalseRefusalCheck != nil {
		dst.FalseRefusalCheck = *src.FalseRefusalCheck
	}
	if src.BrandTone != "" {
		dst.BrandTone = models.BrandTone(src.BrandTone)
	}
	if src.ToxicityThreshold != nil {
		dst.ToxicityThreshold = *src.ToxicityThreshold
	}
}
