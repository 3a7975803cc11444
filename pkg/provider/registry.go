package provider

import "strings"

// DefaultModel is used when a request names no model or an unknown one.
const DefaultModel = "gemini-3-flash-preview"

// supportedModels maps accepted identifiers to the normalized model name.
var supportedModels = map[string]string{
	"gemini-3-pro-preview":   "gemini-3-pro-preview",
	"gemini-3-flash-preview": "gemini-3-flash-preview",
	"default":                DefaultModel,
}

// NormalizeModel resolves a requested model identifier against the supported
// set. Unknown identifiers fall back to defaultModel, or DefaultModel when
// that is empty too.
func NormalizeModel(requested, defaultModel string) string {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	if requested == "" {
		return defaultModel
	}
	if m, ok := supportedModels[requested]; ok {
		return m
	}
	if m, ok := supportedModels[strings.ToLower(strings.TrimSpace(requested))]; ok {
		return m
	}
	return defaultModel
}
