package provider

import (
	"encoding/json"
	"strings"
)

// ParseFencedJSON unmarshals a model reply that may be wrapped in markdown
// code fences. Models asked for "JSON only" still fence their output often
// enough that every caller needs this.
func ParseFencedJSON(text string, v any) error {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	cleaned = strings.TrimSpace(cleaned)
	return json.Unmarshal([]byte(cleaned), v)
}
