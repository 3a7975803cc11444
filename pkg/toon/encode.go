// Package toon implements the compact text encoding used to shrink JSON-like
// prompts before they reach the model provider. The encoding abbreviates a
// fixed dictionary of keys, shortens scalar sentinels (null→~, true→T,
// false→F), drops quotes around identifier keys, and strips insignificant
// whitespace. Decode is the exact inverse; anything that is not valid JSON
// passes through untouched.
package toon

import (
	"encoding/json"
	"io"
	"regexp"
	"sort"
	"strings"
)

// CharsPerToken is the rough character-per-token estimate used for savings
// accounting.
const CharsPerToken = 4

// abbreviations maps verbose keys to their compact form.
var abbreviations = map[string]string{
	"prompt":      "p",
	"message":     "m",
	"content":     "c",
	"role":        "r",
	"system":      "s",
	"user":        "u",
	"assistant":   "a",
	"temperature": "t",
	"max_tokens":  "mt",
	"messages":    "ms",
	"context":     "ctx",
	"history":     "h",
	"response":    "res",
	"request":     "req",
}

// expansions is the reverse dictionary, applied on decode.
var expansions = func() map[string]string {
	m := make(map[string]string, len(abbreviations))
	for k, v := range abbreviations {
		m[v] = k
	}
	return m
}()

var identifierKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Encode compacts text when it parses as a JSON value; otherwise the text is
// returned trimmed. The second result is the estimated token saving,
// (original chars − encoded chars) / 4, clamped at zero.
func Encode(text string) (string, int) {
	encoded := strings.TrimSpace(text)

	if v, ok := parseJSON(text); ok {
		var sb strings.Builder
		encodeValue(&sb, v)
		encoded = sb.String()
	}

	saved := (len(text) - len(encoded)) / CharsPerToken
	if saved < 0 {
		saved = 0
	}
	return encoded, saved
}

// parseJSON decodes text as a single JSON value with numbers kept verbatim.
// Trailing garbage disqualifies the whole text.
func parseJSON(text string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

func encodeValue(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteByte('~')
	case bool:
		if x {
			sb.WriteByte('T')
		} else {
			sb.WriteByte('F')
		}
	case string:
		encodeString(sb, x)
	case json.Number:
		sb.WriteString(x.String())
	case []any:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeValue(sb, item)
		}
		sb.WriteByte(']')
	case map[string]any:
		// Sorted keys keep the encoding deterministic.
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeKey(sb, k)
			sb.WriteByte(':')
			encodeValue(sb, x[k])
		}
		sb.WriteByte('}')
	}
}

func encodeKey(sb *strings.Builder, key string) {
	if abbr, ok := abbreviations[key]; ok {
		key = abbr
	}
	if identifierKey.MatchString(key) {
		sb.WriteString(key)
		return
	}
	encodeString(sb, key)
}

// encodeString writes a minimally escaped quoted string: only backslash and
// double quote are escaped, everything else passes through verbatim.
func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteByte(s[i])
		}
	}
	sb.WriteByte('"')
}

var unquotedKeyPattern = regexp.MustCompile(`[{,]\w+:`)

// IsEncoded reports whether text looks like the compact form: an object with
// unquoted keys or the ~ null sentinel. It is a cheap heuristic; Decode is
// the authority.
func IsEncoded(text string) bool {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return false
	}
	return unquotedKeyPattern.MatchString(t) || strings.Contains(t, "~")
}
