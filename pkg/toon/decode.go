package toon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Decode parses compact text back into the JSON value it encodes, expanding
// abbreviated keys. The boolean result reports success; on any parse error
// the original text is returned unchanged so the caller can fall back to the
// raw form.
func Decode(text string) (any, bool) {
	p := &parser{src: strings.TrimSpace(text)}
	v, err := p.value()
	if err == nil {
		p.skipSpace()
		if p.pos != len(p.src) {
			err = p.errorf("trailing characters")
		}
	}
	if err != nil {
		slog.Warn("Compact decode failed, returning raw text", "error", err)
		return text, false
	}
	return expandKeys(v), true
}

// expandKeys rewrites abbreviated object keys back to their verbose form,
// recursively.
func expandKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if full, ok := expansions[k]; ok {
				k = full
			}
			out[k] = expandKeys(val)
		}
		return out
	case []any:
		for i, item := range x {
			x[i] = expandKeys(item)
		}
		return x
	default:
		return v
	}
}

// parser is a small recursive-descent parser over the compact grammar. A
// hand-written parser is required because the sentinels T, F and ~ are only
// meaningful outside quoted strings, which no substitution pass can
// distinguish reliably.
type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '~':
		p.pos++
		return nil, nil
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		return p.quotedString()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case isWordChar(c):
		return p.word()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

// word handles the single-letter boolean sentinels plus the plain JSON
// literals, so output that is already valid JSON still decodes.
func (p *parser) word() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isWordChar(p.src[p.pos]) {
		p.pos++
	}
	switch w := p.src[start:p.pos]; w {
	case "T", "true":
		return true, nil
	case "F", "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		return nil, p.errorf("unexpected literal %q", w)
	}
}

func (p *parser) object() (map[string]any, error) {
	p.pos++ // consume {
	obj := make(map[string]any)

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return obj, nil
	}
	for {
		key, err := p.key()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++

		val, err := p.value()
		if err != nil {
			return nil, err
		}
		obj[key] = val

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, nil
		default:
			return nil, p.errorf("expected ',' or '}' in object")
		}
	}
}

// key accepts either a bare identifier or a quoted string.
func (p *parser) key() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return "", p.errorf("expected object key")
	}
	if p.src[p.pos] == '"' {
		return p.quotedString()
	}
	start := p.pos
	for p.pos < len(p.src) && isWordChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected object key")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) array() ([]any, error) {
	p.pos++ // consume [
	arr := []any{}

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return arr, nil
	}
	for {
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr, nil
		default:
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

// quotedString reads a double-quoted string. Only \\ and \" are escape
// sequences; any other backslash pair passes through verbatim, mirroring the
// encoder.
func (p *parser) quotedString() (string, error) {
	p.pos++ // consume opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			next := p.src[p.pos+1]
			if next == '\\' || next == '"' {
				sb.WriteByte(next)
			} else {
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			p.pos += 2
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) number() (json.Number, error) {
	start := p.pos
	for p.pos < len(p.src) && isNumberChar(p.src[p.pos]) {
		p.pos++
	}
	raw := p.src[start:p.pos]
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return "", p.errorf("invalid number %q", raw)
	}
	return json.Number(raw), nil
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') ||
		c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}
