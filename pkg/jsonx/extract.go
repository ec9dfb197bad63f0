// Package jsonx recovers JSON values from noisy LLM output.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedRe        = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoteRe   = regexp.MustCompile(`'([^'\\\n]*)'`)
)

// Extract tries, in order: a fenced code block, the whole text, the
// outermost balanced brace substring, and finally common repairs on each
// candidate. The boolean is false when nothing decodable was found.
func Extract(text string) (any, bool) {
	var candidates []string
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, strings.TrimSpace(text))
	if s, ok := balancedBraces(text); ok {
		candidates = append(candidates, s)
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if v, ok := tryDecode(c); ok {
			return v, true
		}
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if v, ok := tryDecode(Repair(c)); ok {
			return v, true
		}
	}
	return nil, false
}

// ExtractObject is Extract narrowed to JSON objects.
func ExtractObject(text string) (map[string]any, bool) {
	v, ok := Extract(text)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// ExtractArray is Extract narrowed to JSON arrays.
func ExtractArray(text string) ([]any, bool) {
	v, ok := Extract(text)
	if !ok {
		// An object-first scan can shadow a top-level array; look for one
		// explicitly.
		if s, found := balancedBrackets(text); found {
			if arr, ok2 := tryDecode(s); ok2 {
				if a, isArr := arr.([]any); isArr {
					return a, true
				}
			}
		}
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

// Repair applies the two fixes that cover most malformed model output:
// trailing commas and single-quoted keys or simple values.
func Repair(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = singleQuoteRe.ReplaceAllString(s, `"$1"`)
	return s
}

func tryDecode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

// balancedBraces returns the outermost {...} substring, honoring strings and
// escape sequences.
func balancedBraces(text string) (string, bool) {
	return balanced(text, '{', '}')
}

func balancedBrackets(text string) (string, bool) {
	return balanced(text, '[', ']')
}

func balanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
