package analysis

// Key-tolerant accessors for parsed LLM output. Models drift between
// camelCase and snake_case; extractors accept either and emit the canonical
// struct form.

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func pickStringSlice(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch vv := v.(type) {
		case []any:
			var out []string
			for _, item := range vv {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				} else if obj, ok := item.(map[string]any); ok {
					// Some models wrap list items in objects; keep any text field.
					if s := pickString(obj, "text", "description", "value", "name"); s != "" {
						out = append(out, s)
					}
				}
			}
			return out
		case string:
			if vv != "" {
				return []string{vv}
			}
		}
	}
	return nil
}

func pickObjectSlice(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		var out []map[string]any
		for _, item := range arr {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

func pickInt(m map[string]any, fallback int, keys ...string) int {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}
	return fallback
}
