// Package prompt renders the named-slot templates that extractors and
// generator rounds build their prompts from. Keeping prompts as templates
// with explicit variables makes them auditable in one place.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces {{variable}} placeholders in the template with values
// from vars; every variable in the template must be supplied.
func Render(template string, vars map[string]string) (string, error) {
	missing := findMissingVars(template, vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	}), nil
}

// MustRender is Render for templates whose variables are fixed at compile
// time; a missing variable is a programming error.
func MustRender(template string, vars map[string]string) string {
	out, err := Render(template, vars)
	if err != nil {
		panic(err)
	}
	return out
}

// ExtractVariables returns the distinct variable names in the template.
func ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

func findMissingVars(template string, vars map[string]string) []string {
	required := ExtractVariables(template)
	var missing []string
	for _, v := range required {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
