package executor

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderCommand substitutes {param} placeholders in a command template
// with the stringified input values. Every placeholder must resolve;
// an unknown parameter is an error rather than an empty expansion.
func RenderCommand(template []string, inputs map[string]any) ([]string, error) {
	rendered := make([]string, 0, len(template))
	for _, arg := range template {
		var renderErr error
		out := placeholderRe.ReplaceAllStringFunc(arg, func(m string) string {
			name := m[1 : len(m)-1]
			val, ok := inputs[name]
			if !ok {
				renderErr = fmt.Errorf("command references undefined parameter %q", name)
				return m
			}
			return stringify(val)
		})
		if renderErr != nil {
			return nil, renderErr
		}
		rendered = append(rendered, out)
	}
	return rendered, nil
}

// stringify converts an input value to its command-line form.
// File lists join with spaces so a single placeholder can expand to
// multiple paths inside one argument.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, " ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
