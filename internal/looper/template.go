package looper

import (
	"regexp"
	"strings"
)

var (
	doublePlaceholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	singlePlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)
)

// Template is an endpoint with {key} or {{key}} placeholders. When the
// template holds any {{ the double-brace form is used, and after expansion
// the remaining double braces become single ones, ready for a further loop.
type Template struct {
	Raw    string
	Keys   []string
	double bool
}

// ParseTemplate finds the placeholder keys of raw, in order of first use
func ParseTemplate(raw string) *Template {
	t := &Template{Raw: raw, double: strings.Contains(raw, "{{")}
	pattern := singlePlaceholder
	if t.double {
		pattern = doublePlaceholder
	}
	seen := make(map[string]bool)
	for _, match := range pattern.FindAllStringSubmatch(raw, -1) {
		key := match[1]
		if !seen[key] {
			seen[key] = true
			t.Keys = append(t.Keys, key)
		}
	}
	return t
}

// Double reports whether the template uses {{key}} placeholders
func (t *Template) Double() bool {
	return t.double
}

// Expand substitutes values for the placeholders
func (t *Template) Expand(values map[string]string) string {
	out := t.Raw
	for _, key := range t.Keys {
		value, ok := values[key]
		if !ok {
			continue
		}
		if t.double {
			out = strings.ReplaceAll(out, "{{"+key+"}}", value)
		} else {
			out = strings.ReplaceAll(out, "{"+key+"}", value)
		}
	}
	if t.double {
		out = strings.ReplaceAll(out, "{{", "{")
		out = strings.ReplaceAll(out, "}}", "}")
	}
	return out
}
