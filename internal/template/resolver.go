package template

import (
	"fmt"
	"strings"
)

// Resolver renders message content from registered templates. The lookup
// table is built once at startup and never mutated afterwards, so it is safe
// for concurrent use by every consumer that holds a reference.
type Resolver struct {
	templates map[string]string
}

// NewResolver builds an immutable resolver from the given template bodies,
// keyed by template code.
func NewResolver(templates map[string]string) *Resolver {
	copied := make(map[string]string, len(templates))
	for code, body := range templates {
		copied[code] = body
	}
	return &Resolver{templates: copied}
}

// Resolve renders the template registered under code with the given
// variables. An unknown code is an error — a malformed reference should not
// silently send an empty message.
func (r *Resolver) Resolve(code string, vars map[string]string) (string, error) {
	body, ok := r.templates[code]
	if !ok {
		return "", fmt.Errorf("unknown template code: %s", code)
	}
	return Render(body, vars), nil
}

// Has reports whether a template code is registered.
func (r *Resolver) Has(code string) bool {
	_, ok := r.templates[code]
	return ok
}

// Render substitutes {name} placeholders with their variable values. Missing
// variables render as <unknown> rather than leaking the raw placeholder.
func Render(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		if value == "" {
			value = "<unknown>"
		}
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
