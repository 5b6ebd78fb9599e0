// Package render expands text/template strings used for report headers and
// webhook payloads.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/osbits/obtmon/internal/config"
)

// Engine renders template strings with helper functions.
type Engine struct {
	// Secret resolves "<source>:<value>" references. Defaults to config.ResolveSecret.
	Secret func(ref string) (string, error)
}

// New creates a new template engine.
func New() *Engine {
	return &Engine{Secret: config.ResolveSecret}
}

// RenderString renders tmpl against data.
func (e *Engine) RenderString(tmpl string, data map[string]interface{}) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	resolve := e.Secret
	if resolve == nil {
		resolve = config.ResolveSecret
	}
	t, err := template.New("tpl").Option("missingkey=zero").Funcs(template.FuncMap{
		"secret": resolve,
		"env":    os.Getenv,
		"upper":  strings.ToUpper,
		"join":   strings.Join,
		"rfc3339": func(t time.Time) string {
			return t.Format(time.RFC3339)
		},
		"to_json": func(v interface{}) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// RenderMap applies templates to each value in a map.
func (e *Engine) RenderMap(values map[string]string, data map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for key, val := range values {
		rendered, err := e.RenderString(val, data)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", key, err)
		}
		out[key] = rendered
	}
	return out, nil
}
