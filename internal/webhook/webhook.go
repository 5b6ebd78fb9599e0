// Package webhook posts the failure report to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/osbits/obtmon/internal/render"
)

// DefaultTemplate sends the report as plain text.
const DefaultTemplate = "{{ .report }}"

// Config describes the endpoint.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	// Template renders the request body from .report and .hostname.
	Template string
	Timeout  time.Duration
}

// Sender delivers reports to one endpoint.
type Sender struct {
	cfg      Config
	renderer *render.Engine
	client   *http.Client
}

// New creates a sender. A nil renderer uses render.New.
func New(cfg Config, renderer *render.Engine) (*Sender, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if renderer == nil {
		renderer = render.New()
	}
	return &Sender{
		cfg:      cfg,
		renderer: renderer,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Send renders the body for report and delivers it. Any status of 300 or
// more is an error.
func (s *Sender) Send(ctx context.Context, report string) error {
	hostname, _ := os.Hostname()
	data := map[string]interface{}{
		"report":   report,
		"hostname": hostname,
		"sent_at":  time.Now().UTC(),
	}
	payload, err := s.renderer.RenderString(s.cfg.Template, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewBufferString(payload))
	if err != nil {
		return err
	}
	if len(s.cfg.Headers) > 0 {
		headers, err := s.renderer.RenderMap(s.cfg.Headers, data)
		if err != nil {
			return fmt.Errorf("render headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		if strings.HasPrefix(strings.TrimSpace(payload), "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain")
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook response: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// ParseHeaders reads repeated K=V flag values.
func ParseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, val, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected KEY=VALUE", v)
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers, nil
}
