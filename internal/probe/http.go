package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"
	"golang.org/x/net/publicsuffix"
)

// HTTPOptions configures an HTTP probe.
type HTTPOptions struct {
	User     string
	Password string
	// ExpectStatus requires an exact status code; zero accepts anything below 400.
	ExpectStatus int
	JSONPath     string
	// Expect is compared with the JSONPath value; empty only requires it to exist.
	Expect  string
	Timeout time.Duration
}

// NormalizeURL prefixes http:// when raw has no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}

// NewHTTPClient builds a client with a publicsuffix-aware cookie jar, so
// cookies set across redirects are kept.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// FetchHTTP requests target and returns an error describing why the probe failed.
func FetchHTTP(ctx context.Context, client *http.Client, target string, opts HTTPOptions) error {
	url := NormalizeURL(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if opts.User != "" {
		req.SetBasicAuth(opts.User, opts.Password)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch url: %s (error: %w)", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if opts.ExpectStatus != 0 {
		if resp.StatusCode != opts.ExpectStatus {
			return fmt.Errorf("failed to fetch url: %s (expected status %d, got %d)", url, opts.ExpectStatus, resp.StatusCode)
		}
	} else if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to fetch url: %s (error: HTTP %s)", url, resp.Status)
	}

	if opts.JSONPath == "" {
		return nil
	}
	return assertJSONPath(body, opts.JSONPath, opts.Expect)
}

func assertJSONPath(body []byte, path, expect string) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	val, err := jsonpath.JsonPathLookup(doc, path)
	if err != nil {
		return fmt.Errorf("jsonpath lookup %s: %w", path, err)
	}
	if val == nil {
		return fmt.Errorf("jsonpath %s does not exist", path)
	}
	if expect != "" && !matchValue(val, expect) {
		return fmt.Errorf("jsonpath %s: expected %q, got %v", path, expect, val)
	}
	return nil
}
