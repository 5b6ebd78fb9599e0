package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupportedSecret is returned for secret references with an unknown source.
var ErrUnsupportedSecret = errors.New("unsupported secret source")

// SecretSpec describes where a secret lives, e.g. "env:SMTP_PASSWORD" or
// "file:/run/secrets/smtp".
type SecretSpec struct {
	Source string
	Value  string
}

// ParseSecret parses a "<source>:<value>" reference.
func ParseSecret(ref string) (SecretSpec, error) {
	raw := strings.TrimSpace(ref)
	source, value, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(value) == "" {
		return SecretSpec{}, fmt.Errorf("invalid secret spec %q", raw)
	}
	return SecretSpec{Source: strings.TrimSpace(source), Value: strings.TrimSpace(value)}, nil
}

// Resolve returns the secret value.
func (s SecretSpec) Resolve() (string, error) {
	switch s.Source {
	case "env":
		val, ok := os.LookupEnv(s.Value)
		if !ok {
			return "", fmt.Errorf("missing env var %q", s.Value)
		}
		return val, nil
	case "file":
		data, err := os.ReadFile(s.Value)
		if err != nil {
			return "", fmt.Errorf("read secret file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedSecret, s.Source)
	}
}

// ResolveSecret parses and resolves ref in one step. An empty ref yields
// an empty secret.
func ResolveSecret(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", nil
	}
	spec, err := ParseSecret(ref)
	if err != nil {
		return "", err
	}
	return spec.Resolve()
}
