// Package config loads obtmon settings from YAML, environment overrides and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: OBTMON_LOG_LEVEL sets log.level.
const EnvPrefix = "OBTMON_"

// DefaultPath is read when no explicit config path is given.
const DefaultPath = "conf/obtmon.yml"

// Load reads the YAML file at path, overlays environment overrides and
// decodes the result over Default(). With explicit=false a missing file is
// not an error.
func Load(path string, explicit bool) (*Config, error) {
	raw := map[string]interface{}{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			if raw == nil {
				raw = map[string]interface{}{}
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(raw, os.Environ())

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// applyEnv copies OBTMON_<SECTION>_<KEY>=value pairs into raw[section][key].
// Sections are matched against the top-level keys of Config.
func applyEnv(raw map[string]interface{}, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) || key == EnvPrefix+"CONFIG" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		section, field, ok := splitSection(name)
		if !ok {
			continue
		}
		if field == "args" {
			continue
		}
		sub, _ := raw[section].(map[string]interface{})
		if sub == nil {
			sub = map[string]interface{}{}
			raw[section] = sub
		}
		if field == "inline" || field == "maintenance_windows" {
			sub[field] = splitList(value)
			continue
		}
		sub[field] = value
	}
}

var sections = []string{"service", "log", "monitors", "reporters", "report", "history", "metrics", "schedule", "server"}

func splitSection(name string) (string, string, bool) {
	for _, s := range sections {
		if strings.HasPrefix(name, s+"_") && len(name) > len(s)+1 {
			return s, name[len(s)+1:], true
		}
	}
	return "", "", false
}

// splitList splits on ';' because inline definitions may contain commas.
func splitList(value string) []interface{} {
	var out []interface{}
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decode(input map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
