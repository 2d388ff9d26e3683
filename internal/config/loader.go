package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME} and ${NAME:fallback}.
var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars substitutes environment references in s. A set variable wins
// even when empty; an unset one yields its fallback, or "".
func expandEnvVars(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range envRef.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:m[0]])
		name := s[m[2]:m[3]]
		if v, ok := os.LookupEnv(name); ok {
			b.WriteString(v)
		} else if m[4] >= 0 {
			b.WriteString(s[m[4]:m[5]])
		}
		last = m[1]
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// LoadFile decodes the YAML file at path into dest after env expansion.
func LoadFile(path string, dest any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Load overlays the YAML file at path onto DefaultConfig and validates the
// result. A missing file is not an error when optional is set; the defaults
// are used instead.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		if !optional || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
