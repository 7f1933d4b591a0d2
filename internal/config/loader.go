package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML configuration file on top of Default() and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}

		// Keys absent from the file keep their default values
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Graph.QueryCache.Enabled {
		if c.Graph.QueryCache.MemoryMB < 1 {
			return NewConfigError("graph.queryCache.memoryMB must be at least 1 when the cache is enabled")
		}
		if c.Graph.QueryCache.TTL <= 0 {
			return NewConfigError("graph.queryCache.ttl must be positive when the cache is enabled")
		}
	}

	seen := make(map[string]bool, len(c.Structure.AllocationBases))
	for _, b := range c.Structure.AllocationBases {
		if seen[b.Code] {
			return NewConfigError(fmt.Sprintf("structure.allocationBases: duplicate code %q", b.Code))
		}
		seen[b.Code] = true
	}

	return nil
}

// formatValidationError turns validator errors into a single readable ConfigError
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return NewConfigError(err.Error())
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", field, e.Tag(), e.Param(), e.Value()))
		}
	}
	return NewConfigError("invalid configuration: " + strings.Join(msgs, "; "))
}
