package config

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Struct tag validation first
	err := v.validate.Struct(cfg)
	if err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validation error: %w", err)
		}

		var messages []string
		for _, fieldErr := range validationErrs {
			messages = append(messages, formatValidationError(fieldErr))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}

	// Cross-field checks the struct tags cannot express
	if err := v.validateCrossFields(cfg); err != nil {
		return err
	}

	return nil
}

// validateCrossFields checks constraints that span multiple fields.
func (v *validatorImpl) validateCrossFields(cfg *Config) error {
	var messages []string

	if cfg.History.Enabled && cfg.History.Path == "" {
		messages = append(messages, "history.path must be set when history is enabled")
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		messages = append(messages, "tracing.endpoint must be set when tracing is enabled")
	}

	if cfg.Core.MaxWorkers > 0 && cfg.Core.MaxParallel > cfg.Core.MaxWorkers {
		messages = append(messages, fmt.Sprintf("core.max_parallel (%d) cannot exceed core.max_workers (%d)",
			cfg.Core.MaxParallel, cfg.Core.MaxWorkers))
	}

	if len(messages) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return nil
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(fieldErr validator.FieldError) string {
	field := formatFieldPath(fieldErr.Namespace())

	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fieldErr.Tag())
	}
}

// formatFieldPath converts a validator namespace like "Config.Swarm.BaseURL"
// to the config file key "swarm.base_url".
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = camelToSnake(part)
	}
	return strings.Join(parts, ".")
}

// camelToSnake converts CamelCase to snake_case, keeping acronym runs
// together (BaseURL becomes base_url, not base_u_r_l).
func camelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
