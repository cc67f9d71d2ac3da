package ankylogate

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every construction failure
var ErrInvalidConfig = errors.New("invalid rate limiter config")

// ConfigError describes which setting was rejected when building a limiter.
type ConfigError struct {
	Policy  Policy
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Policy == "" {
		return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s config: %s: %s", e.Policy, e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func newConfigError(policy Policy, field, message string) *ConfigError {
	return &ConfigError{
		Policy:  policy,
		Field:   field,
		Message: message,
	}
}
