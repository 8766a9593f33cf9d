package appconf

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError is a semantic problem with one route.
type ConfigError struct {
	Route  string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Route == "" {
		return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v: route %s: %s: %s", ErrInvalidConfig, e.Route, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
