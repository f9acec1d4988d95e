package plan

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid planner config")
	ErrPanic         = errors.New("scheduling panic")
)

// ConfigError names the offending Config field.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig.Error(), e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// PanicError wraps a panic recovered while placing one task.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("%s: %v", ErrPanic.Error(), e.Value) }

func (e *PanicError) Unwrap() error { return ErrPanic }
