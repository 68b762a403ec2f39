package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotReady         = errors.New("features not ready")
	ErrNoModel          = errors.New("no model promoted")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrValidation       = errors.New("validation failed")
	ErrStaleCandle      = errors.New("candle is not newer than the last processed window")
	ErrNotFound         = errors.New("not found")
	ErrConfig           = errors.New("invalid configuration")
)

// Category tells callers whether an error is worth retrying or stopping for.
type Category int

const (
	// Transient errors come from infrastructure and may succeed on retry.
	Transient Category = iota
	// Input errors are caused by a bad record; retrying will not help.
	Input
	// Fatal errors are structural and stop the process.
	Fatal
)

func (c Category) String() string {
	switch c {
	case Input:
		return "input"
	case Fatal:
		return "fatal"
	default:
		return "transient"
	}
}

type categorized interface {
	Category() Category
}

// CategoryOf classifies err. Unknown errors are transient.
func CategoryOf(err error) Category {
	var c categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	switch {
	case errors.Is(err, ErrConfig):
		return Fatal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStaleCandle),
		errors.Is(err, ErrNotReady), errors.Is(err, ErrNoModel),
		errors.Is(err, ErrInsufficientData):
		return Input
	}
	return Transient
}

// IsFatal reports whether err should stop the process.
func IsFatal(err error) bool { return err != nil && CategoryOf(err) == Fatal }

// ValidationError lists the fields that made a record unusable.
type ValidationError struct {
	Subject string
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ","))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ","))
	}
	return fmt.Sprintf("validation failed for %s (%s)", e.Subject, strings.Join(parts, "; "))
}

// Fields returns every failing field name.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Missing)+len(e.Invalid))
	out = append(out, e.Missing...)
	return append(out, e.Invalid...)
}

// Is matches ErrValidation, and ErrNotReady when only warm-up nulls failed.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrNotReady:
		return len(e.Invalid) == 0 && len(e.Missing) > 0
	}
	return false
}

func (e *ValidationError) Category() Category { return Input }

// NotReadyError means a pair has not produced enough candles to fill every model feature.
type NotReadyError struct {
	Pair    string
	Missing []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("pair %s not ready: missing %s", e.Pair, strings.Join(e.Missing, ","))
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

func (e *NotReadyError) Category() Category { return Input }

// NoModelError means no model has been promoted for the pair yet.
type NoModelError struct {
	Pair string
}

func (e *NoModelError) Error() string { return fmt.Sprintf("no model promoted for pair %s", e.Pair) }

func (e *NoModelError) Is(target error) bool { return target == ErrNoModel }

func (e *NoModelError) Category() Category { return Input }

// InsufficientDataError aborts a training run.
type InsufficientDataError struct {
	Pair string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data for %s: have %d samples, need %d", e.Pair, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

func (e *InsufficientDataError) Category() Category { return Input }

// ConfigError is a structural configuration problem.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %s", e.Field, e.Reason) }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func (e *ConfigError) Category() Category { return Fatal }
