// Package errors provides the error taxonomy used across the patch pipeline.
// Configuration, data and range faults are distinct types so callers can
// decide how to report them; all of them carry a stack trace.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ConfigError reports a missing or unsupported configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mripatches: config: field '%s': %s", e.Field, e.Reason)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "ConfigError")
}

// NewConfigError creates a ConfigError with a stack trace.
func NewConfigError(field, reason string) error {
	return errors.WithStack(&ConfigError{Field: field, Reason: reason})
}

// DataError reports a volume or record that cannot be read or does not
// have the expected shape.
type DataError struct {
	Op     string
	Path   string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("mripatches: %s", e.Op)
	if e.Path != "" {
		msg += fmt.Sprintf(" '%s'", e.Path)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("path", e.Path).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError creates a DataError with a stack trace. err may be nil.
func NewDataError(op, path, reason string, err error) error {
	return errors.WithStack(&DataError{Op: op, Path: path, Reason: reason, Err: err})
}

// RangeError reports a numeric parameter outside its valid range.
type RangeError struct {
	Param  string
	Value  interface{}
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("mripatches: parameter '%s' out of range: %s (got: %v)", e.Param, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *RangeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Interface("value", e.Value).
		Str("reason", e.Reason).
		Str("type", "RangeError")
}

// NewRangeError creates a RangeError with a stack trace.
func NewRangeError(param string, value interface{}, reason string) error {
	return errors.WithStack(&RangeError{Param: param, Value: value, Reason: reason})
}

// CheckRatio returns a RangeError unless 0 <= v <= 1.
func CheckRatio(param string, v float64) error {
	if v < 0 || v > 1 {
		return NewRangeError(param, v, "must be within [0, 1]")
	}
	return nil
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

var (
	// ErrFinalized is returned when class statistics are finalized twice.
	ErrFinalized = New("statistics already finalized")

	// ErrEmptyData is returned when an operation receives no input at all.
	ErrEmptyData = New("empty data")
)
