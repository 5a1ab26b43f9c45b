// Package errs defines the two fatal error kinds of a decode run.
//
// Both are raised during pre-flight validation, before any pixel is processed.
// A pixel or region that merely fails a threshold is never an error.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports an invalid decode configuration: a codebook/pixel
// vector shape mismatch, an unknown metric, a non-positive norm order or an
// inconsistent area range.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// DataShapeError reports an input tensor that is missing an axis, has a data
// length inconsistent with its shape, or holds non-numeric values.
type DataShapeError struct {
	Msg string
}

func (e *DataShapeError) Error() string {
	return "data shape error: " + e.Msg
}

// Configurationf returns a ConfigurationError carrying a stack trace.
func Configurationf(format string, a ...interface{}) error {
	return errors.WithStack(&ConfigurationError{Msg: fmt.Sprintf(format, a...)})
}

// DataShapef returns a DataShapeError carrying a stack trace.
func DataShapef(format string, a ...interface{}) error {
	return errors.WithStack(&DataShapeError{Msg: fmt.Sprintf(format, a...)})
}

// IsConfiguration reports whether err, or anything it wraps, is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDataShape reports whether err, or anything it wraps, is a DataShapeError.
func IsDataShape(err error) bool {
	var target *DataShapeError
	return errors.As(err, &target)
}
