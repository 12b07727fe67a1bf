// Package errors provides structured error handling for border detection and
// cropping. It defines error types, sentinel errors, and utility functions for
// consistent error handling across the module.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure by the stage that produced it.
type ErrorType string

const (
	// ErrorTypeSpawn indicates an external tool could not be started
	ErrorTypeSpawn ErrorType = "spawn"
	// ErrorTypeCapture indicates an output channel could not be read, or the
	// diagnostic process ended badly
	ErrorTypeCapture ErrorType = "capture"
	// ErrorTypeParse indicates a malformed crop directive
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeProbe indicates the dimension probe failed
	ErrorTypeProbe ErrorType = "probe"
	// ErrorTypeConversion indicates probe text that is not a valid dimension
	ErrorTypeConversion ErrorType = "conversion"
	// ErrorTypeResolve indicates margins that cannot be derived consistently
	ErrorTypeResolve ErrorType = "resolve"
	// ErrorTypeTranscode indicates the final crop invocation failed
	ErrorTypeTranscode ErrorType = "transcode"
	// ErrorTypeResource indicates a resource check failed (disk space)
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeValidation indicates invalid options
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal indicates internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios
var (
	// ErrProcessSpawn indicates the external tool is missing or unstartable
	ErrProcessSpawn = errors.New("process could not be started")

	// ErrStreamCapture indicates the diagnostic or primary channel is unavailable
	ErrStreamCapture = errors.New("output stream could not be captured")

	// ErrDiagnosticFailed indicates the diagnostic pass exited with a non-zero status
	ErrDiagnosticFailed = errors.New("diagnostic pass failed")

	// ErrParse indicates a crop directive that does not match the expected layout
	ErrParse = errors.New("malformed crop directive")

	// ErrDimensionProbe indicates the prober could not report dimensions
	ErrDimensionProbe = errors.New("dimension probe failed")

	// ErrNumericConversion indicates a dimension string that is not WIDTHxHEIGHT
	ErrNumericConversion = errors.New("invalid numeric value")

	// ErrInconsistentGeometry indicates negative margins derived from a crop box
	// that does not fit the probed frame
	ErrInconsistentGeometry = errors.New("crop box does not fit frame dimensions")

	// ErrTranscodeFailed indicates the crop invocation failed
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrInsufficientSpace indicates the output volume is too full to crop safely
	ErrInsufficientSpace = errors.New("insufficient free space")

	// ErrInvalidInput indicates invalid request parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an external process was killed after its bounded wait
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates an operation was cancelled
	ErrCancelled = errors.New("operation cancelled")
)

// CropError provides structured error information with context
type CropError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g., "detect", "probe")
	Input   string                 // Related input path if applicable
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *CropError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s error in %s for %s: %v", e.Type, e.Op, e.Input, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *CropError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *CropError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new CropError
func New(errType ErrorType, op string, err error) *CropError {
	return &CropError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a CropError whose underlying error wraps sentinel with a formatted message.
func Newf(errType ErrorType, op string, sentinel error, format string, args ...interface{}) *CropError {
	return New(errType, op, fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}

// WithInput adds input path context to the error
func (e *CropError) WithInput(input string) *CropError {
	e.Input = input
	return e
}

// WithDetail adds a key-value detail to the error
func (e *CropError) WithDetail(key string, value interface{}) *CropError {
	e.Details[key] = value
	return e
}

// Error creation helpers

// SpawnError creates a process spawn error
func SpawnError(op string, err error) *CropError {
	return New(ErrorTypeSpawn, op, fmt.Errorf("%w: %v", ErrProcessSpawn, err))
}

// CaptureError creates a stream capture error
func CaptureError(op string, err error) *CropError {
	return New(ErrorTypeCapture, op, fmt.Errorf("%w: %v", ErrStreamCapture, err))
}

// ParseError creates a directive parse error
func ParseError(op string, format string, args ...interface{}) *CropError {
	return Newf(ErrorTypeParse, op, ErrParse, format, args...)
}

// ProbeError creates a dimension probe error
func ProbeError(op string, err error) *CropError {
	return New(ErrorTypeProbe, op, fmt.Errorf("%w: %v", ErrDimensionProbe, err))
}

// ConversionError creates a numeric conversion error
func ConversionError(op string, format string, args ...interface{}) *CropError {
	return Newf(ErrorTypeConversion, op, ErrNumericConversion, format, args...)
}

// TranscodeError creates a transcoding operation error
func TranscodeError(op string, err error) *CropError {
	return New(ErrorTypeTranscode, op, err)
}

// ValidationError creates a validation error
func ValidationError(op string, format string, args ...interface{}) *CropError {
	return Newf(ErrorTypeValidation, op, ErrInvalidInput, format, args...)
}

// Wrap wraps an error with operation context if it's not already a CropError
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	// If it's already a CropError, preserve it
	var cErr *CropError
	if errors.As(err, &cErr) {
		return err
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var cErr *CropError
	if errors.As(err, &cErr) {
		return cErr.Type
	}
	return ErrorTypeInternal
}

// GetOperation extracts the operation from an error
func GetOperation(err error) string {
	var cErr *CropError
	if errors.As(err, &cErr) {
		return cErr.Op
	}
	return "unknown"
}

// GetDetails extracts error details
func GetDetails(err error) map[string]interface{} {
	var cErr *CropError
	if errors.As(err, &cErr) {
		return cErr.Details
	}
	return nil
}
