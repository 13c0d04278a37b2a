package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError via errors.Is
var ErrConfiguration = errors.New("invalid batch configuration")

// ConfigurationError reports invalid batch parameters detected before any work starts
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError formats a ConfigurationError
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ExtractionError is a typed failure of a single remote extraction call
type ExtractionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps err with the given kind. The message defaults to err's text.
func NewExtractionError(kind ErrorKind, err error) *ExtractionError {
	e := &ExtractionError{Kind: kind, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// AsFailure converts any error returned by an extraction into a Failure.
// Errors that are not ExtractionErrors are treated as transient.
func AsFailure(err error) *Failure {
	var xe *ExtractionError
	if errors.As(err, &xe) {
		msg := xe.Message
		if msg == "" && xe.Err != nil {
			msg = xe.Err.Error()
		}
		return &Failure{Kind: xe.Kind, Message: msg}
	}
	return &Failure{Kind: KindTransient, Message: err.Error()}
}
