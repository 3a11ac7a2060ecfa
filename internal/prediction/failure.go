package prediction

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an operation did not produce a result.
type FailureKind int

const (
	FailureValidation FailureKind = iota
	FailureNetwork
	FailureTimeout
	FailureProtocol
	FailureDomain
	FailurePayloadTooLarge
	FailureModelUnavailable
	FailureServer
)

// CodeTimeout is the sentinel status attached to timeout failures so
// consumers see a uniform HTTP-shaped code instead of a transport error.
const CodeTimeout = 408

// Failure is the single error shape that crosses the client boundary.
// Message is always human-readable prose; Code carries the HTTP status or
// a sentinel when one applies.
type Failure struct {
	Kind    FailureKind
	Message string
	Code    int
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s (status %d)", f.Message, f.Code)
	}
	return f.Message
}

// NewFailure constructs a failure without a status code.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// NewStatusFailure constructs a failure carrying a status code.
func NewStatusFailure(kind FailureKind, code int, message string) *Failure {
	return &Failure{Kind: kind, Message: message, Code: code}
}

// AsFailure extracts a Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
