// Package fleeterr defines the error kinds surfaced by the core pipeline
// (spec §7). Components never swallow unexpected errors silently: anything
// not in the table below is wrapped as CoreError{Kind: Internal}.
package fleeterr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the core can surface.
type Kind string

const (
	BinaryNotFound    Kind = "BinaryNotFound"
	SpawnError        Kind = "SpawnError"
	HealthLost        Kind = "HealthLost"
	ModelPullFailed   Kind = "ModelPullFailed"
	ChunkQueueOverflow Kind = "ChunkQueueOverflow"
	ParseFailed       Kind = "ParseFailed"
	LLMTimeout        Kind = "LLMTimeout"
	TemplateNotFound  Kind = "TemplateNotFound"
	ValidationBlocked Kind = "ValidationBlocked"
	Cancelled         Kind = "Cancelled"
	Internal          Kind = "Internal"
)

// recoverable records which kinds the CLI shell should suggest retrying.
var recoverable = map[Kind]bool{
	BinaryNotFound:     false,
	SpawnError:         true,
	HealthLost:         true,
	ModelPullFailed:    true,
	ChunkQueueOverflow: true,
	ParseFailed:        true,
	LLMTimeout:         true,
	TemplateNotFound:   true,
	ValidationBlocked:  true,
	Cancelled:          true,
	Internal:           false,
}

// CoreError is the error type every core component returns.
type CoreError struct {
	Kind   Kind
	Detail string
	Err    error
}

func New(kind Kind, detail string) *CoreError {
	return &CoreError{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *CoreError {
	return &CoreError{Kind: kind, Detail: detail, Err: err}
}

func (e *CoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Recoverable reports whether the CLI shell should suggest the caller retry
// the operation that produced this error.
func (e *CoreError) Recoverable() bool {
	if e == nil {
		return false
	}
	return recoverable[e.Kind]
}

// Is lets errors.Is match on Kind alone, e.g. errors.Is(err, fleeterr.New(fleeterr.LLMTimeout, "")).
func (e *CoreError) Is(target error) bool {
	var ce *CoreError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Kind == e.Kind
}

// InternalError wraps an unexpected error as a CoreError{Kind: Internal}, per the
// propagation policy in spec §7: components never swallow unknown errors.
func InternalError(detail string, err error) *CoreError {
	return Wrap(Internal, detail, err)
}

// OfKind reports whether err (or anything it wraps) is a CoreError of kind k.
func OfKind(err error, k Kind) bool {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == k
}
