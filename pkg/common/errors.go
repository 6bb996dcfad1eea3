package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedAlgorithm is returned for algorithm names the graph
	// service does not implement.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// ExtractionError reports a failed entity extraction call.
type ExtractionError struct {
	Op  string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("entity extraction failed during %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RelationshipBuildError reports a failed relationship build call.
type RelationshipBuildError struct {
	Op  string
	Err error
}

func (e *RelationshipBuildError) Error() string {
	return fmt.Sprintf("relationship build failed during %s: %v", e.Op, e.Err)
}

func (e *RelationshipBuildError) Unwrap() error { return e.Err }

// EmbeddingError reports a model or storage failure in the embedding engine.
type EmbeddingError struct {
	Op    string
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("embedding failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("embedding with model %q failed during %s: %v", e.Model, e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GraphQueryError reports a failed graph read or mutation.
type GraphQueryError struct {
	Op  string
	Err error
}

func (e *GraphQueryError) Error() string {
	return fmt.Sprintf("graph query %s failed: %v", e.Op, e.Err)
}

func (e *GraphQueryError) Unwrap() error { return e.Err }

func NewExtractionError(op string, err error) error {
	return &ExtractionError{Op: op, Err: err}
}

func NewRelationshipBuildError(op string, err error) error {
	return &RelationshipBuildError{Op: op, Err: err}
}

func NewEmbeddingError(op, model string, err error) error {
	return &EmbeddingError{Op: op, Model: model, Err: err}
}

func NewGraphQueryError(op string, err error) error {
	return &GraphQueryError{Op: op, Err: err}
}
