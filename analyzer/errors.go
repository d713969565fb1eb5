package analyzer

import (
	"errors"
	"fmt"
)

// Kind classifies an analysis failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindFetch
	KindEmptyContent
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFetch:
		return "fetch"
	case KindEmptyContent:
		return "empty_content"
	default:
		return "internal"
	}
}

// AnalysisError is returned by Analyze. Reason is safe to show to callers.
type AnalysisError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from Analyze.
func KindOf(err error) Kind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func validationError(reason string) error {
	return &AnalysisError{Kind: KindValidation, Reason: reason}
}
