package callseq

import (
	"errors"
	"fmt"
)

const ErrorLogPrefix = "!! "

var (
	// ErrInvalidInput indicates a caller precondition was violated, for example a relative source path.
	ErrInvalidInput = errors.New("invalid input")
	// ErrParse indicates the dump text does not match the expected grammar, typically a clang version mismatch.
	ErrParse = errors.New("ast dump parse failure")
	// ErrClassification indicates a node kind that should carry a quoted signature did not have one.
	ErrClassification = errors.New("ast node classification failure")
	// ErrValidationMismatch indicates the AST and the source text disagree for a candidate. This error is never
	// returned from an instrumentation call, the candidate is skipped and reported as a Mismatch.
	ErrValidationMismatch = errors.New("ast and source mismatch")
	// ErrTrace indicates a malformed line in the runtime probe output.
	ErrTrace = errors.New("probe output parse failure")
)

func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrParse}, args...)...)
}

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}
