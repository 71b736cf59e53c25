package domain

import (
	"errors"
	"fmt"
	"go/token"
	"strings"

	m "gooze.dev/pkg/schemata/internal/model"
)

var (
	// ErrSelectorBusy is returned when a mutant is activated while another one is active.
	ErrSelectorBusy = errors.New("another mutant is already active")
	// ErrInvalidMutantID is returned when the baseline id zero is activated.
	ErrInvalidMutantID = errors.New("mutant id must be positive")
	// ErrNoTests reports a source whose package has no test files.
	ErrNoTests = errors.New("no test files found for source")
	// ErrSourceNotLoaded reports a SourceUnit without syntax or type information.
	ErrSourceNotLoaded = errors.New("source unit is not loaded")
	// ErrUnknownOperator reports an operator name that is not registered.
	ErrUnknownOperator = errors.New("unknown mutation operator")
	// ErrMutantNotFound reports a mutant id that is not in the registry.
	ErrMutantNotFound = errors.New("mutant not found")
	// ErrRunnerFault reports that the test runner failed for a single mutant.
	ErrRunnerFault = errors.New("test runner fault")
)

// GenerationError reports an operator that failed on one node. The proposal
// is skipped and generation continues.
type GenerationError struct {
	Kind     m.OperatorKind
	Position token.Position
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("operator %s failed at %s: %v", e.Kind, e.Position, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// InstrumentationError reports a mutation site that could not be rewritten.
// Instrumentation of the whole source is aborted.
type InstrumentationError struct {
	MutationID uint
	Position   token.Position
	Err        error
}

func (e *InstrumentationError) Error() string {
	if e.MutationID == 0 {
		return fmt.Sprintf("instrumentation failed: %v", e.Err)
	}

	return fmt.Sprintf("instrumentation of mutant %d at %s failed: %v", e.MutationID, e.Position, e.Err)
}

func (e *InstrumentationError) Unwrap() error {
	return e.Err
}

// RunErrorKind classifies the conditions that stop a mutation run.
type RunErrorKind int

const (
	// RunErrorCompile means the instrumented program did not build.
	RunErrorCompile RunErrorKind = iota
	// RunErrorSetup means the baseline could not be established.
	RunErrorSetup
	// RunErrorCancelled means the caller cancelled the run.
	RunErrorCancelled
)

func (k RunErrorKind) String() string {
	switch k {
	case RunErrorCompile:
		return "CompileError"
	case RunErrorSetup:
		return "SetupFailure"
	case RunErrorCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("RunErrorKind(%d)", int(k))
	}
}

// RunError is returned by a mutation run that did not reach completion.
type RunError struct {
	Kind        RunErrorKind
	Source      string
	Reason      string
	Diagnostics []string
	Err         error
}

func (e *RunError) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())

	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	return b.String()
}

func (e *RunError) Unwrap() error {
	return e.Err
}
