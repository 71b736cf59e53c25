package model

import (
	"fmt"
	"strings"
	"time"
)

// MutantStatus is the classification of one evaluated mutant.
type MutantStatus int

const (
	// Killed indicates at least one test failed with the mutant active.
	Killed MutantStatus = iota
	// Survived indicates every test passed with the mutant active.
	Survived
	// Timeout indicates the test run did not finish within the allowed time.
	Timeout
	// NoCoverage indicates no test ran with the mutant active.
	NoCoverage
	// CompileError indicates the mutant could not be built.
	CompileError
	// Ignored indicates the mutant was not evaluated because of a runner fault.
	Ignored
)

var mutantStatusNames = []string{"Killed", "Survived", "Timeout", "NoCoverage", "CompileError", "Ignored"}

func (s MutantStatus) String() string {
	if s < 0 || int(s) >= len(mutantStatusNames) {
		return fmt.Sprintf("MutantStatus(%d)", int(s))
	}

	return mutantStatusNames[s]
}

// MarshalText renders the status by name in JSON and YAML reports.
func (s MutantStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *MutantStatus) UnmarshalText(text []byte) error {
	for i, name := range mutantStatusNames {
		if strings.EqualFold(string(text), name) {
			*s = MutantStatus(i)
			return nil
		}
	}

	return fmt.Errorf("unknown mutant status %q", string(text))
}

// TestRunResult summarises one execution of a test suite.
type TestRunResult struct {
	TestCount    int           `json:"test_count" yaml:"test_count"`
	FailedCount  int           `json:"failed_count" yaml:"failed_count"`
	PassedCount  int           `json:"passed_count" yaml:"passed_count"`
	SkippedCount int           `json:"skipped_count" yaml:"skipped_count"`
	ExitCode     int           `json:"exit_code" yaml:"exit_code"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	TextOutput   []string      `json:"-" yaml:"-"`
}

// Passed reports whether tests ran and none failed.
func (r TestRunResult) Passed() bool {
	return r.TestCount > 0 && r.FailedCount == 0
}

// MutantOutcome is the result of evaluating one mutant. Reproduce is a shell
// command that repeats the evaluation by hand.
type MutantOutcome struct {
	MutantID  uint
	Status    MutantStatus
	Result    *TestRunResult
	Duration  time.Duration
	Err       error
	Reproduce string
}

// MutantLog is the captured test output of one evaluation. MutantID 0 is the baseline.
type MutantLog struct {
	MutantID uint
	Lines    []string
}

// RunState is the terminal state of a mutation run.
type RunState string

const (
	// RunCompleted means every mutant was evaluated.
	RunCompleted RunState = "Completed"
	// RunBaselineFailed means the unmodified tests did not pass.
	RunBaselineFailed RunState = "BaselineFailed"
	// RunCompileFailed means the instrumented program did not build.
	RunCompileFailed RunState = "CompileFailed"
	// RunCancelled means the run was interrupted before all mutants were evaluated.
	RunCancelled RunState = "Cancelled"
)

// Score is the mutation score of a set of outcomes. Value is only meaningful
// when Defined is true.
type Score struct {
	Value        float64 `json:"value" yaml:"value"`
	Defined      bool    `json:"defined" yaml:"defined"`
	Killed       int     `json:"killed" yaml:"killed"`
	Survived     int     `json:"survived" yaml:"survived"`
	Timeout      int     `json:"timeout" yaml:"timeout"`
	NoCoverage   int     `json:"no_coverage" yaml:"no_coverage"`
	CompileError int     `json:"compile_error" yaml:"compile_error"`
	Ignored      int     `json:"ignored" yaml:"ignored"`
}

// Evaluated is the number of outcomes that count towards the score.
func (s Score) Evaluated() int {
	return s.Killed + s.Survived + s.Timeout
}

func (s Score) String() string {
	if !s.Defined {
		return "undefined"
	}

	return fmt.Sprintf("%.2f%%", s.Value)
}

// MutationRun is the outcome of one mutation testing run over one SourceUnit.
type MutationRun struct {
	State       RunState
	Baseline    *TestRunResult
	Outcomes    []MutantOutcome
	Score       Score
	Diagnostics []string
	Reason      string
}

// MutantReport is the reported view of one mutant.
type MutantReport struct {
	ID          uint         `json:"id" yaml:"id"`
	Kind        OperatorKind `json:"kind" yaml:"kind"`
	DisplayName string       `json:"display_name" yaml:"display_name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Position    string       `json:"position" yaml:"position"`
	Status      MutantStatus `json:"status" yaml:"status"`
	Diff        string       `json:"diff,omitempty" yaml:"diff,omitempty"`
	Reproduce   string       `json:"reproduce,omitempty" yaml:"reproduce,omitempty"`
}

// RunReport is the reported view of a MutationRun.
type RunReport struct {
	Source      string         `json:"source" yaml:"source"`
	State       RunState       `json:"state" yaml:"state"`
	Reason      string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Diagnostics []string       `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Baseline    *TestRunResult `json:"baseline,omitempty" yaml:"baseline,omitempty"`
	Mutants     []MutantReport `json:"mutants" yaml:"mutants"`
	Score       Score          `json:"score" yaml:"score"`
}

// Summary aggregates several run reports.
type Summary struct {
	Reports []RunReport `json:"reports" yaml:"reports"`
	Score   Score       `json:"score" yaml:"score"`
}
