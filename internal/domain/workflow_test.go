package domain_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/schemata/internal/adapter"
	"gooze.dev/pkg/schemata/internal/controller"
	"gooze.dev/pkg/schemata/internal/domain"
	"gooze.dev/pkg/schemata/internal/domain/mocks"
	m "gooze.dev/pkg/schemata/internal/model"
)

const greetingFile = `package robobar

func Greeting(age int) string {
	if age >= 18 {
		return "Here have a beer!"
	}

	return "Sorry not today!"
}
`

const greetingTestFile = `package robobar

import "testing"

func TestGreeting(t *testing.T) {
	if Greeting(21) != "Here have a beer!" {
		t.Fail()
	}
}
`

type workflowFixture struct {
	workflow     domain.Workflow
	orchestrator *mocks.MockOrchestrator
	stdout       *bytes.Buffer
	stderr       *bytes.Buffer
	path         m.Path
}

func newWorkflowFixture(t *testing.T, format controller.Format) *workflowFixture {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.go")

	require.NoError(t, os.WriteFile(path, []byte(greetingFile), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting_test.go"), []byte(greetingTestFile), 0o600))

	var stdout, stderr bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	fs := adapter.NewLocalSourceFSAdapter()
	orchestrator := mocks.NewMockOrchestrator(t)

	return &workflowFixture{
		workflow: domain.NewWorkflow(
			fs,
			adapter.NewLocalGoFileAdapter(fs),
			controller.NewSimpleUI(cmd, format),
			orchestrator,
			domain.NewInstrumentor(),
		),
		orchestrator: orchestrator,
		stdout:       &stdout,
		stderr:       &stderr,
		path:         m.Path(path),
	}
}

// completedRun answers a RunPlan with the given statuses in id order.
func completedRun(statuses ...m.MutantStatus) func(context.Context, domain.RunPlan) (m.MutationRun, error) {
	return func(_ context.Context, plan domain.RunPlan) (m.MutationRun, error) {
		baseline := m.TestRunResult{TestCount: 1, PassedCount: 1}
		run := m.MutationRun{State: m.RunCompleted, Baseline: &baseline}

		for i, mutation := range plan.Registry.Mutations {
			outcome := m.MutantOutcome{MutantID: mutation.ID, Status: statuses[i], Reproduce: "./robobar.test"}
			run.Outcomes = append(run.Outcomes, outcome)

			if plan.OnOutcome != nil {
				plan.OnOutcome(mutation, outcome)
			}
		}

		run.Score = domain.ScoreOutcomes(run.Outcomes)

		return run, nil
	}
}

func testArgs(t *testing.T, path m.Path) domain.TestArgs {
	return domain.TestArgs{
		EstimateArgs: domain.EstimateArgs{Paths: []m.Path{path}, Level: m.LevelStandard},
		Run:          domain.RunOptions{Parallel: 2},
		SpillDir:     t.TempDir(),
	}
}

func TestWorkflow_Estimate(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	err := f.workflow.Estimate(context.Background(), domain.EstimateArgs{
		Paths: []m.Path{f.path},
		Level: m.LevelStandard,
	})
	require.NoError(t, err)

	out := f.stdout.String()
	assert.Contains(t, out, "age >= 18 → age > 18")
	assert.Contains(t, out, `"Sorry not today!" → ""`)
	assert.Contains(t, out, "greeting.go:4:9")
	assert.Contains(t, out, "TOTAL FILES 1")

	f.orchestrator.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestWorkflow_EstimateUnknownOperator(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	err := f.workflow.Estimate(context.Background(), domain.EstimateArgs{
		Paths:     []m.Path{f.path},
		Operators: []string{"teleport"},
	})
	require.ErrorIs(t, err, domain.ErrUnknownOperator)
}

func TestWorkflow_Test(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	f.orchestrator.On("Run", mock.Anything, mock.MatchedBy(func(plan domain.RunPlan) bool {
		return plan.Registry.Len() == 4 && plan.Options.Parallel == 2 && plan.Spill != nil
	})).Return(completedRun(m.Killed, m.Killed, m.Survived, m.Timeout)).Once()

	summary, err := f.workflow.Test(context.Background(), testArgs(t, f.path))
	require.NoError(t, err)

	require.Len(t, summary.Reports, 1)
	assert.True(t, summary.Score.Defined)
	assert.InDelta(t, 75.0, summary.Score.Value, 0.001)

	report := summary.Reports[0]
	assert.Equal(t, m.RunCompleted, report.State)
	require.Len(t, report.Mutants, 4)
	assert.NotEmpty(t, report.Mutants[2].Diff)
	assert.Empty(t, report.Mutants[0].Diff)

	out := f.stdout.String()
	assert.Contains(t, out, "4 mutant(s) on 2 lane(s)")
	assert.Contains(t, out, "+\t\treturn \"\"")
	assert.Contains(t, out, "reproduce: ./robobar.test")
	assert.Contains(t, out, "Mutation score: 75.00%")
}

func TestWorkflow_TestFailedRun(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	runErr := &domain.RunError{
		Kind:        domain.RunErrorCompile,
		Reason:      "instrumented program does not compile",
		Diagnostics: []string{"greeting.go:4:9: broken"},
	}

	f.orchestrator.On("Run", mock.Anything, mock.Anything).Return(m.MutationRun{
		State:       m.RunCompileFailed,
		Reason:      runErr.Reason,
		Diagnostics: runErr.Diagnostics,
	}, runErr).Once()

	summary, err := f.workflow.Test(context.Background(), testArgs(t, f.path))

	var got *domain.RunError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, domain.RunErrorCompile, got.Kind)

	require.Len(t, summary.Reports, 1)
	assert.Equal(t, m.RunCompileFailed, summary.Reports[0].State)
	assert.False(t, summary.Score.Defined)

	out := f.stdout.String()
	assert.Contains(t, out, "CompileFailed")
	assert.Contains(t, out, "greeting.go:4:9: broken")
	assert.Contains(t, out, "Mutation score: undefined")
}

func TestWorkflow_TestSourceWithoutTests(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	f.orchestrator.On("Run", mock.Anything, mock.Anything).Return(m.MutationRun{
		State:  m.RunBaselineFailed,
		Reason: domain.ErrNoTests.Error(),
	}, &domain.RunError{Kind: domain.RunErrorSetup, Reason: domain.ErrNoTests.Error(), Err: domain.ErrNoTests}).Once()

	summary, err := f.workflow.Test(context.Background(), testArgs(t, f.path))
	require.NoError(t, err, "sources without tests are reported, not failed")

	require.Len(t, summary.Reports, 1)
	assert.Equal(t, m.RunBaselineFailed, summary.Reports[0].State)
}

func TestWorkflow_TestCancelled(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.orchestrator.On("Run", mock.Anything, mock.Anything).Return(func(context.Context, domain.RunPlan) (m.MutationRun, error) {
		cancel()

		return m.MutationRun{State: m.RunCancelled, Reason: "run cancelled"},
			&domain.RunError{Kind: domain.RunErrorCancelled, Reason: "run cancelled", Err: context.Canceled}
	}).Once()

	summary, err := f.workflow.Test(ctx, testArgs(t, f.path))
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, summary.Reports, 1)
	assert.Equal(t, m.RunCancelled, summary.Reports[0].State)
	assert.Contains(t, f.stdout.String(), "Mutation score: undefined", "the summary is printed after cancellation")
}

func TestWorkflow_TestJSON(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatJSON)

	f.orchestrator.On("Run", mock.Anything, mock.Anything).Return(completedRun(m.Killed, m.Survived, m.Killed, m.Killed)).Once()

	_, err := f.workflow.Test(context.Background(), testArgs(t, f.path))
	require.NoError(t, err)

	var summary m.Summary
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &summary), f.stdout.String())

	require.Len(t, summary.Reports, 1)
	assert.InDelta(t, 75.0, summary.Score.Value, 0.001)
	assert.Equal(t, m.Survived, summary.Reports[0].Mutants[1].Status)
	assert.Contains(t, f.stderr.String(), "Testing", "progress goes to stderr")
}

func TestWorkflow_Show(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	err := f.workflow.Show(context.Background(), domain.ShowArgs{Path: f.path, MutantID: 1, Level: m.LevelStandard})
	require.NoError(t, err)

	out := f.stdout.String()
	assert.Contains(t, out, "#1 comparison-boundary at")
	assert.Contains(t, out, "-\tif age >= 18 {")
	assert.Contains(t, out, "+\tif age > 18 {")

	err = f.workflow.Show(context.Background(), domain.ShowArgs{Path: f.path, MutantID: 9, Level: m.LevelStandard})
	require.ErrorIs(t, err, domain.ErrMutantNotFound)
}

func TestWorkflow_Baseline(t *testing.T) {
	f := newWorkflowFixture(t, controller.FormatText)

	f.orchestrator.On("Baseline", mock.Anything, mock.MatchedBy(func(unit *m.SourceUnit) bool {
		return unit.Package == "robobar" && unit.HasTests()
	}), 2*time.Second).Return(m.TestRunResult{TestCount: 2, PassedCount: 1, FailedCount: 1}, nil).Once()

	err := f.workflow.Baseline(context.Background(), domain.BaselineArgs{Paths: []m.Path{f.path}, Timeout: 2 * time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 tests failed")
	assert.Contains(t, f.stdout.String(), "FAIL")
}
