package domain_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/schemata/internal/adapter"
	"gooze.dev/pkg/schemata/internal/domain"
	"gooze.dev/pkg/schemata/internal/domain/mutagens"
	m "gooze.dev/pkg/schemata/internal/model"
)

func requireGo(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("builds and runs test binaries")
	}

	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
}

type pipeline struct {
	loader       adapter.GoFileAdapter
	orchestrator domain.Orchestrator
}

func newPipeline() pipeline {
	fs := adapter.NewLocalSourceFSAdapter()

	return pipeline{
		loader: adapter.NewLocalGoFileAdapter(fs),
		orchestrator: domain.NewOrchestrator(
			domain.NewInstrumentor(),
			adapter.NewLocalBuilderAdapter(fs),
			adapter.NewLocalTestRunnerAdapter(""),
		),
	}
}

func (p pipeline) run(t *testing.T, file string, level m.Level, opts domain.RunOptions, operators ...mutagens.Operator) (m.MutationRun, error) {
	t.Helper()

	path, err := filepath.Abs(filepath.Join("..", "..", "examples", file))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	unit, err := p.loader.Load(ctx, m.Path(path))
	require.NoError(t, err)

	registry, err := domain.NewMutagen(operators...).Generate(ctx, unit, level)
	require.NoError(t, err)

	return p.orchestrator.Run(ctx, domain.RunPlan{Registry: registry, Options: opts})
}

func TestEndToEnd_Robobar(t *testing.T) {
	requireGo(t)

	run, err := newPipeline().run(t, "robobar/greeting.go", m.LevelStandard,
		domain.RunOptions{Parallel: 2},
		mutagens.ComparisonBoundary{}, mutagens.ComparisonNegation{})
	require.NoError(t, err)

	assert.Equal(t, m.RunCompleted, run.State)
	require.NotNil(t, run.Baseline)
	assert.Equal(t, 2, run.Baseline.TestCount)

	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, m.Survived, run.Outcomes[0].Status, "age > 18 is not caught by tests at 17 and 19")
	assert.Equal(t, m.Killed, run.Outcomes[1].Status)
	assert.InDelta(t, 50.0, run.Score.Value, 0.001)
	assert.Contains(t, run.Outcomes[0].Reproduce, domain.ActiveMutantEnv+"=1")
}

func TestEndToEnd_InstrumentedProgramKeepsBehaviour(t *testing.T) {
	requireGo(t)

	run, err := newPipeline().run(t, "calculator/calculator.go", m.LevelComplete,
		domain.RunOptions{Parallel: 4, Rollback: true})
	require.NoError(t, err)

	assert.Equal(t, m.RunCompleted, run.State, "the baseline passes with every mutant compiled in")
	assert.NotEmpty(t, run.Outcomes)
	assert.True(t, run.Score.Defined)
	assert.Zero(t, run.Score.CompileError)
}

func TestEndToEnd_FailingBaseline(t *testing.T) {
	requireGo(t)

	run, err := newPipeline().run(t, "failing/sum.go", m.LevelStandard, domain.RunOptions{})

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, domain.RunErrorSetup, runErr.Kind)
	assert.Equal(t, m.RunBaselineFailed, run.State)
	assert.Empty(t, run.Outcomes)
}
