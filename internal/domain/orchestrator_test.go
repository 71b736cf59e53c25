package domain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/schemata/internal/model"
	"gooze.dev/pkg/schemata/pkg"
)

type fakeBuilder struct {
	mu       sync.Mutex
	inputs   []m.BuildInput
	released int
	fail     func(code string) error
}

func (b *fakeBuilder) Build(_ context.Context, input m.BuildInput) (m.Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inputs = append(b.inputs, input)

	if b.fail != nil {
		if err := b.fail(string(input.Code)); err != nil {
			return m.Artifact{}, err
		}
	}

	return m.Artifact{Binary: "/tmp/robobar.test", Workspace: m.Path("/tmp/build-" + strconv.Itoa(len(b.inputs)))}, nil
}

func (b *fakeBuilder) Release(context.Context, m.Artifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.released++

	return nil
}

func (b *fakeBuilder) builds() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.inputs)
}

// fakeRunner answers by the active mutant id found in env; 0 is the baseline.
type fakeRunner struct {
	mu      sync.Mutex
	results map[uint]m.TestRunResult
	errs    map[uint]error
	delays  map[uint]time.Duration
	calls   []uint
	running int
	peak    int
}

func (r *fakeRunner) RunTests(ctx context.Context, _ m.Artifact, env []string) (m.TestRunResult, error) {
	if err := ctx.Err(); err != nil {
		return m.TestRunResult{}, err
	}

	id := activeID(env)

	r.mu.Lock()
	r.calls = append(r.calls, id)
	r.running++
	r.peak = max(r.peak, r.running)
	result, err, delay := r.results[id], r.errs[id], r.delays[id]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return m.TestRunResult{}, ctx.Err()
		}
	}

	return result, err
}

func (r *fakeRunner) Reproduce(artifact m.Artifact, env []string) string {
	return strings.Join(env, " ") + " " + string(artifact.Binary)
}

func activeID(env []string) uint {
	for _, kv := range env {
		if value, ok := strings.CutPrefix(kv, ActiveMutantEnv+"="); ok {
			id, _ := strconv.ParseUint(value, 10, 64)
			return uint(id)
		}
	}

	return 0
}

func passing(tests int) m.TestRunResult {
	return m.TestRunResult{TestCount: tests, PassedCount: tests, Duration: 10 * time.Millisecond}
}

func failing(tests, failed int) m.TestRunResult {
	return m.TestRunResult{TestCount: tests, FailedCount: failed, PassedCount: tests - failed, ExitCode: 1}
}

type fakeRecorder struct {
	mu       sync.Mutex
	builds   int
	runs     map[string]int
	outcomes map[m.MutantStatus]int
	scores   []m.Score
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: map[string]int{}, outcomes: map[m.MutantStatus]int{}}
}

func (r *fakeRecorder) ObserveBuild(string, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds++
}

func (r *fakeRecorder) ObserveTestRun(phase string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[phase]++
}

func (r *fakeRecorder) ObserveOutcome(_ string, outcome m.MutantOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome.Status]++
}

func (r *fakeRecorder) ObserveScore(_ string, score m.Score) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, score)
}

func greetingRegistry(t *testing.T) *m.Registry {
	t.Helper()

	registry := generate(t, loadUnit(t, "greeting.go", greetingSource), m.LevelStandard)
	require.Equal(t, 4, registry.Len())

	return registry
}

func statuses(run m.MutationRun) []m.MutantStatus {
	out := make([]m.MutantStatus, 0, len(run.Outcomes))
	for _, outcome := range run.Outcomes {
		out = append(out, outcome.Status)
	}

	return out
}

func TestRunClassifiesEveryMutant(t *testing.T) {
	builder := &fakeBuilder{}
	runner := &fakeRunner{results: map[uint]m.TestRunResult{
		0: passing(3),
		1: passing(3),
		2: failing(3, 2),
		3: failing(3, 1),
		4: {},
	}}
	recorder := newFakeRecorder()

	var reported []uint

	run, err := NewOrchestrator(NewInstrumentor(), builder, runner, WithRecorder(recorder)).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{Parallel: 2, MutationTimeout: 5 * time.Second},
		OnOutcome: func(mutation m.Mutation, outcome m.MutantOutcome) {
			assert.Equal(t, mutation.ID, outcome.MutantID)
			reported = append(reported, outcome.MutantID)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, m.RunCompleted, run.State)
	assert.Equal(t, []m.MutantStatus{m.Survived, m.Killed, m.Killed, m.NoCoverage}, statuses(run))

	for i, outcome := range run.Outcomes {
		assert.Equal(t, uint(i+1), outcome.MutantID, "outcomes are in id order")
		assert.Contains(t, outcome.Reproduce, ActiveMutantEnv+"="+strconv.Itoa(i+1))
		require.NotNil(t, outcome.Result)
	}

	assert.ElementsMatch(t, []uint{1, 2, 3, 4}, reported)

	require.NotNil(t, run.Baseline)
	assert.Equal(t, 3, run.Baseline.TestCount)

	assert.True(t, run.Score.Defined)
	assert.InDelta(t, 66.67, run.Score.Value, 0.01)
	assert.Equal(t, 2, run.Score.Killed)
	assert.Equal(t, 1, run.Score.Survived)
	assert.Equal(t, 1, run.Score.NoCoverage)

	assert.Equal(t, 1, builder.builds(), "the instrumented program is built once")
	assert.Equal(t, 1, builder.released)
	assert.Contains(t, string(builder.inputs[0].Code), "schemataMutantActive(4)")
	require.Len(t, builder.inputs[0].Helpers, 1)

	assert.Equal(t, 1, recorder.builds)
	assert.Equal(t, 1, recorder.runs["baseline"])
	assert.Equal(t, 4, recorder.runs["mutant"])
	assert.Equal(t, 2, recorder.outcomes[m.Killed])
	require.Len(t, recorder.scores, 1)
}

func TestRunUsesParallelLanes(t *testing.T) {
	runner := &fakeRunner{
		results: map[uint]m.TestRunResult{0: passing(1), 1: failing(1, 1), 2: failing(1, 1), 3: failing(1, 1), 4: failing(1, 1)},
		delays:  map[uint]time.Duration{1: 100 * time.Millisecond, 2: 100 * time.Millisecond, 3: 100 * time.Millisecond, 4: 100 * time.Millisecond},
	}

	run, err := NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{Parallel: 4, MutationTimeout: 5 * time.Second},
	})
	require.NoError(t, err)

	assert.Equal(t, []m.MutantStatus{m.Killed, m.Killed, m.Killed, m.Killed}, statuses(run))
	assert.Greater(t, runner.peak, 1)
	assert.LessOrEqual(t, runner.peak, 4)
	assert.InDelta(t, 100.0, run.Score.Value, 0.001)
}

func TestRunGatesOnBaseline(t *testing.T) {
	tests := []struct {
		name     string
		baseline m.TestRunResult
		err      error
		target   error
		reason   string
	}{
		{name: "failing tests", baseline: failing(3, 1), reason: "1 of 3 tests failed"},
		{name: "no tests ran", baseline: m.TestRunResult{}, target: ErrNoTests, reason: "no tests"},
		{name: "runner fault", err: errors.New("exec format error"), reason: "exec format error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{
				results: map[uint]m.TestRunResult{0: tt.baseline},
				errs:    map[uint]error{0: tt.err},
			}

			run, err := NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
				Registry: greetingRegistry(t),
			})

			var runErr *RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, RunErrorSetup, runErr.Kind)

			if tt.target != nil {
				require.ErrorIs(t, err, tt.target)
			}

			assert.Equal(t, m.RunBaselineFailed, run.State)
			assert.Contains(t, run.Reason, tt.reason)
			assert.Empty(t, run.Outcomes)
			assert.Equal(t, []uint{0}, runner.calls, "no mutant runs after a failed baseline")
			assert.False(t, run.Score.Defined)
		})
	}
}

func TestRunWithoutTests(t *testing.T) {
	registry := greetingRegistry(t)
	registry.Source.Tests = nil

	builder := &fakeBuilder{}

	run, err := NewOrchestrator(NewInstrumentor(), builder, &fakeRunner{}).Run(context.Background(), RunPlan{Registry: registry})
	require.ErrorIs(t, err, ErrNoTests)

	assert.Equal(t, m.RunBaselineFailed, run.State)
	assert.Zero(t, builder.builds())
}

func TestRunWithoutMutants(t *testing.T) {
	unit := loadUnit(t, "greeting.go", greetingSource)
	runner := &fakeRunner{results: map[uint]m.TestRunResult{0: passing(2)}}

	run, err := NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
		Registry: &m.Registry{Source: unit},
	})
	require.NoError(t, err)

	assert.Equal(t, m.RunCompleted, run.State)
	assert.Empty(t, run.Outcomes)
	assert.False(t, run.Score.Defined)
	assert.Equal(t, "undefined", run.Score.String())
}

func TestRunCompileFailure(t *testing.T) {
	diagnostics := []string{"greeting.go:4:9: invalid operation"}
	builder := &fakeBuilder{fail: func(string) error { return &m.BuildError{Diagnostics: diagnostics} }}
	runner := &fakeRunner{}

	run, err := NewOrchestrator(NewInstrumentor(), builder, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
	})

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, RunErrorCompile, runErr.Kind)
	assert.Equal(t, diagnostics, runErr.Diagnostics)

	var compileErr *m.BuildError
	require.ErrorAs(t, err, &compileErr)

	assert.Equal(t, m.RunCompileFailed, run.State)
	assert.Equal(t, diagnostics, run.Diagnostics)
	assert.Nil(t, run.Baseline)
	assert.Empty(t, runner.calls, "nothing runs when the build fails")
	assert.Equal(t, 1, builder.builds(), "rollback is off by default")
}

func TestRunSetupFailure(t *testing.T) {
	builder := &fakeBuilder{fail: func(string) error { return errors.New("copy workspace: disk full") }}

	run, err := NewOrchestrator(NewInstrumentor(), builder, &fakeRunner{}).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{Rollback: true},
	})

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, RunErrorSetup, runErr.Kind)
	assert.Equal(t, m.RunBaselineFailed, run.State)
	assert.Contains(t, run.Reason, "disk full")
}

func TestRunRollbackIsolatesBrokenMutants(t *testing.T) {
	builder := &fakeBuilder{fail: func(code string) error {
		if strings.Contains(code, "schemataMutantActive(2)") {
			return &m.BuildError{Diagnostics: []string{"greeting.go:4:9: mutant 2 is broken"}}
		}

		return nil
	}}
	runner := &fakeRunner{results: map[uint]m.TestRunResult{
		0: passing(2),
		1: failing(2, 1),
		3: failing(2, 1),
		4: passing(2),
	}}

	run, err := NewOrchestrator(NewInstrumentor(), builder, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{Rollback: true, MutationTimeout: 5 * time.Second},
	})
	require.NoError(t, err)

	assert.Equal(t, m.RunCompleted, run.State)
	assert.Equal(t, []m.MutantStatus{m.Killed, m.CompileError, m.Killed, m.Survived}, statuses(run))
	assert.Equal(t, 1, run.Score.CompileError)
	assert.InDelta(t, 66.67, run.Score.Value, 0.01)

	assert.NotContains(t, runner.calls, uint(2), "a broken mutant is never run")

	last := builder.inputs[len(builder.inputs)-1]
	assert.NotContains(t, string(last.Code), "schemataMutantActive(2)")
	assert.Contains(t, string(last.Code), "schemataMutantActive(3)")

	// instrumented, unmodified, {1,2}, {1}, {2}, {3,4}, final
	require.Len(t, builder.inputs, 7)
	assert.Equal(t, 4, builder.released, "every successful build is released")
}

func TestRunRollbackWhenSourceIsBroken(t *testing.T) {
	builder := &fakeBuilder{fail: func(string) error { return &m.BuildError{Diagnostics: []string{"broken"}} }}

	run, err := NewOrchestrator(NewInstrumentor(), builder, &fakeRunner{}).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{Rollback: true},
	})

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, RunErrorCompile, runErr.Kind)
	assert.Equal(t, m.RunCompileFailed, run.State)
	assert.Equal(t, 2, builder.builds(), "the instrumented and the unmodified source")
}

func TestRunContainsTimeouts(t *testing.T) {
	runner := &fakeRunner{
		results: map[uint]m.TestRunResult{0: passing(1), 2: failing(1, 1), 3: failing(1, 1), 4: failing(1, 1)},
		delays:  map[uint]time.Duration{1: time.Minute},
	}

	start := time.Now()

	run, err := NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{MutationTimeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, []m.MutantStatus{m.Timeout, m.Killed, m.Killed, m.Killed}, statuses(run))
	assert.Nil(t, run.Outcomes[0].Result)
	assert.Equal(t, 1, run.Score.Timeout)
	assert.InDelta(t, 100.0, run.Score.Value, 0.001, "timeouts count as caught")
}

func TestRunIgnoresRunnerFaults(t *testing.T) {
	runner := &fakeRunner{
		results: map[uint]m.TestRunResult{0: passing(1), 1: failing(1, 1), 3: passing(1), 4: failing(1, 1)},
		errs:    map[uint]error{2: errors.New("exec format error")},
	}

	run, err := NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{MutationTimeout: 5 * time.Second},
	})
	require.NoError(t, err)

	assert.Equal(t, []m.MutantStatus{m.Killed, m.Ignored, m.Survived, m.Killed}, statuses(run))
	require.ErrorIs(t, run.Outcomes[1].Err, ErrRunnerFault)
	assert.Equal(t, 1, run.Score.Ignored)
	assert.InDelta(t, 66.67, run.Score.Value, 0.01)
}

func TestRunCancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		builder := &fakeBuilder{}

		run, err := NewOrchestrator(NewInstrumentor(), builder, &fakeRunner{}).Run(ctx, RunPlan{Registry: greetingRegistry(t)})
		require.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, m.RunCancelled, run.State)
		assert.Zero(t, builder.builds())
	})

	t.Run("during mutants", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		builder := &fakeBuilder{}
		runner := &fakeRunner{results: map[uint]m.TestRunResult{0: passing(1), 1: failing(1, 1), 2: failing(1, 1)}}

		run, err := NewOrchestrator(NewInstrumentor(), builder, runner).Run(ctx, RunPlan{
			Registry:  greetingRegistry(t),
			Options:   RunOptions{Parallel: 1, MutationTimeout: 5 * time.Second},
			OnOutcome: func(m.Mutation, m.MutantOutcome) { cancel() },
		})

		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, RunErrorCancelled, runErr.Kind)
		require.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, m.RunCancelled, run.State)
		require.Len(t, run.Outcomes, 1)
		assert.Equal(t, m.Killed, run.Outcomes[0].Status)
		assert.False(t, run.Score.Defined)
		assert.Equal(t, 1, builder.released, "the artifact is released on cancellation")
	})
}

func TestRunSpillsOutput(t *testing.T) {
	spill, err := pkg.NewFileSpill[m.MutantLog](t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = spill.Close() })

	withOutput := func(r m.TestRunResult, line string) m.TestRunResult {
		r.TextOutput = []string{line}
		return r
	}

	runner := &fakeRunner{results: map[uint]m.TestRunResult{
		0: withOutput(passing(1), "baseline ok"),
		1: withOutput(passing(1), "mutant 1 survived"),
		2: withOutput(failing(1, 1), "mutant 2 killed"),
		3: failing(1, 1),
		4: failing(1, 1),
	}}

	_, err = NewOrchestrator(NewInstrumentor(), &fakeBuilder{}, runner).Run(context.Background(), RunPlan{
		Registry: greetingRegistry(t),
		Options:  RunOptions{MutationTimeout: 5 * time.Second},
		Spill:    spill,
	})
	require.NoError(t, err)

	logs := map[uint][]string{}
	require.NoError(t, spill.Range(func(_ uint64, log m.MutantLog) error {
		logs[log.MutantID] = log.Lines
		return nil
	}))

	assert.Equal(t, map[uint][]string{
		0: {"baseline ok"},
		1: {"mutant 1 survived"},
		2: {"mutant 2 killed"},
	}, logs)
}

func TestOrchestratorBaseline(t *testing.T) {
	unit := loadUnit(t, "greeting.go", greetingSource)
	builder := &fakeBuilder{}
	runner := &fakeRunner{results: map[uint]m.TestRunResult{0: failing(4, 1)}}

	result, err := NewOrchestrator(NewInstrumentor(), builder, runner).Baseline(context.Background(), unit, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedCount)
	assert.False(t, result.Passed())
	assert.Equal(t, greetingSource, string(builder.inputs[0].Code), "the baseline builds the unmodified source")
	assert.Empty(t, builder.inputs[0].Helpers)
	assert.Equal(t, 1, builder.released)

	unit.Tests = nil
	_, err = NewOrchestrator(NewInstrumentor(), builder, runner).Baseline(context.Background(), unit, 0)
	require.ErrorIs(t, err, ErrNoTests)
}

func TestMutantTimeout(t *testing.T) {
	tests := []struct {
		name     string
		opts     RunOptions
		baseline time.Duration
		want     time.Duration
	}{
		{name: "explicit", opts: RunOptions{MutationTimeout: 3 * time.Second}, baseline: time.Minute, want: 3 * time.Second},
		{name: "default factor", baseline: 2 * time.Second, want: 4 * time.Second},
		{name: "factor and grace", opts: RunOptions{TimeoutFactor: 3, TimeoutGrace: time.Second}, baseline: 2 * time.Second, want: 7 * time.Second},
		{name: "floor", baseline: 10 * time.Millisecond, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mutantTimeout(tt.opts, tt.baseline))
		})
	}
}

func TestClassify(t *testing.T) {
	fault := errors.New("fault")

	tests := []struct {
		name     string
		result   m.TestRunResult
		err      error
		timedOut bool
		want     m.MutantStatus
	}{
		{name: "timeout wins", result: failing(2, 1), err: fault, timedOut: true, want: m.Timeout},
		{name: "runner fault", result: failing(2, 1), err: fault, want: m.Ignored},
		{name: "no tests", result: m.TestRunResult{}, want: m.NoCoverage},
		{name: "failed test", result: failing(2, 1), want: m.Killed},
		{name: "all passed", result: passing(2), want: m.Survived},
		{name: "skipped only", result: m.TestRunResult{TestCount: 1, SkippedCount: 1}, want: m.Survived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.result, tt.err, tt.timedOut))
		})
	}
}
