package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/schemata/internal/adapter"
	m "gooze.dev/pkg/schemata/internal/model"
	"gooze.dev/pkg/schemata/pkg"
)

const (
	defaultTimeoutFactor = 2.0
	minimumMutantTimeout = time.Second
)

// Orchestrator drives one mutation run: it builds the instrumented program
// once, gates on a passing baseline and then evaluates every mutant.
type Orchestrator interface {
	// Run evaluates every mutation of plan.Registry. A run that does not
	// complete returns its partial MutationRun together with a *RunError.
	Run(ctx context.Context, plan RunPlan) (m.MutationRun, error)

	// Baseline builds the unmodified package of unit and runs its tests once.
	Baseline(ctx context.Context, unit *m.SourceUnit, timeout time.Duration) (m.TestRunResult, error)
}

// RunOptions tune the execution loop.
type RunOptions struct {
	// Parallel is the number of lanes evaluating mutants at once.
	Parallel int
	// MutationTimeout bounds one evaluation. Zero derives it from the baseline.
	MutationTimeout time.Duration
	// BaselineTimeout bounds the baseline run. Zero means no bound.
	BaselineTimeout time.Duration
	TimeoutFactor   float64
	TimeoutGrace    time.Duration
	// Rollback isolates mutants that break the build instead of failing the run.
	Rollback bool
}

// RunPlan is the input of Orchestrator.Run.
type RunPlan struct {
	Registry *m.Registry
	Options  RunOptions
	// Spill receives the captured test output of every evaluation when set.
	Spill pkg.FileSpill[m.MutantLog]
	// OnOutcome is called once per evaluated mutant. Calls never overlap.
	OnOutcome func(m.Mutation, m.MutantOutcome)
}

// Recorder receives measurements taken during a run.
type Recorder interface {
	ObserveBuild(source string, duration time.Duration, err error)
	ObserveTestRun(phase string, duration time.Duration)
	ObserveOutcome(source string, outcome m.MutantOutcome)
	ObserveScore(source string, score m.Score)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBuild(string, time.Duration, error) {}
func (nopRecorder) ObserveTestRun(string, time.Duration)      {}
func (nopRecorder) ObserveOutcome(string, m.MutantOutcome)    {}
func (nopRecorder) ObserveScore(string, m.Score)              {}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestrator)

// WithRecorder reports run measurements to recorder.
func WithRecorder(recorder Recorder) OrchestratorOption {
	return func(o *orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

type orchestrator struct {
	instrumentor Instrumentor
	builder      adapter.BuilderAdapter
	runner       adapter.TestRunnerAdapter
	recorder     Recorder
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	instrumentor Instrumentor,
	builder adapter.BuilderAdapter,
	runner adapter.TestRunnerAdapter,
	opts ...OrchestratorOption,
) Orchestrator {
	o := &orchestrator{
		instrumentor: instrumentor,
		builder:      builder,
		runner:       runner,
		recorder:     nopRecorder{},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *orchestrator) Run(ctx context.Context, plan RunPlan) (m.MutationRun, error) {
	registry := plan.Registry
	if registry == nil || registry.Source == nil {
		return m.MutationRun{}, ErrSourceNotLoaded
	}

	unit := registry.Source
	source := unit.Name()

	if !unit.HasTests() {
		slog.Info("Skipping source without tests", "source", source)
		return failRun(m.MutationRun{}, m.RunBaselineFailed, &RunError{
			Kind:   RunErrorSetup,
			Source: source,
			Reason: ErrNoTests.Error(),
			Err:    ErrNoTests,
		})
	}

	if err := ctx.Err(); err != nil {
		return cancelRun(m.MutationRun{}, source, err)
	}

	artifact, culprits, err := o.build(ctx, registry, plan.Options.Rollback)
	if err != nil {
		return o.buildFailure(ctx, source, err)
	}

	defer o.release(ctx, artifact)

	run := m.MutationRun{}

	baseline, err := o.baseline(ctx, unit, artifact, plan)
	run.Baseline = baseline

	if err != nil {
		var runErr *RunError
		if errors.As(err, &runErr) && runErr.Kind == RunErrorCancelled {
			return failRun(run, m.RunCancelled, runErr)
		}

		return failRun(run, m.RunBaselineFailed, err)
	}

	timeout := mutantTimeout(plan.Options, baseline.Duration)
	slog.Debug("Mutant timeout", "source", source, "timeout", timeout, "baseline", baseline.Duration)

	pending := make([]m.Mutation, 0, registry.Len())
	outcomes := make([]m.MutantOutcome, 0, registry.Len())

	for _, mutation := range registry.Mutations {
		if _, broken := culprits[mutation.ID]; broken {
			outcome := m.MutantOutcome{MutantID: mutation.ID, Status: m.CompileError}
			outcomes = append(outcomes, outcome)
			o.report(plan, source, mutation, outcome)

			continue
		}

		pending = append(pending, mutation)
	}

	evaluated, err := o.evaluateAll(ctx, unit, artifact, pending, timeout, plan)
	outcomes = append(outcomes, evaluated...)

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].MutantID < outcomes[j].MutantID })
	run.Outcomes = outcomes

	if err != nil {
		return cancelRun(run, source, err)
	}

	run.State = m.RunCompleted
	run.Score = ScoreOutcomes(outcomes)
	o.recorder.ObserveScore(source, run.Score)

	slog.Info("Mutation run completed", "source", source, "mutants", len(outcomes), "score", run.Score.String())

	return run, nil
}

func (o *orchestrator) Baseline(ctx context.Context, unit *m.SourceUnit, timeout time.Duration) (m.TestRunResult, error) {
	if unit == nil || unit.Origin == nil {
		return m.TestRunResult{}, ErrSourceNotLoaded
	}

	if !unit.HasTests() {
		return m.TestRunResult{}, fmt.Errorf("%w: %s", ErrNoTests, unit.Name())
	}

	start := time.Now()
	artifact, err := o.builder.Build(ctx, m.BuildInput{Source: unit, Code: unit.Content})
	o.recorder.ObserveBuild(unit.Name(), time.Since(start), err)

	if err != nil {
		return m.TestRunResult{}, err
	}

	defer o.release(ctx, artifact)

	runCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := o.runner.RunTests(runCtx, artifact, NewActiveMutantSelector().Environ())
	o.recorder.ObserveTestRun("baseline", result.Duration)

	return result, err
}

// build instruments every mutation and compiles the result. With rollback the
// mutants that break the build are isolated and returned as culprits.
func (o *orchestrator) build(ctx context.Context, registry *m.Registry, rollback bool) (m.Artifact, map[uint]struct{}, error) {
	artifact, err := o.buildSubset(ctx, registry, registry.Mutations)
	if err == nil {
		return artifact, nil, nil
	}

	var compileErr *m.BuildError
	if !rollback || !errors.As(err, &compileErr) {
		return m.Artifact{}, nil, err
	}

	slog.Info("Instrumented build failed, isolating mutants", "source", registry.Source.Name(), "mutants", registry.Len())

	culprits, err := o.rollback(ctx, registry, err)
	if err != nil {
		return m.Artifact{}, nil, err
	}

	kept := make([]m.Mutation, 0, registry.Len()-len(culprits))

	for _, mutation := range registry.Mutations {
		if _, broken := culprits[mutation.ID]; !broken {
			kept = append(kept, mutation)
		}
	}

	artifact, err = o.buildSubset(ctx, registry, kept)
	if err != nil {
		return m.Artifact{}, nil, err
	}

	return artifact, culprits, nil
}

func (o *orchestrator) buildSubset(ctx context.Context, registry *m.Registry, mutations []m.Mutation) (m.Artifact, error) {
	subset := &m.Registry{Source: registry.Source, Mutations: mutations}

	program, err := o.instrumentor.Instrument(registry.Source, subset)
	if err != nil {
		return m.Artifact{}, err
	}

	start := time.Now()

	artifact, err := o.builder.Build(ctx, m.BuildInput{
		Source:  registry.Source,
		Code:    program.Code,
		Helpers: program.Helpers,
	})
	o.recorder.ObserveBuild(registry.Source.Name(), time.Since(start), err)

	return artifact, err
}

func (o *orchestrator) buildFailure(ctx context.Context, source string, err error) (m.MutationRun, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelRun(m.MutationRun{}, source, ctxErr)
	}

	var compileErr *m.BuildError
	if errors.As(err, &compileErr) {
		slog.Error("Instrumented program does not compile", "source", source, "diagnostics", len(compileErr.Diagnostics))

		return failRun(m.MutationRun{}, m.RunCompileFailed, &RunError{
			Kind:        RunErrorCompile,
			Source:      source,
			Reason:      "instrumented program does not compile",
			Diagnostics: compileErr.Diagnostics,
			Err:         err,
		})
	}

	var instrumentErr *InstrumentationError
	if errors.As(err, &instrumentErr) {
		slog.Error("Failed to instrument source", "source", source, "error", err)

		return failRun(m.MutationRun{}, m.RunCompileFailed, &RunError{
			Kind:   RunErrorCompile,
			Source: source,
			Reason: instrumentErr.Error(),
			Err:    err,
		})
	}

	slog.Error("Failed to build test artifact", "source", source, "error", err)

	return failRun(m.MutationRun{}, m.RunBaselineFailed, &RunError{
		Kind:   RunErrorSetup,
		Source: source,
		Reason: fmt.Sprintf("could not build test artifact: %v", err),
		Err:    err,
	})
}

// baseline runs the tests with no mutant active.
func (o *orchestrator) baseline(ctx context.Context, unit *m.SourceUnit, artifact m.Artifact, plan RunPlan) (*m.TestRunResult, error) {
	source := unit.Name()
	selector := NewActiveMutantSelector()

	runCtx := ctx

	if plan.Options.BaselineTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, plan.Options.BaselineTimeout)
		defer cancel()
	}

	result, err := o.runner.RunTests(runCtx, artifact, selector.Environ())
	o.recorder.ObserveTestRun("baseline", result.Duration)
	o.spill(plan, 0, result.TextOutput)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &result, &RunError{Kind: RunErrorCancelled, Source: source, Reason: "run cancelled during baseline", Err: ctxErr}
		}

		reason := fmt.Sprintf("baseline could not run: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("baseline did not finish within %s", plan.Options.BaselineTimeout)
		}

		return &result, &RunError{Kind: RunErrorSetup, Source: source, Reason: reason, Err: err}
	}

	if result.TestCount == 0 {
		return &result, &RunError{Kind: RunErrorSetup, Source: source, Reason: "baseline ran no tests", Err: ErrNoTests}
	}

	if result.FailedCount > 0 {
		return &result, &RunError{
			Kind:   RunErrorSetup,
			Source: source,
			Reason: fmt.Sprintf("baseline failed: %d of %d tests failed", result.FailedCount, result.TestCount),
		}
	}

	slog.Info("Baseline passed", "source", source, "tests", result.TestCount, "duration", result.Duration)

	return &result, nil
}

// evaluateAll runs the mutant loop. Lanes own their selector and start a fresh
// test process per mutant. Outcomes are returned in id order.
func (o *orchestrator) evaluateAll(
	ctx context.Context,
	unit *m.SourceUnit,
	artifact m.Artifact,
	mutations []m.Mutation,
	timeout time.Duration,
	plan RunPlan,
) ([]m.MutantOutcome, error) {
	lanes := max(plan.Options.Parallel, 1)
	lanes = min(lanes, max(len(mutations), 1))

	var (
		mu       sync.Mutex
		outcomes = make([]m.MutantOutcome, 0, len(mutations))
	)

	jobs := make(chan m.Mutation)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)

		for _, mutation := range mutations {
			select {
			case jobs <- mutation:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	for lane := range lanes {
		g.Go(func() error {
			selector := NewActiveMutantSelector()

			for mutation := range jobs {
				outcome, err := o.evaluate(gctx, selector, artifact, mutation, timeout, plan)
				if err != nil {
					return err
				}

				mu.Lock()
				outcomes = append(outcomes, outcome)
				o.report(plan, unit.Name(), mutation, outcome)
				mu.Unlock()
			}

			slog.Debug("Lane finished", "source", unit.Name(), "lane", lane)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	// A cancellation that arrives after the last job leaves no error in the group.
	return outcomes, ctx.Err()
}

type runReply struct {
	result m.TestRunResult
	err    error
}

// evaluate runs the tests once with mutation active. It only returns an error
// when ctx is cancelled; every other failure becomes part of the outcome.
func (o *orchestrator) evaluate(
	ctx context.Context,
	selector *ActiveMutantSelector,
	artifact m.Artifact,
	mutation m.Mutation,
	timeout time.Duration,
	plan RunPlan,
) (m.MutantOutcome, error) {
	outcome := m.MutantOutcome{MutantID: mutation.ID}

	if err := selector.Activate(mutation.ID); err != nil {
		outcome.Status = m.Ignored
		outcome.Err = err

		return outcome, nil
	}

	env := selector.Environ()
	outcome.Reproduce = o.runner.Reproduce(artifact, env)
	slog.Debug("Evaluating mutant", "id", mutation.ID, "kind", mutation.Kind, "reproduce", outcome.Reproduce)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan runReply, 1)

	go func() {
		result, err := o.runner.RunTests(runCtx, artifact, env)
		replies <- runReply{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	start := time.Now()

	select {
	case reply := <-replies:
		selector.Clear()

		outcome.Duration = time.Since(start)
		outcome.Result = &reply.result

		if reply.err != nil && ctx.Err() != nil {
			return outcome, ctx.Err()
		}

		if reply.err != nil {
			outcome.Err = fmt.Errorf("%w: %w", ErrRunnerFault, reply.err)
		}

		outcome.Status = classify(reply.result, reply.err, false)
		o.spill(plan, mutation.ID, reply.result.TextOutput)
	case <-timer.C:
		cancel()
		selector.Clear()

		outcome.Duration = time.Since(start)
		outcome.Status = classify(m.TestRunResult{}, nil, true)
		slog.Info("Mutant timed out", "id", mutation.ID, "timeout", timeout)
	case <-ctx.Done():
		cancel()
		selector.Clear()

		return outcome, ctx.Err()
	}

	o.recorder.ObserveTestRun("mutant", outcome.Duration)

	return outcome, nil
}

// classify maps one evaluation to a status. The checks are ordered: a timeout
// wins over a runner fault, which wins over the test counts.
func classify(result m.TestRunResult, err error, timedOut bool) m.MutantStatus {
	switch {
	case timedOut:
		return m.Timeout
	case err != nil:
		return m.Ignored
	case result.TestCount == 0:
		return m.NoCoverage
	case result.FailedCount > 0:
		return m.Killed
	default:
		return m.Survived
	}
}

func (o *orchestrator) report(plan RunPlan, source string, mutation m.Mutation, outcome m.MutantOutcome) {
	o.recorder.ObserveOutcome(source, outcome)

	if plan.OnOutcome != nil {
		plan.OnOutcome(mutation, outcome)
	}
}

func (o *orchestrator) spill(plan RunPlan, id uint, lines []string) {
	if plan.Spill == nil || len(lines) == 0 {
		return
	}

	if err := plan.Spill.Append(m.MutantLog{MutantID: id, Lines: lines}); err != nil {
		slog.Warn("Failed to spill test output", "id", id, "error", err)
	}
}

// mutantTimeout is the configured timeout, or the baseline duration scaled by
// the timeout factor plus the grace period.
func mutantTimeout(opts RunOptions, baseline time.Duration) time.Duration {
	if opts.MutationTimeout > 0 {
		return opts.MutationTimeout
	}

	factor := opts.TimeoutFactor
	if factor <= 0 {
		factor = defaultTimeoutFactor
	}

	timeout := time.Duration(float64(baseline)*factor) + opts.TimeoutGrace

	return max(timeout, minimumMutantTimeout)
}

func failRun(run m.MutationRun, state m.RunState, err error) (m.MutationRun, error) {
	run.State = state

	var runErr *RunError
	if errors.As(err, &runErr) {
		run.Reason = runErr.Reason
		run.Diagnostics = runErr.Diagnostics
	} else {
		run.Reason = err.Error()
	}

	return run, err
}

func cancelRun(run m.MutationRun, source string, err error) (m.MutationRun, error) {
	slog.Info("Mutation run cancelled", "source", source, "evaluated", len(run.Outcomes))

	return failRun(run, m.RunCancelled, &RunError{
		Kind:   RunErrorCancelled,
		Source: source,
		Reason: "run cancelled",
		Err:    err,
	})
}
