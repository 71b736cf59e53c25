package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gooze.dev/pkg/schemata/internal/adapter"
	"gooze.dev/pkg/schemata/internal/controller"
	m "gooze.dev/pkg/schemata/internal/model"
	"gooze.dev/pkg/schemata/pkg"
)

// EstimateArgs selects the sources and mutants of a session.
type EstimateArgs struct {
	Paths     []m.Path
	Exclude   []string
	Level     m.Level
	Operators []string
}

// TestArgs contains the arguments for running mutation tests.
type TestArgs struct {
	EstimateArgs
	Run        RunOptions
	SpillDir   string
	ShowOutput bool
}

// BaselineArgs contains the arguments for a plain test run.
type BaselineArgs struct {
	Paths   []m.Path
	Exclude []string
	Timeout time.Duration
}

// ShowArgs selects one mutant of one source.
type ShowArgs struct {
	Path      m.Path
	MutantID  uint
	Level     m.Level
	Operators []string
}

// Workflow defines the mutation testing sessions offered by the CLI.
type Workflow interface {
	// Estimate lists the mutants of every source without building anything.
	Estimate(ctx context.Context, args EstimateArgs) error
	// Test runs one mutation run per source and reports the overall score.
	Test(ctx context.Context, args TestArgs) (m.Summary, error)
	// Baseline runs the unmodified tests of every source's package.
	Baseline(ctx context.Context, args BaselineArgs) error
	// Show prints one mutant with its diff.
	Show(ctx context.Context, args ShowArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.GoFileAdapter
	controller.UI
	Orchestrator
	Instrumentor
}

// NewWorkflow creates a Workflow with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	goFileAdapter adapter.GoFileAdapter,
	ui controller.UI,
	orchestrator Orchestrator,
	instrumentor Instrumentor,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		GoFileAdapter:   goFileAdapter,
		UI:              ui,
		Orchestrator:    orchestrator,
		Instrumentor:    instrumentor,
	}
}

func (w *workflow) Estimate(ctx context.Context, args EstimateArgs) error {
	if err := w.Start(ctx, controller.WithEstimateMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	estimations, err := w.estimate(ctx, args)
	if err != nil {
		slog.Error("Failed to generate mutations", "error", err)
	}

	if displayErr := w.DisplayEstimation(ctx, estimations, err); displayErr != nil {
		return fmt.Errorf("display: %w", displayErr)
	}

	return nil
}

func (w *workflow) estimate(ctx context.Context, args EstimateArgs) ([]controller.Estimation, error) {
	generator, err := newGenerator(args.Operators)
	if err != nil {
		return nil, err
	}

	paths, err := w.Get(args.Paths, args.Exclude)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}

	estimations := make([]controller.Estimation, 0, len(paths))

	for _, path := range paths {
		unit, registry, err := w.generate(ctx, generator, path, args.Level)
		if err != nil {
			return nil, err
		}

		estimations = append(estimations, controller.Estimation{
			Source:   unit.Name(),
			Mutants:  mutantReports(registry),
			HasTests: unit.HasTests(),
		})
	}

	return estimations, nil
}

func (w *workflow) Test(ctx context.Context, args TestArgs) (m.Summary, error) {
	if err := w.Start(ctx, controller.WithTestMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return m.Summary{}, err
	}
	defer w.Close(ctx)

	generator, err := newGenerator(args.Operators)
	if err != nil {
		return m.Summary{}, err
	}

	paths, err := w.Get(args.Paths, args.Exclude)
	if err != nil {
		return m.Summary{}, fmt.Errorf("get sources: %w", err)
	}

	var (
		summary   = m.Summary{Reports: make([]m.RunReport, 0, len(paths))}
		completed []m.Score
		failures  []error
		cancelled error
	)

	for _, path := range paths {
		report, err := w.testSource(ctx, generator, path, args)
		if report != nil {
			summary.Reports = append(summary.Reports, *report)

			if report.State == m.RunCompleted {
				completed = append(completed, report.Score)
			}
		}

		if err == nil {
			continue
		}

		var runErr *RunError
		if ctx.Err() != nil || (errors.As(err, &runErr) && runErr.Kind == RunErrorCancelled) {
			cancelled = err
			break
		}

		if errors.Is(err, ErrNoTests) {
			slog.Info("Source has no tests", "path", path)
			continue
		}

		failures = append(failures, err)
	}

	summary.Score = MergeScores(completed...)

	if err := w.DisplaySummary(context.WithoutCancel(ctx), summary); err != nil {
		return summary, fmt.Errorf("display: %w", err)
	}

	if cancelled != nil {
		return summary, cancelled
	}

	return summary, errors.Join(failures...)
}

// testSource performs the mutation run of one source file.
func (w *workflow) testSource(ctx context.Context, generator Mutagen, path m.Path, args TestArgs) (*m.RunReport, error) {
	unit, registry, err := w.generate(ctx, generator, path, args.Level)
	if err != nil {
		return nil, err
	}

	spill, err := pkg.NewFileSpill[m.MutantLog](args.SpillDir)
	if err != nil {
		slog.Warn("Test output will not be kept", "error", err)
	} else {
		defer func() {
			if err := spill.Close(); err != nil {
				slog.Warn("Failed to close spill", "path", spill.Path(), "error", err)
			}
		}()
	}

	w.DisplayRunStart(ctx, unit.Name(), registry.Len(), max(args.Run.Parallel, 1))

	run, runErr := w.Run(ctx, RunPlan{
		Registry: registry,
		Options:  args.Run,
		Spill:    spill,
		OnOutcome: func(mutation m.Mutation, outcome m.MutantOutcome) {
			w.DisplayMutantOutcome(ctx, m.MutantReport{
				ID:          mutation.ID,
				Kind:        mutation.Kind,
				DisplayName: mutation.DisplayName,
				Position:    FormatPosition(unit, mutation),
				Status:      outcome.Status,
			})
		},
	})
	if runErr != nil && run.State == "" {
		return nil, runErr
	}

	if args.ShowOutput && spill != nil {
		w.displayOutput(ctx, spill, run)
	}

	report := BuildReport(registry, run, w.Instrumentor)

	if err := w.DisplayRunReport(context.WithoutCancel(ctx), report); err != nil {
		slog.Warn("Failed to display run report", "source", unit.Name(), "error", err)
	}

	return &report, runErr
}

// displayOutput shows the captured output of the baseline when it failed and
// of every surviving mutant.
func (w *workflow) displayOutput(ctx context.Context, spill pkg.FileSpill[m.MutantLog], run m.MutationRun) {
	survived := make(map[uint]struct{})

	for _, outcome := range run.Outcomes {
		if outcome.Status == m.Survived {
			survived[outcome.MutantID] = struct{}{}
		}
	}

	err := spill.Range(func(_ uint64, log m.MutantLog) error {
		_, show := survived[log.MutantID]
		if show || (log.MutantID == 0 && run.State == m.RunBaselineFailed) {
			w.DisplayMutantOutput(ctx, log)
		}

		return nil
	})
	if err != nil {
		slog.Warn("Failed to read spilled output", "path", spill.Path(), "error", err)
	}
}

func (w *workflow) Baseline(ctx context.Context, args BaselineArgs) error {
	if err := w.Start(ctx, controller.WithBaselineMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	paths, err := w.Get(args.Paths, args.Exclude)
	if err != nil {
		return fmt.Errorf("get sources: %w", err)
	}

	var failures []error

	for _, path := range paths {
		unit, err := w.Load(ctx, path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}

		result, err := w.Orchestrator.Baseline(ctx, unit, args.Timeout)
		if displayErr := w.DisplayBaseline(ctx, unit.Name(), result, err); displayErr != nil {
			return fmt.Errorf("display: %w", displayErr)
		}

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures = append(failures, fmt.Errorf("%s: %w", unit.Name(), err))
		case !result.Passed():
			failures = append(failures, fmt.Errorf("%s: %d of %d tests failed", unit.Name(), result.FailedCount, result.TestCount))
		}
	}

	return errors.Join(failures...)
}

func (w *workflow) Show(ctx context.Context, args ShowArgs) error {
	if err := w.Start(ctx, controller.WithShowMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	generator, err := newGenerator(args.Operators)
	if err != nil {
		return err
	}

	unit, registry, err := w.generate(ctx, generator, args.Path, args.Level)
	if err != nil {
		return err
	}

	mutation, ok := registry.Get(args.MutantID)
	if !ok {
		return fmt.Errorf("%w: %d in %s (%d mutants)", ErrMutantNotFound, args.MutantID, unit.Name(), registry.Len())
	}

	diff, err := MutantDiff(w.Instrumentor, unit, mutation)
	if err != nil {
		return err
	}

	report := mutantReport(unit, mutation)
	report.Diff = diff

	return w.DisplayMutant(ctx, report)
}

func (w *workflow) generate(ctx context.Context, generator Mutagen, path m.Path, level m.Level) (*m.SourceUnit, *m.Registry, error) {
	unit, err := w.Load(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	registry, err := generator.Generate(ctx, unit, level)
	if err != nil {
		return nil, nil, fmt.Errorf("generate mutations for %s: %w", unit.Name(), err)
	}

	return unit, registry, nil
}

func newGenerator(operators []string) (Mutagen, error) {
	selected, err := SelectOperators(operators)
	if err != nil {
		return nil, err
	}

	return NewMutagen(selected...), nil
}

func mutantReports(registry *m.Registry) []m.MutantReport {
	reports := make([]m.MutantReport, 0, registry.Len())
	for _, mutation := range registry.Mutations {
		reports = append(reports, mutantReport(registry.Source, mutation))
	}

	return reports
}

func mutantReport(unit *m.SourceUnit, mutation m.Mutation) m.MutantReport {
	return m.MutantReport{
		ID:          mutation.ID,
		Kind:        mutation.Kind,
		DisplayName: mutation.DisplayName,
		Description: mutation.Description,
		Position:    FormatPosition(unit, mutation),
	}
}
