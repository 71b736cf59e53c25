package domain

import (
	"fmt"
	"log/slog"

	"github.com/pmezard/go-difflib/difflib"

	m "gooze.dev/pkg/schemata/internal/model"
)

const diffContext = 3

// ScoreOutcomes computes the mutation score of outcomes. Killed and Timeout
// mutants count as caught; NoCoverage, CompileError and Ignored mutants are
// counted but excluded from the score. The score is undefined when no mutant
// was evaluated.
func ScoreOutcomes(outcomes []m.MutantOutcome) m.Score {
	var score m.Score

	for _, outcome := range outcomes {
		switch outcome.Status {
		case m.Killed:
			score.Killed++
		case m.Survived:
			score.Survived++
		case m.Timeout:
			score.Timeout++
		case m.NoCoverage:
			score.NoCoverage++
		case m.CompileError:
			score.CompileError++
		case m.Ignored:
			score.Ignored++
		}
	}

	return finishScore(score)
}

// MergeScores adds up the counts of several scores and recomputes the value.
func MergeScores(scores ...m.Score) m.Score {
	var total m.Score

	for _, score := range scores {
		total.Killed += score.Killed
		total.Survived += score.Survived
		total.Timeout += score.Timeout
		total.NoCoverage += score.NoCoverage
		total.CompileError += score.CompileError
		total.Ignored += score.Ignored
	}

	return finishScore(total)
}

func finishScore(score m.Score) m.Score {
	evaluated := score.Evaluated()
	if evaluated == 0 {
		score.Value = 0
		score.Defined = false

		return score
	}

	score.Value = 100 * float64(score.Killed+score.Timeout) / float64(evaluated)
	score.Defined = true

	return score
}

// BuildReport renders run as a RunReport. Mutants are listed in id order and
// surviving mutants carry a unified diff against the original source.
func BuildReport(registry *m.Registry, run m.MutationRun, instrumentor Instrumentor) m.RunReport {
	report := m.RunReport{
		State:       run.State,
		Reason:      run.Reason,
		Diagnostics: run.Diagnostics,
		Baseline:    run.Baseline,
		Mutants:     make([]m.MutantReport, 0, len(run.Outcomes)),
		Score:       run.Score,
	}

	if registry == nil {
		return report
	}

	report.Source = registry.Source.Name()

	for _, outcome := range run.Outcomes {
		mutation, ok := registry.Get(outcome.MutantID)
		if !ok {
			slog.Warn("Outcome without mutation", "source", report.Source, "id", outcome.MutantID)
			continue
		}

		entry := m.MutantReport{
			ID:          mutation.ID,
			Kind:        mutation.Kind,
			DisplayName: mutation.DisplayName,
			Description: mutation.Description,
			Position:    FormatPosition(registry.Source, mutation),
			Status:      outcome.Status,
		}

		if outcome.Status == m.Survived {
			entry.Reproduce = outcome.Reproduce

			if instrumentor != nil {
				diff, err := MutantDiff(instrumentor, registry.Source, mutation)
				if err != nil {
					slog.Warn("Failed to diff mutant", "source", report.Source, "id", mutation.ID, "error", err)
				}

				entry.Diff = diff
			}
		}

		report.Mutants = append(report.Mutants, entry)
	}

	return report
}

// FormatPosition returns file:line:column of mutation, using the short path of unit.
func FormatPosition(unit *m.SourceUnit, mutation m.Mutation) string {
	return fmt.Sprintf("%s:%d:%d", unit.Name(), mutation.Position.Line, mutation.Position.Column)
}

// MutantDiff returns the unified diff between the source of unit and the
// source with mutation applied.
func MutantDiff(instrumentor Instrumentor, unit *m.SourceUnit, mutation m.Mutation) (string, error) {
	original, err := RenderSource(unit)
	if err != nil {
		return "", err
	}

	mutated, err := instrumentor.Apply(unit, mutation)
	if err != nil {
		return "", err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(mutated)),
		FromFile: "a/" + unit.Name(),
		ToFile:   fmt.Sprintf("b/%s (mutant %d)", unit.Name(), mutation.ID),
		Context:  diffContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to diff mutant %d: %w", mutation.ID, err)
	}

	return diff, nil
}
