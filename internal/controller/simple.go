package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/schemata/internal/model"
)

const (
	goodScore       = 90.0
	acceptableScore = 70.0
)

// SimpleUI implements UI by printing to the command's output. Text reports
// are tables; JSON and YAML reports are written to stdout while progress
// lines go to stderr.
type SimpleUI struct {
	cmd    *cobra.Command
	format Format
	styles styles
}

type styles struct {
	title   lipgloss.Style
	good    lipgloss.Style
	warning lipgloss.Style
	bad     lipgloss.Style
	muted   lipgloss.Style
}

// NewUI creates the UI for format.
func NewUI(cmd *cobra.Command, format Format) UI {
	return NewSimpleUI(cmd, format)
}

// NewSimpleUI creates a new SimpleUI. Colours are only used when the output
// is a terminal.
func NewSimpleUI(cmd *cobra.Command, format Format) *SimpleUI {
	renderer := lipgloss.NewRenderer(cmd.OutOrStdout())

	return &SimpleUI{
		cmd:    cmd,
		format: format,
		styles: styles{
			title:   renderer.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
			good:    renderer.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
			warning: renderer.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			bad:     renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			muted:   renderer.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// DisplayEstimation prints the mutants of every source or the error that stopped the estimation.
func (s *SimpleUI) DisplayEstimation(ctx context.Context, estimations []Estimation, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		s.progressf("estimation error: %v\n", err)
		return err
	}

	if s.format != FormatText {
		return s.encode(estimations)
	}

	total := 0
	for _, estimation := range estimations {
		total += len(estimation.Mutants)
	}

	if total > 0 {
		s.printf("\n%s", renderMutantTable(estimations))
	}

	s.printf("\n%s", renderEstimationTable(estimations, total))

	return nil
}

func renderMutantTable(estimations []Estimation) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"ID", "Kind", "Position", "Mutation"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, estimation := range estimations {
		for _, mutant := range estimation.Mutants {
			table.Append([]string{fmt.Sprintf("%d", mutant.ID), string(mutant.Kind), mutant.Position, mutant.DisplayName})
		}
	}

	table.Render()

	return tableBuffer.String()
}

func renderEstimationTable(estimations []Estimation, totalMutations int) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Mutations", "Tests"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER})

	for _, estimation := range estimations {
		tests := "yes"
		if !estimation.HasTests {
			tests = "no"
		}

		table.Append([]string{estimation.Source, fmt.Sprintf("%d", len(estimation.Mutants)), tests})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(estimations)),
		fmt.Sprintf("%d", totalMutations),
		"",
	})

	table.Render()

	return tableBuffer.String()
}

// DisplayRunStart announces the mutation run of one source.
func (s *SimpleUI) DisplayRunStart(ctx context.Context, source string, mutants int, lanes int) {
	if ctx.Err() != nil {
		return
	}

	s.progressf("%s %s: %d mutant(s) on %d lane(s)\n", s.styles.title.Render("Testing"), source, mutants, lanes)
}

// DisplayMutantOutcome prints one evaluated mutant.
func (s *SimpleUI) DisplayMutantOutcome(ctx context.Context, mutant m.MutantReport) {
	if ctx.Err() != nil {
		return
	}

	s.progressf("  #%-4d %s %s %s\n", mutant.ID, s.status(mutant.Status), mutant.Position, mutant.DisplayName)
}

// DisplayMutantOutput prints the captured test output of one evaluation.
func (s *SimpleUI) DisplayMutantOutput(ctx context.Context, log m.MutantLog) {
	if ctx.Err() != nil {
		return
	}

	label := fmt.Sprintf("mutant %d", log.MutantID)
	if log.MutantID == 0 {
		label = "baseline"
	}

	s.progressf("%s\n", s.styles.muted.Render("--- output of "+label))

	for _, line := range log.Lines {
		s.progressf("    %s\n", line)
	}
}

// DisplayRunReport prints the report of one run. Structured formats are
// written once by DisplaySummary.
func (s *SimpleUI) DisplayRunReport(ctx context.Context, report m.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.format != FormatText {
		return nil
	}

	if report.State != m.RunCompleted {
		s.printf("%s %s: %s\n", s.styles.bad.Render(string(report.State)), report.Source, report.Reason)

		for _, line := range report.Diagnostics {
			s.printf("    %s\n", line)
		}

		if report.State != m.RunCancelled || len(report.Mutants) == 0 {
			return nil
		}
	}

	if len(report.Mutants) > 0 {
		s.printf("\n%s", renderReportTable(report))
	}

	for _, mutant := range report.Mutants {
		if mutant.Diff == "" {
			continue
		}

		s.printf("\n%s #%d %s %s\n", s.styles.bad.Render("Survived"), mutant.ID, mutant.Position, mutant.DisplayName)
		s.printf("%s", mutant.Diff)

		if mutant.Reproduce != "" {
			s.printf("%s\n", s.styles.muted.Render("reproduce: "+mutant.Reproduce))
		}
	}

	s.printf("\nMutation score for %s: %s\n", report.Source, s.score(report.Score))

	return nil
}

func renderReportTable(report m.RunReport) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"ID", "Status", "Kind", "Position", "Mutation"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, mutant := range report.Mutants {
		table.Append([]string{
			fmt.Sprintf("%d", mutant.ID),
			mutant.Status.String(),
			string(mutant.Kind),
			mutant.Position,
			mutant.DisplayName,
		})
	}

	table.Render()

	return tableBuffer.String()
}

// DisplaySummary prints the overall result of a test session.
func (s *SimpleUI) DisplaySummary(ctx context.Context, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.format != FormatText {
		return s.encode(summary)
	}

	if len(summary.Reports) > 1 {
		s.printf("\n%s", renderSummaryTable(summary))
	}

	s.printf("Mutation score: %s (killed %d, survived %d, timeout %d, no coverage %d, compile error %d, ignored %d)\n",
		s.score(summary.Score),
		summary.Score.Killed, summary.Score.Survived, summary.Score.Timeout,
		summary.Score.NoCoverage, summary.Score.CompileError, summary.Score.Ignored)

	return nil
}

func renderSummaryTable(summary m.Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Source", "State", "Killed", "Survived", "Timeout", "No Coverage", "Score"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, report := range summary.Reports {
		table.Append([]string{
			report.Source,
			string(report.State),
			fmt.Sprintf("%d", report.Score.Killed),
			fmt.Sprintf("%d", report.Score.Survived),
			fmt.Sprintf("%d", report.Score.Timeout),
			fmt.Sprintf("%d", report.Score.NoCoverage),
			report.Score.String(),
		})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Files %d", len(summary.Reports)), "", "", "", "", "", summary.Score.String()})
	table.Render()

	return tableBuffer.String()
}

type baselineReport struct {
	Source string          `json:"source" yaml:"source"`
	Result m.TestRunResult `json:"result" yaml:"result"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// DisplayBaseline prints a plain test run.
func (s *SimpleUI) DisplayBaseline(ctx context.Context, source string, result m.TestRunResult, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if s.format != FormatText {
		report := baselineReport{Source: source, Result: result}
		if err != nil {
			report.Error = err.Error()
		}

		return s.encode(report)
	}

	if err != nil {
		s.printf("%s %s: %v\n", s.styles.bad.Render("ERROR"), source, err)
		return nil
	}

	verdict := s.styles.good.Render("PASS")
	if !result.Passed() {
		verdict = s.styles.bad.Render("FAIL")
	}

	s.printf("%s %s: %d test(s), %d passed, %d failed, %d skipped in %s\n",
		verdict, source, result.TestCount, result.PassedCount, result.FailedCount, result.SkippedCount, result.Duration)

	return nil
}

// DisplayMutant prints one mutant with its diff.
func (s *SimpleUI) DisplayMutant(ctx context.Context, mutant m.MutantReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.format != FormatText {
		return s.encode(mutant)
	}

	s.printf("%s #%d %s at %s\n", s.styles.title.Render("Mutant"), mutant.ID, mutant.Kind, mutant.Position)
	s.printf("%s\n", mutant.DisplayName)

	if mutant.Description != "" {
		s.printf("%s\n", mutant.Description)
	}

	s.printf("\n%s", mutant.Diff)

	return nil
}

func (s *SimpleUI) status(status m.MutantStatus) string {
	label := fmt.Sprintf("%-12s", status.String())

	switch status {
	case m.Killed, m.Timeout:
		return s.styles.good.Render(label)
	case m.Survived:
		return s.styles.bad.Render(label)
	default:
		return s.styles.warning.Render(label)
	}
}

func (s *SimpleUI) score(score m.Score) string {
	switch {
	case !score.Defined:
		return s.styles.muted.Render(score.String())
	case score.Value > goodScore:
		return s.styles.good.Render(score.String())
	case score.Value > acceptableScore:
		return s.styles.warning.Render(score.String())
	default:
		return s.styles.bad.Render(score.String())
	}
}

func (s *SimpleUI) encode(value any) error {
	return Encode(s.cmd.OutOrStdout(), s.format, value)
}

// Encode writes value to w as JSON or YAML.
func Encode(w io.Writer, format Format, value any) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(value); err != nil {
			return fmt.Errorf("failed to encode json report: %w", err)
		}
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(value); err != nil {
			return fmt.Errorf("failed to encode yaml report: %w", err)
		}

		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml report: %w", err)
		}
	default:
		return fmt.Errorf("format %q cannot be encoded", format)
	}

	return nil
}

func (s *SimpleUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

// progressf writes progress lines, which go to stderr when stdout carries a structured report.
func (s *SimpleUI) progressf(format string, args ...any) {
	out := s.cmd.OutOrStdout()
	if s.format != FormatText {
		out = s.cmd.ErrOrStderr()
	}

	_, _ = fmt.Fprintf(out, format, args...)
}
