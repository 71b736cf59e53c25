// Package controller provides output adapters for displaying mutation testing results.
package controller

import (
	"context"
	"fmt"
	"strings"

	m "gooze.dev/pkg/schemata/internal/model"
)

// Format selects how reports are written.
type Format string

// Supported report formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a report format name.
func ParseFormat(value string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(value))); format {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or yaml)", value)
	}
}

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeEstimate StartMode = iota
	ModeTest
	ModeBaseline
	ModeShow
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithEstimateMode sets the UI to estimation mode.
func WithEstimateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeEstimate
	}
}

// WithTestMode sets the UI to test execution mode.
func WithTestMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeTest
	}
}

// WithBaselineMode sets the UI to plain test run mode.
func WithBaselineMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeBaseline
	}
}

// WithShowMode sets the UI to single mutant mode.
func WithShowMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeShow
	}
}

// Estimation is the list of mutants generated for one source file.
type Estimation struct {
	Source   string
	Mutants  []m.MutantReport
	HasTests bool
}

// UI defines the interface for displaying mutation testing progress and results.
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	DisplayEstimation(ctx context.Context, estimations []Estimation, err error) error
	DisplayRunStart(ctx context.Context, source string, mutants int, lanes int)
	DisplayMutantOutcome(ctx context.Context, mutant m.MutantReport)
	DisplayMutantOutput(ctx context.Context, log m.MutantLog)
	DisplayRunReport(ctx context.Context, report m.RunReport) error
	DisplaySummary(ctx context.Context, summary m.Summary) error
	DisplayBaseline(ctx context.Context, source string, result m.TestRunResult, err error) error
	DisplayMutant(ctx context.Context, mutant m.MutantReport) error
}
