package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"

	m "gooze.dev/pkg/schemata/internal/model"
)

var testResultLine = regexp.MustCompile(`^--- (PASS|FAIL|SKIP): (\S+)`)

// TestRunnerAdapter executes a compiled test artifact.
type TestRunnerAdapter interface {
	// RunTests runs every test of artifact in a fresh process with env added
	// to the process environment. A run in which tests fail is not an error;
	// errors report that the tests could not be run at all or that ctx ended.
	RunTests(ctx context.Context, artifact m.Artifact, env []string) (m.TestRunResult, error)

	// Reproduce returns a shell command that repeats one run by hand.
	Reproduce(artifact m.Artifact, env []string) string
}

// LocalTestRunnerAdapter runs test binaries with os/exec.
type LocalTestRunnerAdapter struct {
	testRun   string
	waitDelay time.Duration
}

// NewLocalTestRunnerAdapter constructs a LocalTestRunnerAdapter. testRun is an
// optional -test.run pattern.
func NewLocalTestRunnerAdapter(testRun string) *LocalTestRunnerAdapter {
	return &LocalTestRunnerAdapter{
		testRun:   testRun,
		waitDelay: 2 * time.Second,
	}
}

func (a *LocalTestRunnerAdapter) args() []string {
	args := []string{"-test.v", "-test.count=1"}
	if a.testRun != "" {
		args = append(args, "-test.run", a.testRun)
	}

	return args
}

// RunTests implements TestRunnerAdapter.
func (a *LocalTestRunnerAdapter) RunTests(ctx context.Context, artifact m.Artifact, env []string) (m.TestRunResult, error) {
	// #nosec G204 - the binary was produced by the build boundary
	cmd := exec.CommandContext(ctx, string(artifact.Binary), a.args()...)
	cmd.Dir = string(artifact.WorkDir)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = a.waitDelay

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()

	result := ParseTestOutput(output.String())
	result.Duration = time.Since(start)

	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		slog.Error("Failed to run test binary", "binary", artifact.Binary, "error", err)
		return result, fmt.Errorf("failed to run test binary: %w", err)
	}

	result.ExitCode = exitErr.ExitCode()

	// The process failed without reporting a failing test: it crashed or
	// exited early, which counts as a single failure.
	if result.FailedCount == 0 {
		result.FailedCount = 1
		result.TestCount = max(result.TestCount, 1)
	}

	return result, nil
}

// Reproduce implements TestRunnerAdapter.
func (a *LocalTestRunnerAdapter) Reproduce(artifact m.Artifact, env []string) string {
	words := append([]string{"cd", string(artifact.WorkDir), "&&"}, env...)
	words = append(words, string(artifact.Binary))
	words = append(words, a.args()...)

	quoted := make([]string, 0, len(words))
	for _, word := range words {
		if word == "&&" {
			quoted = append(quoted, word)
			continue
		}

		quoted = append(quoted, shellescape.Quote(word))
	}

	return strings.Join(quoted, " ")
}

// ParseTestOutput counts the top-level test results printed by a test binary
// run with -test.v.
func ParseTestOutput(output string) m.TestRunResult {
	var result m.TestRunResult

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		result.TextOutput = append(result.TextOutput, line)

		match := testResultLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		result.TestCount++

		switch match[1] {
		case "PASS":
			result.PassedCount++
		case "FAIL":
			result.FailedCount++
		case "SKIP":
			result.SkippedCount++
		}
	}

	return result
}
