package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"

	m "gooze.dev/pkg/schemata/internal/model"
)

const (
	testBinaryName    = "schemata.test"
	playgroundDir     = "playground"
	playgroundModule  = "schemata.local/playground"
	playgroundGoLevel = "1.22"
)

// BuilderAdapter is the build boundary: it turns program text into a runnable
// test artifact or reports why it could not.
type BuilderAdapter interface {
	// Build compiles the tests of the source's package with the given code in
	// place of the source file. A failed compilation is reported as
	// *model.BuildError; no partial artifact is ever returned.
	Build(ctx context.Context, input m.BuildInput) (m.Artifact, error)

	// Release removes everything Build created for artifact.
	Release(ctx context.Context, artifact m.Artifact) error
}

// BuilderOption configures a LocalBuilderAdapter.
type BuilderOption func(*LocalBuilderAdapter)

// WithBuildTags passes build tags to the compiler.
func WithBuildTags(tags ...string) BuilderOption {
	return func(b *LocalBuilderAdapter) {
		b.tags = tags
	}
}

// WithKeepWorkspace keeps build workspaces on Release for inspection.
func WithKeepWorkspace(keep bool) BuilderOption {
	return func(b *LocalBuilderAdapter) {
		b.keepWorkspace = keep
	}
}

// WithGoBinary overrides the go command used to build.
func WithGoBinary(goBinary string) BuilderOption {
	return func(b *LocalBuilderAdapter) {
		b.goBinary = goBinary
	}
}

// LocalBuilderAdapter builds test binaries with `go test -c` inside a scratch
// copy of the module.
type LocalBuilderAdapter struct {
	fs            SourceFSAdapter
	goBinary      string
	tags          []string
	keepWorkspace bool
}

// NewLocalBuilderAdapter constructs a LocalBuilderAdapter.
func NewLocalBuilderAdapter(fs SourceFSAdapter, opts ...BuilderOption) *LocalBuilderAdapter {
	b := &LocalBuilderAdapter{fs: fs, goBinary: "go"}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build implements BuilderAdapter.
func (b *LocalBuilderAdapter) Build(ctx context.Context, input m.BuildInput) (m.Artifact, error) {
	if input.Source == nil || input.Source.Origin == nil {
		return m.Artifact{}, errors.New("build input has no source")
	}

	workspace, err := b.fs.CreateTempDir("schemata-build-*")
	if err != nil {
		slog.Error("Failed to create build workspace", "error", err)
		return m.Artifact{}, fmt.Errorf("failed to create build workspace: %w", err)
	}

	artifact, err := b.build(ctx, input, workspace)
	if err != nil {
		b.cleanup(workspace)
		return m.Artifact{}, err
	}

	return artifact, nil
}

func (b *LocalBuilderAdapter) build(ctx context.Context, input m.BuildInput, workspace m.Path) (m.Artifact, error) {
	origin := string(input.Source.Origin.FullPath)

	pkgDir, err := b.prepareWorkspace(origin, workspace)
	if err != nil {
		return m.Artifact{}, err
	}

	target := b.fs.JoinPath(string(pkgDir), filepath.Base(origin))
	if err := b.fs.WriteFile(target, input.Code, 0o600); err != nil {
		return m.Artifact{}, fmt.Errorf("failed to write %s: %w", target, err)
	}

	for _, helper := range input.Helpers {
		path := b.fs.JoinPath(string(pkgDir), helper.Name)
		if err := b.fs.WriteFile(path, helper.Content, 0o600); err != nil {
			return m.Artifact{}, fmt.Errorf("failed to write helper %s: %w", path, err)
		}
	}

	binary := b.fs.JoinPath(string(workspace), testBinaryName)

	args := []string{"test", "-c", "-o", string(binary)}
	if len(b.tags) > 0 {
		args = append(args, "-tags", strings.Join(b.tags, ","))
	}

	args = append(args, ".")

	// #nosec G204 - the go binary and arguments are controlled by configuration
	cmd := exec.CommandContext(ctx, b.goBinary, args...)
	cmd.Dir = string(pkgDir)
	cmd.Env = append(os.Environ(), "GOWORK=off")

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Debug("Building test binary", "command", shellescape.QuoteCommand(append([]string{b.goBinary}, args...)), "dir", pkgDir)

	start := time.Now()

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return m.Artifact{}, fmt.Errorf("build interrupted: %w", ctxErr)
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			slog.Error("Failed to start go build", "error", err)
			return m.Artifact{}, fmt.Errorf("failed to run %s: %w", b.goBinary, err)
		}

		diagnostics := DiagnosticLines(output.String())
		slog.Info("Build failed", "source", origin, "diagnostics", len(diagnostics))

		return m.Artifact{}, &m.BuildError{Diagnostics: diagnostics}
	}

	if _, err := b.fs.FileInfo(binary); err != nil {
		return m.Artifact{}, &m.BuildError{Diagnostics: DiagnosticLines(output.String() + "\nno test binary produced (no test files?)")}
	}

	slog.Debug("Built test binary", "binary", binary, "duration", time.Since(start))

	return m.Artifact{Binary: binary, WorkDir: pkgDir, Workspace: workspace}, nil
}

// prepareWorkspace copies the module containing origin into workspace and
// returns the copied package directory. Files outside any module are copied
// into a synthesised single-package module.
func (b *LocalBuilderAdapter) prepareWorkspace(origin string, workspace m.Path) (m.Path, error) {
	root, err := b.fs.FindProjectRoot(m.Path(origin))
	if err == nil {
		if err := b.fs.CopyDir(root, workspace); err != nil {
			slog.Error("Failed to copy module", "root", root, "error", err)
			return "", fmt.Errorf("failed to copy module %s: %w", root, err)
		}

		rel, err := b.fs.RelPath(root, m.Path(filepath.Dir(origin)))
		if err != nil {
			return "", fmt.Errorf("failed to compute package path: %w", err)
		}

		return b.fs.JoinPath(string(workspace), string(rel)), nil
	}

	if !errors.Is(err, ErrNoModule) {
		return "", err
	}

	pkgDir := b.fs.JoinPath(string(workspace), playgroundDir)
	if err := b.fs.CopyDir(m.Path(filepath.Dir(origin)), pkgDir); err != nil {
		return "", fmt.Errorf("failed to copy package: %w", err)
	}

	goMod := fmt.Sprintf("module %s\n\ngo %s\n", playgroundModule, playgroundGoLevel)
	if err := b.fs.WriteFile(b.fs.JoinPath(string(pkgDir), "go.mod"), []byte(goMod), 0o600); err != nil {
		return "", fmt.Errorf("failed to write go.mod: %w", err)
	}

	return pkgDir, nil
}

// Release implements BuilderAdapter.
func (b *LocalBuilderAdapter) Release(_ context.Context, artifact m.Artifact) error {
	if artifact.Workspace == "" {
		return nil
	}

	if b.keepWorkspace {
		slog.Info("Keeping build workspace", "path", artifact.Workspace)
		return nil
	}

	if err := b.fs.RemoveAll(artifact.Workspace); err != nil {
		slog.Warn("Failed to remove build workspace", "path", artifact.Workspace, "error", err)
		return fmt.Errorf("failed to remove workspace: %w", err)
	}

	return nil
}

func (b *LocalBuilderAdapter) cleanup(workspace m.Path) {
	if b.keepWorkspace {
		return
	}

	if err := b.fs.RemoveAll(workspace); err != nil {
		slog.Warn("Failed to remove build workspace", "path", workspace, "error", err)
	}
}

// DiagnosticLines splits compiler output into its non-empty lines.
func DiagnosticLines(output string) []string {
	var lines []string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		lines = append(lines, line)
	}

	return lines
}
