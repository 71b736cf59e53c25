package model

import (
	"fmt"
	"go/ast"
	"strings"
)

// HelperFile is an extra source file emitted next to an instrumented program.
type HelperFile struct {
	Name    string
	Content []byte
}

// InstrumentedProgram is the single compilable rendition of a SourceUnit that
// carries every mutation site behind a runtime check of the active mutant.
type InstrumentedProgram struct {
	Source  *SourceUnit
	Syntax  *ast.File
	Code    []byte
	Helpers []HelperFile
	Sites   int
}

// BuildInput is what the build boundary needs to produce a test artifact.
type BuildInput struct {
	Source  *SourceUnit
	Code    []byte
	Helpers []HelperFile
}

// Artifact is a compiled, runnable test binary.
type Artifact struct {
	Binary    Path
	WorkDir   Path
	Workspace Path
}

// BuildError reports that a build failed. Diagnostics are the compiler's
// lines, unmodified.
type BuildError struct {
	Diagnostics []string
}

func (e *BuildError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}

	return fmt.Sprintf("compilation failed: %s", strings.Join(e.Diagnostics, "; "))
}
