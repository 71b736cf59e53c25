package model

import (
	"go/ast"
	"go/token"
	"go/types"
)

// Path represents a file system path.
type Path string

// File represents a source code file.
type File struct {
	FullPath  Path
	ShortPath Path
	Hash      string
}

// SourceUnit is one non-test Go file together with its parsed and
// type-checked form. A SourceUnit is never modified once loaded.
type SourceUnit struct {
	Origin  *File
	Tests   []*File
	Package string
	Content []byte

	Fset   *token.FileSet
	Syntax *ast.File
	Types  *types.Info
	Pkg    *types.Package
}

// HasTests reports whether at least one test file accompanies the unit.
func (s *SourceUnit) HasTests() bool {
	return s != nil && len(s.Tests) > 0
}

// Name returns the short path of the unit, or its full path when no short path is known.
func (s *SourceUnit) Name() string {
	if s == nil || s.Origin == nil {
		return ""
	}

	if s.Origin.ShortPath != "" {
		return string(s.Origin.ShortPath)
	}

	return string(s.Origin.FullPath)
}
