package adapter

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"

	m "gooze.dev/pkg/schemata/internal/model"
)

// ErrNoModule reports that a path does not belong to a Go module.
var ErrNoModule = errors.New("go.mod not found")

// loadMode is what the mutant generator needs from a package: syntax with
// comments plus full type information for the target file.
const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedImports | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo

// GoFileAdapter encapsulates Go-specific parsing and type checking so the
// domain layer can focus on mutation rules.
type GoFileAdapter interface {
	// Parse builds an AST using the provided file set and optional source bytes.
	Parse(fileSet *token.FileSet, filename string, src []byte) (*ast.File, error)

	// Load parses and type-checks the package containing path and returns the
	// SourceUnit for that file.
	Load(ctx context.Context, path m.Path) (*m.SourceUnit, error)
}

// LocalGoFileAdapter provides a concrete GoFileAdapter backed by go/packages,
// falling back to go/types for files outside of any module.
type LocalGoFileAdapter struct {
	fs        SourceFSAdapter
	buildTags []string
}

// NewLocalGoFileAdapter constructs a LocalGoFileAdapter.
func NewLocalGoFileAdapter(fs SourceFSAdapter, buildTags ...string) *LocalGoFileAdapter {
	return &LocalGoFileAdapter{fs: fs, buildTags: buildTags}
}

// Parse builds an AST for the provided filename/source pair.
func (a *LocalGoFileAdapter) Parse(fileSet *token.FileSet, filename string, src []byte) (*ast.File, error) {
	return parser.ParseFile(fileSet, filename, src, parser.ParseComments)
}

// Load reads, parses and type-checks the file at path.
func (a *LocalGoFileAdapter) Load(ctx context.Context, path m.Path) (*m.SourceUnit, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	content, err := a.fs.ReadFile(m.Path(abs))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", abs, err)
	}

	hash, err := a.fs.HashFile(m.Path(abs))
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", abs, err)
	}

	unit := &m.SourceUnit{
		Origin:  &m.File{FullPath: m.Path(abs), ShortPath: shortPath(abs), Hash: hash},
		Content: content,
	}

	if _, rootErr := a.fs.FindProjectRoot(m.Path(abs)); rootErr == nil {
		err = a.loadPackage(ctx, unit)
	} else {
		slog.Debug("No module found, type checking directory", "path", abs)
		err = a.checkDirectory(unit)
	}

	if err != nil {
		return nil, err
	}

	tests, err := a.fs.FindTestFiles(m.Path(filepath.Dir(abs)))
	if err != nil {
		return nil, fmt.Errorf("failed to list tests for %s: %w", abs, err)
	}

	for _, test := range tests {
		unit.Tests = append(unit.Tests, &m.File{FullPath: test, ShortPath: shortPath(string(test))})
	}

	return unit, nil
}

func (a *LocalGoFileAdapter) loadPackage(ctx context.Context, unit *m.SourceUnit) error {
	abs := string(unit.Origin.FullPath)
	fset := token.NewFileSet()

	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     filepath.Dir(abs),
		Fset:    fset,
	}

	if len(a.buildTags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(a.buildTags, ",")}
	}

	pkgs, err := packages.Load(cfg, "file="+abs)
	if err != nil {
		slog.Error("Failed to load package", "path", abs, "error", err)
		return fmt.Errorf("failed to load package of %s: %w", abs, err)
	}

	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			msgs := make([]string, 0, len(pkg.Errors))
			for _, pkgErr := range pkg.Errors {
				msgs = append(msgs, pkgErr.Error())
			}

			return fmt.Errorf("package %s has errors: %s", pkg.PkgPath, strings.Join(msgs, "; "))
		}

		for _, file := range pkg.Syntax {
			if filepath.Clean(fset.File(file.Pos()).Name()) != abs {
				continue
			}

			unit.Package = pkg.Name
			unit.Fset = fset
			unit.Syntax = file
			unit.Types = pkg.TypesInfo
			unit.Pkg = pkg.Types

			return nil
		}
	}

	return fmt.Errorf("%s is not part of any package matching the current build constraints", abs)
}

// checkDirectory type-checks the non-test files of the unit's directory that
// belong to the same package. Imports are resolved by the default importer.
func (a *LocalGoFileAdapter) checkDirectory(unit *m.SourceUnit) error {
	abs := string(unit.Origin.FullPath)
	fset := token.NewFileSet()

	target, err := a.Parse(fset, abs, unit.Content)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", abs, err)
	}

	files := []*ast.File{target}

	entries, err := os.ReadDir(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("failed to read directory of %s: %w", abs, err)
	}

	for _, entry := range entries {
		path := filepath.Join(filepath.Dir(abs), entry.Name())
		if entry.IsDir() || path == abs || !isSourceFile(path) {
			continue
		}

		src, err := a.fs.ReadFile(m.Path(path))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		file, err := a.Parse(fset, path, src)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		if file.Name.Name == target.Name.Name {
			files = append(files, file)
		}
	}

	info := &types.Info{
		Types:      map[ast.Expr]types.TypeAndValue{},
		Defs:       map[*ast.Ident]types.Object{},
		Uses:       map[*ast.Ident]types.Object{},
		Implicits:  map[ast.Node]types.Object{},
		Selections: map[*ast.SelectorExpr]*types.Selection{},
		Scopes:     map[ast.Node]*types.Scope{},
		Instances:  map[*ast.Ident]types.Instance{},
	}

	conf := types.Config{Importer: importer.Default()}

	pkg, err := conf.Check(target.Name.Name, fset, files, info)
	if err != nil {
		return fmt.Errorf("type checking %s failed: %w", abs, err)
	}

	unit.Package = pkg.Name()
	unit.Fset = fset
	unit.Syntax = target
	unit.Types = info
	unit.Pkg = pkg

	return nil
}

// shortPath returns path relative to the working directory when it lies below it.
func shortPath(path string) m.Path {
	wd, err := os.Getwd()
	if err != nil {
		return m.Path(path)
	}

	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return m.Path(path)
	}

	return m.Path(rel)
}
