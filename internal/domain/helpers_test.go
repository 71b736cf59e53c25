package domain

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/schemata/internal/domain/mutagens"
	m "gooze.dev/pkg/schemata/internal/model"
)

const greetingSource = `package robobar

func Greeting(age int) string {
	if age >= 18 {
		return "Here have a beer!"
	}

	return "Sorry not today!"
}
`

// loadUnit type-checks src as a single-file package. The unit claims one test
// file so it passes the orchestrator's setup checks.
func loadUnit(t *testing.T, name, src string) *m.SourceUnit {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	require.NoError(t, err)

	info := &types.Info{
		Types:      map[ast.Expr]types.TypeAndValue{},
		Defs:       map[*ast.Ident]types.Object{},
		Uses:       map[*ast.Ident]types.Object{},
		Implicits:  map[ast.Node]types.Object{},
		Selections: map[*ast.SelectorExpr]*types.Selection{},
		Scopes:     map[ast.Node]*types.Scope{},
	}

	pkg, err := (&types.Config{}).Check("example.com/"+file.Name.Name, fset, []*ast.File{file}, info)
	require.NoError(t, err)

	return &m.SourceUnit{
		Origin:  &m.File{FullPath: m.Path("/virtual/" + name), ShortPath: m.Path(name)},
		Tests:   []*m.File{{FullPath: m.Path("/virtual/" + name + "_test.go")}},
		Package: file.Name.Name,
		Content: []byte(src),
		Fset:    fset,
		Syntax:  file,
		Types:   info,
		Pkg:     pkg,
	}
}

func generate(t *testing.T, unit *m.SourceUnit, level m.Level, operators ...mutagens.Operator) *m.Registry {
	t.Helper()

	registry, err := NewMutagen(operators...).Generate(context.Background(), unit, level)
	require.NoError(t, err)

	return registry
}

func displayNames(registry *m.Registry) []string {
	names := make([]string, 0, registry.Len())
	for _, mutation := range registry.Mutations {
		names = append(names, mutation.DisplayName)
	}

	return names
}

// typeCheckInstrumented checks code together with a stand-in for the helper file.
func typeCheckInstrumented(t *testing.T, code []byte) {
	t.Helper()

	fset := token.NewFileSet()

	file, err := parser.ParseFile(fset, "instrumented.go", code, 0)
	require.NoError(t, err, string(code))

	stub, err := parser.ParseFile(fset, "stub.go", "package "+file.Name.Name+"\n\nfunc schemataMutantActive(id int) bool { return id < 0 }\n", 0)
	require.NoError(t, err)

	_, err = (&types.Config{}).Check("example.com/instrumented", fset, []*ast.File{file, stub}, nil)
	require.NoError(t, err, string(code))
}
