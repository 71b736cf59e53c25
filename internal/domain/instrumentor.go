package domain

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/printer"
	"go/token"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"

	"gooze.dev/pkg/schemata/internal/domain/mutagens"
	m "gooze.dev/pkg/schemata/internal/model"
)

const (
	// ActiveMutantEnv is the environment key the instrumented program reads
	// to learn which mutant is active. Unset, empty or invalid means none.
	ActiveMutantEnv = "SCHEMATA_ACTIVE_MUTANT"

	activeCheckFunc = "schemataMutantActive"
	helperFileName  = "schemata_active_gen.go"
)

const helperTemplate = `// Code generated by schemata. DO NOT EDIT.

package %s

import (
	"os"
	"strconv"
	"sync"
)

var (
	schemataActiveOnce sync.Once
	schemataActiveID   int
)

func %s(id int) bool {
	schemataActiveOnce.Do(func() {
		schemataActiveID, _ = strconv.Atoi(os.Getenv(%q))
	})

	return schemataActiveID == id
}
`

var printerConfig = printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}

// Instrumentor rewrites a source file so every mutant is compiled into it.
type Instrumentor interface {
	// Instrument returns the source of unit with every mutation of registry
	// guarded by a check of the active mutant. With no active mutant the
	// program behaves like the original.
	Instrument(unit *m.SourceUnit, registry *m.Registry) (*m.InstrumentedProgram, error)

	// Apply returns the source of unit with only mutation applied.
	Apply(unit *m.SourceUnit, mutation m.Mutation) ([]byte, error)
}

type instrumentor struct{}

// NewInstrumentor creates an Instrumentor.
func NewInstrumentor() Instrumentor {
	return &instrumentor{}
}

// HelperFile returns the file that defines the active mutant check for package pkgName.
func HelperFile(pkgName string) m.HelperFile {
	return m.HelperFile{
		Name:    helperFileName,
		Content: fmt.Appendf(nil, helperTemplate, pkgName, activeCheckFunc, ActiveMutantEnv),
	}
}

func (in *instrumentor) Instrument(unit *m.SourceUnit, registry *m.Registry) (*m.InstrumentedProgram, error) {
	if unit == nil || unit.Syntax == nil || unit.Fset == nil {
		return nil, ErrSourceNotLoaded
	}

	clone, nodes := mutagens.CloneFile(unit.Syntax)

	sites := make(map[ast.Node][]m.Mutation)
	order := 0

	if registry != nil {
		for _, mutation := range registry.Mutations {
			target, ok := nodes[mutation.Original]
			if !ok {
				return nil, &InstrumentationError{
					MutationID: mutation.ID,
					Position:   mutation.Position,
					Err:        errors.New("mutation site is not part of the source"),
				}
			}

			if _, seen := sites[target]; !seen {
				order++
			}

			sites[target] = append(sites[target], mutation)
		}
	}

	rewritten := 0

	var failure error

	astutil.Apply(clone, nil, func(cur *astutil.Cursor) bool {
		mutations, ok := sites[cur.Node()]
		if !ok {
			return true
		}

		replacement, err := in.site(unit, cur.Node(), mutations)
		if err != nil {
			failure = err
			return false
		}

		cur.Replace(replacement)
		rewritten++

		return true
	})

	if failure != nil {
		return nil, failure
	}

	if rewritten != order {
		return nil, &InstrumentationError{Err: fmt.Errorf("rewrote %d of %d mutation sites", rewritten, order)}
	}

	clone.Comments = commentsOutsideBodies(clone)

	code, err := render(unit.Fset, clone)
	if err != nil {
		return nil, &InstrumentationError{Err: err}
	}

	return &m.InstrumentedProgram{
		Source:  unit,
		Syntax:  clone,
		Code:    code,
		Helpers: []m.HelperFile{HelperFile(unit.Package)},
		Sites:   rewritten,
	}, nil
}

// site builds the guarded form of one mutation site.
func (in *instrumentor) site(unit *m.SourceUnit, node ast.Node, mutations []m.Mutation) (ast.Node, error) {
	first := mutations[0]

	switch original := node.(type) {
	case ast.Expr:
		resultType, err := mutagens.TypeExpr(unit.Syntax, unit.Types, unit.Pkg, first.Original.(ast.Expr))
		if err != nil {
			return nil, &InstrumentationError{MutationID: first.ID, Position: first.Position, Err: err}
		}

		return expressionSite(original, resultType, mutations)
	case ast.Stmt:
		return statementSite(original, mutations)
	default:
		return nil, &InstrumentationError{
			MutationID: first.ID,
			Position:   first.Position,
			Err:        fmt.Errorf("unsupported mutation site %T", node),
		}
	}
}

// expressionSite wraps original in an immediately called function literal:
//
//	func() T { if active(1) { return R1 }; ...; return original }()
func expressionSite(original ast.Expr, resultType ast.Expr, mutations []m.Mutation) (ast.Expr, error) {
	body := make([]ast.Stmt, 0, len(mutations)+1)

	for _, mutation := range mutations {
		replacement, ok := mutation.Replacement.(ast.Expr)
		if !ok {
			return nil, &InstrumentationError{
				MutationID: mutation.ID,
				Position:   mutation.Position,
				Err:        fmt.Errorf("expression site has %T replacement", mutation.Replacement),
			}
		}

		body = append(body, &ast.IfStmt{
			Cond: activeCheck(mutation.ID),
			Body: &ast.BlockStmt{List: []ast.Stmt{
				&ast.ReturnStmt{Results: []ast.Expr{mutagens.CloneExpr(replacement)}},
			}},
		})
	}

	body = append(body, &ast.ReturnStmt{Results: []ast.Expr{original}})

	return &ast.CallExpr{
		Fun: &ast.FuncLit{
			Type: &ast.FuncType{
				Params:  &ast.FieldList{},
				Results: &ast.FieldList{List: []*ast.Field{{Type: resultType}}},
			},
			Body: &ast.BlockStmt{List: body},
		},
	}, nil
}

// statementSite chains the replacements in front of original:
//
//	if active(1) { R1 } else if active(2) { R2 } else { original }
func statementSite(original ast.Stmt, mutations []m.Mutation) (ast.Stmt, error) {
	var tail ast.Stmt = &ast.BlockStmt{List: []ast.Stmt{original}}

	for i := len(mutations) - 1; i >= 0; i-- {
		mutation := mutations[i]

		replacement, ok := mutation.Replacement.(ast.Stmt)
		if !ok {
			return nil, &InstrumentationError{
				MutationID: mutation.ID,
				Position:   mutation.Position,
				Err:        fmt.Errorf("statement site has %T replacement", mutation.Replacement),
			}
		}

		block := &ast.BlockStmt{}
		if _, empty := replacement.(*ast.EmptyStmt); !empty {
			block.List = []ast.Stmt{mutagens.CloneStmt(replacement)}
		}

		tail = &ast.IfStmt{Cond: activeCheck(mutation.ID), Body: block, Else: tail}
	}

	return tail, nil
}

func activeCheck(id uint) ast.Expr {
	return &ast.CallExpr{
		Fun:  ast.NewIdent(activeCheckFunc),
		Args: []ast.Expr{&ast.BasicLit{Kind: token.INT, Value: strconv.FormatUint(uint64(id), 10)}},
	}
}

// commentsOutsideBodies drops the comments inside function bodies and var
// initializers, which the printer cannot place reliably around synthesised
// nodes. Directives and doc comments outside them are kept.
func commentsOutsideBodies(file *ast.File) []*ast.CommentGroup {
	kept := make([]*ast.CommentGroup, 0, len(file.Comments))

	var (
		bodies   []ast.Node
		trailing = map[*ast.CommentGroup]struct{}{}
	)

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Body != nil {
				bodies = append(bodies, d.Body)
			}
		case *ast.GenDecl:
			if d.Tok != token.VAR {
				continue
			}

			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok || len(vs.Values) == 0 {
					continue
				}

				bodies = append(bodies, valueRange{vs.Values[0].Pos(), vs.Values[len(vs.Values)-1].End()})

				if vs.Comment != nil {
					trailing[vs.Comment] = struct{}{}
				}
			}
		}
	}

	for _, group := range file.Comments {
		if _, ok := trailing[group]; ok {
			continue
		}

		inside := false

		for _, body := range bodies {
			if group.Pos() > body.Pos() && group.End() <= body.End() {
				inside = true
				break
			}
		}

		if !inside {
			kept = append(kept, group)
		}
	}

	return kept
}

// valueRange spans the initializers of one var spec.
type valueRange struct {
	pos, end token.Pos
}

func (r valueRange) Pos() token.Pos { return r.pos }
func (r valueRange) End() token.Pos { return r.end }

func (in *instrumentor) Apply(unit *m.SourceUnit, mutation m.Mutation) ([]byte, error) {
	if unit == nil || unit.Syntax == nil || unit.Fset == nil {
		return nil, ErrSourceNotLoaded
	}

	clone, nodes := mutagens.CloneFile(unit.Syntax)

	target, ok := nodes[mutation.Original]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMutantNotFound, mutation.ID)
	}

	applied := false

	astutil.Apply(clone, func(cur *astutil.Cursor) bool {
		if applied || cur.Node() != target {
			return !applied
		}

		applied = true

		switch replacement := mutation.Replacement.(type) {
		case *ast.EmptyStmt:
			if cur.Index() >= 0 {
				cur.Delete()
			} else {
				cur.Replace(&ast.EmptyStmt{Implicit: true})
			}
		case ast.Expr:
			cur.Replace(mutagens.CloneExpr(replacement))
		case ast.Stmt:
			cur.Replace(mutagens.CloneStmt(replacement))
		default:
			applied = false
		}

		return false
	}, nil)

	if !applied {
		return nil, fmt.Errorf("mutant %d could not be applied to %s", mutation.ID, unit.Name())
	}

	return render(unit.Fset, clone)
}

// RenderSource prints the unmodified syntax of unit the way Apply prints a
// mutant, so the two can be compared line by line.
func RenderSource(unit *m.SourceUnit) ([]byte, error) {
	if unit == nil || unit.Syntax == nil || unit.Fset == nil {
		return nil, ErrSourceNotLoaded
	}

	return render(unit.Fset, unit.Syntax)
}

func render(fset *token.FileSet, file *ast.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := printerConfig.Fprint(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("failed to print source: %w", err)
	}

	code, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("rewritten source is not valid Go: %w", err)
	}

	return code, nil
}
