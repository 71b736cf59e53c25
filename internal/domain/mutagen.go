package domain

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"log/slog"
	"strings"

	"gooze.dev/pkg/schemata/internal/domain/mutagens"
	m "gooze.dev/pkg/schemata/internal/model"
)

// Mutagen generates the mutants of a source file.
type Mutagen interface {
	// Generate walks every function body of unit and returns the mutations
	// proposed by the operators enabled at level. IDs start at 1 and follow
	// source order; at one node, operators contribute in registration order.
	Generate(ctx context.Context, unit *m.SourceUnit, level m.Level) (*m.Registry, error)
}

type mutagen struct {
	operators []mutagens.Operator
}

// NewMutagen creates a Mutagen. Without operators every default operator is used.
func NewMutagen(operators ...mutagens.Operator) Mutagen {
	if len(operators) == 0 {
		operators = mutagens.Default()
	}

	return &mutagen{operators: operators}
}

// SelectOperators returns the default operators whose kinds are named, in
// registration order. An empty list selects every operator.
func SelectOperators(names []string) ([]mutagens.Operator, error) {
	all := mutagens.Default()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[m.OperatorKind]struct{}, len(names))
	known := make(map[m.OperatorKind]struct{}, len(all))

	for _, op := range all {
		known[op.Kind()] = struct{}{}
	}

	for _, name := range names {
		kind := m.OperatorKind(strings.ToLower(strings.TrimSpace(name)))
		if kind == "" {
			continue
		}

		if _, ok := known[kind]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
		}

		wanted[kind] = struct{}{}
	}

	selected := make([]mutagens.Operator, 0, len(wanted))

	for _, op := range all {
		if _, ok := wanted[op.Kind()]; ok {
			selected = append(selected, op)
		}
	}

	return selected, nil
}

func (g *mutagen) Generate(ctx context.Context, unit *m.SourceUnit, level m.Level) (*m.Registry, error) {
	if unit == nil || unit.Syntax == nil || unit.Fset == nil || unit.Types == nil {
		return nil, ErrSourceNotLoaded
	}

	registry := &m.Registry{Source: unit}
	operators := g.enabled(level)
	ignores := buildIgnoreIndex(unit.Syntax, unit.Fset, unit.Content)
	c := mutagens.NewContext(unit.Fset, unit.Syntax, unit.Types, unit.Pkg)

	for _, decl := range unit.Syntax.Decls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		roots := mutableRoots(decl)
		if len(roots) == 0 {
			continue
		}

		rule := ignores.forDecl(decl)
		if rule.all {
			slog.Debug("Skipping ignored declaration", "source", unit.Name(), "line", unit.Fset.Position(decl.Pos()).Line)
			continue
		}

		w := &walker{
			unit:      unit,
			context:   c,
			operators: operators,
			ignores:   ignores,
			rule:      rule,
			registry:  registry,
		}

		for _, root := range roots {
			c.Reset()

			for _, ancestor := range root.ancestors {
				c.Enter(ancestor)
			}

			ast.Inspect(root.node, w.visit)
		}
	}

	slog.Debug("Generated mutations", "source", unit.Name(), "level", level, "count", registry.Len())

	return registry, nil
}

// mutableRoot is a subtree that may be mutated together with the ancestors
// operators see above it.
type mutableRoot struct {
	node      ast.Node
	ancestors []ast.Node
}

// mutableRoots returns the function body of a function declaration and the
// initializers of a var declaration in source order. Constants, types and
// imports have nothing to mutate.
func mutableRoots(decl ast.Decl) []mutableRoot {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Body == nil {
			return nil
		}

		return []mutableRoot{{node: d.Body, ancestors: []ast.Node{d}}}
	case *ast.GenDecl:
		if d.Tok != token.VAR {
			return nil
		}

		var roots []mutableRoot

		for _, spec := range d.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}

			for _, value := range vs.Values {
				roots = append(roots, mutableRoot{node: value, ancestors: []ast.Node{d, vs}})
			}
		}

		return roots
	default:
		return nil
	}
}

func (g *mutagen) enabled(level m.Level) []mutagens.Operator {
	operators := make([]mutagens.Operator, 0, len(g.operators))

	for _, op := range g.operators {
		if op.Level() <= level {
			operators = append(operators, op)
		}
	}

	return operators
}

// walker visits the roots of one declaration depth-first in source order.
type walker struct {
	unit      *m.SourceUnit
	context   *mutagens.Context
	operators []mutagens.Operator
	ignores   ignoreIndex
	rule      ignoreRule
	registry  *m.Registry
	skip      map[ast.Node]struct{}
}

func (w *walker) visit(n ast.Node) bool {
	if n == nil {
		w.context.Leave()
		return false
	}

	if _, ok := w.skip[n]; ok || pruned(n) {
		return false
	}

	w.markConstantChildren(n)

	for _, op := range w.operators {
		w.propose(op, n)
	}

	w.context.Enter(n)

	return true
}

// pruned reports nodes whose subtrees hold only types or constants.
func pruned(n ast.Node) bool {
	switch node := n.(type) {
	case *ast.ArrayType, *ast.StructType, *ast.FuncType, *ast.InterfaceType, *ast.MapType, *ast.ChanType:
		return true
	case *ast.GenDecl:
		return node.Tok == token.CONST || node.Tok == token.TYPE || node.Tok == token.IMPORT
	default:
		return false
	}
}

// markConstantChildren excludes composite literal keys and type switch case
// lists, which must stay constants or types.
func (w *walker) markConstantChildren(n ast.Node) {
	switch node := n.(type) {
	case *ast.KeyValueExpr:
		w.skipNode(node.Key)
	case *ast.TypeSwitchStmt:
		for _, stmt := range node.Body.List {
			if clause, ok := stmt.(*ast.CaseClause); ok {
				for _, expr := range clause.List {
					w.skipNode(expr)
				}
			}
		}
	}
}

func (w *walker) skipNode(n ast.Node) {
	if w.skip == nil {
		w.skip = make(map[ast.Node]struct{})
	}

	w.skip[n] = struct{}{}
}

func (w *walker) propose(op mutagens.Operator, n ast.Node) {
	proposals, err := safePropose(op, n, w.context)
	if err != nil {
		genErr := &GenerationError{Kind: op.Kind(), Position: w.unit.Fset.Position(n.Pos()), Err: err}
		slog.Warn("Skipping mutation", "source", w.unit.Name(), "error", genErr)

		return
	}

	for _, proposal := range proposals {
		pos := proposal.Pos
		if !pos.IsValid() {
			pos = n.Pos()
		}

		position := w.unit.Fset.Position(pos)
		if w.ignores.ignores(w.rule, op.Kind(), position.Line) {
			continue
		}

		w.registry.Mutations = append(w.registry.Mutations, m.Mutation{
			ID:          uint(len(w.registry.Mutations) + 1),
			Kind:        op.Kind(),
			Original:    n,
			Replacement: proposal.Replacement,
			DisplayName: proposal.DisplayName,
			Description: proposal.Description,
			Position:    position,
		})
	}
}

// safePropose runs one operator on n. A panicking operator is reported as an error.
func safePropose(op mutagens.Operator, n ast.Node, c *mutagens.Context) (proposals []mutagens.Proposal, err error) {
	defer func() {
		if r := recover(); r != nil {
			proposals = nil
			err = fmt.Errorf("operator panicked: %v", r)
		}
	}()

	if !op.CanApply(n, c) {
		return nil, nil
	}

	return op.Propose(n, c)
}
