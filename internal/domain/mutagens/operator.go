// Package mutagens provides the mutation operators used to generate mutants.
package mutagens

import (
	"go/ast"
	"go/token"
	"go/types"

	m "gooze.dev/pkg/schemata/internal/model"
)

// Operator recognises one syntactic pattern and proposes replacement nodes for it.
// Operators never modify the node they are given; every proposal owns its nodes.
type Operator interface {
	Kind() m.OperatorKind
	Level() m.Level
	CanApply(node ast.Node, c *Context) bool
	Propose(node ast.Node, c *Context) ([]Proposal, error)
}

// Proposal is one replacement suggested by an operator.
type Proposal struct {
	Replacement ast.Node
	DisplayName string
	Description string
	// Pos overrides the reported position, e.g. to point at a binary operator.
	Pos token.Pos
}

// Default returns every operator in registration order. When several operators
// apply to the same node their mutants are numbered in this order.
func Default() []Operator {
	return []Operator{
		Arithmetic{},
		ComparisonBoundary{},
		ComparisonNegation{},
		Comparison{},
		Logical{},
		Unary{},
		Boolean{},
		String{},
		Number{},
		Condition{},
		Assignment{},
		Statement{},
	}
}

// Kinds returns the kinds of the default operators in registration order.
func Kinds() []m.OperatorKind {
	ops := Default()
	kinds := make([]m.OperatorKind, 0, len(ops))

	for _, op := range ops {
		kinds = append(kinds, op.Kind())
	}

	return kinds
}

// Context gives operators read access to the file being mutated and to the
// ancestors of the current node.
type Context struct {
	Fset *token.FileSet
	File *ast.File
	Info *types.Info
	Pkg  *types.Package

	stack []ast.Node
}

// NewContext builds a Context for one type-checked file.
func NewContext(fset *token.FileSet, file *ast.File, info *types.Info, pkg *types.Package) *Context {
	return &Context{Fset: fset, File: file, Info: info, Pkg: pkg}
}

// Enter records n as the innermost ancestor for the nodes visited below it.
func (c *Context) Enter(n ast.Node) {
	c.stack = append(c.stack, n)
}

// Leave drops the innermost ancestor.
func (c *Context) Leave() {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// Reset forgets every ancestor.
func (c *Context) Reset() {
	c.stack = c.stack[:0]
}

// Ancestor returns the i-th ancestor of the current node, 0 being the parent.
func (c *Context) Ancestor(i int) ast.Node {
	idx := len(c.stack) - 1 - i
	if idx < 0 {
		return nil
	}

	return c.stack[idx]
}

// Parent returns the parent of the current node.
func (c *Context) Parent() ast.Node {
	return c.Ancestor(0)
}

// TypeOf returns the type recorded for expr, or nil.
func (c *Context) TypeOf(expr ast.Expr) types.Type {
	if c.Info == nil {
		return nil
	}

	return c.Info.TypeOf(expr)
}

// IsConstant reports whether expr is a compile-time constant.
func (c *Context) IsConstant(expr ast.Expr) bool {
	if c.Info == nil {
		return false
	}

	tv, ok := c.Info.Types[expr]

	return ok && tv.Value != nil
}

// InConstantExpr reports whether the parent of the current node is a constant
// expression. Literals inside constant expressions take their type from the
// surrounding expression and cannot be wrapped.
func (c *Context) InConstantExpr() bool {
	parent, ok := c.Parent().(ast.Expr)

	return ok && c.IsConstant(parent)
}

// Typeable reports whether the type of expr can be spelled in the file.
func (c *Context) Typeable(expr ast.Expr) bool {
	_, err := TypeExpr(c.File, c.Info, c.Pkg, expr)

	return err == nil
}

// InStatementList reports whether stmt is an element of a statement list:
// a block, or the body of a case or select clause.
func (c *Context) InStatementList(stmt ast.Stmt) bool {
	var list []ast.Stmt

	switch p := c.Parent().(type) {
	case *ast.BlockStmt:
		list = p.List
	case *ast.CaseClause:
		list = p.Body
	case *ast.CommClause:
		list = p.Body
	default:
		return false
	}

	for _, s := range list {
		if s == stmt {
			return true
		}
	}

	return false
}
