package mutagens

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	m "gooze.dev/pkg/schemata/internal/model"
)

var assignmentSwaps = map[token.Token]token.Token{
	token.ADD_ASSIGN: token.SUB_ASSIGN,
	token.SUB_ASSIGN: token.ADD_ASSIGN,
	token.MUL_ASSIGN: token.QUO_ASSIGN,
	token.QUO_ASSIGN: token.MUL_ASSIGN,
}

// Assignment swaps compound assignment operators: += and -=, *= and /=.
type Assignment struct{}

// Kind implements Operator.
func (Assignment) Kind() m.OperatorKind { return m.OperatorAssignment }

// Level implements Operator.
func (Assignment) Level() m.Level { return m.LevelStandard }

// CanApply implements Operator.
func (Assignment) CanApply(node ast.Node, c *Context) bool {
	stmt, ok := node.(*ast.AssignStmt)
	if !ok || len(stmt.Lhs) != 1 || len(stmt.Rhs) != 1 {
		return false
	}

	swapped, ok := assignmentSwaps[stmt.Tok]
	if !ok || !c.InStatementList(stmt) || !isNumeric(c.TypeOf(stmt.Lhs[0])) {
		return false
	}

	return swapped != token.QUO_ASSIGN || !isConstantZero(c, stmt.Rhs[0])
}

// Propose implements Operator.
func (Assignment) Propose(node ast.Node, c *Context) ([]Proposal, error) {
	stmt, ok := node.(*ast.AssignStmt)
	if !ok {
		return nil, fmt.Errorf("assignment: unexpected node %T", node)
	}

	swapped := assignmentSwaps[stmt.Tok]

	replacement, ok := CloneStmt(stmt).(*ast.AssignStmt)
	if !ok {
		return nil, fmt.Errorf("assignment: clone produced %T", replacement)
	}

	replacement.Tok = swapped

	return []Proposal{{
		Replacement: replacement,
		DisplayName: arrow(nodeString(c.Fset, stmt), nodeString(nil, replacement)),
		Description: fmt.Sprintf("assignment operator %s replaced with %s", stmt.Tok, swapped),
		Pos:         stmt.TokPos,
	}}, nil
}

// Statement removes a statement that has an observable effect.
type Statement struct{}

// Kind implements Operator.
func (Statement) Kind() m.OperatorKind { return m.OperatorStatement }

// Level implements Operator.
func (Statement) Level() m.Level { return m.LevelAdvanced }

// CanApply implements Operator.
func (Statement) CanApply(node ast.Node, c *Context) bool {
	stmt, ok := node.(ast.Stmt)
	if !ok || !c.InStatementList(stmt) {
		return false
	}

	switch s := stmt.(type) {
	case *ast.ExprStmt:
		return !isPanicCall(c, s.X)
	case *ast.AssignStmt:
		return s.Tok != token.DEFINE
	case *ast.IncDecStmt, *ast.SendStmt, *ast.GoStmt, *ast.DeferStmt:
		return true
	default:
		return false
	}
}

// Propose implements Operator.
func (Statement) Propose(node ast.Node, c *Context) ([]Proposal, error) {
	stmt, ok := node.(ast.Stmt)
	if !ok {
		return nil, fmt.Errorf("statement: unexpected node %T", node)
	}

	text := nodeString(c.Fset, stmt)

	return []Proposal{{
		Replacement: &ast.EmptyStmt{Implicit: true},
		DisplayName: "remove " + text,
		Description: "statement removed",
	}}, nil
}

// isPanicCall reports whether expr calls the builtin panic. Removing it would
// leave functions without a terminating statement.
func isPanicCall(c *Context, expr ast.Expr) bool {
	call, ok := ast.Unparen(expr).(*ast.CallExpr)
	if !ok {
		return false
	}

	ident, ok := ast.Unparen(call.Fun).(*ast.Ident)
	if !ok || ident.Name != "panic" {
		return false
	}

	if c.Info == nil {
		return true
	}

	_, builtin := c.Info.Uses[ident].(*types.Builtin)

	return builtin
}
