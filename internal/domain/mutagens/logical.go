package mutagens

import (
	"fmt"
	"go/ast"
	"go/token"

	m "gooze.dev/pkg/schemata/internal/model"
)

// Logical swaps && and ||.
type Logical struct{}

// Kind implements Operator.
func (Logical) Kind() m.OperatorKind { return m.OperatorLogical }

// Level implements Operator.
func (Logical) Level() m.Level { return m.LevelBasic }

// CanApply implements Operator.
func (Logical) CanApply(node ast.Node, c *Context) bool {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok || (expr.Op != token.LAND && expr.Op != token.LOR) {
		return false
	}

	return expressionSite(c, expr)
}

// Propose implements Operator.
func (Logical) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, fmt.Errorf("logical: unexpected node %T", node)
	}

	op := token.LOR
	if expr.Op == token.LOR {
		op = token.LAND
	}

	replacement := binaryWith(expr, op)

	return []Proposal{{
		Replacement: replacement,
		DisplayName: arrow(exprString(expr), exprString(replacement)),
		Description: fmt.Sprintf("logical operator %s replaced with %s", expr.Op, op),
		Pos:         expr.OpPos,
	}}, nil
}
