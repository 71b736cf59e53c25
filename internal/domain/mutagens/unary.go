package mutagens

import (
	"fmt"
	"go/ast"
	"go/token"

	m "gooze.dev/pkg/schemata/internal/model"
)

// Unary flips the sign operators and removes unary operators.
type Unary struct{}

// Kind implements Operator.
func (Unary) Kind() m.OperatorKind { return m.OperatorUnary }

// Level implements Operator.
func (Unary) Level() m.Level { return m.LevelStandard }

// CanApply implements Operator.
func (Unary) CanApply(node ast.Node, c *Context) bool {
	expr, ok := node.(*ast.UnaryExpr)
	if !ok {
		return false
	}

	switch expr.Op {
	case token.SUB, token.ADD, token.XOR:
		if !isNumeric(c.TypeOf(expr.X)) {
			return false
		}
	case token.NOT:
	default:
		return false
	}

	return expressionSite(c, expr)
}

// Propose implements Operator.
func (Unary) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.UnaryExpr)
	if !ok {
		return nil, fmt.Errorf("unary: unexpected node %T", node)
	}

	var proposals []Proposal

	if flipped, ok := map[token.Token]token.Token{token.SUB: token.ADD, token.ADD: token.SUB}[expr.Op]; ok {
		replacement := &ast.UnaryExpr{Op: flipped, X: CloneExpr(expr.X)}
		proposals = append(proposals, Proposal{
			Replacement: replacement,
			DisplayName: arrow(exprString(expr), exprString(replacement)),
			Description: fmt.Sprintf("unary operator %s replaced with %s", expr.Op, flipped),
		})
	}

	removed := &ast.ParenExpr{X: CloneExpr(expr.X)}
	proposals = append(proposals, Proposal{
		Replacement: removed,
		DisplayName: arrow(exprString(expr), exprString(removed)),
		Description: fmt.Sprintf("unary operator %s removed", expr.Op),
	})

	return proposals, nil
}
