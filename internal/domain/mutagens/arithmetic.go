package mutagens

import (
	"fmt"
	"go/ast"
	"go/token"

	m "gooze.dev/pkg/schemata/internal/model"
)

var arithmeticOps = []token.Token{token.ADD, token.SUB, token.MUL, token.QUO, token.REM}

// Arithmetic replaces an arithmetic operator with every other valid one.
type Arithmetic struct{}

// Kind implements Operator.
func (Arithmetic) Kind() m.OperatorKind { return m.OperatorArithmetic }

// Level implements Operator.
func (Arithmetic) Level() m.Level { return m.LevelBasic }

// CanApply implements Operator.
func (Arithmetic) CanApply(node ast.Node, c *Context) bool {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok || !isArithmeticOp(expr.Op) {
		return false
	}

	return isNumeric(c.TypeOf(expr)) && expressionSite(c, expr)
}

// Propose implements Operator.
func (Arithmetic) Propose(node ast.Node, c *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, fmt.Errorf("arithmetic: unexpected node %T", node)
	}

	var proposals []Proposal

	for _, op := range arithmeticAlternatives(expr, c) {
		replacement := binaryWith(expr, op)
		proposals = append(proposals, Proposal{
			Replacement: replacement,
			DisplayName: arrow(exprString(expr), exprString(replacement)),
			Description: fmt.Sprintf("arithmetic operator %s replaced with %s", expr.Op, op),
			Pos:         expr.OpPos,
		})
	}

	return proposals, nil
}

func isArithmeticOp(op token.Token) bool {
	for _, candidate := range arithmeticOps {
		if op == candidate {
			return true
		}
	}

	return false
}

// arithmeticAlternatives lists the operators that keep expr well-typed:
// remainder needs integers and neither division nor remainder may use a
// constant zero divisor.
func arithmeticAlternatives(expr *ast.BinaryExpr, c *Context) []token.Token {
	integer := isInteger(c.TypeOf(expr))
	zeroDivisor := isConstantZero(c, expr.Y)

	var alternatives []token.Token

	for _, op := range arithmeticOps {
		if op == expr.Op {
			continue
		}

		if op == token.REM && !integer {
			continue
		}

		if (op == token.QUO || op == token.REM) && zeroDivisor {
			continue
		}

		alternatives = append(alternatives, op)
	}

	return alternatives
}
