package mutagens

import (
	"fmt"
	"go/ast"
	"go/token"

	m "gooze.dev/pkg/schemata/internal/model"
)

var boundaryOf = map[token.Token]token.Token{
	token.LSS: token.LEQ,
	token.LEQ: token.LSS,
	token.GTR: token.GEQ,
	token.GEQ: token.GTR,
}

var negationOf = map[token.Token]token.Token{
	token.EQL: token.NEQ,
	token.NEQ: token.EQL,
	token.LSS: token.GEQ,
	token.LEQ: token.GTR,
	token.GTR: token.LEQ,
	token.GEQ: token.LSS,
}

var relationalOps = []token.Token{token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ}

func comparisonProposal(expr *ast.BinaryExpr, op token.Token, what string) Proposal {
	replacement := binaryWith(expr, op)

	return Proposal{
		Replacement: replacement,
		DisplayName: arrow(exprString(expr), exprString(replacement)),
		Description: fmt.Sprintf("%s: %s replaced with %s", what, expr.Op, op),
		Pos:         expr.OpPos,
	}
}

func orderedComparison(node ast.Node, c *Context) (*ast.BinaryExpr, bool) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, false
	}

	if _, relational := negationOf[expr.Op]; !relational {
		return nil, false
	}

	return expr, isOrdered(c.TypeOf(expr.X)) && isOrdered(c.TypeOf(expr.Y)) && expressionSite(c, expr)
}

// ComparisonBoundary moves the boundary of a relational operator: < and <=, > and >=.
type ComparisonBoundary struct{}

// Kind implements Operator.
func (ComparisonBoundary) Kind() m.OperatorKind { return m.OperatorComparisonBoundary }

// Level implements Operator.
func (ComparisonBoundary) Level() m.Level { return m.LevelStandard }

// CanApply implements Operator.
func (ComparisonBoundary) CanApply(node ast.Node, c *Context) bool {
	expr, ok := orderedComparison(node, c)
	if !ok {
		return false
	}

	_, ok = boundaryOf[expr.Op]

	return ok
}

// Propose implements Operator.
func (ComparisonBoundary) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, fmt.Errorf("comparison-boundary: unexpected node %T", node)
	}

	op, ok := boundaryOf[expr.Op]
	if !ok {
		return nil, fmt.Errorf("comparison-boundary: no boundary for %s", expr.Op)
	}

	return []Proposal{comparisonProposal(expr, op, "boundary moved")}, nil
}

// ComparisonNegation negates a comparison.
type ComparisonNegation struct{}

// Kind implements Operator.
func (ComparisonNegation) Kind() m.OperatorKind { return m.OperatorComparisonNegation }

// Level implements Operator.
func (ComparisonNegation) Level() m.Level { return m.LevelBasic }

// CanApply implements Operator.
func (ComparisonNegation) CanApply(node ast.Node, c *Context) bool {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return false
	}

	if _, ok := negationOf[expr.Op]; !ok {
		return false
	}

	if expr.Op != token.EQL && expr.Op != token.NEQ {
		if !isOrdered(c.TypeOf(expr.X)) || !isOrdered(c.TypeOf(expr.Y)) {
			return false
		}
	}

	return expressionSite(c, expr)
}

// Propose implements Operator.
func (ComparisonNegation) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, fmt.Errorf("comparison-negation: unexpected node %T", node)
	}

	return []Proposal{comparisonProposal(expr, negationOf[expr.Op], "comparison negated")}, nil
}

// Comparison replaces an ordered comparison with the relational operators that
// neither the boundary nor the negation operator produce.
type Comparison struct{}

// Kind implements Operator.
func (Comparison) Kind() m.OperatorKind { return m.OperatorComparison }

// Level implements Operator.
func (Comparison) Level() m.Level { return m.LevelComplete }

// CanApply implements Operator.
func (Comparison) CanApply(node ast.Node, c *Context) bool {
	_, ok := orderedComparison(node, c)
	return ok
}

// Propose implements Operator.
func (Comparison) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(*ast.BinaryExpr)
	if !ok {
		return nil, fmt.Errorf("comparison: unexpected node %T", node)
	}

	var proposals []Proposal

	for _, op := range relationalOps {
		if op == expr.Op || op == negationOf[expr.Op] {
			continue
		}

		if boundary, ok := boundaryOf[expr.Op]; ok && op == boundary {
			continue
		}

		proposals = append(proposals, comparisonProposal(expr, op, "relational operator replaced"))
	}

	return proposals, nil
}
