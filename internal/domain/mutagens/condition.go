package mutagens

import (
	"fmt"
	"go/ast"

	m "gooze.dev/pkg/schemata/internal/model"
)

// Condition forces the condition of an if or for statement to true and to false.
type Condition struct{}

// Kind implements Operator.
func (Condition) Kind() m.OperatorKind { return m.OperatorCondition }

// Level implements Operator.
func (Condition) Level() m.Level { return m.LevelAdvanced }

// CanApply implements Operator.
func (Condition) CanApply(node ast.Node, c *Context) bool {
	expr, ok := node.(ast.Expr)
	if !ok {
		return false
	}

	switch parent := c.Parent().(type) {
	case *ast.IfStmt:
		if parent.Cond != expr {
			return false
		}
	case *ast.ForStmt:
		if parent.Cond != expr {
			return false
		}
	default:
		return false
	}

	return expressionSite(c, expr)
}

// Propose implements Operator.
func (Condition) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	expr, ok := node.(ast.Expr)
	if !ok {
		return nil, fmt.Errorf("condition: unexpected node %T", node)
	}

	proposals := make([]Proposal, 0, 2)

	for _, forced := range []string{"true", "false"} {
		proposals = append(proposals, Proposal{
			Replacement: ast.NewIdent(forced),
			DisplayName: arrow(exprString(expr), forced),
			Description: fmt.Sprintf("condition forced to %s", forced),
		})
	}

	return proposals, nil
}
