package mutagens

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	m "gooze.dev/pkg/schemata/internal/model"
)

// filledString replaces empty string literals.
const filledString = "schemata was here!"

// Boolean flips the literals true and false.
type Boolean struct{}

// Kind implements Operator.
func (Boolean) Kind() m.OperatorKind { return m.OperatorBoolean }

// Level implements Operator.
func (Boolean) Level() m.Level { return m.LevelBasic }

// CanApply implements Operator.
func (Boolean) CanApply(node ast.Node, c *Context) bool {
	ident, ok := node.(*ast.Ident)
	if !ok || (ident.Name != "true" && ident.Name != "false") {
		return false
	}

	if c.Info == nil || c.Info.Uses[ident] != types.Universe.Lookup(ident.Name) {
		return false
	}

	return literalSite(c, ident)
}

// Propose implements Operator.
func (Boolean) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	ident, ok := node.(*ast.Ident)
	if !ok {
		return nil, fmt.Errorf("boolean: unexpected node %T", node)
	}

	flipped := "true"
	if ident.Name == "true" {
		flipped = "false"
	}

	return []Proposal{{
		Replacement: ast.NewIdent(flipped),
		DisplayName: arrow(ident.Name, flipped),
		Description: fmt.Sprintf("boolean literal %s replaced with %s", ident.Name, flipped),
	}}, nil
}

// String empties non-empty string literals and fills empty ones.
type String struct{}

// Kind implements Operator.
func (String) Kind() m.OperatorKind { return m.OperatorString }

// Level implements Operator.
func (String) Level() m.Level { return m.LevelStandard }

// CanApply implements Operator.
func (String) CanApply(node ast.Node, c *Context) bool {
	lit, ok := node.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return false
	}

	return literalSite(c, lit)
}

// Propose implements Operator.
func (String) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	lit, ok := node.(*ast.BasicLit)
	if !ok {
		return nil, fmt.Errorf("string: unexpected node %T", node)
	}

	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return nil, fmt.Errorf("string: invalid literal %s: %w", lit.Value, err)
	}

	replacement := ""
	if value == "" {
		replacement = filledString
	}

	quoted := strconv.Quote(replacement)

	return []Proposal{{
		Replacement: &ast.BasicLit{Kind: token.STRING, Value: quoted},
		DisplayName: arrow(shorten(lit.Value), quoted),
		Description: "string literal replaced",
	}}, nil
}

// Number replaces numeric literals with 0 and 1.
type Number struct{}

// Kind implements Operator.
func (Number) Kind() m.OperatorKind { return m.OperatorNumber }

// Level implements Operator.
func (Number) Level() m.Level { return m.LevelAdvanced }

// CanApply implements Operator.
func (Number) CanApply(node ast.Node, c *Context) bool {
	lit, ok := node.(*ast.BasicLit)
	if !ok || (lit.Kind != token.INT && lit.Kind != token.FLOAT) {
		return false
	}

	return literalSite(c, lit)
}

// Propose implements Operator.
func (Number) Propose(node ast.Node, _ *Context) ([]Proposal, error) {
	lit, ok := node.(*ast.BasicLit)
	if !ok {
		return nil, fmt.Errorf("number: unexpected node %T", node)
	}

	value := constant.MakeFromLiteral(lit.Value, lit.Kind, 0)
	if value.Kind() == constant.Unknown {
		return nil, fmt.Errorf("number: invalid literal %s", lit.Value)
	}

	zero, one := "0", "1"
	if lit.Kind == token.FLOAT {
		zero, one = "0.0", "1.0"
	}

	var proposals []Proposal

	for _, candidate := range []string{zero, one} {
		if constant.Compare(value, token.EQL, constant.MakeFromLiteral(candidate, lit.Kind, 0)) {
			continue
		}

		proposals = append(proposals, Proposal{
			Replacement: &ast.BasicLit{Kind: lit.Kind, Value: candidate},
			DisplayName: arrow(lit.Value, candidate),
			Description: fmt.Sprintf("number literal %s replaced with %s", lit.Value, candidate),
		})
	}

	return proposals, nil
}

func shorten(text string) string {
	const maxLen = 40
	if len(text) <= maxLen {
		return text
	}

	return text[:maxLen-3] + "..."
}
