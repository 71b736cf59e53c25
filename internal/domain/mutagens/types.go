package mutagens

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"
)

var (
	// ErrNoType reports that no type was recorded for an expression.
	ErrNoType = errors.New("expression has no recorded type")
	// ErrUnspellableType reports a type that cannot be written in the file.
	ErrUnspellableType = errors.New("type cannot be spelled in this file")
)

// TypeExpr returns a type expression for the type of expr that is valid in file.
// Untyped constants take their default type. Types that refer to packages not
// imported by the file, or to unexported names of other packages, are rejected.
// The returned expression carries no positions.
func TypeExpr(file *ast.File, info *types.Info, pkg *types.Package, expr ast.Expr) (ast.Expr, error) {
	if info == nil || file == nil {
		return nil, ErrNoType
	}

	t := info.TypeOf(expr)
	if t == nil {
		return nil, ErrNoType
	}

	if basic, ok := t.(*types.Basic); ok && basic.Info()&types.IsUntyped != 0 {
		if basic.Kind() == types.UntypedNil {
			return nil, fmt.Errorf("%w: untyped nil", ErrUnspellableType)
		}

		t = types.Default(t)
	}

	imports := importNames(file)

	var failure error

	qualifier := func(p *types.Package) string {
		if pkg != nil && p.Path() == pkg.Path() {
			return ""
		}

		alias, ok := imports[p.Path()]
		if !ok {
			failure = fmt.Errorf("%w: package %s is not imported", ErrUnspellableType, p.Path())
			return p.Name()
		}

		if alias.explicit {
			return alias.name
		}

		return p.Name()
	}

	if err := checkExported(t, pkg); err != nil {
		return nil, err
	}

	spelled := types.TypeString(t, qualifier)
	if failure != nil {
		return nil, failure
	}

	typeExpr, err := parser.ParseExpr(spelled)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnspellableType, spelled, err)
	}

	return CloneExpr(typeExpr), nil
}

// importAlias is the local name an import is referred by. Imports without an
// explicit name use the imported package's own name.
type importAlias struct {
	name     string
	explicit bool
}

func importNames(file *ast.File) map[string]importAlias {
	names := make(map[string]importAlias, len(file.Imports))

	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}

		switch {
		case spec.Name == nil:
			names[path] = importAlias{}
		case spec.Name.Name == "_":
			continue
		case spec.Name.Name == ".":
			names[path] = importAlias{explicit: true}
		default:
			names[path] = importAlias{name: spec.Name.Name, explicit: true}
		}
	}

	return names
}

func checkExported(t types.Type, pkg *types.Package) error {
	var walk func(types.Type, int) error

	walk = func(t types.Type, depth int) error {
		if depth > 16 {
			return nil
		}

		switch tt := t.(type) {
		case *types.Named:
			obj := tt.Obj()
			if obj.Pkg() != nil && (pkg == nil || obj.Pkg().Path() != pkg.Path()) && !obj.Exported() {
				return fmt.Errorf("%w: unexported type %s", ErrUnspellableType, obj.Name())
			}

			if args := tt.TypeArgs(); args != nil {
				for i := range args.Len() {
					if err := walk(args.At(i), depth+1); err != nil {
						return err
					}
				}
			}
		case *types.Pointer:
			return walk(tt.Elem(), depth+1)
		case *types.Slice:
			return walk(tt.Elem(), depth+1)
		case *types.Array:
			return walk(tt.Elem(), depth+1)
		case *types.Map:
			if err := walk(tt.Key(), depth+1); err != nil {
				return err
			}

			return walk(tt.Elem(), depth+1)
		case *types.Chan:
			return walk(tt.Elem(), depth+1)
		case *types.Struct:
			for i := range tt.NumFields() {
				f := tt.Field(i)
				if f.Pkg() != nil && (pkg == nil || f.Pkg().Path() != pkg.Path()) && !f.Exported() {
					return fmt.Errorf("%w: unexported field %s", ErrUnspellableType, f.Name())
				}

				if err := walk(f.Type(), depth+1); err != nil {
					return err
				}
			}
		}

		return nil
	}

	return walk(t, 0)
}

func underlyingBasic(t types.Type) (*types.Basic, bool) {
	if t == nil {
		return nil, false
	}

	if basic, ok := t.(*types.Basic); ok && basic.Info()&types.IsUntyped != 0 {
		t = types.Default(t)
	}

	if _, ok := t.(*types.TypeParam); ok {
		return nil, false
	}

	basic, ok := t.Underlying().(*types.Basic)

	return basic, ok
}

func isNumeric(t types.Type) bool {
	basic, ok := underlyingBasic(t)
	return ok && basic.Info()&types.IsNumeric != 0
}

func isInteger(t types.Type) bool {
	basic, ok := underlyingBasic(t)
	return ok && basic.Info()&types.IsInteger != 0
}

func isOrdered(t types.Type) bool {
	basic, ok := underlyingBasic(t)
	return ok && basic.Info()&types.IsOrdered != 0
}

// isConstantZero reports whether expr is a constant equal to zero.
func isConstantZero(c *Context, expr ast.Expr) bool {
	if c.Info == nil {
		return false
	}

	tv, ok := c.Info.Types[expr]
	if !ok || tv.Value == nil {
		return false
	}

	switch tv.Value.Kind() {
	case constant.Int, constant.Float, constant.Complex:
		return constant.Sign(tv.Value) == 0
	default:
		return false
	}
}

// containsRecover reports whether node calls the builtin recover. Such
// expressions must stay directly inside their deferred function.
func containsRecover(c *Context, node ast.Node) bool {
	found := false

	ast.Inspect(node, func(n ast.Node) bool {
		if found {
			return false
		}

		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}

		ident, ok := ast.Unparen(call.Fun).(*ast.Ident)
		if !ok || ident.Name != "recover" {
			return true
		}

		if c.Info == nil {
			found = true
			return false
		}

		if _, builtin := c.Info.Uses[ident].(*types.Builtin); builtin {
			found = true
			return false
		}

		return true
	})

	return found
}

// expressionSite reports whether expr can be replaced by a wrapped call:
// it is not constant, has a spellable type and does not call recover.
func expressionSite(c *Context, expr ast.Expr) bool {
	return !c.IsConstant(expr) && c.Typeable(expr) && !containsRecover(c, expr)
}

// literalSite reports whether a literal can be replaced by a wrapped call.
func literalSite(c *Context, expr ast.Expr) bool {
	return !c.InConstantExpr() && c.Typeable(expr)
}

func binaryWith(expr *ast.BinaryExpr, op token.Token) *ast.BinaryExpr {
	return &ast.BinaryExpr{X: CloneExpr(expr.X), Op: op, Y: CloneExpr(expr.Y)}
}

func exprString(expr ast.Expr) string {
	return types.ExprString(expr)
}

// nodeString renders a statement on a single line for display names.
func nodeString(fset *token.FileSet, node ast.Node) string {
	if fset == nil {
		fset = token.NewFileSet()
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, node); err != nil {
		return fmt.Sprintf("%T", node)
	}

	text := strings.Join(strings.Fields(buf.String()), " ")

	const maxLen = 60
	if len(text) > maxLen {
		text = text[:maxLen-3] + "..."
	}

	return text
}

func arrow(from, to string) string {
	return from + " → " + to
}
