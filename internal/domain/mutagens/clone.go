package mutagens

import (
	"go/ast"
	"go/token"
	"reflect"
)

var (
	posType    = reflect.TypeOf(token.NoPos)
	objectType = reflect.TypeOf((*ast.Object)(nil))
	scopeType  = reflect.TypeOf((*ast.Scope)(nil))
)

// CloneExpr returns a deep copy of expr with every position cleared.
func CloneExpr(expr ast.Expr) ast.Expr {
	if expr == nil {
		return nil
	}

	c := cloner{resetPos: true, seen: map[pointerKey]reflect.Value{}}

	return c.value(reflect.ValueOf(&expr).Elem()).Interface().(ast.Expr)
}

// CloneStmt returns a deep copy of stmt with every position cleared.
func CloneStmt(stmt ast.Stmt) ast.Stmt {
	if stmt == nil {
		return nil
	}

	c := cloner{resetPos: true, seen: map[pointerKey]reflect.Value{}}

	return c.value(reflect.ValueOf(&stmt).Elem()).Interface().(ast.Stmt)
}

// CloneFile returns a deep copy of file that keeps positions, together with a
// map from every original node to its copy.
func CloneFile(file *ast.File) (*ast.File, map[ast.Node]ast.Node) {
	c := cloner{seen: map[pointerKey]reflect.Value{}, nodes: map[ast.Node]ast.Node{}}
	cp := c.value(reflect.ValueOf(file)).Interface().(*ast.File)

	return cp, c.nodes
}

// cloner copies go/ast trees through reflection. Identifier objects and scopes
// are dropped: they are resolver artefacts that the printer does not need.
type cloner struct {
	resetPos bool
	seen     map[pointerKey]reflect.Value
	nodes    map[ast.Node]ast.Node
}

type pointerKey struct {
	typ  reflect.Type
	addr uintptr
}

func (c *cloner) value(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Type() == objectType || v.Type() == scopeType {
			return reflect.Zero(v.Type())
		}

		key := pointerKey{typ: v.Type(), addr: v.Pointer()}
		if cp, ok := c.seen[key]; ok {
			return cp
		}

		cp := reflect.New(v.Type().Elem())
		c.seen[key] = cp
		cp.Elem().Set(c.value(v.Elem()))

		if c.nodes != nil {
			if n, ok := v.Interface().(ast.Node); ok {
				c.nodes[n] = cp.Interface().(ast.Node)
			}
		}

		return cp

	case reflect.Interface:
		if v.IsNil() {
			return v
		}

		out := reflect.New(v.Type()).Elem()
		out.Set(c.value(v.Elem()))

		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}

		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(c.value(v.Index(i)))
		}

		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()

		for i := range v.NumField() {
			if !v.Type().Field(i).IsExported() {
				continue
			}

			out.Field(i).Set(c.value(v.Field(i)))
		}

		return out

	case reflect.Map:
		return reflect.Zero(v.Type())

	default:
		if c.resetPos && v.Type() == posType {
			return reflect.Zero(posType)
		}

		return v
	}
}
