package domain

import (
	"go/ast"
	"go/token"
	"strings"
	"unicode"

	m "gooze.dev/pkg/schemata/internal/model"
)

const ignoreDirective = "schemata:ignore"

// ignoreRule is one parsed //schemata:ignore directive. A directive without
// operator names ignores every kind.
type ignoreRule struct {
	all   bool
	kinds map[m.OperatorKind]struct{}
}

func (r ignoreRule) ignores(kind m.OperatorKind) bool {
	if r.all {
		return true
	}

	_, ok := r.kinds[kind]

	return ok
}

func (r ignoreRule) empty() bool {
	return !r.all && len(r.kinds) == 0
}

func mergeIgnoreRule(dst *ignoreRule, src ignoreRule) {
	if src.all {
		dst.all = true
		dst.kinds = nil

		return
	}

	if dst.all || len(src.kinds) == 0 {
		return
	}

	if dst.kinds == nil {
		dst.kinds = make(map[m.OperatorKind]struct{}, len(src.kinds))
	}

	for kind := range src.kinds {
		dst.kinds[kind] = struct{}{}
	}
}

func parseIgnoreDirective(commentText string) (ignoreRule, bool) {
	s := strings.TrimSpace(commentText)
	if strings.HasPrefix(s, "//") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "//"))
	} else if strings.HasPrefix(s, "/*") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "/*"))
		s = strings.TrimSpace(strings.TrimSuffix(s, "*/"))
	}

	if !strings.HasPrefix(s, ignoreDirective) {
		return ignoreRule{}, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(s, ignoreDirective))
	if rest == "" {
		return ignoreRule{all: true}, true
	}

	parts := strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	rule := ignoreRule{kinds: make(map[m.OperatorKind]struct{}, len(parts))}

	for _, part := range parts {
		rule.kinds[m.OperatorKind(strings.ToLower(part))] = struct{}{}
	}

	if len(rule.kinds) == 0 {
		return ignoreRule{all: true}, true
	}

	return rule, true
}

// ignoreIndex holds the directives of one file: before the package clause,
// in function and var doc comments and on (or directly above) a line.
type ignoreIndex struct {
	file      ignoreRule
	declByPos map[token.Pos]ignoreRule
	line      map[int]ignoreRule
}

func (idx ignoreIndex) forDecl(decl ast.Decl) ignoreRule {
	var rule ignoreRule

	mergeIgnoreRule(&rule, idx.file)
	mergeIgnoreRule(&rule, idx.declByPos[decl.Pos()])

	return rule
}

func (idx ignoreIndex) ignores(fn ignoreRule, kind m.OperatorKind, line int) bool {
	return fn.ignores(kind) || idx.line[line].ignores(kind)
}

func buildIgnoreIndex(file *ast.File, fset *token.FileSet, content []byte) ignoreIndex {
	declByPos, declDocGroups := buildDeclIgnoreRules(file)

	return ignoreIndex{
		file:      buildFileIgnoreRule(file),
		declByPos: declByPos,
		line:      buildLineIgnoreRules(file, fset, content, declDocGroups),
	}
}

// buildDeclIgnoreRules reads the doc comments of functions and var
// declarations. A directive there covers the whole declaration.
func buildDeclIgnoreRules(file *ast.File) (map[token.Pos]ignoreRule, map[*ast.CommentGroup]struct{}) {
	declByPos := make(map[token.Pos]ignoreRule)
	declDocGroups := map[*ast.CommentGroup]struct{}{}

	for _, decl := range file.Decls {
		var doc *ast.CommentGroup

		switch d := decl.(type) {
		case *ast.FuncDecl:
			doc = d.Doc
		case *ast.GenDecl:
			if d.Tok == token.VAR {
				doc = d.Doc
			}
		}

		if doc == nil {
			continue
		}

		declDocGroups[doc] = struct{}{}

		var rule ignoreRule

		for _, c := range doc.List {
			if r, ok := parseIgnoreDirective(c.Text); ok {
				mergeIgnoreRule(&rule, r)
			}
		}

		if !rule.empty() {
			declByPos[decl.Pos()] = rule
		}
	}

	return declByPos, declDocGroups
}

func buildFileIgnoreRule(file *ast.File) ignoreRule {
	var rule ignoreRule

	for _, group := range file.Comments {
		if group.End() >= file.Package {
			continue
		}

		for _, c := range group.List {
			if r, ok := parseIgnoreDirective(c.Text); ok {
				mergeIgnoreRule(&rule, r)
			}
		}
	}

	return rule
}

func buildLineIgnoreRules(
	file *ast.File,
	fset *token.FileSet,
	content []byte,
	declDocGroups map[*ast.CommentGroup]struct{},
) map[int]ignoreRule {
	lineRules := make(map[int]ignoreRule)
	lineStarts := computeLineStarts(content)

	for _, group := range file.Comments {
		if group.End() < file.Package {
			continue
		}

		if _, ok := declDocGroups[group]; ok {
			continue
		}

		for _, c := range group.List {
			r, ok := parseIgnoreDirective(c.Text)
			if !ok {
				continue
			}

			pos := fset.PositionFor(c.Slash, true)
			if pos.Line <= 0 {
				continue
			}

			target := pos.Line
			if isLeadingComment(pos.Line, pos.Offset, lineStarts, content) {
				target++
			}

			current := lineRules[target]
			mergeIgnoreRule(&current, r)
			lineRules[target] = current
		}
	}

	return lineRules
}

func computeLineStarts(content []byte) []int {
	starts := []int{0}

	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}

	return starts
}

// isLeadingComment reports whether only whitespace precedes the comment on its line.
func isLeadingComment(line int, slashOffset int, lineStarts []int, content []byte) bool {
	if line <= 0 || line > len(lineStarts) {
		return false
	}

	start := lineStarts[line-1]
	if slashOffset < start || slashOffset > len(content) {
		return false
	}

	for _, b := range content[start:slashOffset] {
		if !unicode.IsSpace(rune(b)) {
			return false
		}
	}

	return true
}
