// Package model defines the data structures for mutation testing.
package model

import (
	"crypto/sha256"
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// OperatorKind names the family of a mutation operator.
type OperatorKind string

const (
	// OperatorArithmetic swaps arithmetic operators (+, -, *, /, %).
	OperatorArithmetic OperatorKind = "arithmetic"
	// OperatorComparisonBoundary moves a relational boundary (< and <=, > and >=).
	OperatorComparisonBoundary OperatorKind = "comparison-boundary"
	// OperatorComparisonNegation negates a comparison (== and !=, < and >=, ...).
	OperatorComparisonNegation OperatorKind = "comparison-negation"
	// OperatorComparison replaces an ordered comparison with the remaining relational operators.
	OperatorComparison OperatorKind = "comparison"
	// OperatorLogical swaps && and ||.
	OperatorLogical OperatorKind = "logical"
	// OperatorUnary flips or removes unary operators.
	OperatorUnary OperatorKind = "unary"
	// OperatorBoolean flips the literals true and false.
	OperatorBoolean OperatorKind = "boolean"
	// OperatorString empties or fills string literals.
	OperatorString OperatorKind = "string"
	// OperatorNumber replaces numeric literals with 0 or 1.
	OperatorNumber OperatorKind = "number"
	// OperatorCondition forces if and for conditions to true or false.
	OperatorCondition OperatorKind = "condition"
	// OperatorAssignment swaps compound assignment operators.
	OperatorAssignment OperatorKind = "assignment"
	// OperatorStatement removes a statement.
	OperatorStatement OperatorKind = "statement"
)

// Level orders operators by how aggressive they are. An operator is used when
// its level is at or below the configured level.
type Level int

const (
	// LevelBasic enables the operators with the best signal to noise ratio.
	LevelBasic Level = iota
	// LevelStandard is the default level.
	LevelStandard
	// LevelAdvanced adds literal and statement level operators.
	LevelAdvanced
	// LevelComplete enables every operator.
	LevelComplete
)

var levelNames = []string{"basic", "standard", "advanced", "complete"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}

	return levelNames[l]
}

// ParseLevel converts a level name or number into a Level.
func ParseLevel(value string) (Level, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for i, name := range levelNames {
		if v == name || v == fmt.Sprint(i) {
			return Level(i), nil
		}
	}

	return LevelStandard, fmt.Errorf("unknown mutation level %q (want one of %s)", value, strings.Join(levelNames, ", "))
}

// Mutation is one proposed change to a SourceUnit. Original points into the
// unit's syntax tree; Replacement is a detached node that owns its children.
type Mutation struct {
	ID          uint
	Kind        OperatorKind
	Original    ast.Node
	Replacement ast.Node
	DisplayName string
	Description string
	Position    token.Position
}

// Registry is the ordered set of mutations generated for one SourceUnit.
// IDs are 1..Len() in traversal order.
type Registry struct {
	Source    *SourceUnit
	Mutations []Mutation
}

// Len returns the number of mutations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.Mutations)
}

// Get returns the mutation with the given id.
func (r *Registry) Get(id uint) (Mutation, bool) {
	if r == nil || id == 0 || int(id) > len(r.Mutations) {
		return Mutation{}, false
	}

	return r.Mutations[id-1], true
}

// Fingerprint hashes the observable identity of every mutation: id, kind,
// display name and position. Two registries generated from identical source
// text with the same level and operator set have the same fingerprint.
func (r *Registry) Fingerprint() string {
	h := sha256.New()

	if r == nil {
		return fmt.Sprintf("%x", h.Sum(nil))
	}

	for _, mutation := range r.Mutations {
		_, _ = fmt.Fprintf(h, "%d|%s|%s|%d:%d\n",
			mutation.ID, mutation.Kind, mutation.DisplayName,
			mutation.Position.Line, mutation.Position.Column)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
