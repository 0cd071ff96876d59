// Package ast defines the query AST shared by every stage of the compiler:
// the operator tree produced by the builder and the relational tree produced
// by the binder.
package ast

import (
	"reflect"

	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrInvalidChildren is returned by WithChildren when the number or kind of
// the given children does not fit the node.
var ErrInvalidChildren = errors.NewKind("%s: invalid children: got %d, expected %d")

// ErrInvalidChild is returned by WithChildren when a child slot requires a
// specific node kind.
var ErrInvalidChild = errors.NewKind("%s: child %d must be %s, got %s")

// Kind identifies the concrete type of a node.
type Kind int

const (
	KindConstant Kind = iota
	KindParameter
	KindArgument
	KindLambda
	KindMember
	KindUnary
	KindBinary
	KindConditional
	KindCall
	KindNew
	KindSource
	KindVersion

	KindTable
	KindColumn
	KindSelect
	KindJoin
	KindUnion
	KindProjection
	KindAggregate
	KindAggregateSubquery
	KindScalar
	KindExists
	KindIn
	KindIsNull
	KindFunction
	KindPlaceholder
	KindTuple
	KindEntity
	KindCollection

	KindInsert
	KindUpdate
	KindDelete
	KindCommand
)

var kindNames = [...]string{
	KindConstant:          "Constant",
	KindParameter:         "Parameter",
	KindArgument:          "Argument",
	KindLambda:            "Lambda",
	KindMember:            "Member",
	KindUnary:             "Unary",
	KindBinary:            "Binary",
	KindConditional:       "Conditional",
	KindCall:              "Call",
	KindNew:               "New",
	KindSource:            "Source",
	KindVersion:           "Version",
	KindTable:             "Table",
	KindColumn:            "Column",
	KindSelect:            "Select",
	KindJoin:              "Join",
	KindUnion:             "Union",
	KindProjection:        "Projection",
	KindAggregate:         "Aggregate",
	KindAggregateSubquery: "AggregateSubquery",
	KindScalar:            "Scalar",
	KindExists:            "Exists",
	KindIn:                "In",
	KindIsNull:            "IsNull",
	KindFunction:          "Function",
	KindPlaceholder:       "Placeholder",
	KindTuple:             "Tuple",
	KindEntity:            "Entity",
	KindCollection:        "Collection",
	KindInsert:            "Insert",
	KindUpdate:            "Update",
	KindDelete:            "Delete",
	KindCommand:           "Command",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// IsRelational reports whether nodes of this kind belong to the relational
// (select family) part of the tree.
func (k Kind) IsRelational() bool {
	switch k {
	case KindTable, KindColumn, KindSelect, KindJoin, KindUnion, KindProjection,
		KindAggregate, KindAggregateSubquery, KindScalar, KindExists, KindIn,
		KindEntity, KindCollection, KindInsert, KindUpdate, KindDelete, KindCommand:
		return true
	}
	return false
}

// Node is a node of the query tree. Nodes are immutable: rewrites always
// build new nodes through WithChildren.
type Node interface {
	// Kind returns the concrete node kind.
	Kind() Kind
	// Type returns the Go type of the value the node produces. Sequences
	// are slices.
	Type() reflect.Type
	// Children returns the child slots of the node in a fixed order. A slot
	// may be nil when the node has no value for it.
	Children() []Node
	// WithChildren returns a copy of the node with the given children, which
	// must match the layout returned by Children.
	WithChildren(children ...Node) (Node, error)
	// String returns the canonical textual form of the node.
	String() string
}

func checkLen(n Node, children []Node, expected int) error {
	if len(children) != expected {
		return ErrInvalidChildren.New(n.Kind(), len(children), expected)
	}
	return nil
}

func childSelect(n Node, children []Node, i int) (*Select, error) {
	if children[i] == nil {
		return nil, nil
	}
	s, ok := children[i].(*Select)
	if !ok {
		return nil, ErrInvalidChild.New(n.Kind(), i, KindSelect, children[i].Kind())
	}
	return s, nil
}
