package compiler

import errors "gopkg.in/src-d/go-errors.v1"

var (
	// ErrNoModel is returned when a compiler is created without a model.
	ErrNoModel = errors.NewKind("compiler needs a model")
	// ErrNoDialect is returned when a compiler is created without a
	// dialect.
	ErrNoDialect = errors.NewKind("compiler needs a dialect")
	// ErrNotAQuery is returned when rows are requested from a statement.
	ErrNotAQuery = errors.NewKind("%s statement does not produce rows")
)
