package compiler

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/objql/query/ast"
)

// Explanation describes how an execution runs.
type Explanation struct {
	// Tree is the optimized relational tree.
	Tree string
	// Projector is the expression each row is materialized with. It is
	// empty for statements.
	Projector  string
	Aggregator string
	SQL        string
	Params     []any
	Cacheable  bool
	Key        uint64
}

// Explain compiles n and describes the result.
func (c *Compiler) Explain(n ast.Node, args ...any) (*Explanation, error) {
	e, err := c.Prepare(n, args...)
	if err != nil {
		return nil, err
	}
	return e.Explain(), nil
}

// Explain describes the execution.
func (e *Execution) Explain() *Explanation {
	out := &Explanation{
		Tree:      ast.Format(e.Plan.Tree),
		SQL:       e.Statement.SQL,
		Params:    e.Params,
		Cacheable: e.Statement.Cacheable,
		Key:       e.Plan.Key,
	}
	if m := e.Plan.Materializer; m != nil {
		out.Projector = m.String()
		out.Aggregator = m.Aggregator.String()
	}
	return out
}

// Markdown renders the explanation as a markdown document.
func (x *Explanation) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Plan %016x\n\n", x.Key)
	sb.WriteString("## SQL\n\n```sql\n")
	sb.WriteString(x.SQL)
	sb.WriteString("\n```\n\n")
	if len(x.Params) > 0 {
		sb.WriteString("## Parameters\n\n")
		for i, p := range x.Params {
			fmt.Fprintf(&sb, "%d. `%#v`\n", i+1, p)
		}
		sb.WriteString("\n")
	}
	if x.Projector != "" {
		fmt.Fprintf(&sb, "## Projector\n\n`%s`\n\n", x.Projector)
		if x.Aggregator != "" {
			fmt.Fprintf(&sb, "Aggregator: **%s**\n\n", x.Aggregator)
		}
	}
	sb.WriteString("## Tree\n\n```\n")
	sb.WriteString(x.Tree)
	sb.WriteString("\n```\n")
	if !x.Cacheable {
		sb.WriteString("\n> The statement is formatted again for every call.\n")
	}
	return sb.String()
}
