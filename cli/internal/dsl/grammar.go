// Package dsl parses the pipeline language of the objql command line into
// builder queries:
//
//	orders | where Total > 100 and Status == "open" | include Lines | orderby ID desc | take 5
//	customers | single Name == $0
//	orders | sum Total
package dsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var pipelineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Param", Pattern: `\$\d+`},
	{Name: "Keyword", Pattern: `\b(where|orderby|thenby|desc|take|skip|include|select|distinct|delete|first|firstordefault|single|singleordefault|last|lastordefault|any|count|sum|min|max|average|and|or|not|null|true|false|contains|startswith|endswith)\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|>=|<=|[<>+\-*/%]`},
	{Name: "Punct", Pattern: `[|(),.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type pipeline struct {
	Pos    lexer.Position
	Source string   `@Ident`
	Stages []*stage `( "|" @@ )*`
}

type stage struct {
	Pos       lexer.Position
	Where     *expr      `  "where" @@`
	Order     *ordering  `| @@`
	Take      *int       `| "take" @Number`
	Skip      *int       `| "skip" @Number`
	Include   []string   `| "include" @Ident ( "." @Ident )*`
	Select    []*expr    `| "select" @@ ( "," @@ )*`
	Distinct  bool       `| @"distinct"`
	Delete    bool       `| @"delete"`
	Aggregate *aggregate `| @@`
}

type ordering struct {
	Then bool  `( "orderby" | @"thenby" )`
	Key  *expr `@@`
	Desc bool  `@"desc"?`
}

type aggregate struct {
	Op  string `@( "firstordefault" | "first" | "singleordefault" | "single" | "lastordefault" | "last" | "any" | "count" | "sum" | "min" | "max" | "average" )`
	Arg *expr  `@@?`
}

type expr struct {
	Left  *andExpr   `@@`
	Right []*andExpr `( "or" @@ )*`
}

type andExpr struct {
	Left  *notExpr   `@@`
	Right []*notExpr `( "and" @@ )*`
}

type notExpr struct {
	Not     bool     `@"not"?`
	Compare *compare `@@`
}

type compare struct {
	Left  *sum   `@@`
	Op    string `( @( "==" | "!=" | ">=" | "<=" | ">" | "<" | "contains" | "startswith" | "endswith" )`
	Right *sum   `  @@ )?`
}

type sum struct {
	Left  *term     `@@`
	Right []*opTerm `@@*`
}

type opTerm struct {
	Op   string `@( "+" | "-" )`
	Term *term  `@@`
}

type term struct {
	Left  *unary     `@@`
	Right []*opUnary `@@*`
}

type opUnary struct {
	Op    string `@( "*" | "/" | "%" )`
	Unary *unary `@@`
}

type unary struct {
	Neg     bool     `@"-"?`
	Primary *primary `@@`
}

type primary struct {
	Pos    lexer.Position
	Number *string  `  @Number`
	String *string  `| @String`
	Param  *string  `| @Param`
	Null   bool     `| @"null"`
	True   bool     `| @"true"`
	False  bool     `| @"false"`
	Sub    *expr    `| "(" @@ ")"`
	Path   []string `| @Ident ( "." @Ident )*`
}

var parser = participle.MustBuild[pipeline](
	participle.Lexer(pipelineLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)
