package sqlgen

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/satishbabariya/objql/query/ast"
)

const indentUnit = "  "

type formatter struct {
	d         Dialect
	values    []any
	sb        *strings.Builder
	depth     int
	pending   []ParamRef
	cacheable bool
	// target is the table of the statement being formatted. Its columns
	// are qualified by table name since DML has no aliases.
	target *ast.Table
}

func newFormatter(d Dialect, values []any) *formatter {
	return &formatter{d: d, values: values, sb: &strings.Builder{}, cacheable: true}
}

func (f *formatter) write(parts ...string) {
	for _, p := range parts {
		f.sb.WriteString(p)
	}
}

func (f *formatter) newline() {
	f.sb.WriteByte('\n')
	f.sb.WriteString(strings.Repeat(indentUnit, f.depth))
}

func (f *formatter) root(n ast.Node) error {
	switch n := n.(type) {
	case *ast.Projection:
		return f.selectStmt(n.Select)
	case *ast.Select:
		return f.selectStmt(n)
	case *ast.Delete:
		return f.deleteStmt(n)
	case *ast.Update:
		return f.updateStmt(n)
	case *ast.Insert:
		return f.insertStmt(n)
	case *ast.Command:
		return f.command(n)
	}
	return ErrUnsupportedNode.New(n.Kind())
}

// param writes a marker for a parameter. Markers are numbered in the
// order parameters are created and renumbered in text order by finish.
// A placeholder index below zero marks a value fixed at formatting time.
func (f *formatter) param(ref ParamRef) {
	f.write(marker, strconv.Itoa(len(f.pending)), marker)
	f.pending = append(f.pending, ref)
}

const marker = "\x00"

// finish replaces parameter markers with dialect placeholders and returns
// the parameters in text order.
func (f *formatter) finish() *Statement {
	st := &Statement{Cacheable: f.cacheable}
	seen := make(map[string]bool)
	text := f.sb.String()
	var sb strings.Builder
	for {
		start := strings.Index(text, marker)
		if start < 0 {
			sb.WriteString(text)
			break
		}
		end := start + 1 + strings.Index(text[start+1:], marker)
		id, _ := strconv.Atoi(text[start+1 : end])
		sb.WriteString(text[:start])
		text = text[end+1:]

		ref := f.pending[id]
		value := ref.Value
		if ref.Placeholder >= 0 {
			key := fmt.Sprintf("%d:%s", ref.Placeholder, strings.Join(ref.Path, "."))
			if seen[key] {
				st.Cacheable = false
			}
			seen[key] = true
			if v, err := readPath(f.value(ref.Placeholder), ref.Path); err == nil {
				value = v
			}
		}
		st.Params = append(st.Params, value)
		st.Refs = append(st.Refs, ref)
		sb.WriteString(f.d.Placeholder(len(st.Params)))
	}
	st.SQL = sb.String()
	return st
}

func (f *formatter) value(i int) any {
	if i < len(f.values) {
		return f.values[i]
	}
	return nil
}

func (f *formatter) selectStmt(s *ast.Select) error {
	f.write("SELECT ")
	if s.Distinct {
		f.write("DISTINCT ")
	}
	skip, take, err := f.paging(s)
	if err != nil {
		return err
	}
	head, tail := f.d.Paging(skip, take, len(s.OrderBy) > 0)
	if head != "" {
		f.write(head, " ")
	}
	if err := f.columns(s.Columns); err != nil {
		return err
	}
	if s.From != nil {
		f.newline()
		f.write("FROM ")
		if err := f.source(s.From); err != nil {
			return err
		}
	}
	if s.Where != nil {
		f.newline()
		f.write("WHERE ")
		if err := f.predicate(s.Where); err != nil {
			return err
		}
	}
	if len(s.GroupBy) > 0 {
		f.newline()
		f.write("GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				f.write(", ")
			}
			if err := f.expr(g); err != nil {
				return err
			}
		}
	}
	if len(s.OrderBy) > 0 {
		f.newline()
		f.write("ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				f.write(", ")
			}
			if err := f.expr(o.Expr); err != nil {
				return err
			}
			if o.Descending {
				f.write(" DESC")
			}
		}
	}
	if tail != "" {
		f.newline()
		f.write(tail)
	}
	if s.ForUpdate && f.d.ForUpdate() != "" {
		f.newline()
		f.write(f.d.ForUpdate())
	}
	return nil
}

// paging formats the skip and take expressions into strings so the
// dialect can place them.
func (f *formatter) paging(s *ast.Select) (skip, take string, err error) {
	if s.Skip != nil {
		if skip, err = f.capture(s.Skip); err != nil {
			return "", "", err
		}
	}
	if s.Take != nil {
		if take, err = f.capture(s.Take); err != nil {
			return "", "", err
		}
	}
	return skip, take, nil
}

// capture formats n into a string instead of the output.
func (f *formatter) capture(n ast.Node) (string, error) {
	saved := f.sb
	f.sb = &strings.Builder{}
	err := f.expr(n)
	out := f.sb.String()
	f.sb = saved
	return out, err
}

func (f *formatter) columns(cols []ast.ColumnDecl) error {
	if len(cols) == 0 {
		f.write("NULL")
		return nil
	}
	for i, c := range cols {
		if i > 0 {
			f.write(", ")
		}
		if err := f.expr(c.Expr); err != nil {
			return err
		}
		if col, ok := c.Expr.(*ast.Column); ok && col.Name == c.Name {
			continue
		}
		f.write(" AS ", f.d.QuoteIdentifier(c.Name))
	}
	return nil
}

func (f *formatter) source(n ast.Node) error {
	switch n := n.(type) {
	case *ast.Table:
		f.write(f.d.QuoteIdentifier(n.Name), " AS ", string(n.Alias))
		return nil
	case *ast.Select:
		if err := f.subquery(n); err != nil {
			return err
		}
		f.write(" AS ", string(n.Alias))
		return nil
	case *ast.Union:
		if err := f.union(n); err != nil {
			return err
		}
		f.write(" AS ", string(n.Alias))
		return nil
	case *ast.Join:
		return f.join(n)
	}
	return ErrUnsupportedNode.New(n.Kind())
}

func (f *formatter) subquery(s *ast.Select) error {
	f.write("(")
	f.depth++
	f.newline()
	if err := f.selectStmt(s); err != nil {
		return err
	}
	f.depth--
	f.newline()
	f.write(")")
	return nil
}

func (f *formatter) join(j *ast.Join) error {
	if err := f.source(j.Left); err != nil {
		return err
	}
	f.newline()
	var keyword, suffix string
	switch j.Join {
	case ast.JoinInner:
		keyword = "INNER JOIN"
	case ast.JoinLeft:
		keyword = "LEFT OUTER JOIN"
	case ast.JoinCross:
		keyword = "CROSS JOIN"
	default:
		var err error
		if keyword, suffix, err = f.d.Apply(j.Join); err != nil {
			return err
		}
	}
	f.write(keyword, " ")
	if right, ok := j.Right.(*ast.Join); ok {
		f.write("(")
		if err := f.join(right); err != nil {
			return err
		}
		f.write(")")
	} else if err := f.source(j.Right); err != nil {
		return err
	}
	f.write(suffix)
	if j.Condition != nil && !j.Join.IsApply() && j.Join != ast.JoinCross {
		f.write(" ON ")
		return f.predicate(j.Condition)
	}
	return nil
}

func (f *formatter) union(u *ast.Union) error {
	f.write("(")
	f.depth++
	f.newline()
	if err := f.unionOperand(u.Left); err != nil {
		return err
	}
	f.newline()
	if u.All {
		f.write("UNION ALL")
	} else {
		f.write("UNION")
	}
	f.newline()
	if err := f.unionOperand(u.Right); err != nil {
		return err
	}
	f.depth--
	f.newline()
	f.write(")")
	return nil
}

// unionOperand wraps operands that carry ORDER BY or paging, which a
// compound select does not accept directly.
func (f *formatter) unionOperand(s *ast.Select) error {
	if len(s.OrderBy) == 0 && s.Skip == nil && s.Take == nil {
		return f.selectStmt(s)
	}
	f.write("SELECT * FROM ")
	if err := f.subquery(s); err != nil {
		return err
	}
	f.write(" AS ", string(s.Alias))
	return nil
}

func (f *formatter) deleteStmt(d *ast.Delete) error {
	f.target = d.Table
	f.write("DELETE FROM ", f.d.QuoteIdentifier(d.Table.Name))
	if d.Where != nil {
		f.newline()
		f.write("WHERE ")
		return f.predicate(d.Where)
	}
	return nil
}

func (f *formatter) updateStmt(u *ast.Update) error {
	f.target = u.Table
	f.write("UPDATE ", f.d.QuoteIdentifier(u.Table.Name))
	f.newline()
	f.write("SET ")
	for i, a := range u.Assignments {
		if i > 0 {
			f.write(", ")
		}
		f.write(f.d.QuoteIdentifier(a.Column), " = ")
		if err := f.expr(a.Expr); err != nil {
			return err
		}
	}
	if u.Where != nil {
		f.newline()
		f.write("WHERE ")
		return f.predicate(u.Where)
	}
	return nil
}

func (f *formatter) insertStmt(ins *ast.Insert) error {
	f.target = ins.Table
	f.write("INSERT INTO ", f.d.QuoteIdentifier(ins.Table.Name))
	if len(ins.Assignments) == 0 {
		f.write(" ", f.d.DefaultValues())
		return nil
	}
	cols := make([]string, len(ins.Assignments))
	for i, a := range ins.Assignments {
		cols[i] = f.d.QuoteIdentifier(a.Column)
	}
	f.write(" (", strings.Join(cols, ", "), ")")
	f.newline()
	f.write("VALUES (")
	for i, a := range ins.Assignments {
		if i > 0 {
			f.write(", ")
		}
		if err := f.expr(a.Expr); err != nil {
			return err
		}
	}
	f.write(")")
	return nil
}

var commandArg = regexp.MustCompile(`\{(\d+)\}`)

func (f *formatter) command(c *ast.Command) error {
	var err error
	last := 0
	for _, m := range commandArg.FindAllStringSubmatchIndex(c.SQL, -1) {
		f.write(c.SQL[last:m[0]])
		last = m[1]
		i, _ := strconv.Atoi(c.SQL[m[2]:m[3]])
		if i >= len(c.Args) {
			return ErrMissingValue.New(i)
		}
		if err = f.expr(c.Args[i]); err != nil {
			return err
		}
	}
	f.write(c.SQL[last:])
	return nil
}

// isPredicate reports whether n yields a SQL truth value rather than a
// value.
func isPredicate(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.Binary:
		return n.Op.IsComparison() || n.Op.IsLogical()
	case *ast.Unary:
		return n.Op == ast.OpNot
	case *ast.Exists, *ast.In, *ast.IsNull:
		return true
	}
	return false
}

// predicate formats n where SQL expects a truth value.
func (f *formatter) predicate(n ast.Node) error {
	if v, ok := ast.LiteralBool(n); ok {
		if v {
			f.write("1 = 1")
		} else {
			f.write("1 = 0")
		}
		return nil
	}
	if isPredicate(n) {
		return f.node(n)
	}
	if err := f.operand(n, precComparison); err != nil {
		return err
	}
	f.write(" = ", f.d.Bool(true))
	return nil
}

// expr formats n where SQL expects a value.
func (f *formatter) expr(n ast.Node) error {
	if !isPredicate(n) {
		return f.node(n)
	}
	if f.d.BooleanValues() {
		f.write("(")
		if err := f.node(n); err != nil {
			return err
		}
		f.write(")")
		return nil
	}
	f.write("CASE WHEN ")
	if err := f.node(n); err != nil {
		return err
	}
	f.write(" THEN ", f.d.Bool(true), " ELSE ", f.d.Bool(false), " END")
	return nil
}

const (
	precOr = iota + 1
	precAnd
	precNot
	precComparison
	precAdditive
	precMultiplicative
	precPrimary
)

func precedence(n ast.Node) int {
	switch n := n.(type) {
	case *ast.Binary:
		switch n.Op {
		case ast.OpOr:
			return precOr
		case ast.OpAnd:
			return precAnd
		case ast.OpAdd, ast.OpSub:
			return precAdditive
		case ast.OpMul, ast.OpDiv, ast.OpMod:
			return precMultiplicative
		case ast.OpCoalesce, ast.OpConcat:
			return precPrimary
		}
		return precComparison
	case *ast.Unary:
		if n.Op == ast.OpNot {
			return precNot
		}
	case *ast.In, *ast.IsNull:
		return precComparison
	}
	return precPrimary
}

// operand formats a child, parenthesizing it when it binds looser than
// its parent. Below comparison precedence the parent is logical and the
// child is read as a truth value.
func (f *formatter) operand(n ast.Node, parent int) error {
	if parent < precComparison {
		if precedence(n) < parent {
			f.write("(")
			if err := f.predicate(n); err != nil {
				return err
			}
			f.write(")")
			return nil
		}
		return f.predicate(n)
	}
	if isPredicate(n) {
		return f.expr(n)
	}
	if precedence(n) < parent {
		f.write("(")
		if err := f.node(n); err != nil {
			return err
		}
		f.write(")")
		return nil
	}
	return f.node(n)
}

func (f *formatter) node(n ast.Node) error {
	switch n := n.(type) {
	case *ast.Constant:
		return f.constant(n)
	case *ast.Placeholder:
		f.param(ParamRef{Placeholder: n.Index})
		return nil
	case *ast.Member:
		return f.member(n)
	case *ast.Column:
		if f.target != nil && n.Alias == f.target.Alias {
			f.write(f.d.QuoteIdentifier(f.target.Name), ".", f.d.QuoteIdentifier(n.Name))
			return nil
		}
		f.write(string(n.Alias), ".", f.d.QuoteIdentifier(n.Name))
		return nil
	case *ast.Unary:
		return f.unary(n)
	case *ast.Binary:
		return f.binary(n)
	case *ast.Conditional:
		f.write("CASE WHEN ")
		if err := f.predicate(n.Test); err != nil {
			return err
		}
		f.write(" THEN ")
		if err := f.expr(n.Then); err != nil {
			return err
		}
		f.write(" ELSE ")
		if err := f.expr(n.Else); err != nil {
			return err
		}
		f.write(" END")
		return nil
	case *ast.Function:
		return f.function(n)
	case *ast.Aggregate:
		f.write(n.Name, "(")
		if n.Distinct {
			f.write("DISTINCT ")
		}
		if n.Arg == nil {
			f.write("*")
		} else if err := f.expr(n.Arg); err != nil {
			return err
		}
		f.write(")")
		return nil
	case *ast.Scalar:
		return f.subquery(n.Select)
	case *ast.Exists:
		f.write("EXISTS ")
		return f.subquery(n.Select)
	case *ast.In:
		return f.in(n)
	case *ast.IsNull:
		// A parameter's nullness is known when the statement is formatted.
		if p, ok := n.Expr.(*ast.Placeholder); ok && p.Index < len(f.values) {
			f.cacheable = false
			if isNil(f.values[p.Index]) {
				f.write("1 = 1")
			} else {
				f.write("1 = 0")
			}
			return nil
		}
		if err := f.operand(n.Expr, precComparison); err != nil {
			return err
		}
		f.write(" IS NULL")
		return nil
	case *ast.Tuple:
		f.write("(")
		for i, item := range n.Items {
			if i > 0 {
				f.write(", ")
			}
			if err := f.expr(item); err != nil {
				return err
			}
		}
		f.write(")")
		return nil
	case *ast.Select:
		return f.subquery(n)
	}
	return ErrUnsupportedNode.New(n.Kind())
}

// member formats a field read from a placeholder value as a parameter
// with a path.
func (f *formatter) member(m *ast.Member) error {
	var path []string
	var cur ast.Node = m
	for {
		switch x := cur.(type) {
		case *ast.Member:
			path = append([]string{x.Name}, path...)
			cur = x.Expr
			continue
		case *ast.Placeholder:
			f.param(ParamRef{Placeholder: x.Index, Path: path})
			return nil
		case *ast.Constant:
			v, err := readPath(x.Value, path)
			if err != nil {
				return err
			}
			return f.constant(&ast.Constant{Value: v, Typ: m.Typ})
		}
		return ErrUnsupportedNode.New(m.Kind())
	}
}

func (f *formatter) unary(u *ast.Unary) error {
	switch u.Op {
	case ast.OpNot:
		f.write("NOT ")
		return f.operand(u.Operand, precNot)
	case ast.OpNegate:
		f.write("-")
		return f.operand(u.Operand, precPrimary)
	case ast.OpConvert:
		to, ok := f.d.TypeName(u.Typ)
		from, _ := f.d.TypeName(u.Operand.Type())
		if !ok || to == from {
			return f.expr(u.Operand)
		}
		f.write("CAST(")
		if err := f.expr(u.Operand); err != nil {
			return err
		}
		f.write(" AS ", to, ")")
		return nil
	}
	return ErrUnsupportedNode.New(fmt.Sprintf("%s %s", u.Kind(), u.Op))
}

var binaryOperators = map[ast.BinaryOp]string{
	ast.OpAdd: "+", ast.OpSub: "-", ast.OpMul: "*", ast.OpDiv: "/", ast.OpMod: "%",
	ast.OpEq: "=", ast.OpNe: "<>", ast.OpLt: "<", ast.OpLe: "<=", ast.OpGt: ">", ast.OpGe: ">=",
	ast.OpAnd: "AND", ast.OpOr: "OR", ast.OpLike: "LIKE",
}

func (f *formatter) binary(b *ast.Binary) error {
	switch b.Op {
	case ast.OpCoalesce:
		return f.call("COALESCE", []ast.Node{b.Left, b.Right})
	case ast.OpConcat:
		return f.concat([]ast.Node{b.Left, b.Right})
	}
	prec := precedence(b)
	if err := f.operand(b.Left, prec); err != nil {
		return err
	}
	f.write(" ", binaryOperators[b.Op], " ")
	// the right operand of a non associative operator needs parentheses
	// at equal precedence
	right := prec
	if !b.Op.IsLogical() && b.Op != ast.OpAdd && b.Op != ast.OpMul {
		right++
	}
	return f.operand(b.Right, right)
}

func (f *formatter) function(fn *ast.Function) error {
	if fn.Name == "CONCAT" {
		return f.concat(fn.Args)
	}
	return f.call(f.d.Function(fn.Name), fn.Args)
}

func (f *formatter) call(name string, args []ast.Node) error {
	f.write(name, "(")
	for i, a := range args {
		if i > 0 {
			f.write(", ")
		}
		if err := f.expr(a); err != nil {
			return err
		}
	}
	f.write(")")
	return nil
}

func (f *formatter) concat(args []ast.Node) error {
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := f.capture(a)
		if err != nil {
			return err
		}
		switch a.(type) {
		case *ast.Placeholder, *ast.Member:
			s = f.d.TextParam(s)
		}
		parts[i] = s
	}
	f.write(f.d.Concat(parts))
	return nil
}

func (f *formatter) in(in *ast.In) error {
	if in.Select != nil {
		if err := f.operand(in.Expr, precComparison+1); err != nil {
			return err
		}
		f.write(" IN ")
		return f.subquery(in.Select)
	}
	var items []string
	for _, v := range in.Values {
		expanded, ok, err := f.expand(v)
		if err != nil {
			return err
		}
		if ok {
			items = append(items, expanded...)
			continue
		}
		s, err := f.capture(v)
		if err != nil {
			return err
		}
		items = append(items, s)
	}
	if len(items) == 0 {
		f.write("1 = 0")
		return nil
	}
	if err := f.operand(in.Expr, precComparison+1); err != nil {
		return err
	}
	f.write(" IN (", strings.Join(items, ", "), ")")
	return nil
}

// expand turns a slice valued placeholder or literal into one item per
// element.
func (f *formatter) expand(n ast.Node) ([]string, bool, error) {
	var v any
	switch x := n.(type) {
	case *ast.Placeholder:
		if !ast.IsSequence(x.Typ) {
			return nil, false, nil
		}
		if x.Index >= len(f.values) {
			return nil, false, ErrMissingValue.New(x.Index)
		}
		v = f.values[x.Index]
	case *ast.Constant:
		if !ast.IsSequence(x.Typ) {
			return nil, false, nil
		}
		v = x.Value
	default:
		return nil, false, nil
	}
	f.cacheable = false
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, true, nil
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, err := f.capture(&ast.Constant{Value: rv.Index(i).Interface(), Typ: rv.Type().Elem(), Captured: true})
		if err != nil {
			return nil, false, err
		}
		out = append(out, s)
	}
	return out, true, nil
}

func (f *formatter) constant(c *ast.Constant) error {
	if c.Captured {
		f.cacheable = false
		f.param(ParamRef{Placeholder: -1, Value: c.Value})
		return nil
	}
	s, ok := f.literal(c.Value)
	if !ok {
		f.param(ParamRef{Placeholder: -1, Value: c.Value})
		return nil
	}
	f.write(s)
	return nil
}

// literal renders values that can be inlined in the SQL text.
func (f *formatter) literal(v any) (string, bool) {
	if v == nil {
		return "NULL", true
	}
	switch v := v.(type) {
	case time.Time:
		return f.d.QuoteString(v.UTC().Format("2006-01-02 15:04:05.999999")), true
	case []byte:
		return "", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", true
		}
		return f.literal(rv.Elem().Interface())
	case reflect.Bool:
		return f.d.Bool(rv.Bool()), true
	case reflect.String:
		return f.d.QuoteString(rv.String()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return cast.ToString(rv.Float()), true
	}
	return "", false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
