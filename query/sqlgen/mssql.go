package sqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/objql/query/ast"
)

// SQLServer renders Transact-SQL.
type SQLServer struct{ base }

func (*SQLServer) Name() string                    { return "sqlserver" }
func (*SQLServer) Placeholder(position int) string { return fmt.Sprintf("@p%d", position) }
func (*SQLServer) BooleanValues() bool             { return false }
func (*SQLServer) ForUpdate() string               { return "" }
func (*SQLServer) Concat(args []string) string     { return "CONCAT(" + strings.Join(args, ", ") + ")" }

func (*SQLServer) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (*SQLServer) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (*SQLServer) Function(name string) string {
	if name == "LENGTH" {
		return "LEN"
	}
	return name
}

func (*SQLServer) Apply(kind ast.JoinKind) (string, string, error) {
	switch kind {
	case ast.JoinCrossApply:
		return "CROSS APPLY", "", nil
	case ast.JoinOuterApply:
		return "OUTER APPLY", "", nil
	}
	return "", "", ErrApplyUnsupported.New("sqlserver", kind)
}

// Paging uses TOP for a bare take and OFFSET/FETCH otherwise, which needs
// an ORDER BY.
func (*SQLServer) Paging(skip, take string, ordered bool) (string, string) {
	if skip == "" {
		if take == "" {
			return "", ""
		}
		return "TOP (" + take + ")", ""
	}
	tail := "OFFSET " + skip + " ROWS"
	if !ordered {
		tail = "ORDER BY (SELECT NULL) " + tail
	}
	if take != "" {
		tail += " FETCH NEXT " + take + " ROWS ONLY"
	}
	return "", tail
}

func (*SQLServer) TypeName(t reflect.Type) (string, bool) {
	return typeName(t, sqlserverTypes)
}
