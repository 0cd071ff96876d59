package sqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/lib/pq"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/query/ast"
)

// ErrUnknownProvider is returned for a database provider without a dialect.
var ErrUnknownProvider = errors.NewKind("unknown database provider %q")

// ErrApplyUnsupported is returned when a join needing lateral evaluation
// reaches a dialect that cannot express it.
var ErrApplyUnsupported = errors.NewKind("%s cannot express %s joins")

// Dialect is the provider specific part of SQL generation.
type Dialect interface {
	// Name is the provider name.
	Name() string
	// Placeholder returns the marker of the parameter at the 1-based
	// position.
	Placeholder(position int) string
	// TextParam marks a parameter used as text where the type cannot be
	// inferred by the database.
	TextParam(marker string) string
	QuoteIdentifier(name string) string
	QuoteString(s string) string
	// Bool renders a boolean literal in value position.
	Bool(v bool) string
	// BooleanValues reports whether predicates can be used as values.
	BooleanValues() bool
	Concat(args []string) string
	// Function maps a portable function name to the provider's.
	Function(name string) string
	// Apply returns the join keyword and the trailing condition of a
	// lateral join.
	Apply(kind ast.JoinKind) (keyword, suffix string, err error)
	// Paging returns the text following SELECT and the text ending the
	// statement for the given skip and take markers, either may be empty.
	Paging(skip, take string, ordered bool) (head, tail string)
	ForUpdate() string
	DefaultValues() string
	// TypeName returns the column type used to CAST to t.
	TypeName(t reflect.Type) (string, bool)
	// Reader returns the conversion from driver values to t.
	Reader(t reflect.Type) ReadFunc
}

// NewDialect returns the dialect of a provider. serverVersion gates
// features that depend on the database release and may be empty.
func NewDialect(provider, serverVersion string) (Dialect, error) {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres":
		return &Postgres{}, nil
	case "mysql", "mariadb":
		return NewMySQL(serverVersion)
	case "sqlite", "sqlite3":
		return &SQLite{}, nil
	case "sqlserver", "mssql":
		return &SQLServer{}, nil
	}
	return nil, ErrUnknownProvider.New(provider)
}

// base holds the behavior shared by the ANSI leaning dialects.
type base struct{}

func (base) TextParam(marker string) string     { return marker }
func (base) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }
func (base) QuoteString(s string) string        { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
func (base) BooleanValues() bool                { return true }
func (base) Function(name string) string        { return name }
func (base) ForUpdate() string                  { return "FOR UPDATE" }
func (base) DefaultValues() string              { return "DEFAULT VALUES" }
func (base) Reader(t reflect.Type) ReadFunc     { return readerFor(t) }

func (base) Bool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (base) Concat(args []string) string {
	return "(" + strings.Join(args, " || ") + ")"
}

func (base) Paging(skip, take string, ordered bool) (string, string) {
	var parts []string
	if take != "" {
		parts = append(parts, "LIMIT "+take)
	}
	if skip != "" {
		parts = append(parts, "OFFSET "+skip)
	}
	return "", strings.Join(parts, " ")
}

func lateral(name string, kind ast.JoinKind) (string, string, error) {
	switch kind {
	case ast.JoinCrossApply:
		return "CROSS JOIN LATERAL", "", nil
	case ast.JoinOuterApply:
		return "LEFT JOIN LATERAL", " ON TRUE", nil
	}
	return "", "", ErrApplyUnsupported.New(name, kind)
}

// Postgres renders PostgreSQL.
type Postgres struct{ base }

func (*Postgres) Name() string                    { return "postgres" }
func (*Postgres) Placeholder(position int) string { return fmt.Sprintf("$%d", position) }
func (*Postgres) TextParam(marker string) string  { return marker + "::text" }

func (*Postgres) Apply(kind ast.JoinKind) (string, string, error) {
	return lateral("postgres", kind)
}

func (*Postgres) TypeName(t reflect.Type) (string, bool) {
	return typeName(t, postgresTypes)
}

// MySQL renders MySQL. Lateral derived tables need 8.0.14.
type MySQL struct {
	base
	lateral bool
}

var mysqlLateral = version.Must(version.NewVersion("8.0.14"))

// NewMySQL returns the MySQL dialect for a server version such as
// "8.0.36" or "10.11.6-MariaDB". An empty version means a current MySQL.
func NewMySQL(serverVersion string) (*MySQL, error) {
	if serverVersion == "" {
		return &MySQL{lateral: true}, nil
	}
	if strings.Contains(strings.ToLower(serverVersion), "mariadb") {
		return &MySQL{}, nil
	}
	v, err := version.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("mysql server version: %w", err)
	}
	return &MySQL{lateral: v.GreaterThanOrEqual(mysqlLateral)}, nil
}

func (*MySQL) Name() string                { return "mysql" }
func (*MySQL) Placeholder(int) string      { return "?" }
func (*MySQL) DefaultValues() string       { return "() VALUES ()" }
func (*MySQL) Concat(args []string) string { return "CONCAT(" + strings.Join(args, ", ") + ")" }
func (*MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (*MySQL) QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (m *MySQL) Apply(kind ast.JoinKind) (string, string, error) {
	if !m.lateral {
		return "", "", ErrApplyUnsupported.New("mysql before 8.0.14", kind)
	}
	return lateral("mysql", kind)
}

func (*MySQL) Paging(skip, take string, ordered bool) (string, string) {
	if take == "" && skip != "" {
		// MySQL has no OFFSET without LIMIT
		take = "18446744073709551615"
	}
	return base{}.Paging(skip, take, ordered)
}

func (*MySQL) TypeName(t reflect.Type) (string, bool) {
	return typeName(t, mysqlTypes)
}

// SQLite renders SQLite, which has no lateral joins.
type SQLite struct{ base }

func (*SQLite) Name() string           { return "sqlite" }
func (*SQLite) Placeholder(int) string { return "?" }
func (*SQLite) ForUpdate() string      { return "" }

func (*SQLite) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (*SQLite) Apply(kind ast.JoinKind) (string, string, error) {
	return "", "", ErrApplyUnsupported.New("sqlite", kind)
}

func (*SQLite) Paging(skip, take string, ordered bool) (string, string) {
	if take == "" && skip != "" {
		take = "-1"
	}
	return base{}.Paging(skip, take, ordered)
}

func (*SQLite) TypeName(t reflect.Type) (string, bool) {
	return typeName(t, sqliteTypes)
}
