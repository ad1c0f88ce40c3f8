package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"tablesync/internal/connection"
)

// Kind is the semantic comparison type of a column.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// TypeClass is the result of classifying an engine type name.
type TypeClass struct {
	Kind Kind
	// LongValue columns (CLOB-like) are compared through Dialect.LongValueEquals
	// and never take part in the default sort key.
	LongValue bool
	// Excluded columns cannot be fetched or compared at all (raw binary, file handles).
	Excluded bool
}

var ErrUnsupportedType = errors.New("无法比较该类型的列")

// Dialect is the capability set that differs between engines. A dialect is
// chosen once per endpoint; the sync client never inspects the concrete type.
type Dialect interface {
	Name() string

	// QuoteIdent quotes a column or table name; engines relying on case
	// folding return the name unchanged.
	QuoteIdent(name string) string
	// Placeholder renders the bind marker for the 1-based position pos.
	Placeholder(pos int) string
	// NullTest renders "<placeholder> IS NULL" so the engine can infer the
	// bind type; typeName is the engine type of the compared column.
	NullTest(placeholder, typeName string) string
	// SortTerms renders the ORDER BY terms for one column, adding a companion
	// term where the engine would otherwise sort NULLs first.
	SortTerms(col string) []string
	// LongValueEquals renders a content comparison for CLOB-like columns.
	LongValueEquals(col, placeholder string) string
	// LimitOneDelete renders a DELETE that removes at most one matching row.
	LimitOneDelete(table, where string) string

	ClassifyType(typeName string) (TypeClass, error)

	// SetupSession runs per-connection settings on a freshly pinned connection.
	SetupSession(ctx context.Context, conn *sql.Conn) error
	// NormalizeValue fixes up a fetched value after the generic normalization.
	NormalizeValue(v interface{}) interface{}
	// BindValue adapts a value before it is bound to a write statement.
	BindValue(v interface{}, longValue bool) interface{}
}

// DistinctOrderer is implemented by dialects whose SELECT DISTINCT accepts
// only select-list items in ORDER BY. OrderDistinct receives the unordered
// DISTINCT statement and returns it ordered by orderBy, where orderBy
// refers to the statement's output column names.
type DistinctOrderer interface {
	OrderDistinct(distinctSelect, orderBy string) string
}

// opener is implemented by every dialect; it builds the *sql.DB for a config.
type opener interface {
	open(config connection.ConnectionConfig) (*sql.DB, []io.Closer, error)
}

// NewDialect is the dialect factory.
func NewDialect(config connection.ConnectionConfig) (Dialect, error) {
	switch normalizeType(config.Type) {
	case "mysql", "mariadb":
		return &MySQLDialect{}, nil
	case "postgres":
		return &PostgresDialect{driver: config.Driver, charset: config.Charset}, nil
	case "oracle":
		return &OracleDialect{}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "sqlserver":
		return &SqlServerDialect{}, nil
	default:
		// Default to MySQL for backward compatibility if empty
		if strings.TrimSpace(config.Type) == "" {
			return &MySQLDialect{}, nil
		}
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

func normalizeType(dbType string) string {
	t := strings.ToLower(strings.TrimSpace(dbType))
	switch t {
	case "postgresql", "pg":
		return "postgres"
	case "mssql":
		return "sqlserver"
	case "sqlite3":
		return "sqlite"
	}
	return t
}

// typeKey reduces an engine type name to its lookup key:
// "varchar(20)" -> "VARCHAR", "unsigned int" -> "INT", "TimeStampTZ_DTY" -> "TIMESTAMPTZDTY".
func typeKey(typeName string) string {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimPrefix(t, "UNSIGNED ")
	t = strings.NewReplacer(" ", "", "_", "").Replace(t)
	return t
}

var (
	stringType  = TypeClass{Kind: KindString}
	numericType = TypeClass{Kind: KindNumeric}
	longType    = TypeClass{Kind: KindString, LongValue: true}
	binaryType  = TypeClass{Kind: KindUnknown, Excluded: true}
)

func classifyFromTable(table map[string]TypeClass, typeName string) (TypeClass, error) {
	if tc, ok := table[typeKey(typeName)]; ok {
		return tc, nil
	}
	return TypeClass{}, fmt.Errorf("%w：%s", ErrUnsupportedType, typeName)
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
