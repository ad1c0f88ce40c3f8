package db

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"tablesync/internal/connection"

	_ "modernc.org/sqlite"
)

const sqliteBusyTimeoutMillis = "5000"

type SQLiteDialect struct{}

func (s *SQLiteDialect) Name() string { return "sqlite" }

// getDSN opens the file in WAL mode so a reading session and a writing
// session can share the database.
func (s *SQLiteDialect) getDSN(config connection.ConnectionConfig) string {
	if strings.TrimSpace(config.DSN) != "" {
		return config.DSN
	}
	dsn := config.Host
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + sqliteBusyTimeoutMillis + ")&_pragma=journal_mode(WAL)"
}

func (s *SQLiteDialect) open(config connection.ConnectionConfig) (*sql.DB, []io.Closer, error) {
	conn, err := sql.Open("sqlite", s.getDSN(config))
	return conn, nil, err
}

func (s *SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLiteDialect) Placeholder(int) string { return "?" }

func (s *SQLiteDialect) NullTest(placeholder, _ string) string {
	return placeholder + " IS NULL"
}

// SortTerms puts NULLs after every value; SQLite sorts them first by default.
func (s *SQLiteDialect) SortTerms(col string) []string {
	return []string{col + " IS NULL", col}
}

func (s *SQLiteDialect) LongValueEquals(col, placeholder string) string {
	return col + " = " + placeholder
}

func (s *SQLiteDialect) LimitOneDelete(table, where string) string {
	return "DELETE FROM " + table + " WHERE rowid IN (SELECT rowid FROM " + table + " WHERE " + where + " LIMIT 1)"
}

// ClassifyType follows SQLite's column affinity rules on the declared type.
func (s *SQLiteDialect) ClassifyType(typeName string) (TypeClass, error) {
	t := typeKey(typeName)
	switch {
	case t == "":
		return stringType, nil
	case strings.Contains(t, "INT"):
		return numericType, nil
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return stringType, nil
	case strings.Contains(t, "BLOB"):
		return binaryType, nil
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"), t == "JSON", t == "UUID":
		return stringType, nil
	default:
		// REAL, FLOAT, DOUBLE, NUMERIC, DECIMAL, BOOLEAN and anything else get numeric affinity.
		return numericType, nil
	}
}

func (s *SQLiteDialect) SetupSession(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = "+sqliteBusyTimeoutMillis)
	return err
}

func (s *SQLiteDialect) NormalizeValue(v interface{}) interface{} { return v }

func (s *SQLiteDialect) BindValue(v interface{}, _ bool) interface{} { return v }
