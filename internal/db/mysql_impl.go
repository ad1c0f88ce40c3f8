package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"tablesync/internal/connection"
	"tablesync/internal/ssh"

	"github.com/go-sql-driver/mysql"
)

type MySQLDialect struct{}

var mysqlTypes = map[string]TypeClass{
	"TINYINT": numericType, "SMALLINT": numericType, "MEDIUMINT": numericType,
	"INT": numericType, "INTEGER": numericType, "BIGINT": numericType,
	"DECIMAL": numericType, "NUMERIC": numericType,
	"FLOAT": numericType, "DOUBLE": numericType, "REAL": numericType,

	"CHAR": stringType, "VARCHAR": stringType, "ENUM": stringType, "SET": stringType,
	"TINYTEXT": stringType, "TEXT": stringType, "MEDIUMTEXT": stringType, "LONGTEXT": stringType,
	"TINYBLOB": stringType, "BLOB": stringType, "MEDIUMBLOB": stringType, "LONGBLOB": stringType,
	"BINARY": stringType, "VARBINARY": stringType, "JSON": stringType,
	"DATE": stringType, "TIME": stringType, "DATETIME": stringType, "TIMESTAMP": stringType, "YEAR": stringType,

	"BIT": binaryType, "GEOMETRY": binaryType, "POINT": binaryType,
}

func (m *MySQLDialect) Name() string { return "mysql" }

func (m *MySQLDialect) getDSN(config connection.ConnectionConfig, protocol string) string {
	if strings.TrimSpace(config.DSN) != "" {
		return config.DSN
	}
	cfg := mysql.NewConfig()
	cfg.User = config.User
	cfg.Passwd = config.Password
	cfg.Net = protocol
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Timeout = connectTimeout(config)
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func (m *MySQLDialect) open(config connection.ConnectionConfig) (*sql.DB, []io.Closer, error) {
	protocol := "tcp"
	var closers []io.Closer
	if config.UseSSH {
		netName, dialer, err := ssh.RegisterSSHNetwork(config.SSH)
		if err != nil {
			return nil, nil, fmt.Errorf("建立 SSH 隧道失败：%w", err)
		}
		protocol = netName
		closers = append(closers, dialer)
	}
	conn, err := sql.Open("mysql", m.getDSN(config, protocol))
	return conn, closers, err
}

// QuoteIdent wraps name in backticks.
func (m *MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m *MySQLDialect) Placeholder(int) string { return "?" }

func (m *MySQLDialect) NullTest(placeholder, _ string) string {
	return placeholder + " IS NULL"
}

// SortTerms puts NULLs after every value, matching PostgreSQL and Oracle ASC ordering.
func (m *MySQLDialect) SortTerms(col string) []string {
	return []string{col + " IS NULL", col}
}

func (m *MySQLDialect) LongValueEquals(col, placeholder string) string {
	return col + " = " + placeholder
}

func (m *MySQLDialect) LimitOneDelete(table, where string) string {
	return "DELETE FROM " + table + " WHERE " + where + " LIMIT 1"
}

func (m *MySQLDialect) ClassifyType(typeName string) (TypeClass, error) {
	return classifyFromTable(mysqlTypes, typeName)
}

func (m *MySQLDialect) SetupSession(context.Context, *sql.Conn) error { return nil }

func (m *MySQLDialect) NormalizeValue(v interface{}) interface{} { return v }

func (m *MySQLDialect) BindValue(v interface{}, _ bool) interface{} { return v }
