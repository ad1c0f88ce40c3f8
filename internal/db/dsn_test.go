package db

import (
	"strings"
	"testing"

	"tablesync/internal/connection"

	"github.com/go-sql-driver/mysql"
)

func TestPostgresDSN_EscapesPassword(t *testing.T) {
	p := &PostgresDialect{}
	cfg := connection.ConnectionConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "user",
		Password: "p@ss:wo/rd",
		Database: "db",
	}

	dsn := p.getDSN(cfg)
	if strings.Contains(dsn, cfg.Password) {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
	if !strings.Contains(dsn, "p%40ss%3Awo%2Frd") {
		t.Fatalf("dsn 未正确转义密码：%s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn 缺少 sslmode 参数：%s", dsn)
	}
	if !strings.Contains(dsn, "connect_timeout=30") {
		t.Fatalf("dsn 缺少默认连接超时：%s", dsn)
	}
}

func TestOracleDSN_EscapesUserAndPassword(t *testing.T) {
	o := &OracleDialect{}
	cfg := connection.ConnectionConfig{
		Type:     "oracle",
		Host:     "127.0.0.1",
		Port:     1521,
		User:     "u@ser",
		Password: "p@ss:wo/rd",
		Database: "ORCLPDB1",
	}

	dsn := o.getDSN(cfg)
	if strings.Contains(dsn, cfg.Password) {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
	if !strings.Contains(dsn, "u%40ser") {
		t.Fatalf("dsn 未正确转义 user：%s", dsn)
	}
	if !strings.Contains(dsn, "ORCLPDB1") {
		t.Fatalf("dsn 缺少 service：%s", dsn)
	}
}

func TestMySQLDSN_RoundTripsPassword(t *testing.T) {
	m := &MySQLDialect{}
	cfg := connection.ConnectionConfig{
		Type:     "mysql",
		Host:     "db.local",
		Port:     3306,
		User:     "root",
		Password: "p@ss:wo/rd",
		Database: "shop",
		Timeout:  7,
	}

	parsed, err := mysql.ParseDSN(m.getDSN(cfg, "tcp"))
	if err != nil {
		t.Fatalf("解析 dsn 失败：%v", err)
	}
	if parsed.Passwd != cfg.Password {
		t.Fatalf("密码未能原样解析：%q", parsed.Passwd)
	}
	if parsed.Addr != "db.local:3306" || parsed.DBName != "shop" {
		t.Fatalf("地址或库名不符合预期：%s / %s", parsed.Addr, parsed.DBName)
	}
	if !parsed.ParseTime {
		t.Fatalf("dsn 应开启 parseTime")
	}
	if parsed.Timeout.Seconds() != 7 {
		t.Fatalf("超时期望 7s，实际=%v", parsed.Timeout)
	}
}

func TestSqlServerDSN_DefaultsDatabase(t *testing.T) {
	s := &SqlServerDialect{}
	dsn := s.getDSN(connection.ConnectionConfig{Host: "127.0.0.1", Port: 1433, User: "sa", Password: "p@ss"})
	if !strings.Contains(dsn, "database=master") {
		t.Fatalf("dsn 未设置默认库：%s", dsn)
	}
	if strings.Contains(dsn, "p@ss") {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
}

func TestSQLiteDSN_EnablesWAL(t *testing.T) {
	s := &SQLiteDialect{}
	dsn := s.getDSN(connection.ConnectionConfig{Host: "/tmp/a.db"})
	if !strings.HasPrefix(dsn, "/tmp/a.db?") || !strings.Contains(dsn, "journal_mode(WAL)") {
		t.Fatalf("sqlite dsn 不符合预期：%s", dsn)
	}

	dsn = s.getDSN(connection.ConnectionConfig{Host: "file:a.db?cache=shared"})
	if !strings.Contains(dsn, "cache=shared&_pragma=") {
		t.Fatalf("已有参数时应使用 & 连接：%s", dsn)
	}
}

func TestExplicitDSNWins(t *testing.T) {
	cfg := connection.ConnectionConfig{DSN: "postgres://x@y/z", Host: "ignored"}
	if got := (&PostgresDialect{}).getDSN(cfg); got != cfg.DSN {
		t.Fatalf("显式 DSN 应原样使用，实际=%s", got)
	}
}

func TestConnectTimeoutSeconds(t *testing.T) {
	cases := map[int]int{0: 30, -5: 30, 10: 10, 3600: 300}
	for in, want := range cases {
		if got := connectTimeoutSeconds(connection.ConnectionConfig{Timeout: in}); got != want {
			t.Fatalf("超时 %d 秒期望 %d，实际=%d", in, want, got)
		}
	}
}
