package sync

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"tablesync/internal/connection"
	"tablesync/internal/db"
)

// countingConn records what reaches the connection layer and can inject
// failures into it.
type countingConn struct {
	*db.Session
	commits     int
	rollbacks   int
	execs       int
	autoCommits []bool

	dialect     db.Dialect // overrides the session dialect when set
	failPrepare string     // Prepare fails for statements containing it
	commitErr   error      // returned by Commit instead of committing
}

func (c *countingConn) Dialect() db.Dialect {
	if c.dialect != nil {
		return c.dialect
	}
	return c.Session.Dialect()
}

func (c *countingConn) Prepare(ctx context.Context, query string) (*db.Stmt, error) {
	if c.failPrepare != "" && strings.Contains(query, c.failPrepare) {
		return nil, errors.New("statement rejected: " + query)
	}
	return c.Session.Prepare(ctx, query)
}

func (c *countingConn) Exec(ctx context.Context, st *db.Stmt, args ...interface{}) (int64, error) {
	c.execs++
	return c.Session.Exec(ctx, st, args...)
}

func (c *countingConn) Commit() error {
	c.commits++
	if c.commitErr != nil {
		return c.commitErr
	}
	return c.Session.Commit()
}

func (c *countingConn) Rollback() error {
	c.rollbacks++
	return c.Session.Rollback()
}

func (c *countingConn) SetAutoCommit(on bool) error {
	c.autoCommits = append(c.autoCommits, on)
	return c.Session.SetAutoCommit(on)
}

func openSQLite(t *testing.T, name string, stmts ...string) *db.Pool {
	t.Helper()
	p, err := db.Open(connection.ConnectionConfig{Type: "sqlite", Host: filepath.Join(t.TempDir(), name)})
	if err != nil {
		t.Fatalf("打开 sqlite 失败：%v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	for _, s := range stmts {
		if _, err := p.DB().Exec(s); err != nil {
			t.Fatalf("执行初始化语句失败：%s：%v", s, err)
		}
	}
	return p
}

func newConn(t *testing.T, p *db.Pool) *countingConn {
	t.Helper()
	s, err := p.Session(context.Background())
	if err != nil {
		t.Fatalf("创建会话失败：%v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &countingConn{Session: s}
}

func newInitializedClient(t *testing.T, cfg connection.EndpointConfig, read, write Conn) *Client {
	t.Helper()
	c := NewClient(cfg, read, write)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("初始化客户端失败：%v", err)
	}
	return c
}

func countRows(t *testing.T, p *db.Pool, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := p.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("统计失败：%s：%v", query, err)
	}
	return n
}

func fetchAll(t *testing.T, c *Client) [][]interface{} {
	t.Helper()
	var out [][]interface{}
	for {
		row, err := c.FetchRow(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out
			}
			t.Fatalf("读取数据行失败：%v", err)
		}
		out = append(out, row)
	}
}
