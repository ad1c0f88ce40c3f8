package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"tablesync/internal/connection"
	"tablesync/internal/utils"
)

// Pool is an opened endpoint database: the *sql.DB, its dialect and any
// SSH tunnels that must be closed together with it.
type Pool struct {
	conn        *sql.DB
	dialect     Dialect
	closers     []io.Closer
	pingTimeout time.Duration
}

// Open builds the dialect for config, opens the database and verifies it with a ping.
func Open(config connection.ConnectionConfig) (*Pool, error) {
	dialect, err := NewDialect(config)
	if err != nil {
		return nil, err
	}
	o, ok := dialect.(opener)
	if !ok {
		return nil, fmt.Errorf("数据库类型 %s 不支持建立连接", dialect.Name())
	}
	conn, closers, err := o.open(config)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("打开数据库连接失败：%w", err)
	}
	p := &Pool{conn: conn, dialect: dialect, closers: closers, pingTimeout: connectTimeout(config)}

	// Force verification
	if err := p.Ping(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("连接建立后验证失败：%w", err)
	}
	return p, nil
}

// NewPool wraps an already opened *sql.DB.
func NewPool(dialect Dialect, conn *sql.DB) *Pool {
	return &Pool{conn: conn, dialect: dialect}
}

func (p *Pool) Dialect() Dialect { return p.dialect }

func (p *Pool) DB() *sql.DB { return p.conn }

func (p *Pool) Ping() error {
	if p.conn == nil {
		return fmt.Errorf("connection not open")
	}
	timeout := p.pingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := utils.ContextWithTimeout(timeout)
	defer cancel()
	return p.conn.PingContext(ctx)
}

// Session pins one connection of the pool and applies the dialect session settings.
func (p *Pool) Session(ctx context.Context) (*Session, error) {
	if p.conn == nil {
		return nil, fmt.Errorf("connection not open")
	}
	conn, err := p.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败：%w", err)
	}
	if err := p.dialect.SetupSession(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("初始化会话失败：%w", err)
	}
	return &Session{pool: p, conn: conn, autoCommit: true}, nil
}

func (p *Pool) Close() error {
	var errs []error
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	errs = append(errs, closeAll(p.closers))
	p.closers = nil
	return errors.Join(errs...)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
