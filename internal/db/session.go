package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session is one pinned connection with explicit transaction control.
//
// Statements and cursors always run on the pinned connection. With auto-commit
// off the first write opens a transaction on that same connection, so writes
// join it while open cursors and prepared statements outlive every Commit.
type Session struct {
	pool       *Pool
	conn       *sql.Conn
	tx         *sql.Tx
	autoCommit bool
}

// Stmt is a statement prepared once on a session's pinned connection.
type Stmt struct {
	query string
	stmt  *sql.Stmt
}

func (s *Stmt) SQL() string { return s.query }

func (s *Stmt) Close() error {
	if s.stmt == nil {
		return nil
	}
	return s.stmt.Close()
}

var ErrSessionClosed = errors.New("会话已关闭")

func (s *Session) Dialect() Dialect { return s.pool.dialect }

func (s *Session) AutoCommit() bool { return s.autoCommit }

// InTx reports whether a transaction is currently open.
func (s *Session) InTx() bool { return s.tx != nil }

func (s *Session) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if s.conn == nil {
		return nil, ErrSessionClosed
	}
	return s.conn.QueryContext(ctx, query, args...)
}

func (s *Session) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if s.conn == nil {
		return nil, ErrSessionClosed
	}
	stmt, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{query: query, stmt: stmt}, nil
}

// Exec runs a prepared statement and returns the number of affected rows.
func (s *Session) Exec(ctx context.Context, st *Stmt, args ...interface{}) (int64, error) {
	if s.conn == nil {
		return 0, ErrSessionClosed
	}
	if !s.autoCommit {
		if err := s.begin(ctx); err != nil {
			return 0, err
		}
	}
	res, err := st.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecSQL runs an ad hoc statement in the current session state.
func (s *Session) ExecSQL(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if s.conn == nil {
		return 0, ErrSessionClosed
	}
	var (
		res sql.Result
		err error
	)
	if s.autoCommit {
		res, err = s.conn.ExecContext(ctx, query, args...)
	} else {
		if err := s.begin(ctx); err != nil {
			return 0, err
		}
		res, err = s.tx.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Session) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	// The transaction outlives the call that opened it.
	tx, err := s.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("开启事务失败：%w", err)
	}
	s.tx = tx
	return nil
}

// SetAutoCommit switches the session mode. Turning auto-commit back on
// rolls back any open transaction; it never commits implicitly.
func (s *Session) SetAutoCommit(on bool) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	if on && s.tx != nil {
		if err := s.Rollback(); err != nil {
			return err
		}
	}
	s.autoCommit = on
	return nil
}

func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Close rolls back any open transaction and returns the connection to the pool.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	rbErr := s.Rollback()
	err := s.conn.Close()
	s.conn = nil
	return errors.Join(rbErr, err)
}
