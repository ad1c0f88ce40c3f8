package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/db"
	"tablesync/internal/logger"
)

// Conn is the connection a Client reads from or writes to. *db.Session implements it.
type Conn interface {
	Dialect() db.Dialect
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Prepare(ctx context.Context, query string) (*db.Stmt, error)
	Exec(ctx context.Context, st *db.Stmt, args ...interface{}) (int64, error)
	SetAutoCommit(on bool) error
	Commit() error
	Rollback() error
}

// Selector picks the connection RowCount runs on.
type Selector int

const (
	ReadConn Selector = iota
	WriteConn
)

// Client is one endpoint of a table synchronization. It is not safe for
// concurrent use; Init must be called first and Close exactly once.
type Client struct {
	cfg         connection.EndpointConfig
	read, write Conn
	commitEvery int

	schema  *Schema
	cols    *ColumnSet
	queries *queries

	rows     *sql.Rows
	rowsDone bool

	state   TransactionState
	lastErr error

	initialized   bool
	closed        bool
	autoCommitOff bool // Init switched auto-commit off
}

// NewClient copies cfg; write may be nil for a source endpoint or equal read
// when both roles share a connection.
func NewClient(cfg connection.EndpointConfig, read, write Conn) *Client {
	cfg.Exclude = append([]string(nil), cfg.Exclude...)
	cfg.SortKey = append([]string(nil), cfg.SortKey...)
	cfg.WhereArgs = append([]interface{}(nil), cfg.WhereArgs...)
	keys := make([][]string, len(cfg.UniqueKeys))
	for i, k := range cfg.UniqueKeys {
		keys[i] = append([]string(nil), k...)
	}
	cfg.UniqueKeys = keys
	masks := make(map[string]string, len(cfg.Mask))
	for k, v := range cfg.Mask {
		masks[k] = v
	}
	cfg.Mask = masks

	if write == nil {
		write = read
	}
	commitEvery := cfg.CommitEvery
	if commitEvery <= 0 {
		commitEvery = connection.DefaultCommitEvery
	}
	return &Client{cfg: cfg, read: read, write: write, commitEvery: commitEvery}
}

// Init probes the schema, builds the column lists and prepares the statements.
func (c *Client) Init(ctx context.Context) error {
	if c.closed {
		return c.fail("init", ErrClosed, nil)
	}
	if c.initialized {
		return nil
	}

	schema, err := analyzeColumns(ctx, c.read, c.cfg)
	if err != nil {
		return c.latch(err)
	}
	cols, err := buildColumnSet(c.read.Dialect(), schema, c.cfg)
	if err != nil {
		return c.latch(err)
	}
	if len(cols.Columns) == 0 {
		return c.fail("init", ErrSchemaProbe, errors.New("没有可比较的列"))
	}
	qs, err := buildQueries(ctx, c.write, c.cfg, cols)
	if err != nil {
		return c.latch(err)
	}

	if c.cfg.IsDestination() && !c.cfg.DryRun {
		if err := c.write.SetAutoCommit(false); err != nil {
			_ = qs.close()
			return c.fail("init", ErrWrite, err)
		}
		c.autoCommitOff = true
	}

	c.schema, c.cols, c.queries = schema, cols, qs
	c.initialized = true

	if c.cfg.Debug {
		for _, q := range qs.all() {
			logger.Debugf("表 %s %s 语句：%s", c.cfg.Table, q.Kind, q.SQL)
		}
	}
	return nil
}

// FetchRow returns the next row in sort order, or io.EOF after the last row.
func (c *Client) FetchRow(ctx context.Context) ([]interface{}, error) {
	if err := c.ready("fetch"); err != nil {
		return nil, err
	}
	if c.rowsDone {
		return nil, io.EOF
	}
	if c.rows == nil {
		rows, err := c.read.Query(ctx, c.queries.selectSQL, c.cfg.WhereArgs...)
		if err != nil {
			return nil, c.fail("fetch", ErrFetch, err)
		}
		c.rows = rows
	}

	if !c.rows.Next() {
		err := c.rows.Err()
		_ = c.rows.Close()
		c.rowsDone = true
		if err != nil {
			return nil, c.fail("fetch", ErrFetch, err)
		}
		return nil, io.EOF
	}
	row, err := db.ScanRow(c.rows, len(c.cols.Columns), c.read.Dialect())
	if err != nil {
		return nil, c.fail("fetch", ErrFetch, err)
	}
	return row, nil
}

// InsertRow inserts one row given in OutputColumnNames order.
func (c *Client) InsertRow(ctx context.Context, values ...interface{}) error {
	if err := c.writable("insert", values); err != nil {
		return err
	}
	if err := c.checkCeiling("insert"); err != nil {
		return err
	}
	if !c.cfg.DryRun {
		q := c.queries.insert
		if _, err := c.write.Exec(ctx, q.stmt, q.args(c.write.Dialect(), values)...); err != nil {
			return c.fail("insert", ErrWrite, err)
		}
	}
	c.state.Inserts++
	c.state.Pending++
	return nil
}

// DeleteRow deletes the rows equal to values on every retained column
// (at most one when Distinct is set) and returns the affected count.
func (c *Client) DeleteRow(ctx context.Context, values ...interface{}) (int64, error) {
	if err := c.writable("delete", values); err != nil {
		return 0, err
	}
	if err := c.checkCeiling("delete"); err != nil {
		return 0, err
	}
	affected := int64(1)
	if !c.cfg.DryRun {
		q := c.queries.delete
		n, err := c.write.Exec(ctx, q.stmt, q.args(c.write.Dialect(), values)...)
		if err != nil {
			return 0, c.fail("delete", ErrWrite, err)
		}
		affected = n
	}
	c.state.Deletes++
	c.state.Pending++
	return affected, nil
}

// DeleteByUniqueKeys runs every unique-key delete in configuration order and
// returns the summed affected count. Pending grows by one when any row went.
func (c *Client) DeleteByUniqueKeys(ctx context.Context, values ...interface{}) (int64, error) {
	if err := c.writable("delete-unique", values); err != nil {
		return 0, err
	}
	if len(c.queries.unique) == 0 {
		return 0, c.fail("delete-unique", ErrWrite, errors.New("未配置唯一键"))
	}
	if err := c.checkCeiling("delete-unique"); err != nil {
		return 0, err
	}

	var total int64
	if c.cfg.DryRun {
		total = 1
	} else {
		for _, q := range c.queries.unique {
			n, err := c.write.Exec(ctx, q.stmt, q.args(c.write.Dialect(), values)...)
			if err != nil {
				return total, c.fail("delete-unique", ErrWrite, err)
			}
			total += n
		}
	}
	if total > 0 {
		c.state.Deletes++
		c.state.Pending++
	}
	return total, nil
}

// RowCount counts the rows matching the endpoint predicate on the selected connection.
func (c *Client) RowCount(ctx context.Context, sel Selector) (int64, error) {
	if err := c.ready("count"); err != nil {
		return 0, err
	}
	conn := c.read
	if sel == WriteConn {
		conn = c.write
	}
	rows, err := conn.Query(ctx, c.queries.countSQL, c.cfg.WhereArgs...)
	if err != nil {
		return 0, c.fail("count", ErrFetch, err)
	}
	defer rows.Close()

	var n int64
	if !rows.Next() {
		err := rows.Err()
		if err == nil {
			err = errors.New("COUNT(*) 未返回结果")
		}
		return 0, c.fail("count", ErrFetch, err)
	}
	if err := rows.Scan(&n); err != nil {
		return 0, c.fail("count", ErrFetch, err)
	}
	return n, nil
}

// ColumnNames returns the comparison contract: lower-cased output column names.
func (c *Client) ColumnNames() []string {
	if c.cols == nil {
		return nil
	}
	return append([]string(nil), c.cols.OutputColumnNames...)
}

func (c *Client) ColumnKinds() []db.Kind {
	if c.cols == nil {
		return nil
	}
	kinds := make([]db.Kind, len(c.cols.Columns))
	for i, col := range c.cols.Columns {
		kinds[i] = col.Kind
	}
	return kinds
}

// Columns returns a copy of the column set built by Init.
func (c *Client) Columns() *ColumnSet {
	if c.cols == nil {
		return nil
	}
	cp := *c.cols
	return &cp
}

// Schema returns every probed column, excluded ones included.
func (c *Client) Schema() *Schema { return c.schema }

// Queries returns the rendered statements.
func (c *Client) Queries() []Query {
	if c.queries == nil {
		return nil
	}
	var out []Query
	for _, q := range c.queries.all() {
		out = append(out, Query{Kind: q.Kind, SQL: q.SQL, Params: append([]string(nil), q.Params...)})
	}
	return out
}

func (c *Client) Table() string { return c.cfg.Table }

func (c *Client) Inserts() int { return c.state.Inserts }

func (c *Client) Deletes() int { return c.state.Deletes }

func (c *Client) Commits() int { return c.state.Commits }

func (c *Client) Pending() int { return c.state.Pending }

func (c *Client) State() TransactionState { return c.state }

// LastErr is the most recent failure of any operation.
func (c *Client) LastErr() error { return c.lastErr }

func (c *Client) ready(op string) error {
	if c.closed {
		return c.fail(op, ErrClosed, nil)
	}
	if !c.initialized {
		return c.fail(op, ErrNotInitialized, nil)
	}
	return nil
}

func (c *Client) writable(op string, values []interface{}) error {
	if err := c.ready(op); err != nil {
		return err
	}
	if !c.cfg.IsDestination() {
		return c.fail(op, ErrWrite, errors.New("源端不接受写入"))
	}
	if len(values) != len(c.cols.Columns) {
		return c.fail(op, ErrWrite, fmt.Errorf("值个数 %d 与列数 %d 不一致（%s）", len(values), len(c.cols.Columns), strings.Join(c.cols.OutputColumnNames, ",")))
	}
	return nil
}

func (c *Client) fail(op string, kind, err error) error {
	return c.latch(&EndpointError{Op: op, Table: c.cfg.Table, Kind: kind, Err: err})
}

func (c *Client) latch(err error) error {
	c.lastErr = err
	return err
}
