package sync

import (
	"context"
	"fmt"
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/db"
)

type QueryKind int

const (
	QuerySelect QueryKind = iota
	QueryInsert
	QueryDelete
	QueryUniqueDelete
)

func (k QueryKind) String() string {
	switch k {
	case QuerySelect:
		return "select"
	case QueryInsert:
		return "insert"
	case QueryDelete:
		return "delete"
	case QueryUniqueDelete:
		return "unique-delete"
	default:
		return "unknown"
	}
}

// Query is a rendered statement. Params lists, per bind position, the column
// whose value is bound there; delete statements list each column twice.
type Query struct {
	Kind   QueryKind
	SQL    string
	Params []string

	stmt *db.Stmt
	bind []int  // Params resolved to output row positions
	long []bool // per bind position
}

// args maps an output row onto the statement's bind positions.
func (q *Query) args(d db.Dialect, row []interface{}) []interface{} {
	out := make([]interface{}, len(q.bind))
	for i, idx := range q.bind {
		out[i] = d.BindValue(row[idx], q.long[i])
	}
	return out
}

func (q *Query) close() error {
	if q == nil || q.stmt == nil {
		return nil
	}
	err := q.stmt.Close()
	q.stmt = nil
	return err
}

type queries struct {
	selectSQL string
	countSQL  string
	insert    *Query
	delete    *Query
	unique    []*Query
}

func (qs *queries) all() []*Query {
	out := []*Query{{Kind: QuerySelect, SQL: qs.selectSQL}}
	if qs.insert != nil {
		out = append(out, qs.insert)
	}
	if qs.delete != nil {
		out = append(out, qs.delete)
	}
	return append(out, qs.unique...)
}

func (qs *queries) close() error {
	var first error
	for _, q := range append([]*Query{qs.insert, qs.delete}, qs.unique...) {
		if err := q.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func fromClause(cfg connection.EndpointConfig) string {
	s := " FROM " + cfg.Table
	if cfg.Alias != "" {
		s += " " + cfg.Alias
	}
	if where := strings.TrimSpace(cfg.Where); where != "" {
		s += " WHERE " + where
	}
	return s
}

func selectSQL(d db.Dialect, cfg connection.EndpointConfig, cs *ColumnSet) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if cfg.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(cs.SelectColumns, ", "))
	b.WriteString(fromClause(cfg))
	if len(cs.SortColumns) == 0 {
		return b.String()
	}

	orderBy := strings.Join(cs.SortColumns, ", ")
	if od, ok := d.(db.DistinctOrderer); ok && cfg.Distinct {
		return od.OrderDistinct(b.String(), orderBy)
	}
	return b.String() + " ORDER BY " + orderBy
}

func countSQL(cfg connection.EndpointConfig) string {
	return "SELECT COUNT(*)" + fromClause(cfg)
}

func insertQuery(d db.Dialect, cfg connection.EndpointConfig, cs *ColumnSet) *Query {
	q := &Query{Kind: QueryInsert}
	marks := make([]string, len(cs.Columns))
	for i, c := range cs.Columns {
		marks[i] = d.Placeholder(i + 1)
		q.Params = append(q.Params, c.Name)
		q.bind = append(q.bind, i)
		q.long = append(q.long, c.LongValue)
	}
	q.SQL = "INSERT INTO " + cfg.Table + " (" + strings.Join(cs.InsertColumns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return q
}

// nullSafeMatch renders the AND of "(col = p OR (p' IS NULL AND col IS NULL))"
// over cols and fills the bind lists of q.
func nullSafeMatch(d db.Dialect, cs *ColumnSet, cols []ColumnDescriptor, q *Query) string {
	clauses := make([]string, 0, len(cols))
	pos := 1
	for _, c := range cols {
		quoted := d.QuoteIdent(c.Name)
		eqMark, nullMark := d.Placeholder(pos), d.Placeholder(pos+1)
		pos += 2

		eq := quoted + " = " + eqMark
		if c.LongValue {
			eq = d.LongValueEquals(quoted, eqMark)
		}
		clauses = append(clauses, "("+eq+" OR ("+d.NullTest(nullMark, c.TypeName)+" AND "+quoted+" IS NULL))")

		idx := cs.index[c.Name]
		q.Params = append(q.Params, c.Name, c.Name)
		q.bind = append(q.bind, idx, idx)
		q.long = append(q.long, c.LongValue, c.LongValue)
	}
	return strings.Join(clauses, " AND ")
}

func deleteQuery(d db.Dialect, cfg connection.EndpointConfig, cs *ColumnSet, kind QueryKind, cols []ColumnDescriptor) *Query {
	q := &Query{Kind: kind}
	where := nullSafeMatch(d, cs, cols, q)
	if cfg.Distinct {
		q.SQL = d.LimitOneDelete(cfg.Table, where)
	} else {
		q.SQL = "DELETE FROM " + cfg.Table + " WHERE " + where
	}
	return q
}

// buildQueries renders every statement of the endpoint and, for a
// destination, prepares the write statements on the write connection.
func buildQueries(ctx context.Context, write Conn, cfg connection.EndpointConfig, cs *ColumnSet) (*queries, error) {
	d := write.Dialect()
	qs := &queries{selectSQL: selectSQL(d, cfg, cs), countSQL: countSQL(cfg)}
	if !cfg.IsDestination() {
		return qs, nil
	}

	qs.insert = insertQuery(d, cfg, cs)
	qs.delete = deleteQuery(d, cfg, cs, QueryDelete, cs.Columns)

	for _, uk := range cfg.UniqueKeys {
		key := cleanKey(uk)
		if len(key) == 0 {
			continue
		}
		cols := make([]ColumnDescriptor, 0, len(key))
		for _, name := range key {
			idx, ok := cs.IndexOf(name)
			if !ok {
				return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrInvalidKeyColumn, Err: fmt.Errorf("唯一键列 %s 不存在或已被排除", name)}
			}
			cols = append(cols, cs.Columns[idx])
		}
		qs.unique = append(qs.unique, deleteQuery(d, cfg, cs, QueryUniqueDelete, cols))
	}

	for _, q := range append([]*Query{qs.insert, qs.delete}, qs.unique...) {
		stmt, err := write.Prepare(ctx, q.SQL)
		if err != nil {
			_ = qs.close()
			return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrStatementPrepare, Err: fmt.Errorf("%s：%w", q.SQL, err)}
		}
		q.stmt = stmt
	}
	return qs, nil
}
