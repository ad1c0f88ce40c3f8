package sync

import (
	"context"
	"fmt"
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/db"
)

// ColumnDescriptor is the classification of one table column.
type ColumnDescriptor struct {
	Name      string // lower-cased
	TypeName  string // engine type name as reported by the driver
	Kind      db.Kind
	Excluded  bool
	Masked    bool
	MaskValue string
	LongValue bool
}

// Schema is the ordered list of probed columns plus a name index.
type Schema struct {
	columns []ColumnDescriptor
	index   map[string]int
}

func newSchema(cols []ColumnDescriptor) (*Schema, error) {
	s := &Schema{columns: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("列名重复：%s", c.Name)
		}
		s.index[c.Name] = i
	}
	return s, nil
}

func (s *Schema) Len() int { return len(s.columns) }

func (s *Schema) Column(i int) ColumnDescriptor { return s.columns[i] }

func (s *Schema) Lookup(name string) (ColumnDescriptor, bool) {
	i, ok := s.index[strings.ToLower(name)]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return s.columns[i], true
}

// Columns returns a copy of the descriptors in schema order.
func (s *Schema) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(s.columns))
	copy(out, s.columns)
	return out
}

// probeSQL selects every column of the endpoint while matching no rows.
func probeSQL(cfg connection.EndpointConfig) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(cfg.Table)
	if cfg.Alias != "" {
		b.WriteString(" ")
		b.WriteString(cfg.Alias)
	}
	if where := strings.TrimSpace(cfg.Where); where != "" {
		b.WriteString(" WHERE (")
		b.WriteString(where)
		b.WriteString(") AND 1=0")
	} else {
		b.WriteString(" WHERE 1=0")
	}
	return b.String()
}

// analyzeColumns runs the zero-row probe on conn and classifies every column.
func analyzeColumns(ctx context.Context, conn Conn, cfg connection.EndpointConfig) (*Schema, error) {
	rows, err := conn.Query(ctx, probeSQL(cfg), cfg.WhereArgs...)
	if err != nil {
		return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrSchemaProbe, Err: err}
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrSchemaProbe, Err: err}
	}

	rules := newColumnRules(cfg)
	cols := make([]ColumnDescriptor, 0, len(types))
	for _, ct := range types {
		desc, err := rules.classify(conn.Dialect(), ct.Name(), ct.DatabaseTypeName())
		if err != nil {
			return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrUnsupportedColumnType, Err: err}
		}
		cols = append(cols, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrSchemaProbe, Err: err}
	}

	schema, err := newSchema(cols)
	if err != nil {
		return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrSchemaProbe, Err: err}
	}
	return schema, nil
}

type columnRules struct {
	excluded map[string]struct{}
	masks    map[string]string
}

func newColumnRules(cfg connection.EndpointConfig) columnRules {
	r := columnRules{
		excluded: make(map[string]struct{}, len(cfg.Exclude)),
		masks:    make(map[string]string, len(cfg.Mask)),
	}
	for _, name := range cfg.Exclude {
		r.excluded[normalizeColumnName(name)] = struct{}{}
	}
	for name, literal := range cfg.Mask {
		r.masks[normalizeColumnName(name)] = literal
	}
	return r
}

// classify applies, in order: exclusion, masking, then the dialect type table.
func (r columnRules) classify(d db.Dialect, name, typeName string) (ColumnDescriptor, error) {
	desc := ColumnDescriptor{Name: normalizeColumnName(name), TypeName: typeName}

	if _, ok := r.excluded[desc.Name]; ok {
		desc.Excluded = true
		return desc, nil
	}
	if literal, ok := r.masks[desc.Name]; ok {
		desc.Kind = db.KindString
		desc.Masked = true
		desc.MaskValue = literal
		return desc, nil
	}

	tc, err := d.ClassifyType(typeName)
	if err != nil {
		return desc, fmt.Errorf("列 %s：%w", desc.Name, err)
	}
	desc.Kind = tc.Kind
	desc.LongValue = tc.LongValue
	desc.Excluded = tc.Excluded
	return desc, nil
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
