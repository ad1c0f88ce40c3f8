package sync

import (
	"fmt"
	"sort"
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/db"
)

// ColumnSet holds the column lists shared by every statement of an endpoint.
//
// OutputColumnNames is the comparison contract: a source and a destination
// built against equivalent tables yield identical names in identical order.
type ColumnSet struct {
	Columns           []ColumnDescriptor
	SelectColumns     []string
	InsertColumns     []string
	OutputColumnNames []string
	SortColumns       []string
	// RankingKey is the key that ordered the columns; nil means default ordering.
	RankingKey []string

	index map[string]int
}

// IndexOf returns the position of a retained column in the output row.
func (cs *ColumnSet) IndexOf(name string) (int, bool) {
	i, ok := cs.index[normalizeColumnName(name)]
	return i, ok
}

func buildColumnSet(d db.Dialect, schema *Schema, cfg connection.EndpointConfig) (*ColumnSet, error) {
	retained := make([]ColumnDescriptor, 0, schema.Len())
	for _, c := range schema.columns {
		if !c.Excluded {
			retained = append(retained, c)
		}
	}
	isRetained := make(map[string]bool, len(retained))
	for _, c := range retained {
		isRetained[c.Name] = true
	}

	key, fromOverride := rankingKey(cfg)
	if !fromOverride {
		for _, name := range key {
			if !isRetained[normalizeColumnName(name)] {
				return nil, &EndpointError{Op: "init", Table: cfg.Table, Kind: ErrInvalidKeyColumn, Err: fmt.Errorf("唯一键列 %s 不存在或已被排除", name)}
			}
		}
	}

	cs := &ColumnSet{}
	if len(key) > 0 {
		cs.RankingKey = key
		rank := make(map[string]int, len(retained))
		for i, name := range key {
			name = normalizeColumnName(name)
			if _, seen := rank[name]; !seen && isRetained[name] {
				rank[name] = i
			}
		}
		next := len(key) + 1
		for _, c := range retained {
			if _, ok := rank[c.Name]; !ok {
				rank[c.Name] = next
				next++
			}
		}
		sort.SliceStable(retained, func(i, j int) bool {
			return rank[retained[i].Name] < rank[retained[j].Name]
		})
		for _, name := range key {
			if col := normalizeColumnName(name); isRetained[col] {
				cs.SortColumns = append(cs.SortColumns, d.SortTerms(d.QuoteIdent(col))...)
			} else {
				// an override entry that is not a column is an ORDER BY expression
				cs.SortColumns = append(cs.SortColumns, name)
			}
		}
	} else {
		// Both endpoints must produce the same order. A source selects the mask
		// literal for a masked column while the destination reads the stored
		// value, so only unmasked, non-long columns take part.
		for _, c := range retained {
			if !c.LongValue && !c.Masked {
				cs.SortColumns = append(cs.SortColumns, d.SortTerms(d.QuoteIdent(c.Name))...)
			}
		}
	}

	source := !cfg.IsDestination()
	cs.Columns = retained
	cs.index = make(map[string]int, len(retained))
	for i, c := range retained {
		quoted := d.QuoteIdent(c.Name)
		cs.index[c.Name] = i
		if c.Masked && source {
			cs.SelectColumns = append(cs.SelectColumns, db.QuoteLiteral(c.MaskValue)+" AS "+quoted)
		} else {
			cs.SelectColumns = append(cs.SelectColumns, quoted)
		}
		cs.InsertColumns = append(cs.InsertColumns, quoted)
		cs.OutputColumnNames = append(cs.OutputColumnNames, c.Name)
	}
	return cs, nil
}

// rankingKey returns the explicit sort-key override, else the first non-empty
// unique key. fromOverride reports which one was used.
func rankingKey(cfg connection.EndpointConfig) (key []string, fromOverride bool) {
	if k := cleanKey(cfg.SortKey); len(k) > 0 {
		return k, true
	}
	for _, uk := range cfg.UniqueKeys {
		if k := cleanKey(uk); len(k) > 0 {
			return k, false
		}
	}
	return nil, false
}

func cleanKey(names []string) []string {
	var out []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
