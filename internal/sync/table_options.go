package sync

import "tablesync/internal/connection"

// TableOptions overrides the endpoint settings of one table.
// 注意：MaxInserts/MaxDeletes 为 0 时沿用任务级配置；TargetTable 为空时与源表同名。
type TableOptions struct {
	Mode        string            `json:"mode,omitempty"`
	TargetTable string            `json:"targetTable,omitempty"`
	Where       string            `json:"where,omitempty"`
	WhereArgs   []interface{}     `json:"whereArgs,omitempty"`
	Exclude     []string          `json:"exclude,omitempty"`
	Mask        map[string]string `json:"mask,omitempty"`
	UniqueKeys  [][]string        `json:"uniqueKeys,omitempty"`
	SortKey     []string          `json:"sortKey,omitempty"`
	Distinct    bool              `json:"distinct,omitempty"`
	MaxInserts  int               `json:"maxInserts,omitempty"`
	MaxDeletes  int               `json:"maxDeletes,omitempty"`
}

func (c SyncConfig) tableOptions(table string) TableOptions {
	if c.TableOptions == nil {
		return TableOptions{}
	}
	return c.TableOptions[table]
}

func (c SyncConfig) tableMode(table string) string {
	if m := c.tableOptions(table).Mode; m != "" {
		return normalizeSyncMode(m)
	}
	return normalizeSyncMode(c.Mode)
}

// endpointConfigs builds the source and destination settings of one table.
// Both sides share the filter and column rules so their output columns line up.
func (c SyncConfig) endpointConfigs(table, sourceRef, targetRef string) (connection.EndpointConfig, connection.EndpointConfig) {
	opts := c.tableOptions(table)
	maxInserts, maxDeletes := c.MaxInserts, c.MaxDeletes
	if opts.MaxInserts > 0 {
		maxInserts = opts.MaxInserts
	}
	if opts.MaxDeletes > 0 {
		maxDeletes = opts.MaxDeletes
	}

	src := connection.EndpointConfig{
		Table:       sourceRef,
		Where:       opts.Where,
		WhereArgs:   opts.WhereArgs,
		Role:        connection.RoleSource,
		Exclude:     opts.Exclude,
		Mask:        opts.Mask,
		UniqueKeys:  opts.UniqueKeys,
		SortKey:     opts.SortKey,
		Distinct:    opts.Distinct,
		Debug:       c.Debug,
		DryRun:      c.DryRun,
		CommitEvery: c.CommitEvery,
	}
	dst := src
	dst.Table = targetRef
	dst.Role = connection.RoleDestination
	dst.MaxInserts = maxInserts
	dst.MaxDeletes = maxDeletes
	dst.Force = c.Force
	return src, dst
}
