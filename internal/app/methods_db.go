package app

import (
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/sync"
)

// ColumnInfo describes one probed column of a table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Excluded bool   `json:"excluded,omitempty"`
	Masked   bool   `json:"masked,omitempty"`
	Long     bool   `json:"long,omitempty"`
}

// TableDescription is what DescribeTable reports for one endpoint.
type TableDescription struct {
	Table     string       `json:"table"`
	Columns   []ColumnInfo `json:"columns"`
	Compared  []string     `json:"compared"`
	OrderBy   []string     `json:"orderBy"`
	SelectSQL string       `json:"selectSql"`
	Rows      int64        `json:"rows"`
}

func (a *App) TestConnection(config connection.ConnectionConfig) connection.QueryResult {
	// getPool checks cache and Pings. If valid, reuses. If not, connects.
	_, err := a.getPool(config)
	if err != nil {
		return connection.QueryResult{Success: false, Message: err.Error()}
	}

	return connection.QueryResult{Success: true, Message: "连接成功"}
}

// DescribeTable probes a table the way a source endpoint would read it:
// column classification, sort order, the select statement and the row count.
func (a *App) DescribeTable(config connection.ConnectionConfig, endpoint connection.EndpointConfig) connection.QueryResult {
	if strings.TrimSpace(endpoint.Table) == "" {
		return connection.QueryResult{Success: false, Message: "表名不能为空"}
	}
	p, err := a.getPool(config)
	if err != nil {
		return connection.QueryResult{Success: false, Message: err.Error()}
	}

	ctx := a.context()
	session, err := p.Session(ctx)
	if err != nil {
		return connection.QueryResult{Success: false, Message: err.Error()}
	}
	defer session.Close()

	endpoint.Role = connection.RoleSource
	client := sync.NewClient(endpoint, session, nil)
	defer client.Close(ctx)
	if err := client.Init(ctx); err != nil {
		return connection.QueryResult{Success: false, Message: err.Error()}
	}
	rows, err := client.RowCount(ctx, sync.ReadConn)
	if err != nil {
		return connection.QueryResult{Success: false, Message: err.Error()}
	}

	desc := TableDescription{Table: endpoint.Table, Compared: client.ColumnNames(), Rows: rows}
	for _, c := range client.Schema().Columns() {
		desc.Columns = append(desc.Columns, ColumnInfo{
			Name:     c.Name,
			Type:     c.TypeName,
			Kind:     c.Kind.String(),
			Excluded: c.Excluded,
			Masked:   c.Masked,
			Long:     c.LongValue,
		})
	}
	if cs := client.Columns(); cs != nil {
		desc.OrderBy = cs.SortColumns
	}
	for _, q := range client.Queries() {
		if q.Kind == sync.QuerySelect {
			desc.SelectSQL = q.SQL
		}
	}
	return connection.QueryResult{Success: true, Data: desc}
}
