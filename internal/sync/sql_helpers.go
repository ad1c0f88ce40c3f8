package sync

import (
	"strings"

	"tablesync/internal/db"
)

const (
	ModeAnalyze       = "analyze"
	ModeInsertOnly    = "insert_only"
	ModeFullOverwrite = "full_overwrite"
)

func normalizeSyncMode(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	switch m {
	case "", "insert_only", "insert":
		return ModeInsertOnly
	case "full_overwrite", "overwrite":
		return ModeFullOverwrite
	case "analyze", "analyse":
		return ModeAnalyze
	default:
		return ModeInsertOnly
	}
}

func isKnownSyncMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "insert_only", "insert", "full_overwrite", "overwrite", "analyze", "analyse":
		return true
	}
	return false
}

// quoteQualifiedIdent quotes every dotted part of ident with the dialect's rules.
func quoteQualifiedIdent(d db.Dialect, ident string) string {
	raw := strings.TrimSpace(ident)
	if raw == "" {
		return raw
	}

	parts := strings.Split(raw, ".")
	if len(parts) <= 1 {
		return d.QuoteIdent(raw)
	}

	quotedParts := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quotedParts = append(quotedParts, d.QuoteIdent(part))
	}

	if len(quotedParts) == 0 {
		return d.QuoteIdent(raw)
	}
	return strings.Join(quotedParts, ".")
}

func normalizeSchemaAndTable(dbType string, dbName string, tableName string) (string, string) {
	rawTable := strings.TrimSpace(tableName)
	rawDB := strings.TrimSpace(dbName)
	if rawTable == "" {
		return rawDB, rawTable
	}

	if parts := strings.SplitN(rawTable, ".", 2); len(parts) == 2 {
		schema := strings.TrimSpace(parts[0])
		table := strings.TrimSpace(parts[1])
		if schema != "" && table != "" {
			return schema, table
		}
	}

	switch dbType {
	case "postgres":
		return "public", rawTable
	case "sqlserver":
		return "dbo", rawTable
	default:
		return rawDB, rawTable
	}
}

func qualifiedNameForQuery(dbType string, schema string, table string, original string) string {
	raw := strings.TrimSpace(original)
	if raw == "" {
		return raw
	}
	if strings.Contains(raw, ".") {
		return raw
	}

	switch dbType {
	case "postgres", "sqlserver", "mysql":
		s := strings.TrimSpace(schema)
		if s == "" || table == "" {
			return table
		}
		return s + "." + table
	default:
		// oracle: the session's schema; sqlite: the main database
		return table
	}
}

// tableReference renders the FROM target for table on an endpoint.
func tableReference(d db.Dialect, database string, table string) string {
	schema, name := normalizeSchemaAndTable(d.Name(), database, table)
	return quoteQualifiedIdent(d, qualifiedNameForQuery(d.Name(), schema, name, table))
}
