package sync

import (
	"context"
	"fmt"
	"strings"

	"tablesync/internal/db"
	"tablesync/internal/logger"
)

type TableDiffSummary struct {
	Table       string   `json:"table"`
	TargetTable string   `json:"targetTable"`
	CanSync     bool     `json:"canSync"`
	SourceRows  int64    `json:"sourceRows"`
	TargetRows  int64    `json:"targetRows"`
	Columns     []string `json:"columns,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
	Excluded    []string `json:"excluded,omitempty"`
	SelectSQL   string   `json:"selectSql,omitempty"`
	Message     string   `json:"message,omitempty"`
}

type SyncAnalyzeResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Tables  []TableDiffSummary `json:"tables"`
}

// Analyze probes both endpoints of every table without writing anything:
// row counts on each side and whether their output columns agree.
func (s *SyncEngine) Analyze(ctx context.Context, config SyncConfig) SyncAnalyzeResult {
	result := SyncAnalyzeResult{Success: true, Tables: []TableDiffSummary{}}

	totalTables := len(config.Tables)
	s.progress(config.JobID, 0, totalTables, "", "差异分析开始")

	sourcePool, releaseSource, err := s.openPool(config.SourceConfig)
	if err != nil {
		logger.Error(err, "源数据库连接失败：%s", formatConnSummaryForSync(config.SourceConfig))
		return SyncAnalyzeResult{Success: false, Message: "源数据库连接失败: " + err.Error()}
	}
	defer releaseSource()

	targetPool, releaseTarget, err := s.openPool(config.TargetConfig)
	if err != nil {
		logger.Error(err, "目标数据库连接失败：%s", formatConnSummaryForSync(config.TargetConfig))
		return SyncAnalyzeResult{Success: false, Message: "目标数据库连接失败: " + err.Error()}
	}
	defer releaseTarget()

	failed := 0
	for i, tableName := range config.Tables {
		s.progress(config.JobID, i, totalTables, tableName, fmt.Sprintf("分析表(%d/%d)", i+1, totalTables))
		summary := s.analyzeTable(ctx, config, sourcePool, targetPool, tableName)
		if !summary.CanSync {
			failed++
		}
		result.Tables = append(result.Tables, summary)
	}

	s.progress(config.JobID, totalTables, totalTables, "", "差异分析完成")
	result.Message = fmt.Sprintf("已完成 %d 张表的差异分析", len(result.Tables))
	if failed > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("%s，其中 %d 张表无法同步", result.Message, failed)
	}
	return result
}

// analyzeTable initializes both endpoints as a dry run, so statement
// preparation is validated but no transaction is opened.
func (s *SyncEngine) analyzeTable(ctx context.Context, config SyncConfig, sourcePool, targetPool *db.Pool, tableName string) TableDiffSummary {
	targetTable := targetTableName(config, tableName)
	summary := TableDiffSummary{Table: tableName, TargetTable: targetTable}

	config.DryRun = true
	srcCfg, dstCfg := config.endpointConfigs(tableName,
		tableReference(sourcePool.Dialect(), config.SourceConfig.Database, tableName),
		tableReference(targetPool.Dialect(), config.TargetConfig.Database, targetTable))

	srcSession, err := sourcePool.Session(ctx)
	if err != nil {
		summary.Message = "获取源端会话失败: " + err.Error()
		return summary
	}
	defer srcSession.Close()
	dstSession, err := targetPool.Session(ctx)
	if err != nil {
		summary.Message = "获取目标端会话失败: " + err.Error()
		return summary
	}
	defer dstSession.Close()

	source := NewClient(srcCfg, srcSession, nil)
	defer source.Close(ctx)
	destination := NewClient(dstCfg, dstSession, dstSession)
	defer destination.Close(ctx)

	if err := source.Init(ctx); err != nil {
		summary.Message = "分析源表失败: " + err.Error()
		return summary
	}
	if err := destination.Init(ctx); err != nil {
		summary.Message = "分析目标表失败: " + err.Error()
		return summary
	}

	summary.Columns = source.ColumnNames()
	for _, k := range source.ColumnKinds() {
		summary.Kinds = append(summary.Kinds, k.String())
	}
	for _, col := range source.Schema().Columns() {
		if col.Excluded {
			summary.Excluded = append(summary.Excluded, col.Name)
		}
	}
	for _, q := range source.Queries() {
		if q.Kind == QuerySelect {
			summary.SelectSQL = q.SQL
		}
	}

	if err := checkColumnContract(source, destination); err != nil {
		summary.Message = err.Error()
		return summary
	}

	if summary.SourceRows, err = source.RowCount(ctx, ReadConn); err != nil {
		summary.Message = "统计源表行数失败: " + err.Error()
		return summary
	}
	if summary.TargetRows, err = destination.RowCount(ctx, WriteConn); err != nil {
		summary.Message = "统计目标表行数失败: " + err.Error()
		return summary
	}

	summary.CanSync = true
	if summary.SourceRows == summary.TargetRows {
		summary.Message = "行数一致"
	} else {
		summary.Message = fmt.Sprintf("行数不一致（差 %d 行）", summary.SourceRows-summary.TargetRows)
	}
	if len(summary.Excluded) > 0 {
		summary.Message += "；已排除列：" + strings.Join(summary.Excluded, ",")
	}
	return summary
}
