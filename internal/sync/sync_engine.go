package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tablesync/internal/connection"
	"tablesync/internal/db"
	"tablesync/internal/logger"
)

// SyncConfig defines the parameters for a synchronization task
type SyncConfig struct {
	SourceConfig connection.ConnectionConfig `json:"sourceConfig"`
	TargetConfig connection.ConnectionConfig `json:"targetConfig"`
	Tables       []string                    `json:"tables"` // Tables to sync
	Mode         string                      `json:"mode"`   // "analyze", "insert_only", "full_overwrite"
	JobID        string                      `json:"jobId,omitempty"`
	DryRun       bool                        `json:"dryRun,omitempty"`
	Force        bool                        `json:"force,omitempty"`
	Debug        bool                        `json:"debug,omitempty"`
	CommitEvery  int                         `json:"commitEvery,omitempty"`
	MaxInserts   int                         `json:"maxInserts,omitempty"`
	MaxDeletes   int                         `json:"maxDeletes,omitempty"`
	TableOptions map[string]TableOptions     `json:"tableOptions,omitempty"`
}

// SyncResult holds the result of the sync operation
type SyncResult struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	Logs         []string           `json:"logs"`
	TablesSynced int                `json:"tablesSynced"`
	TablesFailed int                `json:"tablesFailed"`
	RowsRead     int                `json:"rowsRead"`
	RowsInserted int                `json:"rowsInserted"`
	RowsDeleted  int                `json:"rowsDeleted"`
	Commits      int                `json:"commits"`
	Tables       []TableSyncSummary `json:"tables"`
}

// TableSyncSummary is the outcome of one table.
type TableSyncSummary struct {
	Table         string `json:"table"`
	TargetTable   string `json:"targetTable"`
	Mode          string `json:"mode"`
	RowsRead      int    `json:"rowsRead"`
	Inserted      int    `json:"inserted"`
	Deleted       int    `json:"deleted"`
	Commits       int    `json:"commits"`
	HitMaxInserts bool   `json:"hitMaxInserts,omitempty"`
	HitMaxDeletes bool   `json:"hitMaxDeletes,omitempty"`
	DurationMs    int64  `json:"durationMs"`
	Error         string `json:"error,omitempty"`
}

// PoolProvider hands out opened pools. The engine does not close pools it gets from one.
type PoolProvider func(config connection.ConnectionConfig) (*db.Pool, error)

const progressEvery = 1000

type SyncEngine struct {
	reporter Reporter
	pools    PoolProvider
}

func NewSyncEngine(reporter Reporter) *SyncEngine {
	return &SyncEngine{reporter: reporter}
}

// WithPools makes the engine take its pools from p instead of opening its own.
func (s *SyncEngine) WithPools(p PoolProvider) *SyncEngine {
	s.pools = p
	return s
}

// RunSync synchronizes every configured table, one at a time.
func (s *SyncEngine) RunSync(ctx context.Context, config SyncConfig) SyncResult {
	result := SyncResult{Success: true, Logs: []string{}, Tables: []TableSyncSummary{}}
	logger.Infof("开始数据同步：源=%s 目标=%s 表数量=%d", formatConnSummaryForSync(config.SourceConfig), formatConnSummaryForSync(config.TargetConfig), len(config.Tables))
	totalTables := len(config.Tables)
	s.progress(config.JobID, 0, totalTables, "", "开始同步")

	if !isKnownSyncMode(config.Mode) {
		s.appendLog(config.JobID, &result, "warn", fmt.Sprintf("未知同步模式 %q，已自动使用 %s", config.Mode, ModeInsertOnly))
	}
	defaultMode := normalizeSyncMode(config.Mode)
	s.appendLog(config.JobID, &result, "info", fmt.Sprintf("同步模式：%s；dry-run：%v；force：%v", defaultMode, config.DryRun, config.Force))

	s.appendLog(config.JobID, &result, "info", fmt.Sprintf("正在连接源数据库: %s...", config.SourceConfig.Host))
	s.progress(config.JobID, 0, totalTables, "", "连接源数据库")
	sourcePool, releaseSource, err := s.openPool(config.SourceConfig)
	if err != nil {
		logger.Error(err, "源数据库连接失败：%s", formatConnSummaryForSync(config.SourceConfig))
		return s.fail(config.JobID, totalTables, result, "源数据库连接失败: "+err.Error())
	}
	defer releaseSource()

	s.appendLog(config.JobID, &result, "info", fmt.Sprintf("正在连接目标数据库: %s...", config.TargetConfig.Host))
	s.progress(config.JobID, 0, totalTables, "", "连接目标数据库")
	targetPool, releaseTarget, err := s.openPool(config.TargetConfig)
	if err != nil {
		logger.Error(err, "目标数据库连接失败：%s", formatConnSummaryForSync(config.TargetConfig))
		return s.fail(config.JobID, totalTables, result, "目标数据库连接失败: "+err.Error())
	}
	defer releaseTarget()

	for i, tableName := range config.Tables {
		if err := ctx.Err(); err != nil {
			return s.fail(config.JobID, totalTables, result, "同步已取消: "+err.Error())
		}
		func() {
			tableMode := config.tableMode(tableName)
			s.appendLog(config.JobID, &result, "info", fmt.Sprintf("正在同步表: %s（模式=%s）", tableName, tableMode))
			s.progress(config.JobID, i, totalTables, tableName, fmt.Sprintf("同步表(%d/%d)", i+1, totalTables))
			defer s.progress(config.JobID, i+1, totalTables, tableName, "表处理完成")

			var (
				summary TableSyncSummary
				err     error
			)
			defer func() { s.tableDone(config.JobID, summary) }()
			if tableMode == ModeAnalyze {
				summary, err = s.analyzeIntoSummary(ctx, config, &result, sourcePool, targetPool, tableName)
			} else {
				summary, err = s.syncTable(ctx, config, tableMode, sourcePool, targetPool, tableName, i, totalTables)
			}

			result.RowsRead += summary.RowsRead
			result.RowsInserted += summary.Inserted
			result.RowsDeleted += summary.Deleted
			result.Commits += summary.Commits
			if err != nil {
				summary.Error = err.Error()
				result.TablesFailed++
				result.Tables = append(result.Tables, summary)
				logger.Error(err, "表同步失败：表=%s", tableName)
				s.appendLog(config.JobID, &result, "error", fmt.Sprintf("  -> 表 %s 同步失败: %v", tableName, err))
				return
			}
			result.TablesSynced++
			result.Tables = append(result.Tables, summary)
			if tableMode != ModeAnalyze {
				s.appendLog(config.JobID, &result, "info", fmt.Sprintf("  -> 读取 %d 行，插入 %d 行，删除 %d 行，提交 %d 次", summary.RowsRead, summary.Inserted, summary.Deleted, summary.Commits))
			}
		}()
	}

	if result.TablesFailed > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("%d 张表同步失败，%d 张表同步成功", result.TablesFailed, result.TablesSynced)
		s.progress(config.JobID, totalTables, totalTables, "", "同步完成（存在失败）")
		return result
	}
	result.Message = fmt.Sprintf("已完成 %d 张表的同步", result.TablesSynced)
	s.progress(config.JobID, totalTables, totalTables, "", "同步完成")
	return result
}

func (s *SyncEngine) analyzeIntoSummary(ctx context.Context, config SyncConfig, result *SyncResult, sourcePool, targetPool *db.Pool, tableName string) (TableSyncSummary, error) {
	diff := s.analyzeTable(ctx, config, sourcePool, targetPool, tableName)
	summary := TableSyncSummary{Table: tableName, TargetTable: diff.TargetTable, Mode: ModeAnalyze}
	if !diff.CanSync {
		return summary, errors.New(diff.Message)
	}
	s.appendLog(config.JobID, result, "info", fmt.Sprintf("  -> 源表 %d 行，目标表 %d 行，比较列：%s", diff.SourceRows, diff.TargetRows, strings.Join(diff.Columns, ",")))
	return summary, nil
}

// syncTable copies one table. On any failure the destination's uncommitted
// work is rolled back before its client is closed.
func (s *SyncEngine) syncTable(ctx context.Context, config SyncConfig, mode string, sourcePool, targetPool *db.Pool, tableName string, idx, total int) (summary TableSyncSummary, err error) {
	targetTable := targetTableName(config, tableName)
	summary = TableSyncSummary{Table: tableName, TargetTable: targetTable, Mode: mode}
	start := time.Now()
	defer func() { summary.DurationMs = time.Since(start).Milliseconds() }()

	srcCfg, dstCfg := config.endpointConfigs(tableName,
		tableReference(sourcePool.Dialect(), config.SourceConfig.Database, tableName),
		tableReference(targetPool.Dialect(), config.TargetConfig.Database, targetTable))

	srcSession, err := sourcePool.Session(ctx)
	if err != nil {
		return summary, fmt.Errorf("获取源端会话失败：%w", err)
	}
	defer srcSession.Close()
	dstWrite, err := targetPool.Session(ctx)
	if err != nil {
		return summary, fmt.Errorf("获取目标端会话失败：%w", err)
	}
	defer dstWrite.Close()

	// full_overwrite reads the destination while deleting from it, so the
	// cursor gets its own connection.
	var dstRead Conn = dstWrite
	if mode == ModeFullOverwrite {
		readSession, err := targetPool.Session(ctx)
		if err != nil {
			return summary, fmt.Errorf("获取目标端读取会话失败：%w", err)
		}
		defer readSession.Close()
		dstRead = readSession
	}

	source := NewClient(srcCfg, srcSession, nil)
	defer source.Close(ctx)
	destination := NewClient(dstCfg, dstRead, dstWrite)
	defer func() {
		if err != nil {
			if rbErr := destination.RollBack(ctx); rbErr != nil && !errors.Is(rbErr, ErrNotInitialized) {
				logger.Warnf("回滚目标表 %s 失败：%v", targetTable, rbErr)
			}
		}
		if closeErr := destination.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
		st := destination.State()
		summary.Commits = st.Commits
		summary.HitMaxInserts = st.HitMaxInserts
		summary.HitMaxDeletes = st.HitMaxDeletes
	}()

	s.progress(config.JobID, idx, total, tableName, "分析表结构")
	if err := source.Init(ctx); err != nil {
		return summary, err
	}
	if err := destination.Init(ctx); err != nil {
		return summary, err
	}
	if err := checkColumnContract(source, destination); err != nil {
		return summary, err
	}

	report := func(stage string) func(n int) {
		return func(n int) {
			s.progressRows(config.JobID, idx, total, tableName, stage, n)
		}
	}

	if mode == ModeFullOverwrite {
		s.appendLog(config.JobID, nil, "warn", fmt.Sprintf("  -> 全量覆盖模式：即将逐行删除目标表 %s 的数据", targetTable))
		s.progress(config.JobID, idx, total, tableName, "清空目标表")
		deleted, err := clearRows(ctx, destination, report("清空目标表"))
		summary.Deleted = int(deleted)
		if err != nil {
			return summary, err
		}
	}

	s.progress(config.JobID, idx, total, tableName, "写入目标表")
	read, err := copyRows(ctx, source, destination, report("写入目标表"))
	summary.RowsRead = read
	summary.Inserted = destination.Inserts()
	if err != nil {
		return summary, err
	}
	return summary, nil
}

func targetTableName(config SyncConfig, tableName string) string {
	if t := strings.TrimSpace(config.tableOptions(tableName).TargetTable); t != "" {
		return t
	}
	return tableName
}

// checkColumnContract requires both endpoints to expose the same output columns.
func checkColumnContract(source, destination *Client) error {
	srcNames, dstNames := source.ColumnNames(), destination.ColumnNames()
	if strings.Join(srcNames, ",") != strings.Join(dstNames, ",") {
		return fmt.Errorf("源表与目标表的比较列不一致：源=[%s] 目标=[%s]", strings.Join(srcNames, ","), strings.Join(dstNames, ","))
	}
	srcKinds, dstKinds := source.ColumnKinds(), destination.ColumnKinds()
	for i := range srcKinds {
		if srcKinds[i] != dstKinds[i] {
			logger.Warnf("列 %s 两端类型类别不同：源=%s 目标=%s", srcNames[i], srcKinds[i], dstKinds[i])
		}
	}
	return nil
}

// copyRows streams the source rows into the destination and returns how many were read.
func copyRows(ctx context.Context, source, destination *Client, report func(n int)) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		row, err := source.FetchRow(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		if err := destination.InsertRow(ctx, row...); err != nil {
			return n, err
		}
		if err := destination.CheckPending(ctx); err != nil {
			return n, err
		}
		if n%progressEvery == 0 {
			report(n)
		}
	}
}

// clearRows deletes every row the destination's own cursor returns.
func clearRows(ctx context.Context, destination *Client, report func(n int)) (int64, error) {
	var deleted int64
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		row, err := destination.FetchRow(ctx)
		if errors.Is(err, io.EOF) {
			return deleted, nil
		}
		if err != nil {
			return deleted, err
		}
		affected, err := destination.DeleteRow(ctx, row...)
		if err != nil {
			return deleted, err
		}
		deleted += affected
		if err := destination.CheckPending(ctx); err != nil {
			return deleted, err
		}
		n++
		if n%progressEvery == 0 {
			report(n)
		}
	}
}

func (s *SyncEngine) openPool(config connection.ConnectionConfig) (*db.Pool, func(), error) {
	if s.pools != nil {
		p, err := s.pools(config)
		return p, func() {}, err
	}
	p, err := db.Open(config)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warnf("关闭数据库连接失败：%v", err)
		}
	}, nil
}

func formatConnSummaryForSync(config connection.ConnectionConfig) string {
	timeoutSeconds := config.Timeout
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	dbName := strings.TrimSpace(config.Database)
	if dbName == "" {
		dbName = "(default)"
	}

	return fmt.Sprintf("类型=%s 地址=%s:%d 数据库=%s 用户=%s 超时=%ds",
		config.Type, config.Host, config.Port, dbName, config.User, timeoutSeconds)
}

func (s *SyncEngine) appendLog(jobID string, res *SyncResult, level string, msg string) {
	if res != nil {
		res.Logs = append(res.Logs, msg)
	}
	if s.reporter.OnLog != nil && strings.TrimSpace(jobID) != "" {
		s.reporter.OnLog(SyncLogEvent{
			JobID:   jobID,
			Level:   level,
			Message: msg,
			Ts:      time.Now().UnixMilli(),
		})
	}
}

func (s *SyncEngine) progress(jobID string, current, total int, table string, stage string) {
	s.progressRows(jobID, current, total, table, stage, 0)
}

func (s *SyncEngine) progressRows(jobID string, current, total int, table string, stage string, rows int) {
	if s.reporter.OnProgress == nil || strings.TrimSpace(jobID) == "" {
		return
	}
	percent := 0
	if total <= 0 {
		if current > 0 {
			percent = 100
		}
	} else {
		if current < 0 {
			current = 0
		}
		if current > total {
			current = total
		}
		percent = (current * 100) / total
	}
	s.reporter.OnProgress(SyncProgressEvent{
		JobID:   jobID,
		Percent: percent,
		Current: current,
		Total:   total,
		Table:   table,
		Stage:   stage,
		Rows:    rows,
	})
}

func (s *SyncEngine) tableDone(jobID string, summary TableSyncSummary) {
	if s.reporter.OnTable == nil || strings.TrimSpace(jobID) == "" {
		return
	}
	s.reporter.OnTable(SyncTableEvent{JobID: jobID, Summary: summary})
}

func (s *SyncEngine) fail(jobID string, totalTables int, res SyncResult, msg string) SyncResult {
	res.Success = false
	res.Message = msg
	s.appendLog(jobID, &res, "error", "致命错误: "+msg)
	s.progress(jobID, res.TablesSynced, totalTables, "", "同步失败")
	return res
}
