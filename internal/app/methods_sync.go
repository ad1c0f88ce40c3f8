package app

import (
	"strings"

	"tablesync/internal/connection"
	"tablesync/internal/sync"
	"tablesync/internal/utils"
)

func (a *App) reporter() sync.Reporter {
	return sync.Reporter{
		OnLog: func(event sync.SyncLogEvent) {
			a.emitEvent(sync.EventSyncLog, event)
		},
		OnProgress: func(event sync.SyncProgressEvent) {
			a.emitEvent(sync.EventSyncProgress, event)
		},
		OnTable: func(event sync.SyncTableEvent) {
			a.emitEvent(sync.EventSyncTable, event)
		},
	}
}

// DataSync executes a data synchronization task
func (a *App) DataSync(config sync.SyncConfig) sync.SyncResult {
	jobID := strings.TrimSpace(config.JobID)
	if jobID == "" {
		jobID = utils.NewJobID("sync")
		config.JobID = jobID
	}

	a.emitEvent(sync.EventSyncStart, map[string]any{
		"jobId": jobID,
		"total": len(config.Tables),
	})

	engine := sync.NewSyncEngine(a.reporter()).WithPools(a.getPool)
	res := engine.RunSync(a.context(), config)

	a.emitEvent(sync.EventSyncDone, map[string]any{
		"jobId":  jobID,
		"result": res,
	})

	return res
}

// DataSyncAnalyze compares row counts and column contracts of the given tables without writing.
func (a *App) DataSyncAnalyze(config sync.SyncConfig) connection.QueryResult {
	jobID := strings.TrimSpace(config.JobID)
	if jobID == "" {
		jobID = utils.NewJobID("analyze")
		config.JobID = jobID
	}

	a.emitEvent(sync.EventSyncStart, map[string]any{
		"jobId": jobID,
		"total": len(config.Tables),
		"type":  "analyze",
	})

	engine := sync.NewSyncEngine(a.reporter()).WithPools(a.getPool)
	res := engine.Analyze(a.context(), config)

	a.emitEvent(sync.EventSyncDone, map[string]any{
		"jobId":  jobID,
		"result": res,
		"type":   "analyze",
	})

	if !res.Success {
		return connection.QueryResult{Success: false, Message: res.Message, Data: res}
	}
	return connection.QueryResult{Success: true, Message: res.Message, Data: res}
}
