package sync

// Event names passed to an App emitter.
const (
	EventSyncStart    = "sync:start"
	EventSyncProgress = "sync:progress"
	EventSyncLog      = "sync:log"
	EventSyncTable    = "sync:table"
	EventSyncDone     = "sync:done"
)

type SyncLogEvent struct {
	JobID   string `json:"jobId"`
	Level   string `json:"level"` // info/warn/error
	Message string `json:"message"`
	Ts      int64  `json:"ts"` // Unix milli
}

// SyncProgressEvent is table-granular; Rows counts the rows the current
// stage of Table has handled so far.
type SyncProgressEvent struct {
	JobID   string `json:"jobId"`
	Percent int    `json:"percent"`
	Current int    `json:"current"` // 已完成表数
	Total   int    `json:"total"`   // 总表数
	Table   string `json:"table,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Rows    int    `json:"rows,omitempty"`
}

// SyncTableEvent is sent once per table, after it finished or failed.
type SyncTableEvent struct {
	JobID   string           `json:"jobId"`
	Summary TableSyncSummary `json:"summary"`
}

type Reporter struct {
	OnLog      func(event SyncLogEvent)
	OnProgress func(event SyncProgressEvent)
	OnTable    func(event SyncTableEvent)
}
