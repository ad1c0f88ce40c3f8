package connection

// SSHConfig holds SSH connection details
type SSHConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	KeyPath  string `json:"keyPath"`
}

// ConnectionConfig holds database connection details including SSH
type ConnectionConfig struct {
	Type     string    `json:"type"` // mysql, postgres, oracle, sqlite, sqlserver
	Host     string    `json:"host"` // sqlite: database file path
	Port     int       `json:"port"`
	User     string    `json:"user"`
	Password string    `json:"password"`
	Database string    `json:"database"`
	Driver   string    `json:"driver,omitempty"`  // postgres: "pq" (default) or "pgx"
	DSN      string    `json:"dsn,omitempty"`     // overrides the generated DSN when set
	Charset  string    `json:"charset,omitempty"` // postgres: charset used to repair non UTF-8 text
	Timeout  int       `json:"timeout,omitempty"` // connect timeout in seconds
	UseSSH   bool      `json:"useSSH"`
	SSH      SSHConfig `json:"ssh"`
}

// QueryResult is the standard response format for App methods
type QueryResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Role tells which side of a synchronization pair an endpoint is.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// DefaultCommitEvery is the number of pending destructive operations a
// destination accumulates before CheckPending commits.
const DefaultCommitEvery = 500

// EndpointConfig describes one side of a table synchronization.
// 注意：MaxInserts/MaxDeletes <= 0 表示不限制。
type EndpointConfig struct {
	Table      string            `json:"table"`
	Alias      string            `json:"alias,omitempty"`
	Where      string            `json:"where,omitempty"`
	WhereArgs  []interface{}     `json:"whereArgs,omitempty"`
	Role       Role              `json:"role"`
	Exclude    []string          `json:"exclude,omitempty"`
	Mask       map[string]string `json:"mask,omitempty"`
	UniqueKeys [][]string        `json:"uniqueKeys,omitempty"`
	SortKey    []string          `json:"sortKey,omitempty"`
	Distinct   bool              `json:"distinct,omitempty"`

	MaxInserts  int  `json:"maxInserts,omitempty"`
	MaxDeletes  int  `json:"maxDeletes,omitempty"`
	Force       bool `json:"force,omitempty"`
	DryRun      bool `json:"dryRun,omitempty"`
	Debug       bool `json:"debug,omitempty"`
	CommitEvery int  `json:"commitEvery,omitempty"`
}

// IsDestination reports whether the endpoint receives writes.
func (c EndpointConfig) IsDestination() bool {
	return c.Role == RoleDestination
}
