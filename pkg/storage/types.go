package storage

import "time"

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Counts mirrors a plan summary.
type Counts struct {
	GroupsCreated     int
	GroupsExisting    int
	ProductsCreated   int
	ProductsUpdated   int
	ProductsUnchanged int
	Conflicts         int
}

// Run is one import pass.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	ProjectID  string
	SourceFile string
	DryRun     bool
	Status     string // running | succeeded | failed
	Counts     Counts
	Executed   int
	Error      string
}

// OperationRecord is the audit row of one executed operation.
type OperationRecord struct {
	RunID      string
	Seq        int
	Kind       string // create-group | create-product | update-product
	Path       string
	Handle     int
	ParentID   string
	RemoteID   string
	Fields     string
	Error      string
	OccurredAt time.Time
}

// ProjectStats aggregates the runs against one project.
type ProjectStats struct {
	ProjectID       string
	Runs            int
	FailedRuns      int
	GroupsCreated   int
	ProductsCreated int
	ProductsUpdated int
	LastRunAt       time.Time
}
