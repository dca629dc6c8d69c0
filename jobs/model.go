package jobs

import (
	"time"

	"github.com/trackport/trackport/model"
)

type Status struct {
	rank       int
	isTerminal bool
	Name       string
}

// Status definitions, in progression order. A running job advances through
// these one at a time; Error and Cancelled are reachable from any non-terminal
// status.
var (
	Created      = Status{rank: 0, Name: "CREATED"}
	Queued       = Status{rank: 1, Name: "QUEUED"}
	Initiated    = Status{rank: 2, Name: "INITIATED"}
	Pulling      = Status{rank: 3, Name: "PULLING"}
	Pulled       = Status{rank: 4, Name: "PULLED"}
	Progressing  = Status{rank: 5, Name: "PROGRESSING"}
	Transforming = Status{rank: 6, Name: "TRANSFORMING"}
	Transformed  = Status{rank: 7, Name: "TRANSFORMED"}
	Pushing      = Status{rank: 8, Name: "PUSHING"}
	Finished     = Status{rank: 9, isTerminal: true, Name: "FINISHED"}

	Errored   = Status{rank: -1, isTerminal: true, Name: "ERROR"}
	Cancelled = Status{rank: -1, isTerminal: true, Name: "CANCELLED"}
)

var statuses = []Status{
	Created, Queued, Initiated, Pulling, Pulled,
	Progressing, Transforming, Transformed, Pushing, Finished,
	Errored, Cancelled,
}

func StatusFromName(name string) (Status, bool) {
	for _, s := range statuses {
		if s.Name == name {
			return s, true
		}
	}
	return Status{}, false
}

func (s Status) Terminal() bool { return s.isTerminal }

// CanTransitionTo enforces strict forward progression: the only legal moves
// are to the immediately next status, or from any non-terminal status into
// Error/Cancelled. A finished or failed job never rewinds; a failed sync gets
// a fresh job instead.
func (s Status) CanTransitionTo(next Status) bool {
	if s.isTerminal {
		return false
	}
	if next == Errored || next == Cancelled {
		return true
	}
	return next.rank == s.rank+1
}

// ImportJob is one sync run for one workspace connection. Mutated only by the
// importer, retained after completion for audit.
type ImportJob struct {
	ID           string              `gorm:"primaryKey" json:"id"`
	WorkspaceID  string              `gorm:"index:idx_jobs_connection" json:"workspace_id"`
	ConnectionID string              `gorm:"index:idx_jobs_connection" json:"connection_id"`
	Connector    model.ConnectorKind `json:"connector_kind"`
	StatusName   string              `gorm:"column:status" json:"status"`

	Config []byte `gorm:"type:blob" json:"-"`
	Report []byte `gorm:"type:blob" json:"-"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (ImportJob) TableName() string { return "import_jobs" }

func (j *ImportJob) Status() Status {
	s, _ := StatusFromName(j.StatusName)
	return s
}
