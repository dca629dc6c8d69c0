package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rudderlabs/rudder-go-kit/jsonrs"

	"github.com/trackport/trackport/model"
)

var ErrNotFound = errors.New("import job not found")

// ErrIllegalTransition is returned when a status update would rewind or skip
// a stage.
type ErrIllegalTransition struct {
	From, To string
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal job status transition %s -> %s", e.From, e.To)
}

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

type Opt func(*Repo)

func WithNow(now func() time.Time) Opt {
	return func(r *Repo) {
		r.now = now
	}
}

func NewRepo(db *gorm.DB, opts ...Opt) *Repo {
	r := &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&ImportJob{})
}

// Create inserts a new job in CREATED status for the given connection config.
func (r *Repo) Create(ctx context.Context, cfg *model.ConnectionConfig) (*ImportJob, error) {
	rawCfg, err := jsonrs.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshalling connection config: %w", err)
	}
	rawReport, err := jsonrs.Marshal(NewReport())
	if err != nil {
		return nil, fmt.Errorf("marshalling empty report: %w", err)
	}

	job := &ImportJob{
		ID:           uuid.New().String(),
		WorkspaceID:  cfg.WorkspaceID,
		ConnectionID: cfg.ConnectionID,
		Connector:    cfg.Connector,
		StatusName:   Created.Name,
		Config:       rawCfg,
		Report:       rawReport,
		CreatedAt:    r.now(),
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("inserting import job: %w", err)
	}
	return job, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*ImportJob, error) {
	var job ImportJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching import job: %w", err)
	}
	return &job, nil
}

// ConnectionConfig deserializes the config the job was created with.
func (r *Repo) ConnectionConfig(job *ImportJob) (*model.ConnectionConfig, error) {
	var cfg model.ConnectionConfig
	if err := jsonrs.Unmarshal(job.Config, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling connection config: %w", err)
	}
	return &cfg, nil
}

// Advance moves the job to the next status, enforcing forward-only
// progression inside a transaction.
func (r *Repo) Advance(ctx context.Context, jobID string, next Status) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job ImportJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		cur := job.Status()
		if !cur.CanTransitionTo(next) {
			return &ErrIllegalTransition{From: cur.Name, To: next.Name}
		}

		updates := map[string]any{"status": next.Name}
		if next == Initiated {
			updates["started_at"] = r.now()
		}
		if next.Terminal() {
			updates["finished_at"] = r.now()
		}
		return tx.Model(&ImportJob{}).Where("id = ?", jobID).Updates(updates).Error
	})
}

// SaveReport persists a report snapshot for a still-running job. Reports of
// jobs already in a terminal status are immutable.
func (r *Repo) SaveReport(ctx context.Context, jobID string, report Report) error {
	raw, err := jsonrs.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job ImportJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if job.Status().Terminal() {
			return fmt.Errorf("report of job %s is frozen in status %s", jobID, job.StatusName)
		}
		return tx.Model(&ImportJob{}).Where("id = ?", jobID).Update("report", raw).Error
	})
}

// Terminalize moves the job into a terminal status, records the final report
// and, for ERROR, the failure taxonomy. The report accumulated so far is
// always preserved.
func (r *Repo) Terminalize(ctx context.Context, jobID string, status Status, report Report, cause *model.ImportError) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status.Name)
	}
	raw, err := jsonrs.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job ImportJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		cur := job.Status()
		if !cur.CanTransitionTo(status) {
			return &ErrIllegalTransition{From: cur.Name, To: status.Name}
		}

		updates := map[string]any{
			"status":      status.Name,
			"report":      raw,
			"finished_at": r.now(),
		}
		if cause != nil {
			updates["error_kind"] = string(cause.Kind)
			updates["error_message"] = cause.Error()
		}
		return tx.Model(&ImportJob{}).Where("id = ?", jobID).Updates(updates).Error
	})
}

// LoadReport deserializes the job's report.
func (r *Repo) LoadReport(job *ImportJob) (Report, error) {
	var report Report
	if len(job.Report) == 0 {
		return Report{Counts: map[model.EntityType]*EntityCounts{}}, nil
	}
	if err := jsonrs.Unmarshal(job.Report, &report); err != nil {
		return Report{}, fmt.Errorf("unmarshalling report: %w", err)
	}
	if report.Counts == nil {
		report.Counts = map[model.EntityType]*EntityCounts{}
	}
	return report, nil
}

// HasActive reports whether a non-terminal job exists for the connection.
func (r *Repo) HasActive(ctx context.Context, workspaceID, connectionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ImportJob{}).
		Where("workspace_id = ? AND connection_id = ?", workspaceID, connectionID).
		Where("status NOT IN ?", []string{Finished.Name, Errored.Name, Cancelled.Name}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting active jobs: %w", err)
	}
	return count > 0, nil
}
