package jobs

import (
	"sync"
	"time"

	"github.com/trackport/trackport/model"
)

type EntityCounts struct {
	Pulled      int `json:"pulled"`
	Transformed int `json:"transformed"`
	Pushed      int `json:"pushed"`
	Failed      int `json:"failed"`
}

type RecordError struct {
	EntityType model.EntityType `json:"entity_type"`
	ExternalID string           `json:"external_id,omitempty"`
	Kind       model.ErrorKind  `json:"kind"`
	Message    string           `json:"message"`
	Stage      string           `json:"stage"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Report aggregates per-entity-type counters and record-level errors for one
// job. The snapshot persisted at a terminal status never changes afterwards.
//
// A job that could not run at all is distinguishable from a job with failed
// records: the former carries the error on the job row and zero counters here.
type Report struct {
	Counts map[model.EntityType]*EntityCounts `json:"counts"`
	Errors []RecordError                      `json:"errors"`
}

func NewReport() Report {
	return Report{Counts: make(map[model.EntityType]*EntityCounts)}
}

// Recorder accumulates a Report while a job runs. The importer is the sole
// writer; concurrent push workers may record through it safely.
type Recorder struct {
	mu     sync.Mutex
	report Report
	now    func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{report: NewReport(), now: func() time.Time { return time.Now().UTC() }}
}

func (r *Recorder) countsFor(et model.EntityType) *EntityCounts {
	c, ok := r.report.Counts[et]
	if !ok {
		c = &EntityCounts{}
		r.report.Counts[et] = c
	}
	return c
}

func (r *Recorder) AddPulled(et model.EntityType, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countsFor(et).Pulled += n
}

func (r *Recorder) AddTransformed(et model.EntityType, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countsFor(et).Transformed += n
}

func (r *Recorder) AddPushed(et model.EntityType, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countsFor(et).Pushed += n
}

// RecordFailure logs one record-level failure. The job keeps going; a failed
// record only ever increments its own entity type's failed counter.
func (r *Recorder) RecordFailure(stage string, ie *model.ImportError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countsFor(ie.EntityType).Failed++
	r.report.Errors = append(r.report.Errors, RecordError{
		EntityType: ie.EntityType,
		ExternalID: ie.ExternalID,
		Kind:       ie.Kind,
		Message:    ie.Error(),
		Stage:      stage,
		OccurredAt: r.now(),
	})
}

// Snapshot returns a copy safe to serialize while recording continues.
func (r *Recorder) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Report{Counts: make(map[model.EntityType]*EntityCounts, len(r.report.Counts))}
	for et, c := range r.report.Counts {
		cc := *c
		out.Counts[et] = &cc
	}
	out.Errors = append(out.Errors, r.report.Errors...)
	return out
}
