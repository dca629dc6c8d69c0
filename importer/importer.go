package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	kitsync "github.com/rudderlabs/rudder-go-kit/sync"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/jobs"
	"github.com/trackport/trackport/mapping"
	"github.com/trackport/trackport/model"
)

// ErrJobInFlight rejects a trigger while another job for the same connection
// has not reached a terminal status yet.
var ErrJobInFlight = errors.New("an import job is already in flight for this connection")

// TargetClient is the slice of the target REST client the importer pushes
// through.
type TargetClient interface {
	Upsert(ctx context.Context, et model.EntityType, parentID string, payload any) (string, error)
}

// TargetFactory builds the target client for one connection.
type TargetFactory func(conf *config.Config, log logger.Logger, cfg *model.ConnectionConfig) TargetClient

// Importer runs import jobs end to end: pull pages from the connector,
// transform to the canonical model, push to the target in dependency order,
// keeping job status and the import report current throughout. It is the sole
// writer of job state.
type Importer struct {
	conf         *config.Config
	log          logger.Logger
	stats        stats.Stats
	repo         *jobs.Repo
	store        *mapping.Store
	newConnector connectors.Factory
	newTarget    TargetFactory

	// connLock serializes jobs per (workspace, connection)
	connLock *kitsync.PartitionLocker

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(conf *config.Config, log logger.Logger, stat stats.Stats, repo *jobs.Repo, store *mapping.Store, newTarget TargetFactory) *Importer {
	return &Importer{
		conf:         conf,
		log:          log.Child("importer"),
		stats:        stat,
		repo:         repo,
		store:        store,
		newConnector: connectors.New,
		newTarget:    newTarget,
		connLock:     kitsync.NewPartitionLocker(),
		running:      make(map[string]context.CancelFunc),
	}
}

// Trigger creates a new job for the connection, rejecting it while another
// one is still in flight. The caller runs the returned job via Run.
func (im *Importer) Trigger(ctx context.Context, cfg *model.ConnectionConfig) (*jobs.ImportJob, error) {
	active, err := im.repo.HasActive(ctx, cfg.WorkspaceID, cfg.ConnectionID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrJobInFlight
	}
	return im.repo.Create(ctx, cfg)
}

// Cancel stops the job cooperatively: a running job is interrupted at its
// next batch boundary, a queued one is terminalized right away.
func (im *Importer) Cancel(ctx context.Context, jobID string) error {
	im.mu.Lock()
	cancel, isRunning := im.running[jobID]
	im.mu.Unlock()
	if isRunning {
		cancel()
		return nil
	}

	job, err := im.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status().Terminal() {
		return fmt.Errorf("job %s already finished in status %s", jobID, job.StatusName)
	}
	report, err := im.repo.LoadReport(job)
	if err != nil {
		return err
	}
	return im.repo.Terminalize(ctx, jobID, jobs.Cancelled, report,
		&model.ImportError{Kind: model.ErrCancelled, Message: "cancelled before start"})
}

// Run executes one job to a terminal status. Blocks until done; callers
// dispatch it on their own goroutine.
func (im *Importer) Run(ctx context.Context, jobID string) error {
	job, err := im.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	cfg, err := im.repo.ConnectionConfig(job)
	if err != nil {
		return err
	}

	partition := strings.Join([]string{cfg.WorkspaceID, cfg.ConnectionID}, "/")
	im.connLock.Lock(partition)
	defer im.connLock.Unlock(partition)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	im.mu.Lock()
	im.running[jobID] = cancel
	im.mu.Unlock()
	defer func() {
		im.mu.Lock()
		delete(im.running, jobID)
		im.mu.Unlock()
	}()

	log := im.log.Withn(
		logger.NewStringField("jobId", jobID),
		logger.NewStringField("connector", string(cfg.Connector)))
	log.Infon("import job starting")

	recorder := jobs.NewRecorder()
	runErr := im.runStages(runCtx, job, cfg, recorder, log)

	// terminal writes must land even when the run context is gone
	finalCtx := context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		log.Infon("import job finished")
		return im.repo.Terminalize(finalCtx, jobID, jobs.Finished, recorder.Snapshot(), nil)
	case runCtx.Err() != nil:
		log.Warnn("import job cancelled")
		return im.repo.Terminalize(finalCtx, jobID, jobs.Cancelled, recorder.Snapshot(),
			&model.ImportError{Kind: model.ErrCancelled, Message: "job cancelled", Err: runErr})
	default:
		ie := model.AsImportError(runErr)
		log.Errorn("import job failed", logger.NewErrorField(runErr))
		if terr := im.repo.Terminalize(finalCtx, jobID, jobs.Errored, recorder.Snapshot(), ie); terr != nil {
			return terr
		}
		return runErr
	}
}

func (im *Importer) runStages(ctx context.Context, job *jobs.ImportJob, cfg *model.ConnectionConfig, recorder *jobs.Recorder, log logger.Logger) error {
	advance := func(next jobs.Status) error {
		return im.repo.Advance(ctx, job.ID, next)
	}
	if err := advance(jobs.Queued); err != nil {
		return err
	}
	if err := advance(jobs.Initiated); err != nil {
		return err
	}

	conn, err := im.newConnector(cfg, im.conf, im.log)
	if err != nil {
		return model.AuthError("building connector", err)
	}
	target := im.newTarget(im.conf, im.log, cfg)
	pageSize := im.conf.GetInt(fmt.Sprintf("Connector.%s.pageSize", cfg.Connector), im.conf.GetInt("Connector.pageSize", 100))

	// the canonical dependency order wins over whatever order the connector
	// declares its kinds in; children must never precede their parents
	kinds := append([]model.EntityType(nil), conn.EntityKinds()...)
	sort.SliceStable(kinds, func(i, j int) bool { return model.DependsOn(kinds[j], kinds[i]) })

	// Pull: every page of every entity type, in the connector's dependency
	// order. Malformed records land in the report and the pull keeps going;
	// only job-level failures (auth revoked, budget-exhausted rate limits)
	// abort the job.
	if err := advance(jobs.Pulling); err != nil {
		return err
	}
	pulled := make(map[model.EntityType][]connectors.SourceRecord)
	for _, et := range kinds {
		token := ""
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			var page connectors.Page
			fetchErr := im.withRetry(ctx, func() error {
				var err error
				page, err = conn.FetchPage(ctx, et, token, pageSize)
				return err
			})
			if fetchErr != nil {
				ie := model.AsImportError(fetchErr)
				if ie.JobLevel {
					return ie
				}
				// the page token cannot be trusted past a failed fetch,
				// so the rest of this entity type is skipped
				fillRecordContext(ie, et, "")
				recorder.RecordFailure("pull", ie)
				break
			}
			for _, ie := range page.Failed {
				fillRecordContext(ie, et, "")
				recorder.RecordFailure("pull", ie)
			}
			pulled[et] = append(pulled[et], page.Records...)
			recorder.AddPulled(et, len(page.Records))
			im.stats.NewTaggedStat("importer_records_pulled", stats.CountType, stats.Tags{
				"connector": string(cfg.Connector), "entityType": string(et),
			}).Count(len(page.Records))
			if !page.HasMore {
				break
			}
			token = page.NextToken
		}
	}
	if err := advance(jobs.Pulled); err != nil {
		return err
	}

	// Progressing: register every pulled identity so a re-sync can tell
	// "seen but never pushed" from "never seen".
	if err := advance(jobs.Progressing); err != nil {
		return err
	}
	for et, records := range pulled {
		for _, sr := range records {
			if err := im.store.Touch(ctx, im.mappingKey(cfg, et, sr.ExternalID)); err != nil {
				return fmt.Errorf("registering %s %s: %w", et, sr.ExternalID, err)
			}
		}
	}

	// Transform: pure per-record work; a bad record is reported and skipped,
	// the job keeps going.
	if err := advance(jobs.Transforming); err != nil {
		return err
	}
	tctx := &connectors.TransformContext{
		Config: cfg,
		Resolve: func(et model.EntityType, externalID string) (string, bool) {
			id, ok, err := im.store.Get(ctx, im.mappingKey(cfg, et, externalID))
			if err != nil {
				return "", false
			}
			return id, ok
		},
	}
	canonical := make(map[model.EntityType][]model.Record)
	for _, et := range kinds {
		for _, sr := range pulled[et] {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, terr := conn.Transform(sr, tctx)
			if terr != nil {
				ie := model.AsImportError(terr)
				if ie.JobLevel {
					return ie
				}
				fillRecordContext(ie, et, sr.ExternalID)
				recorder.RecordFailure("transform", ie)
				continue
			}
			canonical[et] = append(canonical[et], out)
			recorder.AddTransformed(et, 1)
		}
	}
	if err := advance(jobs.Transformed); err != nil {
		return err
	}

	// Push: dependency order again, so every reference a record carries
	// points at an entity whose mapping is already committed.
	if err := advance(jobs.Pushing); err != nil {
		return err
	}
	for _, et := range kinds {
		for _, record := range canonical[et] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if perr := im.pushRecord(ctx, cfg, target, record); perr != nil {
				ie := model.AsImportError(perr)
				if ie.JobLevel {
					return ie
				}
				fillRecordContext(ie, et, record.Identity().ExternalID)
				recorder.RecordFailure("push", ie)
				continue
			}
			recorder.AddPushed(et, 1)
			im.stats.NewTaggedStat("importer_records_pushed", stats.CountType, stats.Tags{
				"connector": string(cfg.Connector), "entityType": string(et),
			}).Increment()
		}
		if err := im.repo.SaveReport(ctx, job.ID, recorder.Snapshot()); err != nil {
			log.Warnn("saving report snapshot", logger.NewErrorField(err))
		}
	}
	return nil
}

// pushRecord resolves the record's references, upserts it and commits the
// resulting mapping before any dependent record is pushed.
func (im *Importer) pushRecord(ctx context.Context, cfg *model.ConnectionConfig, target TargetClient, record model.Record) error {
	if att, ok := record.(model.Attachment); ok {
		record = im.probeAttachment(ctx, cfg, att)
	}
	payload, parentID, err := im.buildPayload(ctx, cfg, record)
	if err != nil {
		return err
	}

	identity := record.Identity()
	var internalID string
	pushErr := im.withRetry(ctx, func() error {
		var err error
		internalID, err = target.Upsert(ctx, identity.EntityType, parentID, payload)
		return err
	})
	if pushErr != nil {
		return pushErr
	}

	key := im.mappingKey(cfg, identity.EntityType, identity.ExternalID)
	if err := im.store.Put(ctx, key, internalID); err != nil {
		var conflict *mapping.ErrConflict
		if errors.As(err, &conflict) {
			return &model.ImportError{
				Kind:       model.ErrMappingConflict,
				Message:    conflict.Error(),
				EntityType: identity.EntityType,
				ExternalID: identity.ExternalID,
				Permanent:  true,
			}
		}
		return err
	}
	return nil
}

func (im *Importer) mappingKey(cfg *model.ConnectionConfig, et model.EntityType, externalID string) mapping.Key {
	return mapping.Key{
		WorkspaceID:    cfg.WorkspaceID,
		ConnectionID:   cfg.ConnectionID,
		ExternalSource: cfg.Connector,
		ExternalID:     externalID,
		EntityType:     et,
	}
}

func fillRecordContext(ie *model.ImportError, et model.EntityType, externalID string) {
	if ie.EntityType == "" {
		ie.EntityType = et
	}
	if ie.ExternalID == "" {
		ie.ExternalID = externalID
	}
}
