package jobs

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackport/trackport/model"
)

func setupRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo := NewRepo(db)
	require.NoError(t, repo.Migrate())
	return repo
}

func testConfig() *model.ConnectionConfig {
	return &model.ConnectionConfig{
		WorkspaceID:   "ws-1",
		WorkspaceSlug: "acme",
		ConnectionID:  "conn-1",
		ProjectID:     "proj-1",
		Connector:     model.ConnectorGithub,
	}
}

func TestRepoCreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, Created.Name, job.StatusName)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, model.ConnectorGithub, got.Connector)

	cfg, err := repo.ConnectionConfig(got)
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.WorkspaceSlug)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepoAdvance(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, testConfig())
	require.NoError(t, err)

	require.NoError(t, repo.Advance(ctx, job.ID, Queued))
	require.NoError(t, repo.Advance(ctx, job.ID, Initiated))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, Initiated.Name, got.StatusName)
	require.NotNil(t, got.StartedAt)

	// skipping a stage must be rejected
	err = repo.Advance(ctx, job.ID, Pulled)
	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, Initiated.Name, illegal.From)

	// rewinding must be rejected
	err = repo.Advance(ctx, job.ID, Queued)
	require.ErrorAs(t, err, &illegal)
}

func TestRepoTerminalize(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, testConfig())
	require.NoError(t, err)
	require.NoError(t, repo.Advance(ctx, job.ID, Queued))

	rec := NewRecorder()
	rec.AddPulled(model.EntityIssue, 10)
	rec.RecordFailure("pull", model.MalformedRecordError(model.EntityIssue, "gh-1", "missing title"))

	cause := model.AuthError("token revoked", nil)
	require.NoError(t, repo.Terminalize(ctx, job.ID, Errored, rec.Snapshot(), cause))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, Errored.Name, got.StatusName)
	require.Equal(t, string(model.ErrAuth), got.ErrorKind)
	require.NotNil(t, got.FinishedAt)

	// the partial report survives the failure
	report, err := repo.LoadReport(got)
	require.NoError(t, err)
	require.Equal(t, 10, report.Counts[model.EntityIssue].Pulled)
	require.Equal(t, 1, report.Counts[model.EntityIssue].Failed)
	require.Len(t, report.Errors, 1)

	// terminal jobs are frozen
	require.Error(t, repo.SaveReport(ctx, job.ID, rec.Snapshot()))
	require.Error(t, repo.Terminalize(ctx, job.ID, Cancelled, rec.Snapshot(), nil))
}

func TestRepoHasActive(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	active, err := repo.HasActive(ctx, "ws-1", "conn-1")
	require.NoError(t, err)
	require.False(t, active)

	job, err := repo.Create(ctx, testConfig())
	require.NoError(t, err)

	active, err = repo.HasActive(ctx, "ws-1", "conn-1")
	require.NoError(t, err)
	require.True(t, active)

	// a different connection is unaffected
	active, err = repo.HasActive(ctx, "ws-1", "conn-2")
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, repo.Terminalize(ctx, job.ID, Cancelled, NewReport(), nil))

	active, err = repo.HasActive(ctx, "ws-1", "conn-1")
	require.NoError(t, err)
	require.False(t, active)
}
