package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	svcMetric "github.com/rudderlabs/rudder-go-kit/stats/metric"

	"github.com/trackport/trackport/api"
	_ "github.com/trackport/trackport/connectors/clickup"
	_ "github.com/trackport/trackport/connectors/github"
	_ "github.com/trackport/trackport/connectors/gitlab"
	_ "github.com/trackport/trackport/connectors/jira"
	_ "github.com/trackport/trackport/connectors/linear"
	_ "github.com/trackport/trackport/connectors/sentry"
	_ "github.com/trackport/trackport/connectors/slack"
	"github.com/trackport/trackport/importer"
	"github.com/trackport/trackport/jobs"
	"github.com/trackport/trackport/mapping"
	"github.com/trackport/trackport/model"
	"github.com/trackport/trackport/rruntime"
	"github.com/trackport/trackport/target"
)

// ReleaseInfo holds the release information
type ReleaseInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Runner wires the subsystems together and runs them until shutdown.
type Runner struct {
	conf                    *config.Config
	logFactory              *logger.Factory
	logger                  logger.Logger
	releaseInfo             ReleaseInfo
	gracefulShutdownTimeout time.Duration
}

// New creates and initializes a new Runner
func New(releaseInfo ReleaseInfo) *Runner {
	conf := config.Default
	logFactory := logger.NewFactory(conf)
	return &Runner{
		conf:                    conf,
		logFactory:              logFactory,
		logger:                  logFactory.NewLogger().Child("runner"),
		releaseInfo:             releaseInfo,
		gracefulShutdownTimeout: conf.GetDuration("GracefulShutdownTimeout", 15, time.Second),
	}
}

// Run runs the application and returns the exit code
func (r *Runner) Run(ctx context.Context, _ []string) int {
	defer r.logFactory.Sync()
	r.logger.Infon("trackport starting",
		logger.NewStringField("version", r.releaseInfo.Version),
		logger.NewStringField("commit", r.releaseInfo.Commit))

	stats.Default = stats.NewStats(r.conf, r.logFactory, svcMetric.Instance,
		stats.WithServiceName("trackport"),
		stats.WithServiceVersion(r.releaseInfo.Version))
	if err := stats.Default.Start(ctx, rruntime.GoRoutineFactory); err != nil {
		r.logger.Errorn("starting stats", logger.NewErrorField(err))
		return 1
	}
	defer stats.Default.Stop()

	db, err := gorm.Open(sqlite.Open(r.conf.GetString("DB.path", "trackport.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		r.logger.Errorn("opening database", logger.NewErrorField(err))
		return 1
	}

	repo := jobs.NewRepo(db)
	if err := repo.Migrate(); err != nil {
		r.logger.Errorn("migrating jobs schema", logger.NewErrorField(err))
		return 1
	}
	store, err := mapping.NewStore(db, r.conf, r.logger)
	if err != nil {
		r.logger.Errorn("opening mapping store", logger.NewErrorField(err))
		return 1
	}

	targetFactory := func(conf *config.Config, log logger.Logger, cfg *model.ConnectionConfig) importer.TargetClient {
		return target.NewClient(conf, log,
			conf.GetString("Target.baseURL", "http://localhost:8000"),
			conf.GetString("Target.apiToken", ""),
			cfg)
	}
	im := importer.New(r.conf, r.logger, stats.Default, repo, store, targetFactory)
	srv := api.NewServer(r.conf, r.logger, stats.Default, im, repo)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gCtx)
	})

	done := make(chan error, 1)
	rruntime.Go(func() {
		done <- g.Wait()
	})

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Errorn("subsystem failed", logger.NewErrorField(err))
			return 1
		}
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(r.gracefulShutdownTimeout):
			r.logger.Errorn("graceful shutdown timed out",
				logger.NewStringField("timeout", fmt.Sprint(r.gracefulShutdownTimeout)))
			return 1
		}
	}

	r.logger.Infon("trackport stopped")
	return 0
}
