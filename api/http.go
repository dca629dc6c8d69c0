package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/cors"

	"github.com/rudderlabs/rudder-go-kit/config"
	kithttputil "github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/trackport/trackport/importer"
	"github.com/trackport/trackport/jobs"
	"github.com/trackport/trackport/middleware"
	"github.com/trackport/trackport/model"
	"github.com/trackport/trackport/oauth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// importService is the slice of the importer the HTTP surface drives. The
// importer remains the sole writer of job state; the API only triggers,
// cancels and reads.
type importService interface {
	Trigger(ctx context.Context, cfg *model.ConnectionConfig) (*jobs.ImportJob, error)
	Cancel(ctx context.Context, jobID string) error
	Run(ctx context.Context, jobID string) error
}

type Server struct {
	conf  *config.Config
	log   logger.Logger
	stats stats.Stats
	svc   importService
	repo  *jobs.Repo
	oauth *oauth.Exchanger

	// baseCtx outlives the trigger request and bounds the dispatched job run
	baseCtx context.Context
}

func NewServer(conf *config.Config, log logger.Logger, stat stats.Stats, svc importService, repo *jobs.Repo) *Server {
	return &Server{
		conf:  conf,
		log:   log.Child("api"),
		stats: stat,
		svc:   svc,
		repo:  repo,
		oauth: oauth.NewExchanger(conf, log),
	}
}

// Start serves the API until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.conf.GetInt("API.webPort", 8090)),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: s.conf.GetDuration("API.readHeaderTimeout", 3, time.Second),
	}
	return kithttputil.ListenAndServe(ctx, srv)
}

// Handler returns the route tree.
//
// Implemented routes:
//   - POST /v1/workspaces/{workspaceID}/connections/{connectionID}/jobs
//   - POST /v1/jobs/{jobID}/cancel
//   - GET  /v1/jobs/{jobID}
//   - GET  /v1/jobs/{jobID}/report
func (s *Server) Handler(ctx context.Context) http.Handler {
	srvMux := chi.NewRouter()
	srvMux.Use(middleware.StatMiddleware(ctx, s.stats))
	srvMux.Use(middleware.LimitConcurrentRequests(s.conf.GetInt("API.maxConcurrentRequests", 64)))
	srvMux.Get("/health", s.healthHandler)
	srvMux.Post("/v1/workspaces/{workspaceID}/connections/{connectionID}/jobs", s.triggerHandler)
	srvMux.Post("/v1/jobs/{jobID}/cancel", s.cancelHandler)
	srvMux.Get("/v1/jobs/{jobID}", s.statusHandler)
	srvMux.Get("/v1/jobs/{jobID}/report", s.reportHandler)
	srvMux.Get("/v1/oauth/{kind}/authorize", s.oauthAuthorizeHandler)
	srvMux.Post("/v1/oauth/{kind}/token", s.oauthTokenHandler)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowCredentials: true,
		AllowedHeaders:   []string{"*"},
		MaxAge:           900,
	})
	return c.Handler(srvMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	var cfg model.ConnectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "can't unmarshal body", http.StatusBadRequest)
		return
	}
	// path scope wins over whatever the body claims
	cfg.WorkspaceID = chi.URLParam(r, "workspaceID")
	cfg.ConnectionID = chi.URLParam(r, "connectionID")
	if _, err := model.ParseConnectorKind(string(cfg.Connector)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.svc.Trigger(r.Context(), &cfg)
	if errors.Is(err, importer.ErrJobInFlight) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.log.Errorn("triggering job", logger.NewErrorField(err))
		http.Error(w, "can't create job", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := s.svc.Run(s.baseCtx, job.ID); err != nil {
			s.log.Errorn("job run failed",
				logger.NewStringField("jobId", job.ID),
				logger.NewErrorField(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := s.svc.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	report, err := s.repo.LoadReport(job)
	if err != nil {
		s.log.Errorn("loading report", logger.NewErrorField(err))
		http.Error(w, "can't load report", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"status": job.StatusName,
		"report": report,
	})
}

func (s *Server) oauthAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseConnectorKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	url, err := s.oauth.AuthCodeURL(kind, r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) oauthTokenHandler(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	kind, err := model.ParseConnectorKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}
	cred, err := s.oauth.Exchange(r.Context(), kind, body.Code)
	if err != nil {
		s.log.Warnn("oauth exchange failed",
			logger.NewStringField("connector", string(kind)),
			logger.NewErrorField(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, cred)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*jobs.ImportJob, bool) {
	job, err := s.repo.Get(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Errorn("fetching job", logger.NewErrorField(err))
		http.Error(w, "can't fetch job", http.StatusInternalServerError)
		return nil, false
	}
	return job, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorn("encoding response", logger.NewErrorField(err))
	}
}
