package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gh "github.com/google/go-github/v63/github"
	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/stretchr/testify/require"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// go-github prefixes enterprise base urls with /api/v3
const apiPrefix = "/api/v3"

func newTestConnector(t *testing.T, baseURL string, cfg *model.ConnectionConfig) *Connector {
	t.Helper()
	if cfg == nil {
		cfg = &model.ConnectionConfig{}
	}
	cfg.Connector = model.ConnectorGithub
	cfg.Credential.AccessToken = "gh_test"
	cfg.Credential.BaseURL = baseURL
	if cfg.Meta == nil {
		cfg.Meta = map[string]any{"owner": "acme", "repo": "tracker"}
	}
	conn, err := New(cfg, config.New(), logger.NOP)
	require.NoError(t, err)
	return conn.(*Connector)
}

func targetStates() []model.TargetState {
	return []model.TargetState{
		{ID: "ts-done", Name: "Done", Group: model.StateGroupCompleted},
		{ID: "ts-backlog", Name: "Backlog", Group: model.StateGroupBacklog},
		{ID: "ts-doing", Name: "Doing", Group: model.StateGroupStarted},
	}
}

func TestFetchIssuesSkipsPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/tracker/issues", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "all", r.URL.Query().Get("state"))
		if r.URL.Query().Get("page") == "" || r.URL.Query().Get("page") == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s/repos/acme/tracker/issues?page=2>; rel="next"`, r.Host, apiPrefix))
			_, _ = w.Write([]byte(`[
				{"number": 1, "title": "Fix login", "state": "open", "user": {"login": "ana"}},
				{"number": 2, "title": "A PR", "state": "open", "pull_request": {"url": "https://x"}}
			]`))
			return
		}
		_, _ = w.Write([]byte(`[{"number": 3, "title": "Add search", "state": "closed"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL, nil)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, model.EntityIssue, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "acme_tracker_1", page.Records[0].ExternalID)
	require.True(t, page.HasMore)
	require.Equal(t, "2", page.NextToken)

	page, err = c.FetchPage(ctx, model.EntityIssue, page.NextToken, 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "acme_tracker_3", page.Records[0].ExternalID)
	require.False(t, page.HasMore)
}

func TestFetchCommentsAcrossRepo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/tracker/issues/comments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 9001, "body": "on it", "user": {"login": "ana"}, "issue_url": "https://api.github.com/repos/acme/tracker/issues/1"}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL, nil)
	page, err := c.FetchPage(context.Background(), model.EntityComment, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	rec, err := c.Transform(page.Records[0], &connectors.TransformContext{Config: c.cfg})
	require.NoError(t, err)
	comment := rec.(model.Comment)
	require.Equal(t, "acme_tracker_9001", comment.ExternalID)
	require.Equal(t, "acme_tracker_1", comment.IssueExternalID)
	require.Equal(t, "acme_tracker_ana", comment.Actor)
	require.Equal(t, "<p>on it</p>", comment.CommentHTML)
}

func TestRateLimitBecomesJobLevelPause(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Limit", "60")
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.Header().Set("X-Ratelimit-Reset", fmt.Sprintf("%d", reset))
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "API rate limit exceeded"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL, nil)
	_, err := c.FetchPage(context.Background(), model.EntityIssue, "", 50)
	var ie *model.ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, model.ErrRateLimited, ie.Kind)
	require.True(t, ie.JobLevel)
	require.Greater(t, ie.RetryAfter, time.Duration(0))
}

func TestTransformIssueStates(t *testing.T) {
	c := newTestConnector(t, "", &model.ConnectionConfig{
		Meta:         map[string]any{"owner": "acme", "repo": "tracker"},
		TargetStates: targetStates(),
	})
	tctx := &connectors.TransformContext{Config: c.cfg}

	num := 1
	title := "Fix login"
	body := "Session expires early"
	state := "open"
	login := "ana"
	plane := "Plane"
	bug := "bug"
	issue := &gh.Issue{
		Number: &num,
		Title:  &title,
		Body:   &body,
		State:  &state,
		User:   &gh.User{Login: &login},
		Labels: []*gh.Label{{Name: &plane}, {Name: &bug}},
	}
	rec := connectors.SourceRecord{EntityType: model.EntityIssue, ExternalID: c.key("1"), Data: issue}

	out, err := c.Transform(rec, tctx)
	require.NoError(t, err)
	got := out.(model.Issue)
	require.Equal(t, "ts-backlog", got.StateID)
	require.Equal(t, "<p>Session expires early</p>", got.DescriptionHTML)
	require.Equal(t, "none", got.Priority)
	require.Equal(t, "acme_tracker_ana", got.CreatedBy)
	// the sync marker label is dropped
	require.Equal(t, []string{"acme_tracker_bug"}, got.LabelExternalIDs)
	require.Equal(t, "https://github.com/acme/tracker/issues/1", got.Links[0].URL)

	closed := "closed"
	issue.State = &closed
	out, err = c.Transform(rec, tctx)
	require.NoError(t, err)
	require.Equal(t, "ts-done", out.(model.Issue).StateID)

	// explicit mapping beats the default pair
	c.cfg.States = []model.StateMapping{{SourceStateID: "closed", TargetState: model.TargetState{ID: "ts-doing"}}}
	out, err = c.Transform(rec, tctx)
	require.NoError(t, err)
	require.Equal(t, "ts-doing", out.(model.Issue).StateID)

	// no mapping and no usable default group
	c.cfg.States = nil
	c.cfg.TargetStates = []model.TargetState{{ID: "ts-doing", Name: "Doing", Group: model.StateGroupStarted}}
	_, err = c.Transform(rec, tctx)
	var ie *model.ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, model.ErrUnmappedState, ie.Kind)
}
