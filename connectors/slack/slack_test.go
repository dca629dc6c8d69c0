package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func newTestConnector(t *testing.T, baseURL string) *Connector {
	t.Helper()
	cfg := &model.ConnectionConfig{
		Connector: model.ConnectorSlack,
		Meta:      map[string]any{"channel_id": "C042"},
		TargetStates: []model.TargetState{
			{ID: "ts-done", Name: "Done", Group: model.StateGroupCompleted},
			{ID: "ts-backlog", Name: "Backlog", Group: model.StateGroupBacklog},
		},
	}
	cfg.Credential.AccessToken = "xoxb-test"
	cfg.Credential.BaseURL = baseURL
	conn, err := New(cfg, config.New(), logger.NOP)
	require.NoError(t, err)
	return conn.(*Connector)
}

func TestFetchMessagesCollectsThreads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "C042", r.FormValue("channel"))
		if r.FormValue("cursor") == "" {
			_, _ = w.Write([]byte(`{"ok": true, "has_more": true,
				"response_metadata": {"next_cursor": "cur-2"},
				"messages": [
					{"type": "message", "ts": "1700000000.000100", "user": "U1",
						"text": "Login broken on mobile", "thread_ts": "1700000000.000100", "reply_count": 2},
					{"type": "message", "ts": "1700000050.000200", "user": "U2",
						"text": "a reply", "thread_ts": "1700000000.000100"},
					{"type": "message", "subtype": "channel_join", "ts": "1700000100.000300", "user": "U3",
						"text": "joined"}
				]}`))
			return
		}
		require.Equal(t, "cur-2", r.FormValue("cursor"))
		_, _ = w.Write([]byte(`{"ok": true, "messages": [
			{"type": "message", "ts": "1700000200.000400", "user": "U2", "text": "Dark mode request"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, model.EntityIssue, "", 100)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "C042_1700000000.000100", page.Records[0].ExternalID)
	require.True(t, page.HasMore)
	require.Equal(t, "cur-2", page.NextToken)
	require.Equal(t, []string{"1700000000.000100"}, c.threads)

	page, err = c.FetchPage(ctx, model.EntityIssue, page.NextToken, 100)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.False(t, page.HasMore)
}

func TestFetchRepliesSkipsThreadParent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations.replies", r.URL.Path)
		require.Equal(t, "1700000000.000100", r.FormValue("ts"))
		_, _ = w.Write([]byte(`{"ok": true, "messages": [
			{"type": "message", "ts": "1700000000.000100", "user": "U1", "text": "Login broken on mobile"},
			{"type": "message", "ts": "1700000050.000200", "user": "U2", "text": "Which device?",
				"thread_ts": "1700000000.000100"},
			{"type": "message", "ts": "1700000090.000300", "user": "U1", "text": "Pixel 8",
				"thread_ts": "1700000000.000100"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL)
	c.threads = []string{"1700000000.000100"}

	page, err := c.FetchPage(context.Background(), model.EntityComment, "", 100)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.False(t, page.HasMore)
	require.Equal(t, "C042_1700000050.000200", page.Records[0].ExternalID)

	rec, err := c.Transform(page.Records[0], &connectors.TransformContext{Config: c.cfg})
	require.NoError(t, err)
	comment := rec.(model.Comment)
	require.Equal(t, "C042_1700000000.000100", comment.IssueExternalID)
	require.Equal(t, "C042_U2", comment.Actor)
	require.Equal(t, "<p>Which device?</p>", comment.CommentHTML)
}

func TestTransformMessage(t *testing.T) {
	c := newTestConnector(t, "https://slack.example.com")
	tctx := &connectors.TransformContext{Config: c.cfg}
	rec := connectors.SourceRecord{
		EntityType: model.EntityIssue,
		ExternalID: c.key("1700000000.000100"),
		Data: messageRecord{msg: newMsg("1700000000.000100", "U1",
			"Login broken on mobile\nSteps to reproduce follow")},
	}

	out, err := c.Transform(rec, tctx)
	require.NoError(t, err)
	issue := out.(model.Issue)
	require.Equal(t, "Login broken on mobile", issue.Name)
	require.Equal(t, "<p>Login broken on mobile\nSteps to reproduce follow</p>", issue.DescriptionHTML)
	require.Equal(t, "ts-backlog", issue.StateID)
	require.Equal(t, "C042_U1", issue.CreatedBy)
	require.Equal(t, int64(1700000000), issue.CreatedAt.Unix())

	// an explicit mapping for the synthetic open status wins
	c.cfg.States = []model.StateMapping{
		{SourceStateID: "open", TargetState: model.TargetState{ID: "ts-done", Group: model.StateGroupCompleted}},
	}
	out, err = c.Transform(rec, tctx)
	require.NoError(t, err)
	require.Equal(t, "ts-done", out.(model.Issue).StateID)

	// no backlog state and no mapping
	c.cfg.States = nil
	c.cfg.TargetStates = []model.TargetState{{ID: "ts-done", Name: "Done", Group: model.StateGroupCompleted}}
	_, err = c.Transform(rec, tctx)
	var ie *model.ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, model.ErrUnmappedState, ie.Kind)
}

func newMsg(ts, user, text string) slackapi.Msg {
	return slackapi.Msg{Timestamp: ts, User: user, Text: text}
}

func TestRateLimitBecomesJobLevelPause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, srv.URL)
	_, err := c.FetchPage(context.Background(), model.EntityIssue, "", 100)
	var ie *model.ImportError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, model.ErrRateLimited, ie.Kind)
	require.True(t, ie.JobLevel)
	require.Equal(t, 30*time.Second, ie.RetryAfter)
}

func TestMessageTitleKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 200)
	title := messageTitle(long)
	require.True(t, utf8.ValidString(title))
	require.LessOrEqual(t, len(title), maxTitleLen)
	require.Equal(t, strings.Repeat("é", 127), title)

	ascii := strings.Repeat("a", 300)
	require.Equal(t, strings.Repeat("a", maxTitleLen), messageTitle(ascii))
}
