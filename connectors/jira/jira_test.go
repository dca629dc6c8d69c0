package jira

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/stretchr/testify/require"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func newTestConnector(t *testing.T, kind model.ConnectorKind, baseURL string, cfg *model.ConnectionConfig) *Connector {
	t.Helper()
	if cfg == nil {
		cfg = &model.ConnectionConfig{}
	}
	cfg.Connector = kind
	cfg.Credential.AccessToken = "secret"
	cfg.Credential.UserEmail = "importer@example.com"
	cfg.Credential.BaseURL = baseURL
	if cfg.Meta == nil {
		cfg.Meta = map[string]any{
			"resource_id": "res1",
			"project_id":  "10001",
			"project_key": "ENG",
		}
	}
	conn, err := newConnector(kind, cfg, config.New(), logger.NOP)
	require.NoError(t, err)
	return conn.(*Connector)
}

func TestAuthenticationPerKind(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id": "10001", "key": "ENG", "name": "Engineering"}`))
	}))
	t.Cleanup(srv.Close)

	cloud := newTestConnector(t, model.ConnectorJira, srv.URL, nil)
	_, err := cloud.FetchPage(context.Background(), model.EntityProject, "", 50)
	require.NoError(t, err)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("importer@example.com:secret"))
	require.Equal(t, want, gotAuth)

	server := newTestConnector(t, model.ConnectorJiraServer, srv.URL, nil)
	_, err = server.FetchPage(context.Background(), model.EntityProject, "", 50)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestFetchIssuesStartAtPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/search", r.URL.Path)
		require.Equal(t, `project = "ENG" ORDER BY created ASC`, r.URL.Query().Get("jql"))
		switch r.URL.Query().Get("startAt") {
		case "0":
			_, _ = w.Write([]byte(`{"startAt": 0, "maxResults": 1, "total": 2, "issues": [
				{"id": "501", "key": "ENG-1", "fields": {"summary": "First", "status": {"id": "3"}}}
			]}`))
		default:
			_, _ = w.Write([]byte(`{"startAt": 1, "maxResults": 1, "total": 2, "issues": [
				{"id": "502", "key": "ENG-2", "fields": {"summary": "Second", "status": {"id": "3"}}}
			]}`))
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, model.ConnectorJira, srv.URL, nil)
	ctx := context.Background()

	page, err := c.FetchPage(ctx, model.EntityIssue, "", 1)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.True(t, page.HasMore)
	require.Equal(t, "1", page.NextToken)
	require.Equal(t, "10001_res1_501", page.Records[0].ExternalID)

	page, err = c.FetchPage(ctx, model.EntityIssue, page.NextToken, 1)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.False(t, page.HasMore)
	require.Len(t, c.issues, 2)
}

func TestFetchUsersSkipsAccountsWithoutEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/user/search", r.URL.Path)
		require.Equal(t, ".", r.URL.Query().Get("username"))
		_, _ = w.Write([]byte(`[
			{"key": "ana", "name": "ana", "displayName": "Ana Lima", "emailAddress": "ana@example.com"},
			{"key": "bot", "name": "bot", "displayName": "Build Bot"}
		]`))
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, model.ConnectorJiraServer, srv.URL, nil)
	page, err := c.FetchPage(context.Background(), model.EntityUser, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.False(t, page.HasMore)
	require.Equal(t, "10001_res1_ana", page.Records[0].ExternalID)
}

func TestFetchLabelsEmitsImportMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"startAt": 0, "maxResults": 50, "total": 2, "isLast": true, "values": ["bug", "infra"]}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestConnector(t, model.ConnectorJira, srv.URL, nil)
	page, err := c.FetchPage(context.Background(), model.EntityLabel, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	require.Equal(t, "10001_res1_JIRA IMPORTED", page.Records[2].ExternalID)
}

func TestTransformIssue(t *testing.T) {
	c := newTestConnector(t, model.ConnectorJira, "https://eng.atlassian.net", nil)
	issue := jiraIssue{
		ID:  "501",
		Key: "ENG-1",
		Fields: jiraIssueFields{
			Summary:  "Fix login",
			Created:  "2024-01-02T10:04:05.000+0530",
			DueDate:  "2024-02-01",
			Labels:   []string{"bug"},
			Status:   jiraStatus{ID: "3", Name: "In Progress", StatusCategory: jiraStatusCategory{Key: "indeterminate"}},
			Priority: &jiraPriority{Name: "High"},
			Creator:  &jiraUser{AccountID: "acc-1", EmailAddress: "ana@example.com"},
			Assignee: &jiraUser{AccountID: "acc-2", EmailAddress: "bo@example.com"},
			Parent: &struct {
				ID string `json:"id"`
			}{ID: "500"},
		},
		RenderedFields: jiraRenderedFields{Description: "<p>rendered</p>"},
	}
	rec := connectors.SourceRecord{EntityType: model.EntityIssue, ExternalID: c.key(issue.ID), Data: issue}

	t.Run("unmapped state carried as external reference", func(t *testing.T) {
		out, err := c.Transform(rec, &connectors.TransformContext{Config: c.cfg})
		require.NoError(t, err)
		got := out.(model.Issue)
		require.Equal(t, "10001_res1_501", got.ExternalID)
		require.Equal(t, "<p>rendered</p>", got.DescriptionHTML)
		require.Equal(t, "10001_res1_3", got.StateExternalID)
		require.Empty(t, got.StateID)
		require.Equal(t, "none", got.Priority)
		require.Equal(t, "10001_res1_acc-1", got.CreatedBy)
		require.Equal(t, []string{"10001_res1_acc-2"}, got.AssigneeExternalIDs)
		require.Equal(t, "10001_res1_500", got.ParentExternalID)
		require.Equal(t, []string{"10001_res1_bug", "10001_res1_JIRA IMPORTED"}, got.LabelExternalIDs)
		require.NotNil(t, got.CreatedAt)
		require.Equal(t, "2024-01-02T04:34:05Z", got.CreatedAt.Format("2006-01-02T15:04:05Z"))
		require.Len(t, got.Links, 1)
		require.Equal(t, "https://eng.atlassian.net/browse/ENG-1", got.Links[0].URL)
	})

	t.Run("configured maps resolve state and priority", func(t *testing.T) {
		cfg := &model.ConnectionConfig{
			Meta: c.cfg.Meta,
			States: []model.StateMapping{
				{SourceStateID: "3", TargetState: model.TargetState{ID: "ts-doing"}},
			},
			Priorities: []model.PriorityMapping{
				{SourcePriority: "High", TargetPriority: "high"},
			},
		}
		out, err := c.Transform(rec, &connectors.TransformContext{Config: cfg})
		require.NoError(t, err)
		got := out.(model.Issue)
		require.Equal(t, "ts-doing", got.StateID)
		require.Empty(t, got.StateExternalID)
		require.Equal(t, "high", got.Priority)
	})

	t.Run("missing status is a record error", func(t *testing.T) {
		broken := issue
		broken.Fields.Status = jiraStatus{}
		brokenRec := connectors.SourceRecord{EntityType: model.EntityIssue, ExternalID: rec.ExternalID, Data: broken}
		_, err := c.Transform(brokenRec, &connectors.TransformContext{Config: c.cfg})
		var ie *model.ImportError
		require.ErrorAs(t, err, &ie)
		require.Equal(t, model.ErrUnmappedState, ie.Kind)
		require.False(t, ie.JobLevel)
	})
}

func TestTransformCommentAndAttachment(t *testing.T) {
	c := newTestConnector(t, model.ConnectorJiraServer, "https://jira.internal", nil)

	out, err := c.Transform(connectors.SourceRecord{
		EntityType: model.EntityComment,
		ExternalID: c.key("900"),
		Data: commentRecord{
			comment: jiraComment{
				ID:           "900",
				Body:         "plain body",
				RenderedBody: "<p>rendered body</p>",
				Created:      "2024-03-01T09:00:00.000+0000",
				Author:       &jiraUser{Key: "ana", EmailAddress: "ana@example.com"},
			},
			issue: issueRef{issueID: "501"},
		},
	}, &connectors.TransformContext{Config: c.cfg})
	require.NoError(t, err)
	comment := out.(model.Comment)
	require.Equal(t, "<p>rendered body</p>", comment.CommentHTML)
	require.Equal(t, "10001_res1_ana", comment.Actor)
	require.Equal(t, "10001_res1_501", comment.IssueExternalID)

	out, err = c.Transform(connectors.SourceRecord{
		EntityType: model.EntityAttachment,
		ExternalID: c.key("77"),
		Data: attachmentRecord{
			attachment: jiraAttachment{ID: "77", Filename: "log.txt", Size: 512, Content: "https://jira.internal/att/77"},
			issue:      issueRef{issueID: "501"},
		},
	}, &connectors.TransformContext{Config: c.cfg})
	require.NoError(t, err)
	att := out.(model.Attachment)
	require.Equal(t, "log.txt", att.Name)
	require.Equal(t, int64(512), att.Size)
	require.Equal(t, "10001_res1_501", att.IssueExternalID)
}
