package jira

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// Meta carries the site coordinates of one Jira project import.
type Meta struct {
	ResourceID string `mapstructure:"resource_id"`
	ProjectID  string `mapstructure:"project_id"`
	ProjectKey string `mapstructure:"project_key"`
}

// Connector serves both Jira Cloud and Jira Server over REST api/2. The two
// differ only in authentication and in how users are listed.
type Connector struct {
	kind model.ConnectorKind
	cfg  *model.ConnectionConfig
	meta Meta
	rest *connectors.RESTClient
	log  logger.Logger

	issues []jiraIssue
}

func init() {
	connectors.Register(model.ConnectorJira, newCloud)
	connectors.Register(model.ConnectorJiraServer, newServer)
}

func newCloud(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	return newConnector(model.ConnectorJira, cfg, conf, log)
}

func newServer(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	return newConnector(model.ConnectorJiraServer, cfg, conf, log)
}

func newConnector(kind model.ConnectorKind, cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding jira meta: %w", err)
	}
	if meta.ResourceID == "" || meta.ProjectID == "" || meta.ProjectKey == "" {
		return nil, fmt.Errorf("jira config requires resource_id, project_id and project_key")
	}
	if cfg.Credential.BaseURL == "" {
		return nil, fmt.Errorf("jira config requires the site base url")
	}

	// cloud authenticates basic email:token, server with a personal access
	// token
	auth := connectors.BearerAuth(cfg.Credential.AccessToken)
	if kind == model.ConnectorJira {
		auth = connectors.BasicAuth(cfg.Credential.UserEmail, cfg.Credential.AccessToken)
	}
	return &Connector{
		kind: kind,
		cfg:  cfg,
		meta: meta,
		rest: connectors.NewRESTClient(conf, log, cfg.Credential.BaseURL, auth),
		log:  log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return c.kind }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityState,
		model.EntityLabel,
		model.EntityIssue,
		model.EntityComment,
		model.EntityAttachment,
	}
}

func (c *Connector) key(id string) string {
	return externalKey(c.meta.ProjectID, c.meta.ResourceID, id)
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	if limit <= 0 {
		limit = 100
	}
	switch et {
	case model.EntityProject:
		return c.fetchProject(ctx)
	case model.EntityUser:
		return c.fetchUsers(ctx, pageToken, limit)
	case model.EntityState:
		return c.fetchStatuses(ctx)
	case model.EntityLabel:
		return c.fetchLabels(ctx, pageToken, limit)
	case model.EntityIssue:
		return c.fetchIssues(ctx, pageToken, limit)
	case model.EntityComment:
		return c.fetchComments(ctx, pageToken, limit)
	case model.EntityAttachment:
		return c.fetchAttachments()
	default:
		return connectors.Page{}, fmt.Errorf("jira does not emit entity type %s", et)
	}
}

func (c *Connector) fetchProject(ctx context.Context) (connectors.Page, error) {
	var project jiraProject
	if _, err := c.rest.GetJSON(ctx, "/rest/api/2/project/"+c.meta.ProjectKey, nil, &project); err != nil {
		return connectors.Page{}, err
	}
	if project.ID == "" || project.Name == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.ProjectKey, "project payload missing id or name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(project.ID),
		Data:       project,
	}}}, nil
}

// fetchUsers pages by startAt; the user search endpoints return bare arrays,
// so a full page means another page may follow.
func (c *Connector) fetchUsers(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	startAt, err := parseOffsetToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}

	path := "/rest/api/2/users/search"
	query := url.Values{
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(limit)},
	}
	if c.kind == model.ConnectorJiraServer {
		path = "/rest/api/2/user/search"
		query.Set("username", ".")
		query.Set("includeActive", "true")
	}

	var users []jiraUser
	if _, err := c.rest.GetJSON(ctx, path, query, &users); err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, u := range users {
		// accounts without an email cannot be invited on the target side
		if u.EmailAddress == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(userID(u)),
			Data:       u,
		})
	}
	if len(users) == limit {
		page.HasMore = true
		page.NextToken = strconv.Itoa(startAt + limit)
	}
	return page, nil
}

func (c *Connector) fetchStatuses(ctx context.Context) (connectors.Page, error) {
	var statuses []jiraStatus
	if _, err := c.rest.GetJSON(ctx, "/rest/api/2/status", nil, &statuses); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, st := range statuses {
		if st.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityState,
			ExternalID: c.key(st.ID),
			Data:       st,
		})
	}
	return page, nil
}

func (c *Connector) fetchLabels(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	startAt, err := parseOffsetToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	query := url.Values{
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(limit)},
	}
	var resp labelsResponse
	if _, err := c.rest.GetJSON(ctx, "/rest/api/2/label", query, &resp); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, label := range resp.Values {
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityLabel,
			ExternalID: c.key(label),
			Data:       label,
		})
	}
	if !resp.IsLast && len(resp.Values) > 0 {
		page.HasMore = true
		page.NextToken = strconv.Itoa(startAt + len(resp.Values))
	} else {
		// every imported issue gets tagged with this label, emit it alongside
		// the source ones
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityLabel,
			ExternalID: c.key(importedLabel),
			Data:       importedLabel,
		})
	}
	return page, nil
}

func (c *Connector) fetchIssues(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	startAt, err := parseOffsetToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	query := url.Values{
		"jql":        {fmt.Sprintf("project = %q ORDER BY created ASC", c.meta.ProjectKey)},
		"expand":     {"renderedFields"},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(limit)},
	}
	var resp searchResponse
	if _, err := c.rest.GetJSON(ctx, "/rest/api/2/search", query, &resp); err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, issue := range resp.Issues {
		if issue.ID == "" {
			page.Failed = append(page.Failed, model.MalformedRecordError(model.EntityIssue, issue.Key, "issue payload missing id"))
			continue
		}
		c.issues = append(c.issues, issue)
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: c.key(issue.ID),
			Data:       issue,
		})
	}
	if resp.Total > 0 && startAt+len(resp.Issues) < resp.Total {
		page.HasMore = true
		page.NextToken = strconv.Itoa(startAt + len(resp.Issues))
	}
	return page, nil
}

// fetchComments walks the issues pulled in the issue stage. Token format is
// issueIndex:startAt.
func (c *Connector) fetchComments(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	issueIdx, sub, err := connectors.DecodeIndexToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	if issueIdx >= len(c.issues) {
		return connectors.Page{}, nil
	}
	startAt, err := parseOffsetToken(sub)
	if err != nil {
		return connectors.Page{}, err
	}

	issue := c.issues[issueIdx]
	query := url.Values{
		"expand":     {"renderedBody"},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(limit)},
	}
	var resp commentsResponse
	if _, err := c.rest.GetJSON(ctx, "/rest/api/2/issue/"+issue.ID+"/comment", query, &resp); err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, comment := range resp.Comments {
		if comment.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: c.key(comment.ID),
			Data:       commentRecord{comment: comment, issue: issueRef{issueID: issue.ID}},
		})
	}

	switch {
	case resp.Total > 0 && startAt+len(resp.Comments) < resp.Total:
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(issueIdx, strconv.Itoa(startAt+len(resp.Comments)))
	case issueIdx+1 < len(c.issues):
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(issueIdx+1, "")
	}
	return page, nil
}

// fetchAttachments reads off the issue payloads pulled in the issue stage.
func (c *Connector) fetchAttachments() (connectors.Page, error) {
	var page connectors.Page
	for _, issue := range c.issues {
		for _, att := range issue.Fields.Attachment {
			if att.ID == "" {
				continue
			}
			page.Records = append(page.Records, connectors.SourceRecord{
				EntityType: model.EntityAttachment,
				ExternalID: c.key(att.ID),
				Data:       attachmentRecord{attachment: att, issue: issueRef{issueID: issue.ID}},
			})
		}
	}
	return page, nil
}

// userID prefers the cloud account id, falling back to the server key and
// login name.
func userID(u jiraUser) string {
	switch {
	case u.AccountID != "":
		return u.AccountID
	case u.Key != "":
		return u.Key
	default:
		return u.Name
	}
}

func parseOffsetToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("malformed page token %q: %w", token, err)
	}
	return n, nil
}
