package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

const defaultBaseURL = "https://gitlab.com"

// Meta carries the project coordinates of one GitLab import.
type Meta struct {
	ProjectID string `mapstructure:"project_id"`
}

type Connector struct {
	cfg  *model.ConnectionConfig
	meta Meta
	rest *connectors.RESTClient
	log  logger.Logger

	issues []gitlabIssue
}

func init() {
	connectors.Register(model.ConnectorGitlab, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding gitlab meta: %w", err)
	}
	if meta.ProjectID == "" {
		return nil, fmt.Errorf("gitlab config requires project_id")
	}
	baseURL := cfg.Credential.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Connector{
		cfg:  cfg,
		meta: meta,
		rest: connectors.NewRESTClient(conf, log, strings.TrimSuffix(baseURL, "/")+"/api/v4",
			connectors.BearerAuth(cfg.Credential.AccessToken)),
		log: log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorGitlab }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityLabel,
		model.EntityIssue,
		model.EntityComment,
	}
}

func (c *Connector) key(id string) string {
	return strings.Join([]string{c.meta.ProjectID, id}, "_")
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	switch et {
	case model.EntityProject:
		return c.fetchProject(ctx)
	case model.EntityUser:
		return c.fetchMembers(ctx, pageToken, limit)
	case model.EntityLabel:
		return c.fetchLabels(ctx, pageToken, limit)
	case model.EntityIssue:
		return c.fetchIssues(ctx, pageToken, limit)
	case model.EntityComment:
		return c.fetchNotes(ctx, pageToken, limit)
	default:
		return connectors.Page{}, fmt.Errorf("gitlab does not emit entity type %s", et)
	}
}

func (c *Connector) fetchProject(ctx context.Context) (connectors.Page, error) {
	var project gitlabProject
	if _, err := c.rest.GetJSON(ctx, "/projects/"+c.meta.ProjectID, nil, &project); err != nil {
		return connectors.Page{}, err
	}
	if project.ID == 0 || project.Name == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.ProjectID, "project payload missing id or name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(strconv.FormatInt(project.ID, 10)),
		Data:       project,
	}}}, nil
}

func (c *Connector) fetchMembers(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	var members []gitlabUser
	header, err := c.getPaged(ctx, "/projects/"+c.meta.ProjectID+"/members/all", pageToken, limit, &members)
	if err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, m := range members {
		if m.ID == 0 {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(strconv.FormatInt(m.ID, 10)),
			Data:       m,
		})
	}
	nextFromHeader(&page, header)
	return page, nil
}

func (c *Connector) fetchLabels(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	var labels []gitlabLabel
	header, err := c.getPaged(ctx, "/projects/"+c.meta.ProjectID+"/labels", pageToken, limit, &labels)
	if err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, label := range labels {
		if label.Name == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityLabel,
			ExternalID: c.key(label.Name),
			Data:       label,
		})
	}
	nextFromHeader(&page, header)
	return page, nil
}

func (c *Connector) fetchIssues(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	var issues []gitlabIssue
	header, err := c.getPaged(ctx, "/projects/"+c.meta.ProjectID+"/issues", pageToken, limit, &issues)
	if err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, issue := range issues {
		if issue.IID == 0 || issue.Title == "" {
			page.Failed = append(page.Failed, model.MalformedRecordError(model.EntityIssue, strconv.FormatInt(issue.IID, 10), "issue payload missing iid or title"))
			continue
		}
		c.issues = append(c.issues, issue)
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: c.key(strconv.FormatInt(issue.IID, 10)),
			Data:       issue,
		})
	}
	nextFromHeader(&page, header)
	return page, nil
}

// fetchNotes walks the issues pulled in the issue stage, one issue per page.
// System notes (state changes, label edits) are skipped.
func (c *Connector) fetchNotes(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	issueIdx, sub, err := connectors.DecodeIndexToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	if issueIdx >= len(c.issues) {
		return connectors.Page{}, nil
	}

	issue := c.issues[issueIdx]
	iid := strconv.FormatInt(issue.IID, 10)
	var notes []gitlabNote
	header, err := c.getPaged(ctx, "/projects/"+c.meta.ProjectID+"/issues/"+iid+"/notes", sub, limit, &notes)
	if err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, note := range notes {
		if note.ID == 0 || note.System {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: c.key(strconv.FormatInt(note.ID, 10)),
			Data:       noteRecord{note: note, issueIID: issue.IID},
		})
	}

	switch next := header.Get("X-Next-Page"); {
	case next != "":
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(issueIdx, next)
	case issueIdx+1 < len(c.issues):
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(issueIdx+1, "")
	}
	return page, nil
}

func (c *Connector) getPaged(ctx context.Context, path, pageToken string, limit int, out any) (header http.Header, err error) {
	query := url.Values{"per_page": {strconv.Itoa(limit)}}
	if pageToken != "" {
		if _, err := strconv.Atoi(pageToken); err != nil {
			return nil, fmt.Errorf("malformed page token %q: %w", pageToken, err)
		}
		query.Set("page", pageToken)
	}
	return c.rest.GetJSON(ctx, path, query, out)
}

func nextFromHeader(page *connectors.Page, header http.Header) {
	if next := header.Get("X-Next-Page"); next != "" {
		page.HasMore = true
		page.NextToken = next
	}
}
