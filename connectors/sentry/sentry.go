package sentry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

const defaultBaseURL = "https://sentry.io"

// Meta carries the organization and project slugs of one Sentry import.
type Meta struct {
	OrganizationSlug string `mapstructure:"organization_slug"`
	ProjectSlug      string `mapstructure:"project_slug"`
}

type Connector struct {
	cfg  *model.ConnectionConfig
	meta Meta
	rest *connectors.RESTClient
	log  logger.Logger
}

func init() {
	connectors.Register(model.ConnectorSentry, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding sentry meta: %w", err)
	}
	if meta.OrganizationSlug == "" || meta.ProjectSlug == "" {
		return nil, fmt.Errorf("sentry config requires organization_slug and project_slug")
	}
	baseURL := cfg.Credential.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Connector{
		cfg:  cfg,
		meta: meta,
		rest: connectors.NewRESTClient(conf, log, strings.TrimSuffix(baseURL, "/")+"/api/0",
			connectors.BearerAuth(cfg.Credential.AccessToken)),
		log: log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorSentry }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityIssue,
	}
}

func (c *Connector) key(id string) string {
	return strings.Join([]string{c.meta.OrganizationSlug, c.meta.ProjectSlug, id}, "_")
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
	case model.EntityIssue:
		return c.fetchIssues(ctx, pageToken, limit)
	default:
		return connectors.Page{}, fmt.Errorf("sentry does not emit entity type %s", et)
	}
}

func (c *Connector) fetchProject(ctx context.Context) (connectors.Page, error) {
	var project sentryProject
	path := "/projects/" + c.meta.OrganizationSlug + "/" + c.meta.ProjectSlug + "/"
	if _, err := c.rest.GetJSON(ctx, path, nil, &project); err != nil {
		return connectors.Page{}, err
	}
	if project.ID == "" || project.Name == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.ProjectSlug, "project payload missing id or name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(project.ID),
		Data:       project,
	}}}, nil
}

func (c *Connector) fetchMembers(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	query := cursorQuery(pageToken, limit)
	var members []sentryMember
	header, err := c.rest.GetJSON(ctx, "/organizations/"+c.meta.OrganizationSlug+"/members/", query, &members)
	if err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, m := range members {
		if m.ID == "" || m.Email == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(m.ID),
			Data:       m,
		})
	}
	applyLinkCursor(&page, header)
	return page, nil
}

func (c *Connector) fetchIssues(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	query := cursorQuery(pageToken, limit)
	query.Set("query", "") // all issues, not just unresolved
	path := "/projects/" + c.meta.OrganizationSlug + "/" + c.meta.ProjectSlug + "/issues/"
	var issues []sentryIssue
	header, err := c.rest.GetJSON(ctx, path, query, &issues)
	if err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, issue := range issues {
		if issue.ID == "" || issue.Title == "" {
			page.Failed = append(page.Failed, model.MalformedRecordError(model.EntityIssue, issue.ID, "issue payload missing id or title"))
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: c.key(issue.ID),
			Data:       issue,
		})
	}
	applyLinkCursor(&page, header)
	return page, nil
}

func cursorQuery(pageToken string, limit int) url.Values {
	query := url.Values{"per_page": {fmt.Sprintf("%d", limit)}}
	if pageToken != "" {
		query.Set("cursor", pageToken)
	}
	return query
}

// nextCursorRe pulls the cursor out of sentry's Link header, which marks the
// next page with rel="next" and results="true".
var nextCursorRe = regexp.MustCompile(`<[^>]*[?&]cursor=([^&>]+)[^>]*>;[^,]*rel="next";[^,]*results="true"`)

func applyLinkCursor(page *connectors.Page, header http.Header) {
	link := header.Get("Link")
	if link == "" {
		return
	}
	m := nextCursorRe.FindStringSubmatch(link)
	if m == nil {
		return
	}
	cursor, err := url.QueryUnescape(m[1])
	if err != nil {
		cursor = m[1]
	}
	page.HasMore = true
	page.NextToken = cursor
}
