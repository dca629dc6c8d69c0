package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/jsonrs"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

const defaultBaseURL = "https://api.linear.app"

// Meta carries the team coordinates of one Linear import.
type Meta struct {
	TeamID string `mapstructure:"team_id"`
}

type Connector struct {
	cfg  *model.ConnectionConfig
	meta Meta
	rest *connectors.RESTClient
	log  logger.Logger
}

func init() {
	connectors.Register(model.ConnectorLinear, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding linear meta: %w", err)
	}
	if meta.TeamID == "" {
		return nil, fmt.Errorf("linear config requires team_id")
	}
	baseURL := cfg.Credential.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	// Linear personal API keys go bare in the Authorization header
	return &Connector{
		cfg:  cfg,
		meta: meta,
		rest: connectors.NewRESTClient(conf, log, baseURL,
			connectors.TokenHeaderAuth("Authorization", cfg.Credential.AccessToken)),
		log: log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorLinear }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityState,
		model.EntityLabel,
		model.EntityIssue,
		model.EntityComment,
	}
}

func (c *Connector) key(id string) string {
	return strings.Join([]string{c.meta.TeamID, id}, "_")
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// query executes one GraphQL request and fails on response-level errors.
func (c *Connector) query(ctx context.Context, query string, variables map[string]any, data any) error {
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if _, err := c.rest.PostJSON(ctx, "/graphql", graphqlRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "authentication") {
			return model.AuthError("linear rejected credentials: "+msg, nil)
		}
		return model.PermanentFetchError("linear query failed: "+msg, nil)
	}
	if data == nil {
		return nil
	}
	if err := jsonrs.Unmarshal(resp.Data, data); err != nil {
		return model.FetchError("decoding linear response", err)
	}
	return nil
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	switch et {
	case model.EntityProject:
		return c.fetchTeam(ctx)
	case model.EntityUser:
		return c.fetchMembers(ctx, pageToken, limit)
	case model.EntityState:
		return c.fetchStates(ctx, pageToken, limit)
	case model.EntityLabel:
		return c.fetchLabels(ctx, pageToken, limit)
	case model.EntityIssue:
		return c.fetchIssues(ctx, pageToken, limit)
	case model.EntityComment:
		return c.fetchComments(ctx, pageToken, limit)
	default:
		return connectors.Page{}, fmt.Errorf("linear does not emit entity type %s", et)
	}
}

const teamQuery = `query($id: String!) {
  team(id: $id) { id name key description }
}`

func (c *Connector) fetchTeam(ctx context.Context) (connectors.Page, error) {
	var data struct {
		Team linearTeam `json:"team"`
	}
	if err := c.query(ctx, teamQuery, map[string]any{"id": c.meta.TeamID}, &data); err != nil {
		return connectors.Page{}, err
	}
	if data.Team.ID == "" || data.Team.Name == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.TeamID, "team payload missing id or name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(data.Team.ID),
		Data:       data.Team,
	}}}, nil
}

const membersQuery = `query($id: String!, $first: Int!, $after: String) {
  team(id: $id) {
    members(first: $first, after: $after) {
      nodes { id name displayName email avatarUrl }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

func (c *Connector) fetchMembers(ctx context.Context, after string, limit int) (connectors.Page, error) {
	var data struct {
		Team struct {
			Members linearConnection[linearUser] `json:"members"`
		} `json:"team"`
	}
	if err := c.query(ctx, membersQuery, cursorVars(c.meta.TeamID, after, limit), &data); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, u := range data.Team.Members.Nodes {
		if u.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(u.ID),
			Data:       u,
		})
	}
	applyPageInfo(&page, data.Team.Members.PageInfo)
	return page, nil
}

const statesQuery = `query($id: String!, $first: Int!, $after: String) {
  team(id: $id) {
    states(first: $first, after: $after) {
      nodes { id name color type }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

func (c *Connector) fetchStates(ctx context.Context, after string, limit int) (connectors.Page, error) {
	var data struct {
		Team struct {
			States linearConnection[linearState] `json:"states"`
		} `json:"team"`
	}
	if err := c.query(ctx, statesQuery, cursorVars(c.meta.TeamID, after, limit), &data); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, st := range data.Team.States.Nodes {
		if st.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityState,
			ExternalID: c.key(st.ID),
			Data:       st,
		})
	}
	applyPageInfo(&page, data.Team.States.PageInfo)
	return page, nil
}

const labelsQuery = `query($id: String!, $first: Int!, $after: String) {
  team(id: $id) {
    labels(first: $first, after: $after) {
      nodes { id name color }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

func (c *Connector) fetchLabels(ctx context.Context, after string, limit int) (connectors.Page, error) {
	var data struct {
		Team struct {
			Labels linearConnection[linearLabel] `json:"labels"`
		} `json:"team"`
	}
	if err := c.query(ctx, labelsQuery, cursorVars(c.meta.TeamID, after, limit), &data); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, label := range data.Team.Labels.Nodes {
		if label.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityLabel,
			ExternalID: c.key(label.ID),
			Data:       label,
		})
	}
	applyPageInfo(&page, data.Team.Labels.PageInfo)
	return page, nil
}

const issuesQuery = `query($id: String!, $first: Int!, $after: String) {
  team(id: $id) {
    issues(first: $first, after: $after) {
      nodes {
        id title description priority createdAt dueDate url
        state { id }
        creator { id }
        parent { id }
        assignee { id }
        labels { nodes { id } }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

func (c *Connector) fetchIssues(ctx context.Context, after string, limit int) (connectors.Page, error) {
	var data struct {
		Team struct {
			Issues linearConnection[linearIssue] `json:"issues"`
		} `json:"team"`
	}
	if err := c.query(ctx, issuesQuery, cursorVars(c.meta.TeamID, after, limit), &data); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, issue := range data.Team.Issues.Nodes {
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
	applyPageInfo(&page, data.Team.Issues.PageInfo)
	return page, nil
}

const commentsQuery = `query($id: ID!, $first: Int!, $after: String) {
  comments(first: $first, after: $after, filter: { issue: { team: { id: { eq: $id } } } }) {
    nodes {
      id body createdAt
      user { id }
      issue { id }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *Connector) fetchComments(ctx context.Context, after string, limit int) (connectors.Page, error) {
	var data struct {
		Comments linearConnection[linearComment] `json:"comments"`
	}
	if err := c.query(ctx, commentsQuery, cursorVars(c.meta.TeamID, after, limit), &data); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, comment := range data.Comments.Nodes {
		if comment.ID == "" || comment.Issue.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: c.key(comment.ID),
			Data:       comment,
		})
	}
	applyPageInfo(&page, data.Comments.PageInfo)
	return page, nil
}

func cursorVars(teamID, after string, limit int) map[string]any {
	vars := map[string]any{"id": teamID, "first": limit}
	if after != "" {
		vars["after"] = after
	}
	return vars
}

func applyPageInfo(page *connectors.Page, info linearPageInfo) {
	if info.HasNextPage && info.EndCursor != "" {
		page.HasMore = true
		page.NextToken = info.EndCursor
	}
}
