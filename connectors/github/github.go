package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v63/github"
	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// Meta carries the repository coordinates of one GitHub import.
type Meta struct {
	Owner string `mapstructure:"owner"`
	Repo  string `mapstructure:"repo"`
}

type Connector struct {
	cfg    *model.ConnectionConfig
	meta   Meta
	client *gh.Client
	log    logger.Logger
}

func init() {
	connectors.Register(model.ConnectorGithub, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding github meta: %w", err)
	}
	if meta.Owner == "" || meta.Repo == "" {
		return nil, fmt.Errorf("github config requires owner and repo")
	}

	httpClient := &http.Client{
		Timeout: conf.GetDuration("Connector.httpTimeout", 30, time.Second),
	}
	client := gh.NewClient(httpClient).WithAuthToken(cfg.Credential.AccessToken)
	if cfg.Credential.BaseURL != "" {
		base, err := client.WithEnterpriseURLs(cfg.Credential.BaseURL, cfg.Credential.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("setting github base url: %w", err)
		}
		client = base
	}
	return &Connector{cfg: cfg, meta: meta, client: client, log: log}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorGithub }

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
	return strings.Join([]string{c.meta.Owner, c.meta.Repo, id}, "_")
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	pageNum, err := parsePageToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}

	switch et {
	case model.EntityProject:
		return c.fetchRepo(ctx)
	case model.EntityUser:
		return c.fetchCollaborators(ctx, pageNum, limit)
	case model.EntityLabel:
		return c.fetchLabels(ctx, pageNum, limit)
	case model.EntityIssue:
		return c.fetchIssues(ctx, pageNum, limit)
	case model.EntityComment:
		return c.fetchComments(ctx, pageNum, limit)
	default:
		return connectors.Page{}, fmt.Errorf("github does not emit entity type %s", et)
	}
}

func (c *Connector) fetchRepo(ctx context.Context) (connectors.Page, error) {
	repo, _, err := c.client.Repositories.Get(ctx, c.meta.Owner, c.meta.Repo)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	if repo.GetName() == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.Repo, "repository payload missing name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(strconv.FormatInt(repo.GetID(), 10)),
		Data:       repo,
	}}}, nil
}

func (c *Connector) fetchCollaborators(ctx context.Context, pageNum, limit int) (connectors.Page, error) {
	opts := &gh.ListCollaboratorsOptions{
		ListOptions: gh.ListOptions{Page: pageNum, PerPage: limit},
	}
	users, resp, err := c.client.Repositories.ListCollaborators(ctx, c.meta.Owner, c.meta.Repo, opts)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	var page connectors.Page
	for _, u := range users {
		if u.GetLogin() == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(u.GetLogin()),
			Data:       u,
		})
	}
	nextPage(&page, resp)
	return page, nil
}

func (c *Connector) fetchLabels(ctx context.Context, pageNum, limit int) (connectors.Page, error) {
	opts := &gh.ListOptions{Page: pageNum, PerPage: limit}
	labels, resp, err := c.client.Issues.ListLabels(ctx, c.meta.Owner, c.meta.Repo, opts)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	var page connectors.Page
	for _, label := range labels {
		if label.GetName() == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityLabel,
			ExternalID: c.key(label.GetName()),
			Data:       label,
		})
	}
	nextPage(&page, resp)
	return page, nil
}

func (c *Connector) fetchIssues(ctx context.Context, pageNum, limit int) (connectors.Page, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{Page: pageNum, PerPage: limit},
	}
	issues, resp, err := c.client.Issues.ListByRepo(ctx, c.meta.Owner, c.meta.Repo, opts)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	var page connectors.Page
	for _, issue := range issues {
		// the issues listing includes pull requests
		if issue.IsPullRequest() {
			continue
		}
		if issue.GetNumber() == 0 || issue.GetTitle() == "" {
			page.Failed = append(page.Failed, model.MalformedRecordError(model.EntityIssue, strconv.Itoa(issue.GetNumber()), "issue payload missing number or title"))
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: c.key(strconv.Itoa(issue.GetNumber())),
			Data:       issue,
		})
	}
	nextPage(&page, resp)
	return page, nil
}

// fetchComments lists every issue comment of the repository in one paged
// sweep; the parent issue rides on each comment's issue url.
func (c *Connector) fetchComments(ctx context.Context, pageNum, limit int) (connectors.Page, error) {
	sort := "created"
	opts := &gh.IssueListCommentsOptions{
		Sort:        &sort,
		ListOptions: gh.ListOptions{Page: pageNum, PerPage: limit},
	}
	comments, resp, err := c.client.Issues.ListComments(ctx, c.meta.Owner, c.meta.Repo, 0, opts)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	var page connectors.Page
	for _, comment := range comments {
		if comment.GetID() == 0 || issueNumberFromURL(comment.GetIssueURL()) == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: c.key(strconv.FormatInt(comment.GetID(), 10)),
			Data:       comment,
		})
	}
	nextPage(&page, resp)
	return page, nil
}

func nextPage(page *connectors.Page, resp *gh.Response) {
	if resp != nil && resp.NextPage != 0 {
		page.HasMore = true
		page.NextToken = strconv.Itoa(resp.NextPage)
	}
}

func parsePageToken(token string) (int, error) {
	if token == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("malformed page token %q: %w", token, err)
	}
	return n, nil
}

func issueNumberFromURL(issueURL string) string {
	idx := strings.LastIndex(issueURL, "/")
	if idx < 0 || idx == len(issueURL)-1 {
		return ""
	}
	return issueURL[idx+1:]
}

// classifyErr folds go-github error types into the import taxonomy. Both rate
// limit shapes pause the whole job until the reported reset.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait <= 0 {
			wait = time.Minute
		}
		return model.RateLimitedError(wait)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		wait := abuseErr.GetRetryAfter()
		if wait <= 0 {
			wait = time.Minute
		}
		return model.RateLimitedError(wait)
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return model.AuthError(fmt.Sprintf("github rejected credentials: %d", code), err)
		case code >= 400 && code < 500:
			return model.PermanentFetchError(fmt.Sprintf("github request failed: %d", code), err)
		}
	}
	return model.FetchError("github request failed", err)
}
