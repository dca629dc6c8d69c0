package clickup

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

const defaultBaseURL = "https://api.clickup.com/api/v2"

type Meta struct {
	TeamID  string   `mapstructure:"team_id"`
	ListIDs []string `mapstructure:"list_ids"`
}

type Connector struct {
	cfg  *model.ConnectionConfig
	meta Meta
	rest *connectors.RESTClient
	log  logger.Logger

	// populated while pulling, consumed by later entity types of the same job
	lists  []clickupList
	fields []fieldRecord
	tasks  []taskRecord
}

func init() {
	connectors.Register(model.ConnectorClickup, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding clickup meta: %w", err)
	}
	if meta.TeamID == "" || len(meta.ListIDs) == 0 {
		return nil, fmt.Errorf("clickup config requires team_id and at least one list_id")
	}
	baseURL := cfg.Credential.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Connector{
		cfg:  cfg,
		meta: meta,
		rest: connectors.NewRESTClient(conf, log, baseURL,
			connectors.TokenHeaderAuth("Authorization", cfg.Credential.AccessToken)),
		log: log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorClickup }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityState,
		model.EntityProperty,
		model.EntityPropertyOption,
		model.EntityIssue,
		model.EntityComment,
		model.EntityAttachment,
	}
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	switch et {
	case model.EntityProject:
		return c.fetchLists(ctx)
	case model.EntityUser:
		return c.fetchMembers(ctx)
	case model.EntityState:
		return c.fetchStates()
	case model.EntityProperty:
		return c.fetchFields(ctx)
	case model.EntityPropertyOption:
		return c.fetchFieldOptions()
	case model.EntityIssue:
		return c.fetchTasks(ctx, pageToken)
	case model.EntityComment:
		return c.fetchComments(ctx, pageToken)
	case model.EntityAttachment:
		return c.fetchAttachments()
	default:
		return connectors.Page{}, fmt.Errorf("clickup does not emit entity type %s", et)
	}
}

func (c *Connector) fetchLists(ctx context.Context) (connectors.Page, error) {
	var page connectors.Page
	c.lists = c.lists[:0]
	for _, listID := range c.meta.ListIDs {
		var list clickupList
		if _, err := c.rest.GetJSON(ctx, "/list/"+listID, nil, &list); err != nil {
			return connectors.Page{}, err
		}
		if list.ID == "" || list.Name == "" {
			return connectors.Page{}, model.MalformedRecordError(model.EntityProject, listID, "list payload missing id or name")
		}
		c.lists = append(c.lists, list)
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityProject,
			ExternalID: projectKey(c.meta.TeamID, list.ID),
			Data:       listRecord{list: list},
		})
	}
	return page, nil
}

func (c *Connector) fetchMembers(ctx context.Context) (connectors.Page, error) {
	var resp teamResponse
	if _, err := c.rest.GetJSON(ctx, "/team/"+c.meta.TeamID, nil, &resp); err != nil {
		return connectors.Page{}, err
	}
	var page connectors.Page
	for _, m := range resp.Team.Members {
		if m.User.ID == 0 {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: userKey(c.meta.TeamID, strconv.FormatInt(m.User.ID, 10)),
			Data:       userRecord{user: m.User, teamID: c.meta.TeamID},
		})
	}
	return page, nil
}

// fetchStates reads off the lists pulled in the project stage.
func (c *Connector) fetchStates() (connectors.Page, error) {
	var page connectors.Page
	for _, list := range c.lists {
		for _, st := range list.Statuses {
			page.Records = append(page.Records, connectors.SourceRecord{
				EntityType: model.EntityState,
				ExternalID: stateKey(list.ID, st.Status),
				Data:       stateRecord{status: st, listID: list.ID},
			})
		}
	}
	return page, nil
}

func (c *Connector) fetchFields(ctx context.Context) (connectors.Page, error) {
	var page connectors.Page
	for _, listID := range c.meta.ListIDs {
		var resp fieldsResponse
		if _, err := c.rest.GetJSON(ctx, "/list/"+listID+"/field", nil, &resp); err != nil {
			return connectors.Page{}, err
		}
		for _, f := range resp.Fields {
			if f.ID == "" {
				continue
			}
			c.fields = append(c.fields, fieldRecord{field: f, listID: listID})
			page.Records = append(page.Records, connectors.SourceRecord{
				EntityType: model.EntityProperty,
				ExternalID: customFieldKey(listID, f.ID),
				Data:       fieldRecord{field: f, listID: listID},
			})
		}
	}
	return page, nil
}

// fetchFieldOptions reads off the fields pulled in the property stage.
func (c *Connector) fetchFieldOptions() (connectors.Page, error) {
	var page connectors.Page
	for _, fr := range c.fields {
		for _, opt := range fr.field.TypeConfig.Options {
			page.Records = append(page.Records, connectors.SourceRecord{
				EntityType: model.EntityPropertyOption,
				ExternalID: customFieldOptionKey(fr.listID, fr.field.ID, opt.ID),
				Data:       optionRecord{option: opt, fieldID: fr.field.ID, listID: fr.listID},
			})
		}
	}
	return page, nil
}

// fetchTasks walks the configured lists, paging within each. Token format is
// listIndex:page.
func (c *Connector) fetchTasks(ctx context.Context, pageToken string) (connectors.Page, error) {
	listIdx, sub, err := connectors.DecodeIndexToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	if listIdx >= len(c.meta.ListIDs) {
		return connectors.Page{}, nil
	}
	pageNum := 0
	if sub != "" {
		if pageNum, err = strconv.Atoi(sub); err != nil {
			return connectors.Page{}, fmt.Errorf("malformed task page token %q: %w", pageToken, err)
		}
	}

	listID := c.meta.ListIDs[listIdx]
	query := url.Values{
		"page":           {strconv.Itoa(pageNum)},
		"include_closed": {"true"},
		"subtasks":       {"true"},
	}
	var resp tasksResponse
	if _, err := c.rest.GetJSON(ctx, "/list/"+listID+"/task", query, &resp); err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, task := range resp.Tasks {
		if task.ID == "" || task.Name == "" {
			page.Failed = append(page.Failed, model.MalformedRecordError(model.EntityIssue, task.ID, "task payload missing id or name"))
			continue
		}
		c.tasks = append(c.tasks, taskRecord{task: task, listID: listID})
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: taskKey(listID, task.ID),
			Data:       taskRecord{task: task, listID: listID},
		})
	}

	switch {
	case !resp.LastPage && len(resp.Tasks) > 0:
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(listIdx, strconv.Itoa(pageNum+1))
	case listIdx+1 < len(c.meta.ListIDs):
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(listIdx+1, "")
	}
	return page, nil
}

// fetchComments walks the tasks pulled in the issue stage, one task per page.
func (c *Connector) fetchComments(ctx context.Context, pageToken string) (connectors.Page, error) {
	taskIdx, _, err := connectors.DecodeIndexToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	if taskIdx >= len(c.tasks) {
		return connectors.Page{}, nil
	}

	ref := taskRef{taskID: c.tasks[taskIdx].task.ID, listID: c.tasks[taskIdx].listID}
	var resp commentsResponse
	if _, err := c.rest.GetJSON(ctx, "/task/"+ref.taskID+"/comment", nil, &resp); err != nil {
		return connectors.Page{}, err
	}

	var page connectors.Page
	for _, comment := range resp.Comments {
		if comment.ID == "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: commentKey(ref.taskID, comment.ID),
			Data:       commentRecord{comment: comment, task: ref},
		})
	}
	if taskIdx+1 < len(c.tasks) {
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(taskIdx+1, "")
	}
	return page, nil
}

// fetchAttachments reads off the task payloads pulled in the issue stage.
func (c *Connector) fetchAttachments() (connectors.Page, error) {
	var page connectors.Page
	for _, tr := range c.tasks {
		ref := taskRef{taskID: tr.task.ID, listID: tr.listID}
		for _, att := range tr.task.Attachments {
			if att.ID == "" {
				continue
			}
			page.Records = append(page.Records, connectors.SourceRecord{
				EntityType: model.EntityAttachment,
				ExternalID: attachmentKey(ref.taskID, att.ID),
				Data:       attachmentRecord{attachment: att, task: ref},
			})
		}
	}
	return page, nil
}
