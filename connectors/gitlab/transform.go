package gitlab

import (
	"fmt"
	"strconv"
	"time"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case gitlabProject:
		return c.transformProject(rec, data), nil
	case gitlabUser:
		return c.transformUser(rec, data), nil
	case gitlabLabel:
		return c.transformLabel(rec, data), nil
	case gitlabIssue:
		return c.transformIssue(rec, data, tctx)
	case noteRecord:
		return c.transformNote(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected gitlab payload %T", rec.Data))
	}
}

func (c *Connector) transformProject(rec connectors.SourceRecord, data gitlabProject) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGitlab,
		Name:           data.Name,
		Key:            data.Path,
		Description:    data.Description,
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, data gitlabUser) model.Record {
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGitlab,
		Email:          data.Email,
		DisplayName:    data.Username,
		AvatarURL:      data.AvatarURL,
	}
}

func (c *Connector) transformLabel(rec connectors.SourceRecord, data gitlabLabel) model.Record {
	return model.Label{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGitlab,
		Name:           data.Name,
		Color:          data.Color,
	}
}

func (c *Connector) transformIssue(rec connectors.SourceRecord, data gitlabIssue, tctx *connectors.TransformContext) (model.Record, error) {
	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorGitlab,
		Name:            data.Title,
		DescriptionHTML: htmlParagraph(data.Description),
		Priority:        "none",
		CreatedAt:       parseTime(data.CreatedAt),
		TargetDate:      data.DueDate,
	}
	if data.WebURL != "" {
		issue.Links = []model.Link{{Name: "Linked GitLab Issue", URL: data.WebURL}}
	}
	if data.Author != nil && data.Author.ID != 0 {
		issue.CreatedBy = c.key(strconv.FormatInt(data.Author.ID, 10))
	}
	for _, assignee := range data.Assignees {
		if assignee.ID != 0 {
			issue.AssigneeExternalIDs = append(issue.AssigneeExternalIDs, c.key(strconv.FormatInt(assignee.ID, 10)))
		}
	}
	for _, label := range data.Labels {
		issue.LabelExternalIDs = append(issue.LabelExternalIDs, c.key(label))
	}

	stateID, err := c.resolveState(rec, data.State, tctx.Config)
	if err != nil {
		return nil, err
	}
	issue.StateID = stateID
	return issue, nil
}

// resolveState maps gitlab's opened/closed pair onto the target workflow via
// the configured map, falling back to the default backlog/completed states.
func (c *Connector) resolveState(rec connectors.SourceRecord, state string, cfg *model.ConnectionConfig) (string, error) {
	if target, ok := cfg.TargetStateFor(state); ok {
		return target.ID, nil
	}
	resolved, unresolved := cfg.DefaultStatePair()
	switch state {
	case "opened":
		if unresolved != nil {
			return unresolved.ID, nil
		}
	case "closed":
		if resolved != nil {
			return resolved.ID, nil
		}
	}
	return "", model.UnmappedStateError(model.EntityIssue, rec.ExternalID, state)
}

func (c *Connector) transformNote(rec connectors.SourceRecord, data noteRecord) model.Record {
	comment := model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorGitlab,
		CommentHTML:     htmlParagraph(data.note.Body),
		CreatedAt:       parseTime(data.note.CreatedAt),
		IssueExternalID: c.key(strconv.FormatInt(data.issueIID, 10)),
	}
	if data.note.Author != nil && data.note.Author.ID != 0 {
		comment.Actor = c.key(strconv.FormatInt(data.note.Author.ID, 10))
	}
	return comment
}

func htmlParagraph(text string) string {
	if text == "" {
		return "<p></p>"
	}
	return "<p>" + text + "</p>"
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
