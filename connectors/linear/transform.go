package linear

import (
	"fmt"
	"time"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case linearTeam:
		return c.transformTeam(rec, data), nil
	case linearUser:
		return c.transformUser(rec, data), nil
	case linearState:
		return c.transformState(rec, data), nil
	case linearLabel:
		return c.transformLabel(rec, data), nil
	case linearIssue:
		return c.transformIssue(rec, data, tctx)
	case linearComment:
		return c.transformComment(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected linear payload %T", rec.Data))
	}
}

func (c *Connector) transformTeam(rec connectors.SourceRecord, data linearTeam) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorLinear,
		Name:           data.Name,
		Key:            data.Key,
		Description:    data.Description,
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, data linearUser) model.Record {
	display := data.DisplayName
	if display == "" {
		display = data.Name
	}
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorLinear,
		Email:          data.Email,
		DisplayName:    display,
		AvatarURL:      data.AvatarURL,
	}
}

var stateTypeGroups = map[string]model.StateGroup{
	"triage":    model.StateGroupBacklog,
	"backlog":   model.StateGroupBacklog,
	"unstarted": model.StateGroupUnstarted,
	"started":   model.StateGroupStarted,
	"completed": model.StateGroupCompleted,
	"canceled":  model.StateGroupCancelled,
}

func (c *Connector) transformState(rec connectors.SourceRecord, data linearState) model.Record {
	group, ok := stateTypeGroups[data.Type]
	if !ok {
		group = model.StateGroupUnstarted
	}
	return model.State{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorLinear,
		Name:           data.Name,
		Group:          group,
		Color:          data.Color,
	}
}

func (c *Connector) transformLabel(rec connectors.SourceRecord, data linearLabel) model.Record {
	return model.Label{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorLinear,
		Name:           data.Name,
		Color:          data.Color,
	}
}

// priorityNames indexes Linear's numeric priority scale.
var priorityNames = map[int]string{
	0: "none",
	1: "urgent",
	2: "high",
	3: "medium",
	4: "low",
}

func (c *Connector) transformIssue(rec connectors.SourceRecord, data linearIssue, tctx *connectors.TransformContext) (model.Record, error) {
	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorLinear,
		Name:            data.Title,
		DescriptionHTML: htmlParagraph(data.Description),
		Priority:        "none",
		CreatedAt:       parseTime(data.CreatedAt),
		TargetDate:      data.DueDate,
	}
	if data.URL != "" {
		issue.Links = []model.Link{{Name: "Linked Linear Issue", URL: data.URL}}
	}
	if name, ok := priorityNames[int(data.Priority)]; ok {
		if target, mapped := tctx.Config.TargetPriorityFor(name); mapped {
			issue.Priority = target
		} else {
			issue.Priority = name
		}
	}
	if data.Creator != nil && data.Creator.ID != "" {
		issue.CreatedBy = c.key(data.Creator.ID)
	}
	if data.Assignee != nil && data.Assignee.ID != "" {
		issue.AssigneeExternalIDs = []string{c.key(data.Assignee.ID)}
	}
	if data.Parent != nil && data.Parent.ID != "" {
		issue.ParentExternalID = c.key(data.Parent.ID)
	}
	for _, label := range data.Labels.Nodes {
		if label.ID != "" {
			issue.LabelExternalIDs = append(issue.LabelExternalIDs, c.key(label.ID))
		}
	}

	if data.State.ID == "" {
		return nil, model.UnmappedStateError(model.EntityIssue, rec.ExternalID, "")
	}
	if target, ok := tctx.Config.TargetStateFor(data.State.ID); ok {
		issue.StateID = target.ID
	} else {
		issue.StateExternalID = c.key(data.State.ID)
	}
	return issue, nil
}

func (c *Connector) transformComment(rec connectors.SourceRecord, data linearComment) model.Record {
	comment := model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorLinear,
		CommentHTML:     htmlParagraph(data.Body),
		CreatedAt:       parseTime(data.CreatedAt),
		IssueExternalID: c.key(data.Issue.ID),
	}
	if data.User != nil && data.User.ID != "" {
		comment.Actor = c.key(data.User.ID)
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
