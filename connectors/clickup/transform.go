package clickup

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case listRecord:
		return c.transformList(rec, data), nil
	case userRecord:
		return c.transformUser(rec, data), nil
	case stateRecord:
		return c.transformState(rec, data), nil
	case fieldRecord:
		return c.transformField(rec, data)
	case optionRecord:
		return c.transformOption(rec, data), nil
	case taskRecord:
		return c.transformTask(rec, data, tctx)
	case commentRecord:
		return c.transformComment(rec, data), nil
	case attachmentRecord:
		return c.transformAttachment(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected clickup payload %T", rec.Data))
	}
}

func (c *Connector) transformList(rec connectors.SourceRecord, data listRecord) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorClickup,
		Name:           data.list.Name,
		Description:    data.list.Content,
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, data userRecord) model.Record {
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorClickup,
		Email:          data.user.Email,
		DisplayName:    data.user.Username,
		AvatarURL:      data.user.ProfilePicture,
	}
}

var statusTypeGroups = map[string]model.StateGroup{
	"open":   model.StateGroupBacklog,
	"custom": model.StateGroupStarted,
	"done":   model.StateGroupCompleted,
	"closed": model.StateGroupCompleted,
}

func (c *Connector) transformState(rec connectors.SourceRecord, data stateRecord) model.Record {
	group, ok := statusTypeGroups[data.status.Type]
	if !ok {
		group = model.StateGroupUnstarted
	}
	return model.State{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorClickup,
		Name:           data.status.Status,
		Group:          group,
		Color:          data.status.Color,
	}
}

var fieldValueTypes = map[string]model.PropertyValueType{
	"text":      model.PropertyTypeText,
	"number":    model.PropertyTypeNumber,
	"drop_down": model.PropertyTypeOption,
	"labels":    model.PropertyTypeOption,
	"date":      model.PropertyTypeDate,
	"users":     model.PropertyTypeUser,
	"url":       model.PropertyTypeURL,
	"checkbox":  model.PropertyTypeCheckbox,
}

func (c *Connector) transformField(rec connectors.SourceRecord, data fieldRecord) (model.Record, error) {
	valueType, ok := fieldValueTypes[data.field.Type]
	if !ok {
		return nil, model.UnmappedPropertyError(model.EntityProperty, rec.ExternalID, data.field.Type)
	}
	return model.Property{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorClickup,
		DisplayName:    data.field.Name,
		ValueType:      valueType,
		IsMulti:        data.field.Type == "labels" || data.field.Type == "users",
		IsActive:       true,
	}, nil
}

func (c *Connector) transformOption(rec connectors.SourceRecord, data optionRecord) model.Record {
	name := data.option.Name
	if name == "" {
		name = data.option.Label
	}
	return model.PropertyOption{
		ExternalID:         rec.ExternalID,
		ExternalSource:     model.ConnectorClickup,
		Name:               name,
		IsActive:           true,
		PropertyExternalID: customFieldKey(data.listID, data.fieldID),
	}
}

func (c *Connector) transformTask(rec connectors.SourceRecord, data taskRecord, tctx *connectors.TransformContext) (model.Record, error) {
	task := data.task

	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorClickup,
		Name:            task.Name,
		DescriptionHTML: htmlParagraph(task.Description),
		Priority:        "none",
		CreatedAt:       parseMillis(task.DateCreated),
		StartDate:       millisToDate(task.StartDate),
		TargetDate:      millisToDate(task.DueDate),
	}
	if task.URL != "" {
		issue.Links = []model.Link{{Name: "Linked ClickUp Task", URL: task.URL}}
	}
	if task.Creator != nil {
		issue.CreatedBy = userKey(c.meta.TeamID, strconv.FormatInt(task.Creator.ID, 10))
	}
	if task.Priority != nil && task.Priority.Priority != "" {
		if target, ok := tctx.Config.TargetPriorityFor(task.Priority.Priority); ok {
			issue.Priority = target
		}
	}

	// state: explicit mapping wins, otherwise reference the pulled status by
	// its external id
	if target, ok := tctx.Config.TargetStateFor(stateKey(data.listID, task.Status.Status)); ok {
		issue.StateID = target.ID
	} else if task.Status.Status != "" {
		issue.StateExternalID = stateKey(data.listID, task.Status.Status)
	} else {
		return nil, model.UnmappedStateError(model.EntityIssue, rec.ExternalID, task.Status.Status)
	}

	if task.Parent != "" {
		issue.ParentExternalID = taskKey(data.listID, task.Parent)
	}
	issue.AssigneeExternalIDs = lo.Map(task.Assignees, func(u clickupUser, _ int) string {
		return userKey(c.meta.TeamID, strconv.FormatInt(u.ID, 10))
	})

	for _, fv := range task.CustomFields {
		if fv.Value == nil {
			continue
		}
		issue.PropertyValues = append(issue.PropertyValues, model.PropertyValue{
			PropertyExternalID: customFieldKey(data.listID, fv.ID),
			ExternalSource:     model.ConnectorClickup,
			Value:              cast.ToString(fv.Value),
		})
	}
	return issue, nil
}

func (c *Connector) transformComment(rec connectors.SourceRecord, data commentRecord) model.Record {
	return model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorClickup,
		CommentHTML:     htmlParagraph(data.comment.CommentText),
		Actor:           userKey(c.meta.TeamID, strconv.FormatInt(data.comment.User.ID, 10)),
		CreatedAt:       parseMillis(data.comment.Date),
		IssueExternalID: taskKey(data.task.listID, data.task.taskID),
	}
}

func (c *Connector) transformAttachment(rec connectors.SourceRecord, data attachmentRecord) model.Record {
	name := data.attachment.Title
	if name == "" {
		name = "Untitled"
	}
	return model.Attachment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorClickup,
		Name:            name,
		Size:            data.attachment.Size,
		AssetURL:        data.attachment.URL,
		IssueExternalID: taskKey(data.task.listID, data.task.taskID),
	}
}

func htmlParagraph(text string) string {
	if text == "" {
		return "<p></p>"
	}
	return "<p>" + text + "</p>"
}

func parseMillis(millis string) *time.Time {
	if millis == "" {
		return nil
	}
	n, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(n).UTC()
	return &t
}

func millisToDate(millis string) string {
	t := parseMillis(millis)
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
