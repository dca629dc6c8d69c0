package jira

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// importedLabel marks every issue that went through the import.
const importedLabel = "JIRA IMPORTED"

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case jiraProject:
		return c.transformProject(rec, data), nil
	case jiraUser:
		return c.transformUser(rec, data), nil
	case jiraStatus:
		return c.transformStatus(rec, data), nil
	case string:
		return c.transformLabel(rec, data), nil
	case jiraIssue:
		return c.transformIssue(rec, data, tctx)
	case commentRecord:
		return c.transformComment(rec, data), nil
	case attachmentRecord:
		return c.transformAttachment(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected jira payload %T", rec.Data))
	}
}

func (c *Connector) transformProject(rec connectors.SourceRecord, data jiraProject) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: c.kind,
		Name:           data.Name,
		Key:            data.Key,
		Description:    data.Description,
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, data jiraUser) model.Record {
	first, last := splitName(data.DisplayName)
	display := data.Name
	if display == "" {
		display = data.DisplayName
	}
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: c.kind,
		Email:          data.EmailAddress,
		DisplayName:    display,
		FirstName:      first,
		LastName:       last,
		AvatarURL:      data.AvatarURLs.Small,
	}
}

var statusCategoryGroups = map[string]model.StateGroup{
	"new":           model.StateGroupUnstarted,
	"indeterminate": model.StateGroupStarted,
	"done":          model.StateGroupCompleted,
}

func (c *Connector) transformStatus(rec connectors.SourceRecord, data jiraStatus) model.Record {
	group, ok := statusCategoryGroups[data.StatusCategory.Key]
	if !ok {
		group = model.StateGroupBacklog
	}
	return model.State{
		ExternalID:     rec.ExternalID,
		ExternalSource: c.kind,
		Name:           data.Name,
		Group:          group,
	}
}

func (c *Connector) transformLabel(rec connectors.SourceRecord, name string) model.Record {
	return model.Label{
		ExternalID:     rec.ExternalID,
		ExternalSource: c.kind,
		Name:           name,
	}
}

func (c *Connector) transformIssue(rec connectors.SourceRecord, data jiraIssue, tctx *connectors.TransformContext) (model.Record, error) {
	fields := data.Fields

	name := fields.Summary
	if name == "" {
		name = "Untitled"
	}
	description := data.RenderedFields.Description
	if description == "" {
		description = "<p></p>"
	}

	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  c.kind,
		Name:            name,
		DescriptionHTML: description,
		Priority:        "none",
		CreatedAt:       parseJiraTime(fields.Created),
		TargetDate:      fields.DueDate,
		Links: []model.Link{{
			Name: "Linked Jira Issue",
			URL:  strings.TrimSuffix(c.cfg.Credential.BaseURL, "/") + "/browse/" + data.Key,
		}},
	}
	if fields.Creator != nil {
		issue.CreatedBy = c.key(userID(*fields.Creator))
	}
	if fields.Assignee != nil {
		issue.AssigneeExternalIDs = []string{c.key(userID(*fields.Assignee))}
	}
	if fields.Priority != nil && fields.Priority.Name != "" {
		if target, ok := tctx.Config.TargetPriorityFor(fields.Priority.Name); ok {
			issue.Priority = target
		}
	}

	if fields.Status.ID == "" {
		return nil, model.UnmappedStateError(model.EntityIssue, rec.ExternalID, "")
	}
	if target, ok := tctx.Config.TargetStateFor(fields.Status.ID); ok {
		issue.StateID = target.ID
	} else {
		issue.StateExternalID = c.key(fields.Status.ID)
	}

	if fields.Parent != nil && fields.Parent.ID != "" {
		issue.ParentExternalID = c.key(fields.Parent.ID)
	}
	issue.LabelExternalIDs = lo.Map(append(fields.Labels, importedLabel), func(label string, _ int) string {
		return c.key(label)
	})
	return issue, nil
}

func (c *Connector) transformComment(rec connectors.SourceRecord, data commentRecord) model.Record {
	body := data.comment.RenderedBody
	if body == "" {
		body = data.comment.Body
	}
	if body == "" {
		body = "<p></p>"
	}
	comment := model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  c.kind,
		CommentHTML:     body,
		CreatedAt:       parseJiraTime(data.comment.Created),
		IssueExternalID: c.key(data.issue.issueID),
	}
	if data.comment.Author != nil {
		comment.Actor = c.key(userID(*data.comment.Author))
	}
	return comment
}

func (c *Connector) transformAttachment(rec connectors.SourceRecord, data attachmentRecord) model.Record {
	name := data.attachment.Filename
	if name == "" {
		name = "Untitled"
	}
	return model.Attachment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  c.kind,
		Name:            name,
		Size:            data.attachment.Size,
		AssetURL:        data.attachment.Content,
		IssueExternalID: c.key(data.issue.issueID),
	}
}

func splitName(displayName string) (string, string) {
	parts := strings.SplitN(displayName, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return displayName, ""
}

// parseJiraTime parses Jira's RFC3339-with-offset timestamps, e.g.
// 2024-01-02T10:04:05.000+0530.
func parseJiraTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
