package sentry

import (
	"fmt"
	"time"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case sentryProject:
		return c.transformProject(rec, data), nil
	case sentryMember:
		return c.transformMember(rec, data), nil
	case sentryIssue:
		return c.transformIssue(rec, data, tctx)
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected sentry payload %T", rec.Data))
	}
}

func (c *Connector) transformProject(rec connectors.SourceRecord, data sentryProject) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorSentry,
		Name:           data.Name,
		Key:            data.Slug,
	}
}

func (c *Connector) transformMember(rec connectors.SourceRecord, data sentryMember) model.Record {
	display := data.Name
	if display == "" {
		display = data.Email
	}
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorSentry,
		Email:          data.Email,
		DisplayName:    display,
		AvatarURL:      data.User.AvatarURL,
	}
}

func (c *Connector) transformIssue(rec connectors.SourceRecord, data sentryIssue, tctx *connectors.TransformContext) (model.Record, error) {
	description := data.Metadata.Value
	if description == "" {
		description = data.Culprit
	}
	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorSentry,
		Name:            data.Title,
		DescriptionHTML: htmlParagraph(description),
		Priority:        "none",
		CreatedAt:       parseTime(data.FirstSeen),
	}
	if data.Permalink != "" {
		issue.Links = []model.Link{{Name: "Linked Sentry Issue", URL: data.Permalink}}
	}
	if data.AssignedTo != nil && data.AssignedTo.Type == "user" && data.AssignedTo.ID != "" {
		issue.AssigneeExternalIDs = []string{c.key(data.AssignedTo.ID)}
	}

	stateID, err := c.resolveState(rec, data.Status, tctx.Config)
	if err != nil {
		return nil, err
	}
	issue.StateID = stateID
	return issue, nil
}

// resolveState maps sentry's resolved/unresolved pair onto the target
// workflow: resolved issues land on the default completed state, everything
// else on the default backlog state. The configured state map wins when set.
func (c *Connector) resolveState(rec connectors.SourceRecord, status string, cfg *model.ConnectionConfig) (string, error) {
	if target, ok := cfg.TargetStateFor(status); ok {
		return target.ID, nil
	}
	resolved, unresolved := cfg.DefaultStatePair()
	switch status {
	case "resolved":
		if resolved != nil {
			return resolved.ID, nil
		}
	case "unresolved", "ignored":
		if unresolved != nil {
			return unresolved.ID, nil
		}
	}
	return "", model.UnmappedStateError(model.EntityIssue, rec.ExternalID, status)
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
