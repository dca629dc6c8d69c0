package importer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
	"github.com/trackport/trackport/stream"
)

// Push payload shapes. External references the transform carried over are
// replaced with the internal ids the mapping store committed for earlier
// stages; what the target receives never contains a source-native reference.

type issuePayload struct {
	ExternalID      string               `json:"external_id"`
	ExternalSource  model.ConnectorKind  `json:"external_source"`
	Name            string               `json:"name"`
	DescriptionHTML string               `json:"description_html"`
	Priority        string               `json:"priority"`
	State           string               `json:"state,omitempty"`
	Parent          string               `json:"parent,omitempty"`
	Assignees       []string             `json:"assignees,omitempty"`
	Labels          []string             `json:"labels,omitempty"`
	CreatedBy       string               `json:"created_by,omitempty"`
	CreatedAt       *time.Time           `json:"created_at,omitempty"`
	StartDate       string               `json:"start_date,omitempty"`
	TargetDate      string               `json:"target_date,omitempty"`
	Links           []model.Link         `json:"links,omitempty"`
	PropertyValues  []issuePropertyValue `json:"property_values,omitempty"`
}

type issuePropertyValue struct {
	PropertyID string `json:"property_id"`
	OptionID   string `json:"option_id,omitempty"`
	Value      string `json:"value"`
}

type commentPayload struct {
	ExternalID     string              `json:"external_id"`
	ExternalSource model.ConnectorKind `json:"external_source"`
	CommentHTML    string              `json:"comment_html"`
	Actor          string              `json:"actor,omitempty"`
	CreatedAt      *time.Time          `json:"created_at,omitempty"`
}

type attachmentPayload struct {
	ExternalID     string              `json:"external_id"`
	ExternalSource model.ConnectorKind `json:"external_source"`
	Name           string              `json:"name"`
	Size           int64               `json:"size"`
	AssetURL       string              `json:"asset"`
}

type optionPayload struct {
	ExternalID     string              `json:"external_id"`
	ExternalSource model.ConnectorKind `json:"external_source"`
	Name           string              `json:"name"`
	IsActive       bool                `json:"is_active"`
	PropertyID     string              `json:"property_id"`
}

// buildPayload turns a canonical record into its push shape, resolving every
// external reference against the mapping store. parentID carries the internal
// issue id for records whose target collection nests under an issue.
func (im *Importer) buildPayload(ctx context.Context, cfg *model.ConnectionConfig, record model.Record) (payload any, parentID string, err error) {
	resolve := func(et model.EntityType, externalID string) (string, bool) {
		if externalID == "" {
			return "", false
		}
		id, ok, err := im.store.Get(ctx, im.mappingKey(cfg, et, externalID))
		if err != nil || !ok {
			return "", false
		}
		return id, true
	}

	switch rec := record.(type) {
	case model.Issue:
		p := issuePayload{
			ExternalID:      rec.ExternalID,
			ExternalSource:  rec.ExternalSource,
			Name:            rec.Name,
			DescriptionHTML: rec.DescriptionHTML,
			Priority:        rec.Priority,
			State:           rec.StateID,
			CreatedAt:       rec.CreatedAt,
			StartDate:       rec.StartDate,
			TargetDate:      rec.TargetDate,
			Links:           rec.Links,
		}
		if p.State == "" && rec.StateExternalID != "" {
			stateID, ok := resolve(model.EntityState, rec.StateExternalID)
			if !ok {
				return nil, "", &model.ImportError{
					Kind:       model.ErrUnmappedState,
					Message:    fmt.Sprintf("state %s was never pushed", rec.StateExternalID),
					EntityType: model.EntityIssue,
					ExternalID: rec.ExternalID,
				}
			}
			p.State = stateID
		}
		// optional references degrade gracefully: an assignee or label whose
		// own record failed earlier is dropped, the issue still lands
		p.Parent, _ = resolve(model.EntityIssue, rec.ParentExternalID)
		p.CreatedBy, _ = resolve(model.EntityUser, rec.CreatedBy)
		for _, ext := range rec.AssigneeExternalIDs {
			if id, ok := resolve(model.EntityUser, ext); ok {
				p.Assignees = append(p.Assignees, id)
			}
		}
		for _, ext := range rec.LabelExternalIDs {
			if id, ok := resolve(model.EntityLabel, ext); ok {
				p.Labels = append(p.Labels, id)
			}
		}
		for _, pv := range rec.PropertyValues {
			propertyID, ok := resolve(model.EntityProperty, pv.PropertyExternalID)
			if !ok {
				continue
			}
			value := issuePropertyValue{PropertyID: propertyID, Value: pv.Value}
			if pv.ExternalID != "" {
				value.OptionID, _ = resolve(model.EntityPropertyOption, pv.ExternalID)
			}
			p.PropertyValues = append(p.PropertyValues, value)
		}
		return p, "", nil

	case model.Comment:
		issueID, ok := resolve(model.EntityIssue, rec.IssueExternalID)
		if !ok {
			return nil, "", &model.ImportError{
				Kind:       model.ErrPush,
				Message:    fmt.Sprintf("issue %s was never pushed", rec.IssueExternalID),
				EntityType: model.EntityComment,
				ExternalID: rec.ExternalID,
				Permanent:  true,
			}
		}
		p := commentPayload{
			ExternalID:     rec.ExternalID,
			ExternalSource: rec.ExternalSource,
			CommentHTML:    rec.CommentHTML,
			CreatedAt:      rec.CreatedAt,
		}
		p.Actor, _ = resolve(model.EntityUser, rec.Actor)
		return p, issueID, nil

	case model.Attachment:
		issueID, ok := resolve(model.EntityIssue, rec.IssueExternalID)
		if !ok {
			return nil, "", &model.ImportError{
				Kind:       model.ErrPush,
				Message:    fmt.Sprintf("issue %s was never pushed", rec.IssueExternalID),
				EntityType: model.EntityAttachment,
				ExternalID: rec.ExternalID,
				Permanent:  true,
			}
		}
		return attachmentPayload{
			ExternalID:     rec.ExternalID,
			ExternalSource: rec.ExternalSource,
			Name:           rec.Name,
			Size:           rec.Size,
			AssetURL:       rec.AssetURL,
		}, issueID, nil

	case model.PropertyOption:
		propertyID, ok := resolve(model.EntityProperty, rec.PropertyExternalID)
		if !ok {
			return nil, "", &model.ImportError{
				Kind:       model.ErrUnmappedProperty,
				Message:    fmt.Sprintf("property %s was never pushed", rec.PropertyExternalID),
				EntityType: model.EntityPropertyOption,
				ExternalID: rec.ExternalID,
			}
		}
		return optionPayload{
			ExternalID:     rec.ExternalID,
			ExternalSource: rec.ExternalSource,
			Name:           rec.Name,
			IsActive:       rec.IsActive,
			PropertyID:     propertyID,
		}, "", nil

	default:
		// projects, users, states, labels and properties push their
		// canonical shape as is
		return record, "", nil
	}
}

// probeAttachment fills in a missing attachment size by opening the source
// asset with a ranged reader. Sources that omit Content-Length keep size 0
// rather than failing the record.
func (im *Importer) probeAttachment(ctx context.Context, cfg *model.ConnectionConfig, att model.Attachment) model.Attachment {
	if att.Size > 0 || att.AssetURL == "" {
		return att
	}
	header := http.Header{}
	if tok := cfg.Credential.AccessToken; tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	zs, err := stream.OpenHTTPRange(ctx, im.conf, att.AssetURL, header)
	if err != nil {
		im.log.Warnn("probing attachment asset",
			logger.NewStringField("externalId", att.ExternalID),
			logger.NewErrorField(err))
		return att
	}
	att.Size = zs.Size()
	return att
}
