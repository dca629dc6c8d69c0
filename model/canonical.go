package model

import "time"

// Identity is the correlation key every canonical record carries so the push
// stage can look up or create the matching entity mapping.
type Identity struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	EntityType     EntityType    `json:"entity_type"`
}

// Record is implemented by every canonical shape produced by a connector's
// transform.
type Record interface {
	Identity() Identity
}

type Project struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Name           string        `json:"name"`
	Key            string        `json:"identifier,omitempty"`
	Description    string        `json:"description,omitempty"`
}

func (p Project) Identity() Identity {
	return Identity{ExternalID: p.ExternalID, ExternalSource: p.ExternalSource, EntityType: EntityProject}
}

type User struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Email          string        `json:"email,omitempty"`
	DisplayName    string        `json:"display_name"`
	FirstName      string        `json:"first_name,omitempty"`
	LastName       string        `json:"last_name,omitempty"`
	AvatarURL      string        `json:"avatar,omitempty"`
	Role           int           `json:"role,omitempty"`
}

func (u User) Identity() Identity {
	return Identity{ExternalID: u.ExternalID, ExternalSource: u.ExternalSource, EntityType: EntityUser}
}

type State struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Name           string        `json:"name"`
	Group          StateGroup    `json:"group"`
	Color          string        `json:"color,omitempty"`
}

func (s State) Identity() Identity {
	return Identity{ExternalID: s.ExternalID, ExternalSource: s.ExternalSource, EntityType: EntityState}
}

type Label struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Name           string        `json:"name"`
	Color          string        `json:"color,omitempty"`
}

func (l Label) Identity() Identity {
	return Identity{ExternalID: l.ExternalID, ExternalSource: l.ExternalSource, EntityType: EntityLabel}
}

type PropertyValueType string

const (
	PropertyTypeText     PropertyValueType = "text"
	PropertyTypeNumber   PropertyValueType = "number"
	PropertyTypeOption   PropertyValueType = "option"
	PropertyTypeDate     PropertyValueType = "datetime"
	PropertyTypeUser     PropertyValueType = "relation_user"
	PropertyTypeURL      PropertyValueType = "url"
	PropertyTypeCheckbox PropertyValueType = "checkbox"
)

type Property struct {
	ExternalID     string            `json:"external_id"`
	ExternalSource ConnectorKind     `json:"external_source"`
	DisplayName    string            `json:"display_name"`
	ValueType      PropertyValueType `json:"property_type"`
	IsMulti        bool              `json:"is_multi,omitempty"`
	IsRequired     bool              `json:"is_required"`
	IsActive       bool              `json:"is_active"`
}

func (p Property) Identity() Identity {
	return Identity{ExternalID: p.ExternalID, ExternalSource: p.ExternalSource, EntityType: EntityProperty}
}

type PropertyOption struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Name           string        `json:"name"`
	IsActive       bool          `json:"is_active"`
	// PropertyExternalID references the owning property by its external id,
	// resolved to an internal id at push time.
	PropertyExternalID string `json:"property_id"`
}

func (o PropertyOption) Identity() Identity {
	return Identity{ExternalID: o.ExternalID, ExternalSource: o.ExternalSource, EntityType: EntityPropertyOption}
}

// PropertyValue is one value of one custom property on an issue. Values ride
// on the canonical issue, they are not pushed as standalone records.
type PropertyValue struct {
	PropertyExternalID string        `json:"property_id"`
	ExternalID         string        `json:"external_id,omitempty"`
	ExternalSource     ConnectorKind `json:"external_source"`
	Value              string        `json:"value"`
}

type Issue struct {
	ExternalID      string          `json:"external_id"`
	ExternalSource  ConnectorKind   `json:"external_source"`
	Name            string          `json:"name"`
	DescriptionHTML string          `json:"description_html"`
	Priority        string          `json:"priority"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	StartDate       string          `json:"start_date,omitempty"`
	TargetDate      string          `json:"target_date,omitempty"`
	Links           []Link          `json:"links,omitempty"`
	PropertyValues  []PropertyValue `json:"property_values,omitempty"`

	// StateID is set when the user-configured state map already names the
	// target state.
	StateID string `json:"state,omitempty"`

	// References below carry external ids of records from earlier stages and
	// are resolved against the mapping store right before the push.
	StateExternalID     string   `json:"state_external_id,omitempty"`
	ParentExternalID    string   `json:"parent_external_id,omitempty"`
	AssigneeExternalIDs []string `json:"assignee_external_ids,omitempty"`
	LabelExternalIDs    []string `json:"label_external_ids,omitempty"`
}

func (i Issue) Identity() Identity {
	return Identity{ExternalID: i.ExternalID, ExternalSource: i.ExternalSource, EntityType: EntityIssue}
}

type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Comment struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	CommentHTML    string        `json:"comment_html"`
	Actor          string        `json:"actor,omitempty"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`

	IssueExternalID string `json:"issue_external_id"`
}

func (c Comment) Identity() Identity {
	return Identity{ExternalID: c.ExternalID, ExternalSource: c.ExternalSource, EntityType: EntityComment}
}

type Attachment struct {
	ExternalID     string        `json:"external_id"`
	ExternalSource ConnectorKind `json:"external_source"`
	Name           string        `json:"name"`
	Size           int64         `json:"size"`
	AssetURL       string        `json:"asset"`

	IssueExternalID string `json:"issue_external_id"`
}

func (a Attachment) Identity() Identity {
	return Identity{ExternalID: a.ExternalID, ExternalSource: a.ExternalSource, EntityType: EntityAttachment}
}
