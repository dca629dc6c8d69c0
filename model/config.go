package model

import (
	"sort"

	"github.com/mitchellh/mapstructure"
)

// StateGroup buckets target states irrespective of their display names.
type StateGroup string

const (
	StateGroupBacklog   StateGroup = "backlog"
	StateGroupUnstarted StateGroup = "unstarted"
	StateGroupStarted   StateGroup = "started"
	StateGroupCompleted StateGroup = "completed"
	StateGroupCancelled StateGroup = "cancelled"
)

// TargetState is a workflow state that already exists in the target workspace.
type TargetState struct {
	ID    string     `json:"id" mapstructure:"id"`
	Name  string     `json:"name" mapstructure:"name"`
	Group StateGroup `json:"group" mapstructure:"group"`
}

// StateMapping maps one source state (by its source-native id) to one target
// state. Configured by the user during import setup.
type StateMapping struct {
	SourceStateID string      `json:"source_state_id" mapstructure:"source_state_id"`
	TargetState   TargetState `json:"target_state" mapstructure:"target_state"`
}

type PriorityMapping struct {
	SourcePriority string `json:"source_priority" mapstructure:"source_priority"`
	TargetPriority string `json:"target_priority" mapstructure:"target_priority"`
}

type PropertyMapping struct {
	SourcePropertyID string `json:"source_property_id" mapstructure:"source_property_id"`
	TargetPropertyID string `json:"target_property_id" mapstructure:"target_property_id"`
}

// Credential carries whatever the connector's auth scheme needs. OAuth
// connectors use AccessToken/RefreshToken, PAT connectors use only AccessToken,
// Jira additionally carries UserEmail for basic auth.
type Credential struct {
	AccessToken  string `json:"access_token" mapstructure:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" mapstructure:"refresh_token"`
	UserEmail    string `json:"user_email,omitempty" mapstructure:"user_email"`
	BaseURL      string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// ConnectionConfig is the per-connection import configuration supplied by the
// setup flow and read verbatim by the pipeline.
type ConnectionConfig struct {
	WorkspaceID   string        `json:"workspace_id" mapstructure:"workspace_id"`
	WorkspaceSlug string        `json:"workspace_slug" mapstructure:"workspace_slug"`
	ConnectionID  string        `json:"connection_id" mapstructure:"connection_id"`
	ProjectID     string        `json:"project_id" mapstructure:"project_id"`
	Connector     ConnectorKind `json:"connector" mapstructure:"connector"`

	Credential Credential `json:"credential" mapstructure:"credential"`

	States     []StateMapping    `json:"state_map,omitempty" mapstructure:"state_map"`
	Priorities []PriorityMapping `json:"priority_map,omitempty" mapstructure:"priority_map"`
	Properties []PropertyMapping `json:"property_map,omitempty" mapstructure:"property_map"`

	// TargetStates is the full list of workflow states in the destination
	// project, used for default-state derivation when no explicit mapping
	// exists.
	TargetStates []TargetState `json:"target_states,omitempty" mapstructure:"target_states"`

	// Meta holds connector-specific settings (repo owner/name, site url,
	// channel ids, ...) decoded by each connector via DecodeMeta.
	Meta map[string]any `json:"meta,omitempty" mapstructure:"meta"`
}

// DecodeMeta decodes the connector-specific portion of the config into the
// connector's own typed struct.
func (c *ConnectionConfig) DecodeMeta(out any) error {
	return mapstructure.Decode(c.Meta, out)
}

// TargetStateFor resolves a source state id through the configured state map.
func (c *ConnectionConfig) TargetStateFor(sourceStateID string) (TargetState, bool) {
	for _, m := range c.States {
		if m.SourceStateID == sourceStateID {
			return m.TargetState, true
		}
	}
	return TargetState{}, false
}

// TargetPriorityFor resolves a source priority name through the configured
// priority map.
func (c *ConnectionConfig) TargetPriorityFor(sourcePriority string) (string, bool) {
	for _, m := range c.Priorities {
		if m.SourcePriority == sourcePriority {
			return m.TargetPriority, true
		}
	}
	return "", false
}

// DefaultStatePair derives the fallback (resolved, unresolved) state pair used
// when no explicit state mapping exists: the alphabetically first
// completed-group state and the alphabetically first backlog-group state.
// Returns nil when the respective group has no state.
func (c *ConnectionConfig) DefaultStatePair() (resolved, unresolved *TargetState) {
	states := make([]TargetState, len(c.TargetStates))
	copy(states, c.TargetStates)
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })

	for i := range states {
		st := states[i]
		switch st.Group {
		case StateGroupCompleted:
			if resolved == nil {
				resolved = &st
			}
		case StateGroupBacklog:
			if unresolved == nil {
				unresolved = &st
			}
		}
	}
	return resolved, unresolved
}
