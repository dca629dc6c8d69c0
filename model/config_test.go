package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultStatePair(t *testing.T) {
	testCases := []struct {
		name           string
		targetStates   []TargetState
		wantResolved   string
		wantUnresolved string
	}{
		{
			name: "one state per group",
			targetStates: []TargetState{
				{Name: "Done", Group: StateGroupCompleted},
				{Name: "Backlog", Group: StateGroupBacklog},
			},
			wantResolved:   "Done",
			wantUnresolved: "Backlog",
		},
		{
			name: "alphabetically first wins",
			targetStates: []TargetState{
				{Name: "Shipped", Group: StateGroupCompleted},
				{Name: "Done", Group: StateGroupCompleted},
				{Name: "Triage", Group: StateGroupBacklog},
				{Name: "Icebox", Group: StateGroupBacklog},
			},
			wantResolved:   "Done",
			wantUnresolved: "Icebox",
		},
		{
			name: "no completed group state",
			targetStates: []TargetState{
				{Name: "Backlog", Group: StateGroupBacklog},
				{Name: "In Progress", Group: StateGroupStarted},
			},
			wantResolved:   "",
			wantUnresolved: "Backlog",
		},
		{
			name:           "empty",
			targetStates:   nil,
			wantResolved:   "",
			wantUnresolved: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &ConnectionConfig{TargetStates: tc.targetStates}
			resolved, unresolved := cfg.DefaultStatePair()
			if tc.wantResolved == "" {
				require.Nil(t, resolved)
			} else {
				require.NotNil(t, resolved)
				require.Equal(t, tc.wantResolved, resolved.Name)
			}
			if tc.wantUnresolved == "" {
				require.Nil(t, unresolved)
			} else {
				require.NotNil(t, unresolved)
				require.Equal(t, tc.wantUnresolved, unresolved.Name)
			}
		})
	}
}

func TestTargetStateFor(t *testing.T) {
	cfg := &ConnectionConfig{
		States: []StateMapping{
			{SourceStateID: "10001", TargetState: TargetState{ID: "st-1", Name: "Todo", Group: StateGroupUnstarted}},
			{SourceStateID: "10002", TargetState: TargetState{ID: "st-2", Name: "Done", Group: StateGroupCompleted}},
		},
	}

	st, ok := cfg.TargetStateFor("10002")
	require.True(t, ok)
	require.Equal(t, "st-2", st.ID)

	_, ok = cfg.TargetStateFor("99999")
	require.False(t, ok)
}

func TestDecodeMeta(t *testing.T) {
	cfg := &ConnectionConfig{Meta: map[string]any{"owner": "acme", "repo": "widgets"}}

	var meta struct {
		Owner string `mapstructure:"owner"`
		Repo  string `mapstructure:"repo"`
	}
	require.NoError(t, cfg.DecodeMeta(&meta))
	require.Equal(t, "acme", meta.Owner)
	require.Equal(t, "widgets", meta.Repo)
}
