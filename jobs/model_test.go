package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusProgression(t *testing.T) {
	ordered := []Status{
		Created, Queued, Initiated, Pulling, Pulled,
		Progressing, Transforming, Transformed, Pushing, Finished,
	}

	t.Run("forward one step is legal", func(t *testing.T) {
		for i := 0; i < len(ordered)-1; i++ {
			require.True(t, ordered[i].CanTransitionTo(ordered[i+1]),
				"%s -> %s", ordered[i].Name, ordered[i+1].Name)
		}
	})

	t.Run("skipping is illegal", func(t *testing.T) {
		for i := 0; i < len(ordered); i++ {
			for j := i + 2; j < len(ordered); j++ {
				require.False(t, ordered[i].CanTransitionTo(ordered[j]),
					"%s -> %s", ordered[i].Name, ordered[j].Name)
			}
		}
	})

	t.Run("rewinding is illegal", func(t *testing.T) {
		for i := 1; i < len(ordered); i++ {
			require.False(t, ordered[i].CanTransitionTo(ordered[i-1]))
		}
	})

	t.Run("error and cancelled reachable from any non-terminal status", func(t *testing.T) {
		for _, s := range ordered[:len(ordered)-1] {
			require.True(t, s.CanTransitionTo(Errored), s.Name)
			require.True(t, s.CanTransitionTo(Cancelled), s.Name)
		}
	})

	t.Run("terminal statuses never transition", func(t *testing.T) {
		for _, s := range []Status{Finished, Errored, Cancelled} {
			require.False(t, s.CanTransitionTo(Queued))
			require.False(t, s.CanTransitionTo(Errored))
			require.False(t, s.CanTransitionTo(Cancelled))
		}
	})
}

func TestStatusFromName(t *testing.T) {
	s, ok := StatusFromName("PULLING")
	require.True(t, ok)
	require.Equal(t, Pulling, s)

	_, ok = StatusFromName("NO_SUCH_STATUS")
	require.False(t, ok)
}
