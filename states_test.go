package jobmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	for _, s := range AllStates {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseState("dead")
	require.ErrorIs(t, err, ErrUnknownState)
}

func TestState_Terminal(t *testing.T) {
	require.False(t, StatePending.Terminal())
	require.False(t, StateRunning.Terminal())
	require.True(t, StateSucceeded.Terminal())
	require.True(t, StateFailed.Terminal())
}
