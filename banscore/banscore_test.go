package banscore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAccumulatesPerPeer(t *testing.T) {
	tr := NewTracker()

	total, banned := tr.Add(1, UnknownCycle)
	require.Equal(t, UnknownCycle, total)
	require.False(t, banned)

	total, banned = tr.Add(1, StaleQuorum)
	require.Equal(t, UnknownCycle+StaleQuorum, total)
	require.False(t, banned)

	require.Equal(t, 0, tr.Score(2), "a different peer must have an independent score")
}

func TestAddCrossingBanThreshold(t *testing.T) {
	tr := NewTracker()

	total, banned := tr.Add(5, Malformed)
	require.Equal(t, Malformed, total)
	require.Equal(t, BanThreshold, total)
	require.True(t, banned, "a single malformed-input score must cross the ban threshold")
}

func TestAddAccumulatesAcrossSubThresholdScores(t *testing.T) {
	tr := NewTracker()

	_, banned := tr.Add(3, StaleQuorum)
	require.False(t, banned)
	_, banned = tr.Add(3, StaleQuorum)
	require.False(t, banned)
	_, banned = tr.Add(3, StaleQuorum)
	require.False(t, banned)
	_, banned = tr.Add(3, StaleQuorum)
	require.False(t, banned)
	total, banned := tr.Add(3, StaleQuorum)
	require.Equal(t, 5*StaleQuorum, total)
	require.True(t, banned)
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Add(4, Malformed)
	require.Equal(t, Malformed, tr.Score(4))

	tr.Reset(4)
	require.Equal(t, 0, tr.Score(4))
}
