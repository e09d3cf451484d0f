package capacity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// P8: static-only classification matches the three-way table in §4.F.
func TestClassify_StaticOnly(t *testing.T) {
	limits := Limits{SpaceLow: 400, SpaceEm: 100, InodesLow: 1000, InodesEm: 100}
	entities := []Entity{
		{UID: 1, Space: 500, Inodes: 2000, Known: true}, // normal
		{UID: 2, Space: 200, Inodes: 500, Known: true},  // low
		{UID: 3, Space: 50, Inodes: 50, Known: true},     // emergency
	}
	got := Classify(entities, limits)
	require.Equal(t, Normal, got[1])
	require.Equal(t, Low, got[2])
	require.Equal(t, Emergency, got[3])
}

func TestClassify_UnknownIsEmergency(t *testing.T) {
	limits := Limits{SpaceLow: 400, SpaceEm: 100, InodesLow: 1000, InodesEm: 100}
	entities := []Entity{{UID: 1, Known: false}}
	got := Classify(entities, limits)
	require.Equal(t, Emergency, got[1])
}

// S4: normal-class spread meets the threshold, so space_low is replaced by
// the dynamic value, reclassifying the 450 GiB target from normal to low.
func TestClassify_DynamicFlip(t *testing.T) {
	limits := Limits{
		SpaceLow: 400, SpaceEm: 100, InodesLow: 0, InodesEm: 0,
		DynamicEnabled:       true,
		SpaceLowDynamic:      500,
		SpaceNormalThreshold: 100,
	}
	entities := []Entity{
		{UID: 1, Space: 450, Inodes: 1_000_000, Known: true},
		{UID: 2, Space: 550, Inodes: 1_000_000, Known: true},
		{UID: 3, Space: 550, Inodes: 1_000_000, Known: true},
	}
	got := Classify(entities, limits)
	require.Equal(t, Low, got[1])
	require.Equal(t, Normal, got[2])
	require.Equal(t, Normal, got[3])
}

func TestClassify_DynamicNotTriggeredBelowThreshold(t *testing.T) {
	limits := Limits{
		SpaceLow: 400, SpaceEm: 100, InodesLow: 0, InodesEm: 0,
		DynamicEnabled:       true,
		SpaceLowDynamic:      500,
		SpaceNormalThreshold: 1000, // spread of 100 never reaches this
	}
	entities := []Entity{
		{UID: 1, Space: 450, Inodes: 1_000_000, Known: true},
		{UID: 2, Space: 550, Inodes: 1_000_000, Known: true},
	}
	got := Classify(entities, limits)
	require.Equal(t, Normal, got[1])
	require.Equal(t, Normal, got[2])
}

func TestMinOfMembers_DegradesOnUnreachable(t *testing.T) {
	e := MinOfMembers(9, GroupMember{Space: 100, Inodes: 100, Known: true}, GroupMember{Known: false})
	require.False(t, e.Known)

	e2 := MinOfMembers(9, GroupMember{Space: 100, Inodes: 50, Known: true}, GroupMember{Space: 80, Inodes: 60, Known: true})
	require.True(t, e2.Known)
	require.Equal(t, uint64(80), e2.Space)
	require.Equal(t, uint64(50), e2.Inodes)
}
