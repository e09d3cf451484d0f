package buddy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
	"github.com/thinkparq/mgmtd/topology"
)

type fakeNotifier struct {
	calls [][]model.Consistency
}

func (f *fakeNotifier) NotifyConsistencyChange(ctx context.Context, targetIDs []uint16, states []model.Consistency) error {
	f.calls = append(f.calls, states)
	return nil
}

func setupGroup(t *testing.T) (*Coordinator, *fakeNotifier, model.UID) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ctx := context.Background()
	pools, err := s.ListStoragePools(ctx)
	require.NoError(t, err)
	poolUID := pools[0].UID

	t1, err := s.CreateTarget(ctx, &model.Target{Alias: "t1", Kind: model.TargetStorage, TargetID: 1, PoolUID: poolUID})
	require.NoError(t, err)
	t5, err := s.CreateTarget(ctx, &model.Target{Alias: "t5", Kind: model.TargetStorage, TargetID: 5, PoolUID: poolUID})
	require.NoError(t, err)

	groupUID, err := s.CreateBuddyGroup(ctx, &model.BuddyGroup{Alias: "g1", Kind: model.TargetStorage, GroupID: 1, PrimaryUID: t1, SecondaryUID: t5, PoolUID: poolUID})
	require.NoError(t, err)

	topo := topology.NewManager(s, topology.Config{}, supervisor.RealClock{})
	require.NoError(t, topo.Load(ctx))

	notifier := &fakeNotifier{}
	return &Coordinator{Store: s, Topology: topo, Notifier: notifier}, notifier, groupUID
}

// S6: failover swaps primary/secondary in one transaction and notifies.
func TestFailover_SwapsAndNotifies(t *testing.T) {
	c, notifier, groupUID := setupGroup(t)
	ctx := context.Background()

	require.NoError(t, c.Failover(ctx, groupUID))

	group, err := c.Store.GetBuddyGroup(ctx, groupUID)
	require.NoError(t, err)

	primaryTarget, err := c.Store.GetTarget(ctx, group.PrimaryUID)
	require.NoError(t, err)
	require.Equal(t, uint16(5), primaryTarget.TargetID)
	require.Len(t, notifier.calls, 1)
}

func TestSetBad_RejectsWhenNoHealthySurvivor(t *testing.T) {
	c, _, groupUID := setupGroup(t)
	ctx := context.Background()

	group, err := c.Store.GetBuddyGroup(ctx, groupUID)
	require.NoError(t, err)

	require.NoError(t, c.SetBad(ctx, groupUID, group.SecondaryUID))
	err = c.SetBad(ctx, groupUID, group.PrimaryUID)
	require.Error(t, err)
}
