package rpcserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/buddy"
	"github.com/thinkparq/mgmtd/capacity"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
	"github.com/thinkparq/mgmtd/topology"
)

type fakeNotifier struct{}

func (fakeNotifier) NotifyConsistencyChange(ctx context.Context, targetIDs []uint16, states []model.Consistency) error {
	return nil
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clock := supervisor.NewFakeClock(time.Unix(1_700_000_000, 0))
	topo := topology.NewManager(s, topology.Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60}, clock)
	require.NoError(t, topo.Load(context.Background()))

	return &Handlers{
		Store:    s,
		Topology: topo,
		Buddy:    &buddy.Coordinator{Store: s, Topology: topo, Notifier: fakeNotifier{}},
		Limits:   capacity.Limits{SpaceLow: 100, SpaceEm: 10, InodesLow: 100, InodesEm: 10},
	}
}

func TestAddNode_ThenListNodes(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	addResp, err := h.AddNode(ctx, &AddNodeRequest{Alias: "meta1", Kind: model.NodeMeta, Port: 8005})
	require.NoError(t, err)
	require.NotZero(t, addResp.UID)

	listResp, err := h.ListNodes(ctx, &ListNodesRequest{Kind: model.NodeMeta})
	require.NoError(t, err)
	require.Len(t, listResp.Nodes, 1)
	require.Equal(t, addResp.UID, listResp.Nodes[0].UID)
}

func TestAddNode_TwiceProducesDistinctNodes(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	first, err := h.AddNode(ctx, &AddNodeRequest{Kind: model.NodeStorage, Port: 8003})
	require.NoError(t, err)
	second, err := h.AddNode(ctx, &AddNodeRequest{Kind: model.NodeStorage, Port: 8003})
	require.NoError(t, err)

	require.NotEqual(t, first.UID, second.UID)
}

func TestTargetAndBuddyGroupLifecycle(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	pools, err := h.ListStoragePools(ctx, &ListStoragePoolsRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, pools.Pools)
	poolUID := pools.Pools[0].UID

	t1, err := h.AddTarget(ctx, &AddTargetRequest{Alias: "t1", Kind: model.TargetStorage, PoolUID: poolUID})
	require.NoError(t, err)
	t2, err := h.AddTarget(ctx, &AddTargetRequest{Alias: "t2", Kind: model.TargetStorage, PoolUID: poolUID})
	require.NoError(t, err)

	grp, err := h.AddBuddyGroup(ctx, &AddBuddyGroupRequest{
		Alias: "g1", Kind: model.TargetStorage, PrimaryUID: t1.UID, SecondaryUID: t2.UID, PoolUID: poolUID,
	})
	require.NoError(t, err)

	_, err = h.TriggerFailover(ctx, &TriggerFailoverRequest{GroupUID: grp.UID})
	require.NoError(t, err)

	groups, err := h.ListBuddyGroups(ctx, &ListBuddyGroupsRequest{Kind: model.TargetStorage})
	require.NoError(t, err)
	require.Len(t, groups.Groups, 1)
	require.Equal(t, t2.UID, groups.Groups[0].PrimaryUID) // failover swapped primary/secondary

	// The topology cache must reflect the same mutations a subscriber would
	// see, not just what ListTargets/ListBuddyGroups re-reads from the store.
	snap := h.Topology.Snapshot()
	require.Contains(t, snap.Targets, t1.UID)
	require.Contains(t, snap.Targets, t2.UID)
	require.Equal(t, t2.UID, snap.BuddyGroups[grp.UID].PrimaryUID)
}

func TestQuotaLimitsRoundTrip(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	pools, err := h.ListStoragePools(ctx, &ListStoragePoolsRequest{})
	require.NoError(t, err)
	poolUID := pools.Pools[0].UID

	limit := model.QuotaLimit{PoolUID: poolUID, QuotaID: 1000, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 5_000_000}
	_, err = h.SetQuotaLimits(ctx, &SetQuotaLimitsRequest{Limit: limit})
	require.NoError(t, err)

	got, err := h.GetQuotaLimits(ctx, &GetQuotaLimitsRequest{PoolUID: poolUID})
	require.NoError(t, err)
	require.Len(t, got.Limits, 1)
	require.Equal(t, uint64(5_000_000), got.Limits[0].Value)
}

func TestGetCapacityPoolClass_EmptyPoolReturnsNoEntries(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	pools, err := h.ListStoragePools(ctx, &ListStoragePoolsRequest{})
	require.NoError(t, err)
	poolUID := pools.Pools[0].UID

	resp, err := h.GetCapacityPoolClass(ctx, &GetCapacityPoolClassRequest{PoolUID: poolUID})
	require.NoError(t, err)
	require.Empty(t, resp.Classes)
}
