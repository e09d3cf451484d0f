package topology

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
)

func openTestManager(t *testing.T, cfg Config) (*Manager, *supervisor.FakeClock) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clock := supervisor.NewFakeClock(time.Unix(1_700_000_000, 0))
	m := NewManager(s, cfg, clock)
	require.NoError(t, m.Load(context.Background()))
	return m, clock
}

// P4: re-registering the same machine UUID always returns the same node_id.
func TestRegisterNode_IdempotentByMachineUUID(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	first, err := m.RegisterNode(ctx, model.NodeMeta, 8005, nil, "uuid-fixed", false)
	require.NoError(t, err)

	second, err := m.RegisterNode(ctx, model.NodeMeta, 8005, nil, "uuid-fixed", false)
	require.NoError(t, err)

	require.Equal(t, first.NodeID, second.NodeID)
	require.Equal(t, first.UID, second.UID)
}

// P3: N concurrent registrations from distinct machine UUIDs get N distinct
// ids with no duplicates.
func TestRegisterNode_ConcurrentDistinctIDs(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ids := make([]uint16, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node, err := m.RegisterNode(ctx, model.NodeStorage, 8003, nil, fmt.Sprintf("uuid-%d", i), false)
			require.NoError(t, err)
			ids[i] = node.NodeID
		}(i)
	}
	wg.Wait()

	seen := make(map[uint16]bool)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
		require.GreaterOrEqual(t, id, uint16(1))
	}
	require.Len(t, seen, n)
}

func TestRegisterNode_RejectedWhenDisabled(t *testing.T) {
	m, _ := openTestManager(t, Config{RegistrationDisabled: true, NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	_, err := m.RegisterNode(context.Background(), model.NodeMeta, 8005, nil, "uuid-new", false)
	require.Error(t, err)
}

// P5: a client silent past the auto-remove timeout is reaped on the next
// tick; a meta node silent past the offline timeout transitions to OFFLINE
// but is never removed.
func TestTick_ReapsClientsButNotMetaNodes(t *testing.T) {
	m, clock := openTestManager(t, Config{NodeOfflineTimeoutSec: 30, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	client, err := m.RegisterNode(ctx, model.NodeClient, 0, nil, "client-uuid", false)
	require.NoError(t, err)
	meta, err := m.RegisterNode(ctx, model.NodeMeta, 8005, nil, "meta-uuid", false)
	require.NoError(t, err)

	clock.Advance(40 * time.Second) // past offline timeout, not yet auto-remove
	require.NoError(t, m.Tick(ctx))

	snap := m.Snapshot()
	require.Equal(t, model.StateOffline, snap.Nodes[client.UID].State)
	require.Equal(t, model.StateOffline, snap.Nodes[meta.UID].State)

	clock.Advance(30 * time.Second) // now past auto-remove too
	require.NoError(t, m.Tick(ctx))

	snap = m.Snapshot()
	_, clientStillPresent := snap.Nodes[client.UID]
	require.False(t, clientStillPresent)
	require.Contains(t, snap.Nodes, meta.UID)
	require.Equal(t, model.StateOffline, snap.Nodes[meta.UID].State)
}

func TestHeartbeat_RestoresActiveState(t *testing.T) {
	m, clock := openTestManager(t, Config{NodeOfflineTimeoutSec: 30, ClientAutoRemoveSec: 120})
	ctx := context.Background()

	n, err := m.RegisterNode(ctx, model.NodeStorage, 8003, nil, "storage-uuid", false)
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	require.NoError(t, m.Tick(ctx))
	require.Equal(t, model.StateOffline, m.Snapshot().Nodes[n.UID].State)

	require.NoError(t, m.Heartbeat(ctx, n.UID))
	require.Equal(t, model.StateActive, m.Snapshot().Nodes[n.UID].State)
}

// A target/pool/buddy-group mutation must reach the cache, not just the
// node lifecycle methods — a subscriber's next Snapshot reflects it within
// one tick, matching S6's failover notification requirement.
func TestCreateTargetAutoID_UpdatesCacheAndPublishes(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()
	ch := m.Subscribe(4)

	uid, err := m.CreateTargetAutoID(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage})
	require.NoError(t, err)

	require.Contains(t, m.Snapshot().Targets, uid)

	select {
	case snap := <-ch:
		require.Contains(t, snap.Targets, uid)
	default:
		t.Fatal("expected a snapshot to be published on target creation")
	}
}

func TestRemoveTarget_EvictsFromCache(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	uid, err := m.CreateTargetAutoID(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage})
	require.NoError(t, err)
	require.Contains(t, m.Snapshot().Targets, uid)

	require.NoError(t, m.RemoveTarget(ctx, uid))
	require.NotContains(t, m.Snapshot().Targets, uid)
}

func TestCreateStoragePool_UpdatesCache(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	uid, err := m.CreateStoragePool(ctx, "pool-2", 2)
	require.NoError(t, err)
	require.Contains(t, m.Snapshot().Pools, uid)
	require.Equal(t, "pool-2", m.Snapshot().Pools[uid].Alias)
}

// S6: a buddy-group failover delivers a topology-change notification to
// every subscribed client within one tick.
func TestFailover_UpdatesCacheAndPublishes(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ctx := context.Background()

	t1, err := m.CreateTargetAutoID(ctx, &model.Target{Alias: "t1", Kind: model.TargetStorage})
	require.NoError(t, err)
	t2, err := m.CreateTargetAutoID(ctx, &model.Target{Alias: "t2", Kind: model.TargetStorage})
	require.NoError(t, err)
	groupUID, err := m.CreateBuddyGroup(ctx, &model.BuddyGroup{Alias: "g1", Kind: model.TargetStorage, PrimaryUID: t1, SecondaryUID: t2})
	require.NoError(t, err)
	require.Equal(t, t1, m.Snapshot().BuddyGroups[groupUID].PrimaryUID)

	ch := m.Subscribe(4)
	newPrimary, newSecondary, err := m.Failover(ctx, groupUID)
	require.NoError(t, err)
	require.Equal(t, t2, newPrimary)
	require.Equal(t, t1, newSecondary)

	require.Equal(t, t2, m.Snapshot().BuddyGroups[groupUID].PrimaryUID)

	select {
	case snap := <-ch:
		require.Equal(t, t2, snap.BuddyGroups[groupUID].PrimaryUID)
	default:
		t.Fatal("expected a snapshot to be published on failover")
	}
}

func TestSubscribe_ReceivesSnapshotOnMutation(t *testing.T) {
	m, _ := openTestManager(t, Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60})
	ch := m.Subscribe(4)

	_, err := m.RegisterNode(context.Background(), model.NodeMeta, 8005, nil, "uuid-sub", false)
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.Len(t, snap.Nodes, 2) // management singleton + new node
	default:
		t.Fatal("expected a snapshot to be published")
	}
}
