package daemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/config"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/quota"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
	"github.com/thinkparq/mgmtd/topology"
)

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestNew_InitOnlySeedsStoreAndSkipsNetwork(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Init = true

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, d.Store)
	require.Nil(t, d.grpcRun)

	pools, err := d.Store.ListStoragePools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	d.Store.Close()
}

func TestNew_ThenRun_ShutsDownCleanlyOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mgmtd.db")
	initCfg := baseConfig(t)
	initCfg.DBFile = dbPath
	initCfg.Init = true
	initDaemon, err := New(context.Background(), initCfg)
	require.NoError(t, err)
	initDaemon.Store.Close()

	cfg := baseConfig(t)
	cfg.DBFile = dbPath
	cfg.Init = false
	cfg.BeemsgPort = freePort(t)
	cfg.GRPCPort = freePort(t)

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = d.Run(ctx)
	require.NoError(t, err)
}

// runTopologyTicker must drive its ticker off d.clock, not the wall clock,
// so a FakeClock advance (not a real 10-second wait) is enough to make a
// stale node transition offline.
func TestRunTopologyTicker_FiresOnInjectedClock(t *testing.T) {
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	defer s.Close()

	fake := supervisor.NewFakeClock(time.Unix(1000, 0))
	topo := topology.NewManager(s, topology.Config{NodeOfflineTimeoutSec: 5}, fake)
	require.NoError(t, topo.Load(context.Background()))

	node, err := topo.RegisterNode(context.Background(), model.NodeStorage, 8003, nil, "uuid-1", true)
	require.NoError(t, err)
	require.Equal(t, model.StateActive, node.State)

	d := &Daemon{Store: s, Topology: topo, clock: fake}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.runTopologyTicker(ctx) }()

	require.Eventually(t, func() bool {
		fake.Advance(10 * time.Second)
		n := topo.Snapshot().Nodes[node.UID]
		return n != nil && n.State == model.StateOffline
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
}

// runQuotaLoop must likewise drive its ticker off d.clock: advancing the
// fake clock, not a wall-clock sleep, is what makes a cycle run.
func TestRunQuotaLoop_FiresOnInjectedClock(t *testing.T) {
	s, poolUID := openDaemonTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateTarget(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage, TargetID: 1, PoolUID: poolUID})
	require.NoError(t, err)

	client := &fakeQuotaClient{usageByTarget: map[model.UID][]model.QuotaUsage{
		uid: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 100}},
	}}
	engine := &quota.Engine{Store: s, Client: client, Enforce: true, Users: quota.NewIdentitySet(), Groups: quota.NewIdentitySet()}

	fake := supervisor.NewFakeClock(time.Unix(1000, 0))
	d := &Daemon{Store: s, Quota: engine, clock: fake, cfg: config.Config{QuotaUpdateInterval: 60}}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.runQuotaLoop(runCtx) }()

	require.Eventually(t, func() bool {
		fake.Advance(60 * time.Second)
		return len(client.pushed) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
}

type fakeQuotaClient struct {
	usageByTarget map[model.UID][]model.QuotaUsage
	pushed        []model.UID
}

func (c *fakeQuotaClient) PullUsage(ctx context.Context, targetUID model.UID, idType model.IDType, ids []uint32) ([]model.QuotaUsage, error) {
	return c.usageByTarget[targetUID], nil
}

func (c *fakeQuotaClient) PushExceeded(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType, ids []uint32) error {
	c.pushed = append(c.pushed, poolUID)
	return nil
}

func openDaemonTestStore(t *testing.T) (*store.Store, model.UID) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	pools, err := s.ListStoragePools(context.Background())
	require.NoError(t, err)
	return s, pools[0].UID
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DBFile:          filepath.Join(t.TempDir(), "mgmtd.db"),
		Init:            true,
		BeemsgPort:      1,
		GRPCPort:        1,
		TLSDisable:      true,
		AuthDisable:     true,
		ConnectionLimit: 4,
		LogTarget:       "stderr",
	}
}
