package quota

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
)

type fakeClient struct {
	usageByTarget map[model.UID][]model.QuotaUsage
	pushed        []pushCall
}

type pushCall struct {
	poolUID model.UID
	idType  model.IDType
	qType   model.QuotaType
	ids     []uint32
}

func (c *fakeClient) PullUsage(ctx context.Context, targetUID model.UID, idType model.IDType, ids []uint32) ([]model.QuotaUsage, error) {
	return c.usageByTarget[targetUID], nil
}

func (c *fakeClient) PushExceeded(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType, ids []uint32) error {
	c.pushed = append(c.pushed, pushCall{poolUID, idType, qType, ids})
	return nil
}

func openEngineTestStore(t *testing.T) (*store.Store, model.UID) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	pools, err := s.ListStoragePools(context.Background())
	require.NoError(t, err)
	return s, pools[0].UID
}

// S5: three targets contribute usage summing above the limit for one user
// id; that id lands in the exceeded set and is pushed exactly once.
func TestRunCycle_PushesExceededSet(t *testing.T) {
	s, poolUID := openEngineTestStore(t)
	ctx := context.Background()

	var targetUIDs []model.UID
	for i := uint16(1); i <= 3; i++ {
		uid, err := s.CreateTarget(ctx, &model.Target{Alias: "st" + string(rune('0'+i)), Kind: model.TargetStorage, TargetID: i, PoolUID: poolUID})
		require.NoError(t, err)
		targetUIDs = append(targetUIDs, uid)
	}

	require.NoError(t, s.SetQuotaDefaultLimit(ctx, model.QuotaDefaultLimit{IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, PoolUID: poolUID, Value: 1000}))

	client := &fakeClient{usageByTarget: map[model.UID][]model.QuotaUsage{
		targetUIDs[0]: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 600}},
		targetUIDs[1]: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 300}},
		targetUIDs[2]: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 200}},
	}}

	users := NewIdentitySet()
	users.Add(1001)
	engine := &Engine{Store: s, Client: client, Enforce: true, Users: users, Groups: NewIdentitySet()}

	require.NoError(t, engine.RunCycle(ctx, poolUID))

	// PushExceeded is sent every (qType, source) combination each cycle
	// when Enforce is on; only the user/QuotaSpace combination is exceeded,
	// the rest carry an empty id list.
	var matched int
	for _, p := range client.pushed {
		if p.qType == model.QuotaSpace && p.idType == model.IDTypeUser {
			require.Equal(t, []uint32{1001}, p.ids)
			matched++
		} else {
			require.Empty(t, p.ids)
		}
	}
	require.Equal(t, 1, matched)
}

// PushExceeded is still sent every cycle when nothing is exceeded, with an
// empty id list, so a storage node clears a previously pushed exceeded flag.
func TestRunCycle_PushesEmptySetWhenNotExceeded(t *testing.T) {
	s, poolUID := openEngineTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateTarget(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage, TargetID: 1, PoolUID: poolUID})
	require.NoError(t, err)

	require.NoError(t, s.SetQuotaDefaultLimit(ctx, model.QuotaDefaultLimit{IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, PoolUID: poolUID, Value: 1000}))

	client := &fakeClient{usageByTarget: map[model.UID][]model.QuotaUsage{
		uid: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 100}},
	}}

	users := NewIdentitySet()
	users.Add(1001)
	engine := &Engine{Store: s, Client: client, Enforce: true, Users: users, Groups: NewIdentitySet()}

	require.NoError(t, engine.RunCycle(ctx, poolUID))
	require.NotEmpty(t, client.pushed)
	for _, p := range client.pushed {
		require.Empty(t, p.ids)
	}
}

func TestRunCycle_SkipsPushWhenEnforceDisabled(t *testing.T) {
	s, poolUID := openEngineTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateTarget(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage, TargetID: 1, PoolUID: poolUID})
	require.NoError(t, err)
	require.NoError(t, s.SetQuotaDefaultLimit(ctx, model.QuotaDefaultLimit{IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, PoolUID: poolUID, Value: 100}))

	client := &fakeClient{usageByTarget: map[model.UID][]model.QuotaUsage{
		uid: {{QuotaID: 1001, IDType: model.IDTypeUser, QuotaType: model.QuotaSpace, Value: 500}},
	}}

	users := NewIdentitySet()
	users.Add(1001)
	engine := &Engine{Store: s, Client: client, Enforce: false, Users: users, Groups: NewIdentitySet()}

	require.NoError(t, engine.RunCycle(ctx, poolUID))
	require.Empty(t, client.pushed)
}
