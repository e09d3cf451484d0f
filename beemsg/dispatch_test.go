package beemsg

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
	"github.com/thinkparq/mgmtd/topology"
	"github.com/thinkparq/mgmtd/wire"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clock := supervisor.NewFakeClock(time.Unix(1_700_000_000, 0))
	topo := topology.NewManager(s, topology.Config{NodeOfflineTimeoutSec: 60, ClientAutoRemoveSec: 60}, clock)
	require.NoError(t, topo.Load(context.Background()))

	return &Handlers{Store: s, Topology: topo, Pool: newConnPool(defaultConnectionLimit)}
}

func TestDispatch_RegisterNodeThenGetNodes(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	req := &wire.RegisterNode{NodeKind: model.NodeStorage, Port: 8003, MachineUUID: "storage-1"}
	respType, respPayload, err := h.Dispatch(ctx, wire.MsgRegisterNode, req.Encode())
	require.NoError(t, err)
	require.Equal(t, wire.MsgRegisterNodeResp, respType)

	resp, err := wire.DecodeRegisterNodeResp(respPayload)
	require.NoError(t, err)
	require.Equal(t, uint16(1), resp.AssignedID)

	listReq := &wire.GetNodes{NodeKind: model.NodeStorage}
	respType, respPayload, err = h.Dispatch(ctx, wire.MsgGetNodes, listReq.Encode())
	require.NoError(t, err)
	require.Equal(t, wire.MsgGetNodesResp, respType)

	listResp, err := wire.DecodeGetNodesResp(respPayload)
	require.NoError(t, err)
	require.Len(t, listResp.Nodes, 1)
	require.Equal(t, uint16(8003), listResp.Nodes[0].Port)
}

func TestDispatch_RegisterNodeIdempotentByMachineUUID(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	req := &wire.RegisterNode{NodeKind: model.NodeMeta, Port: 8005, MachineUUID: "meta-1"}
	_, first, err := h.Dispatch(ctx, wire.MsgRegisterNode, req.Encode())
	require.NoError(t, err)
	_, second, err := h.Dispatch(ctx, wire.MsgRegisterNode, req.Encode())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDispatch_Heartbeat_NoReply(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	reg := &wire.RegisterNode{NodeKind: model.NodeStorage, Port: 8003, MachineUUID: "storage-2"}
	_, _, err := h.Dispatch(ctx, wire.MsgRegisterNode, reg.Encode())
	require.NoError(t, err)

	hb := &wire.Heartbeat{NodeKind: model.NodeStorage, MachineUUID: "storage-2"}
	respType, respPayload, err := h.Dispatch(ctx, wire.MsgHeartbeat, hb.Encode())
	require.NoError(t, err)
	require.Zero(t, respType)
	require.Nil(t, respPayload)
}

func TestDispatch_GetStoragePools_IncludesDefault(t *testing.T) {
	h := newTestHandlers(t)
	respType, respPayload, err := h.Dispatch(context.Background(), wire.MsgGetStoragePools, nil)
	require.NoError(t, err)
	require.Equal(t, wire.MsgGetStoragePoolsResp, respType)

	resp, err := wire.DecodeGetStoragePoolsResp(respPayload)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Pools)
}

// A BeeMsg-registered target must land in the topology cache, not just the
// store, so an RPC subscriber observes it in its next Snapshot.
func TestDispatch_RegisterTarget_UpdatesTopologyCache(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	regNode := &wire.RegisterNode{NodeKind: model.NodeStorage, Port: 8003, MachineUUID: "storage-3"}
	_, _, err := h.Dispatch(ctx, wire.MsgRegisterNode, regNode.Encode())
	require.NoError(t, err)

	regTarget := &wire.RegisterTarget{NodeKind: model.TargetStorage, MachineUUID: "storage-3"}
	respType, respPayload, err := h.Dispatch(ctx, wire.MsgRegisterTarget, regTarget.Encode())
	require.NoError(t, err)
	require.Equal(t, wire.MsgRegisterTargetResp, respType)

	resp, err := wire.DecodeRegisterTargetResp(respPayload)
	require.NoError(t, err)
	require.Equal(t, uint16(1), resp.AssignedID)

	snap := h.Topology.Snapshot()
	var found bool
	for _, t := range snap.Targets {
		if t.TargetID == resp.AssignedID {
			found = true
		}
	}
	require.True(t, found, "registered target must appear in the topology cache")
}

func TestDispatch_UnknownMsgType_Errors(t *testing.T) {
	h := newTestHandlers(t)
	_, _, err := h.Dispatch(context.Background(), wire.MsgType(9999), nil)
	require.Error(t, err)
}
