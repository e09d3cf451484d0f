package beemsg

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/wire"
)

// fakePeer accepts exactly one TCP connection and answers every frame sent
// to it using respond, recording each received (msgType, payload) pair.
type fakePeer struct {
	addr     string
	received chan fakeFrame
}

type fakeFrame struct {
	msgType wire.MsgType
	payload []byte
}

func startFakePeer(t *testing.T, respond func(wire.MsgType, []byte) (wire.MsgType, []byte, bool)) *fakePeer {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	fp := &fakePeer{addr: lis.Addr().String(), received: make(chan fakeFrame, 16)}
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			header := make([]byte, wire.HeaderSize)
			if _, err := readFull(conn, header); err != nil {
				return
			}
			length, err := wire.PeekLength(header)
			if err != nil {
				return
			}
			raw := make([]byte, length)
			copy(raw, header)
			if _, err := readFull(conn, raw[wire.HeaderSize:]); err != nil {
				return
			}
			hdr, body, err := wire.DecodeFrame(raw)
			if err != nil {
				return
			}
			fp.received <- fakeFrame{msgType: hdr.MsgType, payload: body}

			respType, respPayload, hasReply := respond(hdr.MsgType, body)
			if !hasReply {
				continue
			}
			if _, err := conn.Write(wire.EncodeFrame(respType, 0, 0, respPayload)); err != nil {
				return
			}
		}
	}()
	return fp
}

func newOutboundHandlers(t *testing.T) *Handlers {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "mgmtd.db"), Init: true})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &Handlers{Store: s, Pool: newConnPool(defaultConnectionLimit), Cfg: Config{AuthDisable: true}}
}

func hostPort(addr string) (string, uint16) {
	host, portStr, _ := net.SplitHostPort(addr)
	var port uint16
	for _, c := range portStr {
		port = port*10 + uint16(c-'0')
	}
	return host, port
}

func TestPullUsage_DecodesReply(t *testing.T) {
	h := newOutboundHandlers(t)
	ctx := context.Background()

	peer := startFakePeer(t, func(msgType wire.MsgType, payload []byte) (wire.MsgType, []byte, bool) {
		require.Equal(t, wire.MsgGetQuotaInfo, msgType)
		resp := &wire.GetQuotaInfoResp{Usages: []wire.QuotaUsageRecord{{ID: 1000, SpaceUsed: 500, InodeUsed: 7}}}
		return wire.MsgGetQuotaInfoResp, resp.Encode(), true
	})
	host, port := hostPort(peer.addr)

	pools, err := h.Store.ListStoragePools(ctx)
	require.NoError(t, err)
	nodeUID, err := h.Store.CreateNode(ctx, &model.Node{Alias: "storage-1", Kind: model.NodeStorage, NodeID: 1, Port: port,
		Nics: []model.Nic{{Type: model.NicEthernet, Addr: host}}, State: model.StateActive})
	require.NoError(t, err)
	targetUID, err := h.Store.CreateTarget(ctx, &model.Target{Alias: "st1", Kind: model.TargetStorage, TargetID: 1, NodeUID: nodeUID, PoolUID: pools[0].UID})
	require.NoError(t, err)

	usage, err := h.PullUsage(ctx, targetUID, model.IDTypeUser, []uint32{1000})
	require.NoError(t, err)
	require.Len(t, usage, 2)
}

func TestPushExceeded_SendsOneWay(t *testing.T) {
	h := newOutboundHandlers(t)
	ctx := context.Background()

	peer := startFakePeer(t, func(wire.MsgType, []byte) (wire.MsgType, []byte, bool) { return 0, nil, false })
	host, port := hostPort(peer.addr)

	pools, err := h.Store.ListStoragePools(ctx)
	require.NoError(t, err)
	nodeUID, err := h.Store.CreateNode(ctx, &model.Node{Alias: "storage-2", Kind: model.NodeStorage, NodeID: 2, Port: port,
		Nics: []model.Nic{{Type: model.NicEthernet, Addr: host}}, State: model.StateActive})
	require.NoError(t, err)
	_, err = h.Store.CreateTarget(ctx, &model.Target{Alias: "st2", Kind: model.TargetStorage, TargetID: 2, NodeUID: nodeUID, PoolUID: pools[0].UID})
	require.NoError(t, err)

	err = h.PushExceeded(ctx, pools[0].UID, model.IDTypeUser, model.QuotaSpace, []uint32{42})
	require.NoError(t, err)

	select {
	case f := <-peer.received:
		require.Equal(t, wire.MsgSetExceededQuota, f.msgType)
	default:
		t.Fatal("expected peer to receive a SetExceededQuota frame")
	}
}
