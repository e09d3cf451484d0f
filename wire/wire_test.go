package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thinkparq/mgmtd/model"
)

func TestFrame_RoundTrip(t *testing.T) {
	payload := []byte("some payload bytes")
	raw := EncodeFrame(MsgHeartbeat, 0x1, 0xdeadbeef, payload)

	h, got, err := DecodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, MsgHeartbeat, h.MsgType)
	require.Equal(t, uint64(0x1), h.FeatureFlags)
	require.Equal(t, uint64(0xdeadbeef), h.AuthHash)
	require.Equal(t, payload, got)
}

func TestDecodeFrame_RejectsTruncatedHeader(t *testing.T) {
	_, _, err := DecodeFrame([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeFrame_RejectsLengthMismatch(t *testing.T) {
	raw := EncodeFrame(MsgHeartbeat, 0, 0, []byte("payload"))
	raw = raw[:len(raw)-1] // truncate by one byte after the header claims more
	_, _, err := DecodeFrame(raw)
	require.Error(t, err)
}

func TestHeartbeat_RoundTrip(t *testing.T) {
	m := &Heartbeat{
		NodeKind: model.NodeStorage,
		NodeID:   7,
		Port:     8003,
		Nics: []model.Nic{
			{Type: model.NicEthernet, Addr: "10.0.0.1", IfName: "eth0"},
			{Type: model.NicRDMA, Addr: "10.0.1.1", IfName: "ib0"},
		},
		InstanceVersion: 42,
		MachineUUID:     "abc-123",
	}
	got, err := DecodeHeartbeat(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.NodeKind, got.NodeKind)
	require.Equal(t, m.NodeID, got.NodeID)
	require.Equal(t, m.Port, got.Port)
	require.Equal(t, m.InstanceVersion, got.InstanceVersion)
	require.Equal(t, m.MachineUUID, got.MachineUUID)
	require.Len(t, got.Nics, 2)
	require.Equal(t, m.Nics[0].IfName, got.Nics[0].IfName)
	require.Equal(t, m.Nics[1].Type, got.Nics[1].Type)
}

func TestRegisterNode_RoundTrip(t *testing.T) {
	m := &RegisterNode{
		NodeKind:    model.NodeMeta,
		DesiredID:   0,
		Port:        8005,
		Nics:        []model.Nic{{Type: model.NicEthernet, Addr: "192.168.0.5", IfName: "eth1"}},
		MachineUUID: "uuid-1",
	}
	got, err := DecodeRegisterNode(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.NodeKind, got.NodeKind)
	require.Equal(t, m.MachineUUID, got.MachineUUID)
	require.Equal(t, m.Nics[0].Addr, got.Nics[0].Addr)
}

func TestRegisterNodeResp_RoundTrip(t *testing.T) {
	m := &RegisterNodeResp{AssignedID: 3}
	got, err := DecodeRegisterNodeResp(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.AssignedID, got.AssignedID)
}

func TestGetNodesResp_RoundTrip(t *testing.T) {
	m := &GetNodesResp{Nodes: []NodeRecord{
		{NodeID: 1, Port: 8003, Alias: "storage-1"},
		{NodeID: 2, Port: 8003, Alias: "storage-2", Nics: []model.Nic{{Type: model.NicEthernet, Addr: "10.0.0.2", IfName: "eth0"}}},
	}}
	got, err := DecodeGetNodesResp(m.Encode())
	require.NoError(t, err)
	require.Len(t, got.Nodes, 2)
	require.Equal(t, "storage-1", got.Nodes[0].Alias)
	require.Equal(t, "eth0", got.Nodes[1].Nics[0].IfName)
}

func TestSetTargetConsistency_RoundTrip(t *testing.T) {
	m := &SetTargetConsistency{
		TargetIDs: []uint16{1, 2, 3},
		States:    []model.Consistency{model.ConsistencyGood, model.ConsistencyNeedsResync, model.ConsistencyBad},
	}
	got, err := DecodeSetTargetConsistency(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.TargetIDs, got.TargetIDs)
	require.Equal(t, m.States, got.States)
}

func TestGetQuotaInfo_RoundTrip(t *testing.T) {
	m := &GetQuotaInfo{TargetID: 5, IDType: model.IDTypeUser, IDSet: []uint32{100, 200, 300}}
	got, err := DecodeGetQuotaInfo(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.TargetID, got.TargetID)
	require.Equal(t, m.IDType, got.IDType)
	require.Equal(t, m.IDSet, got.IDSet)
}

func TestSetExceededQuota_RoundTrip(t *testing.T) {
	m := &SetExceededQuota{PoolID: 1, IDType: model.IDTypeGroup, QuotaType: model.QuotaSpace, IDs: []uint32{7, 8}}
	got, err := DecodeSetExceededQuota(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.PoolID, got.PoolID)
	require.Equal(t, m.IDType, got.IDType)
	require.Equal(t, m.QuotaType, got.QuotaType)
	require.Equal(t, m.IDs, got.IDs)
}

func TestRemoveNode_RoundTrip(t *testing.T) {
	m := &RemoveNode{NodeKind: model.NodeStorage, NodeID: 9}
	got, err := DecodeRemoveNode(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.NodeKind, got.NodeKind)
	require.Equal(t, m.NodeID, got.NodeID)

	resp := &RemoveNodeResp{OK: true}
	gotResp, err := DecodeRemoveNodeResp(resp.Encode())
	require.NoError(t, err)
	require.True(t, gotResp.OK)
}

// §8 P1: unknown trailing bytes after a correctly-framed payload's last
// known field are rejected, not silently dropped.
func TestDecode_RejectsTrailingGarbage(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef}

	heartbeat := (&Heartbeat{NodeKind: model.NodeMeta, MachineUUID: "uuid-1"}).Encode()
	_, err := DecodeHeartbeat(append(heartbeat, garbage...))
	require.Error(t, err)

	registerNode := (&RegisterNode{NodeKind: model.NodeMeta, MachineUUID: "uuid-1"}).Encode()
	_, err = DecodeRegisterNode(append(registerNode, garbage...))
	require.Error(t, err)

	registerNodeResp := (&RegisterNodeResp{AssignedID: 3}).Encode()
	_, err = DecodeRegisterNodeResp(append(registerNodeResp, garbage...))
	require.Error(t, err)

	getNodes := (&GetNodes{NodeKind: model.NodeMeta}).Encode()
	_, err = DecodeGetNodes(append(getNodes, garbage...))
	require.Error(t, err)

	removeNode := (&RemoveNode{NodeKind: model.NodeStorage, NodeID: 9}).Encode()
	_, err = DecodeRemoveNode(append(removeNode, garbage...))
	require.Error(t, err)

	removeNodeResp := (&RemoveNodeResp{OK: true}).Encode()
	_, err = DecodeRemoveNodeResp(append(removeNodeResp, garbage...))
	require.Error(t, err)

	setTargetConsistency := (&SetTargetConsistency{
		TargetIDs: []uint16{1}, States: []model.Consistency{model.ConsistencyGood},
	}).Encode()
	_, err = DecodeSetTargetConsistency(append(setTargetConsistency, garbage...))
	require.Error(t, err)

	getQuotaInfo := (&GetQuotaInfo{TargetID: 5, IDType: model.IDTypeUser, IDSet: []uint32{100}}).Encode()
	_, err = DecodeGetQuotaInfo(append(getQuotaInfo, garbage...))
	require.Error(t, err)
}

func TestGetNicList_RejectsIllegalType(t *testing.T) {
	entry := make([]byte, NicEntrySize)
	entry[0] = 99 // not a valid NicType
	buf := appendUint32(nil, 1)
	buf = append(buf, entry...)
	_, _, err := getNicList(buf)
	require.Error(t, err)
}
