package beemsg

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/topology"
	"github.com/thinkparq/mgmtd/wire"
)

// Handlers answers inbound BeeMsg requests and, on the outbound side,
// implements the quota.Client and buddy.Notifier interfaces so the quota
// engine and buddy coordinator reach real peers instead of a test double.
type Handlers struct {
	Store    *store.Store
	Topology *topology.Manager
	Pool     *connPool
	Cfg      Config
}

// Dispatch answers one decoded inbound frame. A zero MsgType/nil payload
// return means the request was one-way (Heartbeat) and no reply is sent.
func (h *Handlers) Dispatch(ctx context.Context, msgType wire.MsgType, payload []byte) (wire.MsgType, []byte, error) {
	switch msgType {
	case wire.MsgHeartbeat:
		return h.handleHeartbeat(ctx, payload)
	case wire.MsgRegisterNode:
		return h.handleRegisterNode(ctx, payload)
	case wire.MsgRegisterTarget:
		return h.handleRegisterTarget(ctx, payload)
	case wire.MsgGetNodes:
		return h.handleGetNodes(ctx, payload)
	case wire.MsgGetTargetMappings:
		return h.handleGetTargetMappings(ctx, payload)
	case wire.MsgGetStoragePools:
		return h.handleGetStoragePools(ctx, payload)
	case wire.MsgGetMirrorBuddyGroups:
		return h.handleGetMirrorBuddyGroups(ctx, payload)
	case wire.MsgRemoveNode:
		return h.handleRemoveNode(ctx, payload)
	default:
		return 0, nil, errors.New(errors.KindUnsupported, "beemsg.Dispatch", "no handler for this message type")
	}
}

func (h *Handlers) handleHeartbeat(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeHeartbeat(payload)
	if err != nil {
		return 0, nil, err
	}
	node, err := h.Store.FindNodeByMachineUUID(ctx, m.NodeKind, m.MachineUUID)
	if err != nil {
		return 0, nil, err
	}
	if err := h.Topology.Heartbeat(ctx, node.UID); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

func (h *Handlers) handleRegisterNode(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeRegisterNode(payload)
	if err != nil {
		return 0, nil, err
	}
	node, err := h.Topology.RegisterNode(ctx, m.NodeKind, m.Port, m.Nics, m.MachineUUID, false)
	if err != nil {
		return 0, nil, err
	}
	resp := &wire.RegisterNodeResp{AssignedID: node.NodeID}
	return wire.MsgRegisterNodeResp, resp.Encode(), nil
}

func (h *Handlers) handleRegisterTarget(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeRegisterTarget(payload)
	if err != nil {
		return 0, nil, err
	}
	node, err := h.Store.FindNodeByMachineUUID(ctx, m.NodeKind.NodeKind(), m.MachineUUID)
	if err != nil {
		return 0, nil, err
	}
	t := &model.Target{
		Kind:    m.NodeKind,
		NodeUID: node.UID,
	}
	if _, err := h.Topology.CreateTargetAutoID(ctx, t); err != nil {
		return 0, nil, err
	}
	resp := &wire.RegisterTargetResp{AssignedID: t.TargetID}
	return wire.MsgRegisterTargetResp, resp.Encode(), nil
}

func (h *Handlers) handleGetNodes(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeGetNodes(payload)
	if err != nil {
		return 0, nil, err
	}
	nodes, err := h.Store.ListNodes(ctx, m.NodeKind)
	if err != nil {
		return 0, nil, err
	}
	resp := &wire.GetNodesResp{Nodes: make([]wire.NodeRecord, 0, len(nodes))}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, wire.NodeRecord{NodeID: n.NodeID, Port: n.Port, Nics: n.Nics, Alias: n.Alias})
	}
	return wire.MsgGetNodesResp, resp.Encode(), nil
}

func (h *Handlers) handleGetTargetMappings(ctx context.Context, _ []byte) (wire.MsgType, []byte, error) {
	resp := &wire.GetTargetMappingsResp{}
	for _, kind := range []model.TargetKind{model.TargetMeta, model.TargetStorage} {
		targets, err := h.Store.ListTargets(ctx, kind)
		if err != nil {
			return 0, nil, err
		}
		for _, t := range targets {
			var nodeID uint16
			if t.NodeUID != 0 {
				node, err := h.Store.GetNode(ctx, t.NodeUID)
				if err != nil {
					return 0, nil, err
				}
				nodeID = node.NodeID
			}
			resp.Mappings = append(resp.Mappings, wire.TargetMapping{TargetID: t.TargetID, NodeID: nodeID})
		}
	}
	return wire.MsgGetTargetMappingsResp, resp.Encode(), nil
}

func (h *Handlers) handleGetStoragePools(ctx context.Context, _ []byte) (wire.MsgType, []byte, error) {
	pools, err := h.Store.ListStoragePools(ctx)
	if err != nil {
		return 0, nil, err
	}
	resp := &wire.GetStoragePoolsResp{Pools: make([]wire.PoolRecord, 0, len(pools))}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, wire.PoolRecord{PoolID: p.PoolID, Alias: p.Alias})
	}
	return wire.MsgGetStoragePoolsResp, resp.Encode(), nil
}

func (h *Handlers) handleGetMirrorBuddyGroups(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeGetMirrorBuddyGroups(payload)
	if err != nil {
		return 0, nil, err
	}
	groups, err := h.Store.ListBuddyGroups(ctx, m.NodeKind)
	if err != nil {
		return 0, nil, err
	}
	resp := &wire.GetMirrorBuddyGroupsResp{Groups: make([]wire.GroupRecord, 0, len(groups))}
	for _, g := range groups {
		primary, err := h.Store.GetTarget(ctx, g.PrimaryUID)
		if err != nil {
			return 0, nil, err
		}
		secondary, err := h.Store.GetTarget(ctx, g.SecondaryUID)
		if err != nil {
			return 0, nil, err
		}
		resp.Groups = append(resp.Groups, wire.GroupRecord{
			GroupID: g.GroupID, PrimaryID: primary.TargetID, SecondaryID: secondary.TargetID,
		})
	}
	return wire.MsgGetMirrorBuddyGroupsResp, resp.Encode(), nil
}

// handleRemoveNode services a node's clean-shutdown deregistration. Sticky
// meta/storage/management nodes are never auto-removed by the topology
// ticker (§4.E), but an explicit shutdown request is honored here.
func (h *Handlers) handleRemoveNode(ctx context.Context, payload []byte) (wire.MsgType, []byte, error) {
	m, err := wire.DecodeRemoveNode(payload)
	if err != nil {
		return 0, nil, err
	}
	nodes, err := h.Store.ListNodes(ctx, m.NodeKind)
	if err != nil {
		return 0, nil, err
	}
	var uid model.UID
	for _, n := range nodes {
		if n.NodeID == m.NodeID {
			uid = n.UID
			break
		}
	}
	if uid == 0 {
		resp := &wire.RemoveNodeResp{OK: false}
		return wire.MsgRemoveNodeResp, resp.Encode(), nil
	}
	err = h.Store.DeleteNode(ctx, uid)
	resp := &wire.RemoveNodeResp{OK: err == nil}
	return wire.MsgRemoveNodeResp, resp.Encode(), err
}

// --- outbound: quota.Client and buddy.Notifier ---

const dialTimeout = 5 * time.Second

// nodeAddr resolves the dial address for the node owning targetUID.
func (h *Handlers) nodeAddr(ctx context.Context, targetUID model.UID) (string, error) {
	target, err := h.Store.GetTarget(ctx, targetUID)
	if err != nil {
		return "", err
	}
	if target.NodeUID == 0 {
		return "", errors.New(errors.KindConstraint, "beemsg.nodeAddr", "target is unmapped")
	}
	node, err := h.Store.GetNode(ctx, target.NodeUID)
	if err != nil {
		return "", err
	}
	if len(node.Nics) == 0 {
		return "", errors.New(errors.KindConstraint, "beemsg.nodeAddr", "node has no advertised NIC")
	}
	return net.JoinHostPort(node.Nics[0].Addr, strconv.Itoa(int(node.Port))), nil
}

// roundTrip writes a framed request over a pooled TCP connection and reads
// back the full reply frame. Pass wantReply=false for one-way broadcasts.
func (h *Handlers) roundTrip(addr string, msgType wire.MsgType, payload []byte, wantReply bool) ([]byte, error) {
	var authSecret uint64
	if !h.Cfg.AuthDisable {
		authSecret = authHash(h.Cfg.AuthSecret)
	}
	frame := wire.EncodeFrame(msgType, 0, authSecret, payload)
	defer wire.ReleaseFrame(frame)

	conn, err := h.Pool.get(addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "beemsg.roundTrip", err)
	}
	if _, err := conn.Write(frame); err != nil {
		h.Pool.discard(addr, conn)
		return nil, errors.Wrap(errors.KindIO, "beemsg.roundTrip", err)
	}
	if !wantReply {
		h.Pool.put(addr, conn)
		return nil, nil
	}

	header := make([]byte, wire.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		h.Pool.discard(addr, conn)
		return nil, errors.Wrap(errors.KindIO, "beemsg.roundTrip", err)
	}
	length, err := wire.PeekLength(header)
	if err != nil {
		h.Pool.discard(addr, conn)
		return nil, err
	}
	raw := make([]byte, length)
	copy(raw, header)
	if _, err := readFull(conn, raw[wire.HeaderSize:]); err != nil {
		h.Pool.discard(addr, conn)
		return nil, errors.Wrap(errors.KindIO, "beemsg.roundTrip", err)
	}
	_, body, err := wire.DecodeFrame(raw)
	if err != nil {
		h.Pool.discard(addr, conn)
		return nil, err
	}
	h.Pool.put(addr, conn)
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
