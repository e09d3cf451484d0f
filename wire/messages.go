package wire

import (
	"encoding/binary"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
)

// Heartbeat is sent periodically by every node kind to announce liveness
// and (re)advertise its NIC list.
type Heartbeat struct {
	NodeKind        model.NodeKind
	NodeID          uint16
	Port            uint16
	Nics            []model.Nic
	InstanceVersion uint64
	MachineUUID     string
}

func (m *Heartbeat) Encode() []byte {
	buf := make([]byte, 0, 64)
	putString(&buf, string(m.NodeKind))
	buf = appendUint16(buf, m.NodeID)
	buf = appendUint16(buf, m.Port)
	putNicList(&buf, m.Nics)
	buf = appendUint64(buf, m.InstanceVersion)
	putString(&buf, m.MachineUUID)
	return buf
}

func DecodeHeartbeat(buf []byte) (*Heartbeat, error) {
	m := &Heartbeat{}
	var err error
	var kind string
	if kind, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.NodeKind = model.NodeKind(kind)
	if m.NodeID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.Port, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.Nics, buf, err = getNicList(buf); err != nil {
		return nil, err
	}
	if m.InstanceVersion, buf, err = takeUint64(buf); err != nil {
		return nil, err
	}
	var rest []byte
	if m.MachineUUID, rest, err = getString(buf); err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeHeartbeat"); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterNode is the initial registration request a node sends on
// startup, optionally requesting a specific ID (0 means "assign any").
type RegisterNode struct {
	NodeKind    model.NodeKind
	DesiredID   uint16
	Port        uint16
	Nics        []model.Nic
	MachineUUID string
}

func (m *RegisterNode) Encode() []byte {
	buf := make([]byte, 0, 64)
	putString(&buf, string(m.NodeKind))
	buf = appendUint16(buf, m.DesiredID)
	buf = appendUint16(buf, m.Port)
	putNicList(&buf, m.Nics)
	putString(&buf, m.MachineUUID)
	return buf
}

func DecodeRegisterNode(buf []byte) (*RegisterNode, error) {
	m := &RegisterNode{}
	var err error
	var kind string
	if kind, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.NodeKind = model.NodeKind(kind)
	if m.DesiredID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.Port, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.Nics, buf, err = getNicList(buf); err != nil {
		return nil, err
	}
	var rest []byte
	if m.MachineUUID, rest, err = getString(buf); err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeRegisterNode"); err != nil {
		return nil, err
	}
	return m, nil
}

type RegisterNodeResp struct {
	AssignedID uint16
}

func (m *RegisterNodeResp) Encode() []byte {
	return appendUint16(nil, m.AssignedID)
}

func DecodeRegisterNodeResp(buf []byte) (*RegisterNodeResp, error) {
	id, rest, err := takeUint16(buf)
	if err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeRegisterNodeResp"); err != nil {
		return nil, err
	}
	return &RegisterNodeResp{AssignedID: id}, nil
}

// RegisterTarget is nested inside a storage node's registration flow: the
// node advertises one target and receives back an assigned target_id.
type RegisterTarget struct {
	NodeKind        model.TargetKind
	NodeID          uint16
	DesiredTargetID uint16
	MachineUUID     string
}

func (m *RegisterTarget) Encode() []byte {
	buf := make([]byte, 0, 32)
	putString(&buf, string(m.NodeKind))
	buf = appendUint16(buf, m.NodeID)
	buf = appendUint16(buf, m.DesiredTargetID)
	putString(&buf, m.MachineUUID)
	return buf
}

func DecodeRegisterTarget(buf []byte) (*RegisterTarget, error) {
	m := &RegisterTarget{}
	var err error
	var kind string
	if kind, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.NodeKind = model.TargetKind(kind)
	if m.NodeID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.DesiredTargetID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	var rest []byte
	if m.MachineUUID, rest, err = getString(buf); err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeRegisterTarget"); err != nil {
		return nil, err
	}
	return m, nil
}

type RegisterTargetResp struct {
	AssignedID uint16
}

func (m *RegisterTargetResp) Encode() []byte { return appendUint16(nil, m.AssignedID) }

func DecodeRegisterTargetResp(buf []byte) (*RegisterTargetResp, error) {
	id, rest, err := takeUint16(buf)
	if err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeRegisterTargetResp"); err != nil {
		return nil, err
	}
	return &RegisterTargetResp{AssignedID: id}, nil
}

// GetNodes is a query for the full node list of one kind.
type GetNodes struct {
	NodeKind model.NodeKind
}

func (m *GetNodes) Encode() []byte {
	var buf []byte
	putString(&buf, string(m.NodeKind))
	return buf
}

func DecodeGetNodes(buf []byte) (*GetNodes, error) {
	kind, rest, err := getString(buf)
	if err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeGetNodes"); err != nil {
		return nil, err
	}
	return &GetNodes{NodeKind: model.NodeKind(kind)}, nil
}

// NodeRecord is one entry of a GetNodesResp.
type NodeRecord struct {
	NodeID uint16
	Port   uint16
	Nics   []model.Nic
	Alias  string
}

type GetNodesResp struct {
	Nodes []NodeRecord
}

func (m *GetNodesResp) Encode() []byte {
	buf := appendUint32(nil, uint32(len(m.Nodes)))
	for _, n := range m.Nodes {
		buf = appendUint16(buf, n.NodeID)
		buf = appendUint16(buf, n.Port)
		putNicList(&buf, n.Nics)
		putString(&buf, n.Alias)
	}
	return buf
}

func DecodeGetNodesResp(buf []byte) (*GetNodesResp, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]NodeRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec NodeRecord
		if rec.NodeID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if rec.Port, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if rec.Nics, buf, err = getNicList(buf); err != nil {
			return nil, err
		}
		if rec.Alias, buf, err = getString(buf); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := requireEmpty(buf, "wire.DecodeGetNodesResp"); err != nil {
		return nil, err
	}
	return &GetNodesResp{Nodes: out}, nil
}

// GetTargetMappings and its reply describe which node currently hosts each
// target.
type GetTargetMappings struct{}

func (m *GetTargetMappings) Encode() []byte { return nil }

func DecodeGetTargetMappings(buf []byte) (*GetTargetMappings, error) {
	if err := requireEmpty(buf, "wire.DecodeGetTargetMappings"); err != nil {
		return nil, err
	}
	return &GetTargetMappings{}, nil
}

type TargetMapping struct {
	TargetID uint16
	NodeID   uint16 // 0 means unmapped
}

type GetTargetMappingsResp struct {
	Mappings []TargetMapping
}

func (m *GetTargetMappingsResp) Encode() []byte {
	buf := appendUint32(nil, uint32(len(m.Mappings)))
	for _, mp := range m.Mappings {
		buf = appendUint16(buf, mp.TargetID)
		buf = appendUint16(buf, mp.NodeID)
	}
	return buf
}

func DecodeGetTargetMappingsResp(buf []byte) (*GetTargetMappingsResp, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]TargetMapping, 0, count)
	for i := uint32(0); i < count; i++ {
		var mp TargetMapping
		if mp.TargetID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if mp.NodeID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	if err := requireEmpty(buf, "wire.DecodeGetTargetMappingsResp"); err != nil {
		return nil, err
	}
	return &GetTargetMappingsResp{Mappings: out}, nil
}

type GetStoragePools struct{}

func (m *GetStoragePools) Encode() []byte { return nil }

func DecodeGetStoragePools(buf []byte) (*GetStoragePools, error) {
	if err := requireEmpty(buf, "wire.DecodeGetStoragePools"); err != nil {
		return nil, err
	}
	return &GetStoragePools{}, nil
}

type PoolRecord struct {
	PoolID uint16
	Alias  string
}

type GetStoragePoolsResp struct {
	Pools []PoolRecord
}

func (m *GetStoragePoolsResp) Encode() []byte {
	buf := appendUint32(nil, uint32(len(m.Pools)))
	for _, p := range m.Pools {
		buf = appendUint16(buf, p.PoolID)
		putString(&buf, p.Alias)
	}
	return buf
}

func DecodeGetStoragePoolsResp(buf []byte) (*GetStoragePoolsResp, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]PoolRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var p PoolRecord
		if p.PoolID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if p.Alias, buf, err = getString(buf); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := requireEmpty(buf, "wire.DecodeGetStoragePoolsResp"); err != nil {
		return nil, err
	}
	return &GetStoragePoolsResp{Pools: out}, nil
}

type GetMirrorBuddyGroups struct {
	NodeKind model.TargetKind
}

func (m *GetMirrorBuddyGroups) Encode() []byte {
	var buf []byte
	putString(&buf, string(m.NodeKind))
	return buf
}

func DecodeGetMirrorBuddyGroups(buf []byte) (*GetMirrorBuddyGroups, error) {
	kind, rest, err := getString(buf)
	if err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeGetMirrorBuddyGroups"); err != nil {
		return nil, err
	}
	return &GetMirrorBuddyGroups{NodeKind: model.TargetKind(kind)}, nil
}

type GroupRecord struct {
	GroupID      uint16
	PrimaryID    uint16
	SecondaryID  uint16
}

type GetMirrorBuddyGroupsResp struct {
	Groups []GroupRecord
}

func (m *GetMirrorBuddyGroupsResp) Encode() []byte {
	buf := appendUint32(nil, uint32(len(m.Groups)))
	for _, g := range m.Groups {
		buf = appendUint16(buf, g.GroupID)
		buf = appendUint16(buf, g.PrimaryID)
		buf = appendUint16(buf, g.SecondaryID)
	}
	return buf
}

func DecodeGetMirrorBuddyGroupsResp(buf []byte) (*GetMirrorBuddyGroupsResp, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]GroupRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var g GroupRecord
		if g.GroupID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if g.PrimaryID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		if g.SecondaryID, buf, err = takeUint16(buf); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := requireEmpty(buf, "wire.DecodeGetMirrorBuddyGroupsResp"); err != nil {
		return nil, err
	}
	return &GetMirrorBuddyGroupsResp{Groups: out}, nil
}

// SetCapacityPool carries one pool's low-space and emergency target lists;
// there is no reply. The codec is complete, but no code in this repository
// sends it.
type SetCapacityPool struct {
	PoolID           uint16
	LowSpaceTargets  []uint16
	EmergencyTargets []uint16
}

func (m *SetCapacityPool) Encode() []byte {
	buf := appendUint16(nil, m.PoolID)
	buf = appendUint16List(buf, m.LowSpaceTargets)
	buf = appendUint16List(buf, m.EmergencyTargets)
	return buf
}

func DecodeSetCapacityPool(buf []byte) (*SetCapacityPool, error) {
	m := &SetCapacityPool{}
	var err error
	if m.PoolID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if m.LowSpaceTargets, buf, err = takeUint16List(buf); err != nil {
		return nil, err
	}
	var rest []byte
	if m.EmergencyTargets, rest, err = takeUint16List(buf); err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeSetCapacityPool"); err != nil {
		return nil, err
	}
	return m, nil
}

// SetTargetConsistency is broadcast whenever the buddy coordinator changes
// a target's resync state; there is no reply.
type SetTargetConsistency struct {
	TargetIDs []uint16
	States    []model.Consistency
}

func (m *SetTargetConsistency) Encode() []byte {
	buf := appendUint16List(nil, m.TargetIDs)
	buf = appendUint32(buf, uint32(len(m.States)))
	for _, st := range m.States {
		buf = append(buf, byte(consistencyCode(st)))
	}
	return buf
}

func DecodeSetTargetConsistency(buf []byte) (*SetTargetConsistency, error) {
	m := &SetTargetConsistency{}
	var err error
	if m.TargetIDs, buf, err = takeUint16List(buf); err != nil {
		return nil, err
	}
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) < uint64(count) {
		return nil, errors.New(errors.KindMalformed, "wire.DecodeSetTargetConsistency", "truncated state list")
	}
	m.States = make([]model.Consistency, count)
	for i := uint32(0); i < count; i++ {
		c, err := consistencyFromCode(buf[i])
		if err != nil {
			return nil, err
		}
		m.States[i] = c
	}
	if err := requireEmpty(buf[count:], "wire.DecodeSetTargetConsistency"); err != nil {
		return nil, err
	}
	return m, nil
}

func consistencyCode(c model.Consistency) byte {
	switch c {
	case model.ConsistencyGood:
		return 0
	case model.ConsistencyNeedsResync:
		return 1
	case model.ConsistencyBad:
		return 2
	default:
		return 0
	}
}

func consistencyFromCode(b byte) (model.Consistency, error) {
	switch b {
	case 0:
		return model.ConsistencyGood, nil
	case 1:
		return model.ConsistencyNeedsResync, nil
	case 2:
		return model.ConsistencyBad, nil
	default:
		return "", errors.New(errors.KindMalformed, "wire.consistencyFromCode", "illegal consistency enum value")
	}
}

// GetQuotaInfo pulls usage for one target, restricted to an explicit
// identity set when provided (empty means "all known identities").
type GetQuotaInfo struct {
	TargetID uint16
	IDType   model.IDType
	IDSet    []uint32
}

func (m *GetQuotaInfo) Encode() []byte {
	buf := appendUint16(nil, m.TargetID)
	putString(&buf, string(m.IDType))
	buf = appendUint32(buf, uint32(len(m.IDSet)))
	for _, id := range m.IDSet {
		buf = appendUint32(buf, id)
	}
	return buf
}

func DecodeGetQuotaInfo(buf []byte) (*GetQuotaInfo, error) {
	m := &GetQuotaInfo{}
	var err error
	if m.TargetID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	var idType string
	if idType, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.IDType = model.IDType(idType)
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	m.IDSet = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		if m.IDSet[i], buf, err = takeUint32(buf); err != nil {
			return nil, err
		}
	}
	if err := requireEmpty(buf, "wire.DecodeGetQuotaInfo"); err != nil {
		return nil, err
	}
	return m, nil
}

type QuotaUsageRecord struct {
	ID        uint32
	SpaceUsed uint64
	InodeUsed uint64
}

type GetQuotaInfoResp struct {
	Usages []QuotaUsageRecord
}

func (m *GetQuotaInfoResp) Encode() []byte {
	buf := appendUint32(nil, uint32(len(m.Usages)))
	for _, u := range m.Usages {
		buf = appendUint32(buf, u.ID)
		buf = appendUint64(buf, u.SpaceUsed)
		buf = appendUint64(buf, u.InodeUsed)
	}
	return buf
}

func DecodeGetQuotaInfoResp(buf []byte) (*GetQuotaInfoResp, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]QuotaUsageRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var u QuotaUsageRecord
		if u.ID, buf, err = takeUint32(buf); err != nil {
			return nil, err
		}
		if u.SpaceUsed, buf, err = takeUint64(buf); err != nil {
			return nil, err
		}
		if u.InodeUsed, buf, err = takeUint64(buf); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := requireEmpty(buf, "wire.DecodeGetQuotaInfoResp"); err != nil {
		return nil, err
	}
	return &GetQuotaInfoResp{Usages: out}, nil
}

// SetExceededQuota is broadcast after each quota comparison cycle; there is
// no reply.
type SetExceededQuota struct {
	PoolID    uint16
	IDType    model.IDType
	QuotaType model.QuotaType
	IDs       []uint32
}

func (m *SetExceededQuota) Encode() []byte {
	buf := appendUint16(nil, m.PoolID)
	putString(&buf, string(m.IDType))
	putString(&buf, string(m.QuotaType))
	buf = appendUint32(buf, uint32(len(m.IDs)))
	for _, id := range m.IDs {
		buf = appendUint32(buf, id)
	}
	return buf
}

func DecodeSetExceededQuota(buf []byte) (*SetExceededQuota, error) {
	m := &SetExceededQuota{}
	var err error
	if m.PoolID, buf, err = takeUint16(buf); err != nil {
		return nil, err
	}
	var idType, qType string
	if idType, buf, err = getString(buf); err != nil {
		return nil, err
	}
	if qType, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.IDType, m.QuotaType = model.IDType(idType), model.QuotaType(qType)
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, err
	}
	m.IDs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		if m.IDs[i], buf, err = takeUint32(buf); err != nil {
			return nil, err
		}
	}
	if err := requireEmpty(buf, "wire.DecodeSetExceededQuota"); err != nil {
		return nil, err
	}
	return m, nil
}

type RemoveNode struct {
	NodeKind model.NodeKind
	NodeID   uint16
}

func (m *RemoveNode) Encode() []byte {
	var buf []byte
	putString(&buf, string(m.NodeKind))
	buf = appendUint16(buf, m.NodeID)
	return buf
}

func DecodeRemoveNode(buf []byte) (*RemoveNode, error) {
	m := &RemoveNode{}
	var err error
	var kind string
	if kind, buf, err = getString(buf); err != nil {
		return nil, err
	}
	m.NodeKind = model.NodeKind(kind)
	var rest []byte
	if m.NodeID, rest, err = takeUint16(buf); err != nil {
		return nil, err
	}
	if err := requireEmpty(rest, "wire.DecodeRemoveNode"); err != nil {
		return nil, err
	}
	return m, nil
}

type RemoveNodeResp struct {
	OK bool
}

func (m *RemoveNodeResp) Encode() []byte {
	if m.OK {
		return []byte{1}
	}
	return []byte{0}
}

func DecodeRemoveNodeResp(buf []byte) (*RemoveNodeResp, error) {
	if len(buf) < 1 {
		return nil, errors.New(errors.KindMalformed, "wire.DecodeRemoveNodeResp", "truncated bool")
	}
	if err := requireEmpty(buf[1:], "wire.DecodeRemoveNodeResp"); err != nil {
		return nil, err
	}
	return &RemoveNodeResp{OK: buf[0] != 0}, nil
}

// --- shared little-endian integer helpers ---

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint16List(buf []byte, vs []uint16) []byte {
	buf = appendUint32(buf, uint32(len(vs)))
	for _, v := range vs {
		buf = appendUint16(buf, v)
	}
	return buf
}

func takeUint16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, errors.New(errors.KindMalformed, "wire.takeUint16", "truncated uint16")
	}
	return binary.LittleEndian.Uint16(buf[:2]), buf[2:], nil
}

func takeUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errors.New(errors.KindMalformed, "wire.takeUint32", "truncated uint32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func takeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errors.New(errors.KindMalformed, "wire.takeUint64", "truncated uint64")
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func takeUint16List(buf []byte) ([]uint16, []byte, error) {
	count, buf, err := takeUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make([]uint16, count)
	for i := uint32(0); i < count; i++ {
		if out[i], buf, err = takeUint16(buf); err != nil {
			return nil, nil, err
		}
	}
	return out, buf, nil
}
