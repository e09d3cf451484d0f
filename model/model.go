// Package model holds the domain types shared across the store, the wire
// codec, the topology manager and the RPC surface. Types here describe the
// data model in §3: entities keyed by a global UID, their registry alias,
// and the typed subtype rows (node, target, pool, buddy group, quota).
package model

import "fmt"

// UID is the global 64-bit entity identifier. UIDs are monotonically
// assigned by the store, never reused, and disjoint across entity kinds.
type UID uint64

// EntityKind is the kind tag carried by the entity registry.
type EntityKind string

const (
	EntityNode       EntityKind = "node"
	EntityTarget     EntityKind = "target"
	EntityPool       EntityKind = "pool"
	EntityBuddyGroup EntityKind = "buddy_group"
	EntityManagement EntityKind = "management"
)

// NodeKind distinguishes the four kinds of node in the cluster.
type NodeKind string

const (
	NodeMeta       NodeKind = "meta"
	NodeStorage    NodeKind = "storage"
	NodeClient     NodeKind = "client"
	NodeManagement NodeKind = "management"
)

// TargetKind mirrors the subset of NodeKind that can host targets.
type TargetKind string

const (
	TargetMeta    TargetKind = "meta"
	TargetStorage TargetKind = "storage"
)

func (k TargetKind) NodeKind() NodeKind {
	if k == TargetMeta {
		return NodeMeta
	}
	return NodeStorage
}

// Consistency is the per-target/group resync state.
type Consistency string

const (
	ConsistencyGood        Consistency = "good"
	ConsistencyNeedsResync Consistency = "needs_resync"
	ConsistencyBad         Consistency = "bad"
)

// RegistrationState is the per-node state in the registration/liveness
// machine described in §4.E.
type RegistrationState string

const (
	StateProposed RegistrationState = "proposed"
	StateActive   RegistrationState = "active"
	StateOffline  RegistrationState = "offline"
	StateRemoved  RegistrationState = "removed"
)

// NicType distinguishes the two network interface flavors BeeMsg peers
// advertise.
type NicType uint8

const (
	NicEthernet NicType = 1
	NicRDMA     NicType = 2
)

// Nic is one entry of a node's advertised network interface list.
type Nic struct {
	Type    NicType
	Addr    string // textual IPv4/IPv6 address, no port
	IfName  string // interface name, never contains a NUL byte
}

// DefaultStoragePoolID is the pool_id of the storage pool that always
// exists and can never be deleted (I6).
const DefaultStoragePoolID uint16 = 1

// ManagementUID is the UID of the singleton management node (I5).
const ManagementUID UID = 1

// Capacity is the quadruple reported by heartbeats/capacity reports. A nil
// field (via the pointer-free Valid flag) represents the "not yet reported"
// NULL state from §3.
type Capacity struct {
	Valid        bool
	TotalSpace   uint64
	TotalInodes  uint64
	FreeSpace    uint64
	FreeInodes   uint64
}

// Node is the in-memory/store representation of entity kind "node".
type Node struct {
	UID          UID
	Alias        string
	Kind         NodeKind
	NodeID       uint16
	Port         uint16
	LastContact  int64 // unix seconds
	MachineUUID  string
	Nics         []Nic
	State        RegistrationState
	FeatureFlags uint64 // cache-only, never persisted, see SPEC_FULL §3
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{uid=%d alias=%q kind=%s id=%d}", n.UID, n.Alias, n.Kind, n.NodeID)
}

// Target is the in-memory/store representation of entity kind "target".
type Target struct {
	UID                   UID
	Alias                 string
	Kind                  TargetKind
	TargetID              uint16
	NodeUID               UID  // zero == unmapped (storage only, I7)
	PoolUID               UID  // storage targets only
	Capacity              Capacity
	Consistency           Consistency
	LastCapacityReportAt  int64
}

func (t *Target) Unmapped() bool { return t.NodeUID == 0 }

// StoragePool is the in-memory/store representation of entity kind "pool".
type StoragePool struct {
	UID    UID
	Alias  string
	PoolID uint16
}

// BuddyGroup is the in-memory/store representation of entity kind
// "buddy_group".
type BuddyGroup struct {
	UID       UID
	Alias     string
	Kind      TargetKind
	GroupID   uint16
	PrimaryUID   UID
	SecondaryUID UID
	PoolUID      UID // storage groups only
}

// RootInodePointer is the singleton row described by I4: it points at
// exactly one metadata target XOR one metadata buddy group.
type RootInodePointer struct {
	TargetUID UID
	GroupUID  UID
}

func (r RootInodePointer) Valid() bool {
	return (r.TargetUID == 0) != (r.GroupUID == 0)
}

// IDType distinguishes user vs. group quota identities.
type IDType string

const (
	IDTypeUser  IDType = "user"
	IDTypeGroup IDType = "group"
)

// QuotaType distinguishes space vs. inode quota accounting.
type QuotaType string

const (
	QuotaSpace  QuotaType = "space"
	QuotaInodes QuotaType = "inodes"
)

// QuotaLimit is a specific (id, pool) limit.
type QuotaLimit struct {
	QuotaID   uint32
	IDType    IDType
	QuotaType QuotaType
	PoolUID   UID
	Value     uint64
}

// QuotaDefaultLimit is the fallback limit for (id_type, quota_type, pool).
type QuotaDefaultLimit struct {
	IDType    IDType
	QuotaType QuotaType
	PoolUID   UID
	Value     uint64
}

// QuotaUsage is one target's contribution to one identity's usage.
type QuotaUsage struct {
	QuotaID   uint32
	IDType    IDType
	QuotaType QuotaType
	TargetUID UID
	Value     uint64
}
