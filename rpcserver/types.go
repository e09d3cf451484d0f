package rpcserver

import "github.com/thinkparq/mgmtd/model"

// Request/response structs for the administrative RPC catalog named in
// §4.D. Each maps 1:1 onto one Store work item after structural validation.

type ListNodesRequest struct {
	Kind model.NodeKind `json:"kind"`
}
type ListNodesResponse struct {
	Nodes []*model.Node `json:"nodes"`
}

type AddNodeRequest struct {
	Alias string         `json:"alias"`
	Kind  model.NodeKind `json:"kind"`
	Port  uint16         `json:"port"`
	Nics  []model.Nic    `json:"nics"`
}
type AddNodeResponse struct {
	UID model.UID `json:"uid"`
}

type RemoveNodeRequest struct {
	UID model.UID `json:"uid"`
}
type RemoveNodeResponse struct{}

type ListTargetsRequest struct {
	Kind model.TargetKind `json:"kind"`
}
type ListTargetsResponse struct {
	Targets []*model.Target `json:"targets"`
}

type AddTargetRequest struct {
	Alias   string           `json:"alias"`
	Kind    model.TargetKind `json:"kind"`
	NodeUID model.UID        `json:"node_uid"`
	PoolUID model.UID        `json:"pool_uid"`
}
type AddTargetResponse struct {
	UID model.UID `json:"uid"`
}

type RemoveTargetRequest struct {
	UID model.UID `json:"uid"`
}
type RemoveTargetResponse struct{}

type SetTargetMappingRequest struct {
	TargetUID model.UID `json:"target_uid"`
	NodeUID   model.UID `json:"node_uid"`
}
type SetTargetMappingResponse struct{}

type ListStoragePoolsRequest struct{}
type ListStoragePoolsResponse struct {
	Pools []*model.StoragePool `json:"pools"`
}

type AddStoragePoolRequest struct {
	Alias  string `json:"alias"`
	PoolID uint16 `json:"pool_id"`
}
type AddStoragePoolResponse struct {
	UID model.UID `json:"uid"`
}

type RemoveStoragePoolRequest struct {
	UID model.UID `json:"uid"`
}
type RemoveStoragePoolResponse struct{}

type ListBuddyGroupsRequest struct {
	Kind model.TargetKind `json:"kind"`
}
type ListBuddyGroupsResponse struct {
	Groups []*model.BuddyGroup `json:"groups"`
}

type AddBuddyGroupRequest struct {
	Alias        string           `json:"alias"`
	Kind         model.TargetKind `json:"kind"`
	PrimaryUID   model.UID        `json:"primary_uid"`
	SecondaryUID model.UID        `json:"secondary_uid"`
	PoolUID      model.UID        `json:"pool_uid"`
}
type AddBuddyGroupResponse struct {
	UID model.UID `json:"uid"`
}

type RemoveBuddyGroupRequest struct {
	UID model.UID `json:"uid"`
}
type RemoveBuddyGroupResponse struct{}

type TriggerFailoverRequest struct {
	GroupUID model.UID `json:"group_uid"`
}
type TriggerFailoverResponse struct{}

type GetQuotaLimitsRequest struct {
	PoolUID model.UID `json:"pool_uid"`
}
type GetQuotaLimitsResponse struct {
	Limits []model.QuotaLimit `json:"limits"`
}

type SetQuotaLimitsRequest struct {
	Limit model.QuotaLimit `json:"limit"`
}
type SetQuotaLimitsResponse struct{}

type GetCapacityPoolClassRequest struct {
	PoolUID model.UID `json:"pool_uid"`
}
type GetCapacityPoolClassResponse struct {
	Classes map[model.UID]string `json:"classes"`
}

// TopologyChangeEvent is streamed to SubscribeTopologyChanges clients.
type TopologyChangeEvent struct {
	NodeCount       int `json:"node_count"`
	TargetCount     int `json:"target_count"`
	BuddyGroupCount int `json:"buddy_group_count"`
}
