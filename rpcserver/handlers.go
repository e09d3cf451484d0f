package rpcserver

import (
	"context"

	"github.com/google/uuid"

	"github.com/thinkparq/mgmtd/buddy"
	"github.com/thinkparq/mgmtd/capacity"
	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/topology"
)

// Handlers implements every administrative RPC named in §4.D by calling
// straight through to the Store, the topology Manager, and the buddy
// Coordinator — there is no separate service layer, matching the teacher's
// RPCServer embedding a *Server and calling r.master.* directly in
// server/rpcserver.go.
type Handlers struct {
	Store       *store.Store
	Topology    *topology.Manager
	Buddy       *buddy.Coordinator
	Limits      capacity.Limits // cluster-wide static thresholds, §4.F
}

func (h *Handlers) ListNodes(ctx context.Context, req *ListNodesRequest) (*ListNodesResponse, error) {
	nodes, err := h.Store.ListNodes(ctx, req.Kind)
	if err != nil {
		return nil, err
	}
	return &ListNodesResponse{Nodes: nodes}, nil
}

// AddNode is an operator-initiated registration (as opposed to a node
// self-registering over BeeMsg): it carries no machine UUID from the
// caller, so one is synthesized to keep idempotent-by-machine-UUID lookup
// from colliding across separate manual additions of the same node kind.
// It bypasses --registration-disable: that flag only rejects unauthenticated
// BeeMsg self-registration, never an authenticated administrator's RPC.
func (h *Handlers) AddNode(ctx context.Context, req *AddNodeRequest) (*AddNodeResponse, error) {
	node, err := h.Topology.RegisterNode(ctx, req.Kind, req.Port, req.Nics, uuid.NewString(), true)
	if err != nil {
		return nil, err
	}
	if req.Alias != "" {
		node.Alias = req.Alias
	}
	return &AddNodeResponse{UID: node.UID}, nil
}

func (h *Handlers) RemoveNode(ctx context.Context, req *RemoveNodeRequest) (*RemoveNodeResponse, error) {
	if err := h.Store.DeleteNode(ctx, req.UID); err != nil {
		return nil, err
	}
	return &RemoveNodeResponse{}, nil
}

func (h *Handlers) ListTargets(ctx context.Context, req *ListTargetsRequest) (*ListTargetsResponse, error) {
	targets, err := h.Store.ListTargets(ctx, req.Kind)
	if err != nil {
		return nil, err
	}
	return &ListTargetsResponse{Targets: targets}, nil
}

func (h *Handlers) AddTarget(ctx context.Context, req *AddTargetRequest) (*AddTargetResponse, error) {
	t := &model.Target{
		Alias:   req.Alias,
		Kind:    req.Kind,
		NodeUID: req.NodeUID,
		PoolUID: req.PoolUID,
	}
	uid, err := h.Topology.CreateTargetAutoID(ctx, t)
	if err != nil {
		return nil, err
	}
	return &AddTargetResponse{UID: uid}, nil
}

func (h *Handlers) RemoveTarget(ctx context.Context, req *RemoveTargetRequest) (*RemoveTargetResponse, error) {
	if err := h.Topology.RemoveTarget(ctx, req.UID); err != nil {
		return nil, err
	}
	return &RemoveTargetResponse{}, nil
}

func (h *Handlers) SetTargetMapping(ctx context.Context, req *SetTargetMappingRequest) (*SetTargetMappingResponse, error) {
	if err := h.Topology.RemapTarget(ctx, req.TargetUID, req.NodeUID); err != nil {
		return nil, err
	}
	return &SetTargetMappingResponse{}, nil
}

func (h *Handlers) ListStoragePools(ctx context.Context, req *ListStoragePoolsRequest) (*ListStoragePoolsResponse, error) {
	pools, err := h.Store.ListStoragePools(ctx)
	if err != nil {
		return nil, err
	}
	return &ListStoragePoolsResponse{Pools: pools}, nil
}

func (h *Handlers) AddStoragePool(ctx context.Context, req *AddStoragePoolRequest) (*AddStoragePoolResponse, error) {
	uid, err := h.Topology.CreateStoragePool(ctx, req.Alias, req.PoolID)
	if err != nil {
		return nil, err
	}
	return &AddStoragePoolResponse{UID: uid}, nil
}

func (h *Handlers) RemoveStoragePool(ctx context.Context, req *RemoveStoragePoolRequest) (*RemoveStoragePoolResponse, error) {
	if err := h.Topology.RemoveStoragePool(ctx, req.UID); err != nil {
		return nil, err
	}
	return &RemoveStoragePoolResponse{}, nil
}

func (h *Handlers) ListBuddyGroups(ctx context.Context, req *ListBuddyGroupsRequest) (*ListBuddyGroupsResponse, error) {
	groups, err := h.Store.ListBuddyGroups(ctx, req.Kind)
	if err != nil {
		return nil, err
	}
	return &ListBuddyGroupsResponse{Groups: groups}, nil
}

func (h *Handlers) AddBuddyGroup(ctx context.Context, req *AddBuddyGroupRequest) (*AddBuddyGroupResponse, error) {
	uid, err := h.Topology.CreateBuddyGroup(ctx, &model.BuddyGroup{
		Alias:        req.Alias,
		Kind:         req.Kind,
		PrimaryUID:   req.PrimaryUID,
		SecondaryUID: req.SecondaryUID,
		PoolUID:      req.PoolUID,
	})
	if err != nil {
		return nil, err
	}
	return &AddBuddyGroupResponse{UID: uid}, nil
}

func (h *Handlers) RemoveBuddyGroup(ctx context.Context, req *RemoveBuddyGroupRequest) (*RemoveBuddyGroupResponse, error) {
	if err := h.Topology.RemoveBuddyGroup(ctx, req.UID); err != nil {
		return nil, err
	}
	return &RemoveBuddyGroupResponse{}, nil
}

func (h *Handlers) TriggerFailover(ctx context.Context, req *TriggerFailoverRequest) (*TriggerFailoverResponse, error) {
	if err := h.Buddy.Failover(ctx, req.GroupUID); err != nil {
		return nil, err
	}
	return &TriggerFailoverResponse{}, nil
}

func (h *Handlers) GetQuotaLimits(ctx context.Context, req *GetQuotaLimitsRequest) (*GetQuotaLimitsResponse, error) {
	limits, err := h.Store.ListQuotaLimits(ctx, req.PoolUID)
	if err != nil {
		return nil, err
	}
	return &GetQuotaLimitsResponse{Limits: limits}, nil
}

func (h *Handlers) SetQuotaLimits(ctx context.Context, req *SetQuotaLimitsRequest) (*SetQuotaLimitsResponse, error) {
	if err := h.Store.SetQuotaLimit(ctx, req.Limit); err != nil {
		return nil, err
	}
	return &SetQuotaLimitsResponse{}, nil
}

func (h *Handlers) GetCapacityPoolClass(ctx context.Context, req *GetCapacityPoolClassRequest) (*GetCapacityPoolClassResponse, error) {
	targets, err := h.Store.ListTargetsByPool(ctx, req.PoolUID)
	if err != nil {
		return nil, err
	}
	entities := make([]capacity.Entity, 0, len(targets))
	for _, t := range targets {
		entities = append(entities, capacity.Entity{
			UID:    uint64(t.UID),
			Space:  t.Capacity.FreeSpace,
			Inodes: t.Capacity.FreeInodes,
			Known:  t.Capacity.Valid,
		})
	}
	classes := capacity.Classify(entities, h.Limits)
	resp := &GetCapacityPoolClassResponse{Classes: make(map[model.UID]string, len(classes))}
	for uid, class := range classes {
		resp.Classes[model.UID(uid)] = class.String()
	}
	return resp, nil
}

// SubscribeTopologyChanges streams a summary event every time the topology
// snapshot is replaced, until the client disconnects or ctx is cancelled.
func (h *Handlers) SubscribeTopologyChanges(ctx context.Context, send func(*TopologyChangeEvent) error) error {
	ch := h.Topology.Subscribe(8)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return errors.New(errors.KindBusy, "rpcserver.SubscribeTopologyChanges", "topology subscription closed")
			}
			err := send(&TopologyChangeEvent{
				NodeCount:       len(snap.Nodes),
				TargetCount:     len(snap.Targets),
				BuddyGroupCount: len(snap.BuddyGroups),
			})
			if err != nil {
				return err
			}
		}
	}
}
