package beemsg

import (
	"context"
	"net"
	"strconv"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/wire"
)

// PullUsage implements quota.Client by sending a GetQuotaInfo request to
// the node owning targetUID and decoding its GetQuotaInfoResp.
func (h *Handlers) PullUsage(ctx context.Context, targetUID model.UID, idType model.IDType, ids []uint32) ([]model.QuotaUsage, error) {
	addr, err := h.nodeAddr(ctx, targetUID)
	if err != nil {
		return nil, errors.Wrap(errors.KindQuotaUnreachable, "beemsg.PullUsage", err)
	}
	target, err := h.Store.GetTarget(ctx, targetUID)
	if err != nil {
		return nil, err
	}

	req := &wire.GetQuotaInfo{TargetID: target.TargetID, IDType: idType, IDSet: ids}
	body, err := h.roundTrip(addr, wire.MsgGetQuotaInfo, req.Encode(), true)
	if err != nil {
		return nil, errors.Wrap(errors.KindQuotaUnreachable, "beemsg.PullUsage", err)
	}
	resp, err := wire.DecodeGetQuotaInfoResp(body)
	if err != nil {
		return nil, err
	}

	out := make([]model.QuotaUsage, 0, len(resp.Usages)*2)
	for _, u := range resp.Usages {
		out = append(out,
			model.QuotaUsage{QuotaID: u.ID, IDType: idType, QuotaType: model.QuotaSpace, TargetUID: targetUID, Value: u.SpaceUsed},
			model.QuotaUsage{QuotaID: u.ID, IDType: idType, QuotaType: model.QuotaInodes, TargetUID: targetUID, Value: u.InodeUsed},
		)
	}
	return out, nil
}

// PushExceeded implements quota.Client by broadcasting SetExceededQuota,
// one-way, once to every storage node that advertises a NIC.
func (h *Handlers) PushExceeded(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType, ids []uint32) error {
	pool, err := h.Store.GetStoragePool(ctx, poolUID)
	if err != nil {
		return err
	}
	nodes, err := h.Store.ListNodes(ctx, model.NodeStorage)
	if err != nil {
		return err
	}

	req := &wire.SetExceededQuota{PoolID: pool.PoolID, IDType: idType, QuotaType: qType, IDs: ids}
	payload := req.Encode()

	var lastErr error
	notified := 0
	for _, n := range nodes {
		if len(n.Nics) == 0 {
			continue
		}
		addr := net.JoinHostPort(n.Nics[0].Addr, strconv.Itoa(int(n.Port)))
		if _, err := h.roundTrip(addr, wire.MsgSetExceededQuota, payload, false); err != nil {
			lastErr = err
			continue
		}
		notified++
	}
	if notified == 0 && lastErr != nil {
		return errors.Wrap(errors.KindQuotaUnreachable, "beemsg.PushExceeded", lastErr)
	}
	return nil
}

// NotifyConsistencyChange implements buddy.Notifier by broadcasting
// SetTargetConsistency, one-way, to every node hosting an affected target.
func (h *Handlers) NotifyConsistencyChange(ctx context.Context, targetIDs []uint16, states []model.Consistency) error {
	req := &wire.SetTargetConsistency{TargetIDs: targetIDs, States: states}
	payload := req.Encode()

	targets, err := h.Store.ListTargets(ctx, model.TargetStorage)
	if err != nil {
		return err
	}
	byID := make(map[uint16]*model.Target, len(targets))
	for _, t := range targets {
		byID[t.TargetID] = t
	}

	seen := make(map[model.UID]bool)
	var lastErr error
	for _, id := range targetIDs {
		t, ok := byID[id]
		if !ok || t.NodeUID == 0 || seen[t.NodeUID] {
			continue
		}
		seen[t.NodeUID] = true
		addr, err := h.nodeAddr(ctx, t.UID)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := h.roundTrip(addr, wire.MsgSetTargetConsistency, payload, false); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
