package quota

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
)

// Client is the outbound BeeMsg capability the engine needs: pulling usage
// from one target and pushing the exceeded set to every reachable storage
// node. Implemented by the beemsg package's connection pool; kept as a
// narrow interface here so the engine is testable without a live socket.
type Client interface {
	PullUsage(ctx context.Context, targetUID model.UID, idType model.IDType, ids []uint32) ([]model.QuotaUsage, error)
	PushExceeded(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType, ids []uint32) error
}

// Engine drives the periodic cycle from §4.G.
type Engine struct {
	Store    *store.Store
	Client   Client
	Enforce  bool
	Users    *IdentitySet
	Groups   *IdentitySet
}

// RunCycle executes one full pull/compare/push cycle for one pool. Pull
// failures for individual targets are aggregated and logged once, matching
// §4.G's "errors during pull/push are logged once per cycle in aggregate."
func (e *Engine) RunCycle(ctx context.Context, poolUID model.UID) error {
	span := trace.SpanFromContextSafe(ctx)

	targets, err := e.Store.ListTargetsByPool(ctx, poolUID)
	if err != nil {
		return errors.Wrap(errors.KindIO, "quota.RunCycle", err)
	}

	sources := identitySources(e.Users, e.Groups)

	// Every id type is pulled before a target's usage is recorded, since
	// RecordQuotaUsage replaces all of that target's rows at once.
	var pullErrs int
	for _, t := range targets {
		var usage []model.QuotaUsage
		pulled := true
		for _, src := range sources {
			rows, err := e.Client.PullUsage(ctx, t.UID, src.idType, src.ids)
			if err != nil {
				pulled = false
				break
			}
			for _, u := range rows {
				if u.IDType == src.idType {
					usage = append(usage, u)
				}
			}
		}
		if !pulled {
			pullErrs++
			continue
		}
		if err := e.Store.RecordQuotaUsage(ctx, t.UID, usage); err != nil {
			pullErrs++
		}
	}
	if pullErrs > 0 {
		span.Errorf("quota cycle for pool %d: %d pull/persist failures", poolUID, pullErrs)
	}

	for _, qType := range []model.QuotaType{model.QuotaSpace, model.QuotaInodes} {
		for _, src := range sources {
			exceeded, err := e.computeExceeded(ctx, poolUID, src.idType, qType, src.ids)
			if err != nil {
				return err
			}
			if !e.Enforce {
				continue
			}
			// PushExceeded is sent every cycle, even with an empty id list,
			// so a storage node clears an exceeded flag it was previously
			// pushed once the identity's usage drops back under its limit.
			if err := e.Client.PushExceeded(ctx, poolUID, src.idType, qType, exceeded); err != nil {
				span.Errorf("quota cycle for pool %d: push exceeded set failed: %s", poolUID, errors.Detail(err))
			}
		}
	}
	return nil
}

func (e *Engine) computeExceeded(ctx context.Context, poolUID model.UID, idType model.IDType, qType model.QuotaType, ids []uint32) ([]uint32, error) {
	limits, err := e.Store.ListQuotaLimits(ctx, poolUID)
	if err != nil {
		return nil, err
	}
	limitByID := make(map[uint32]uint64, len(limits))
	for _, l := range limits {
		if l.IDType == idType && l.QuotaType == qType {
			limitByID[l.QuotaID] = l.Value
		}
	}
	defaultLimit, err := e.Store.GetQuotaDefaultLimit(ctx, idType, qType, poolUID)
	if err != nil {
		return nil, err
	}

	known, err := e.Store.ListQuotaIdentities(ctx, poolUID, idType, qType)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint32]struct{})
	all := append(append([]uint32{}, ids...), known...)

	var exceeded []uint32
	for _, id := range all {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sum, err := e.Store.SumQuotaUsage(ctx, poolUID, id, idType, qType)
		if err != nil {
			return nil, err
		}
		limit := defaultLimit
		if l, ok := limitByID[id]; ok {
			limit = l
		}
		if sum > limit {
			exceeded = append(exceeded, id)
		}
	}
	return exceeded, nil
}

func identitySources(users, groups *IdentitySet) []struct {
	idType model.IDType
	ids    []uint32
} {
	return []struct {
		idType model.IDType
		ids    []uint32
	}{
		{model.IDTypeUser, users.IDs()},
		{model.IDTypeGroup, groups.IDs()},
	}
}
