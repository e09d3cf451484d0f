// Package buddy implements the buddy-group coordinator from §4.H: tracks
// which member of a group is primary vs. secondary, marks a member
// needs_resync when its peer reports it unreachable, and performs
// operator-triggered failover atomically. Grounded on the teacher's
// master/cluster/allocator.go AZ-aware pairing logic, repurposed from
// "pick N nodes" to "track primary/secondary of a fixed pair."
package buddy

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/topology"
)

// Notifier delivers a BeeMsg SetTargetConsistency/topology-change
// broadcast to affected meta/storage/client nodes. Implemented by the
// beemsg package's connection pool.
type Notifier interface {
	NotifyConsistencyChange(ctx context.Context, targetIDs []uint16, states []model.Consistency) error
}

type Coordinator struct {
	Store    *store.Store
	Topology *topology.Manager
	Notifier Notifier
}

// MarkNeedsResync is called when a target's periodic state message reports
// its buddy unreachable. The buddy (not the reporter) is the one marked.
func (c *Coordinator) MarkNeedsResync(ctx context.Context, buddyTargetUID model.UID) error {
	if err := c.Topology.SetTargetConsistency(ctx, buddyTargetUID, model.ConsistencyNeedsResync); err != nil {
		return err
	}
	target, err := c.Store.GetTarget(ctx, buddyTargetUID)
	if err != nil {
		return err
	}
	return c.Notifier.NotifyConsistencyChange(ctx, []uint16{target.TargetID}, []model.Consistency{model.ConsistencyNeedsResync})
}

// Failover swaps a group's primary and secondary in one transaction and
// notifies all affected nodes, per §4.H. The caller is responsible for
// operator authorization; this performs no permission check itself.
func (c *Coordinator) Failover(ctx context.Context, groupUID model.UID) error {
	span := trace.SpanFromContextSafe(ctx)

	newPrimary, newSecondary, err := c.Topology.Failover(ctx, groupUID)
	if err != nil {
		return err
	}

	primaryTarget, err := c.Store.GetTarget(ctx, newPrimary)
	if err != nil {
		return err
	}
	secondaryTarget, err := c.Store.GetTarget(ctx, newSecondary)
	if err != nil {
		return err
	}

	err = c.Notifier.NotifyConsistencyChange(ctx,
		[]uint16{primaryTarget.TargetID, secondaryTarget.TargetID},
		[]model.Consistency{model.ConsistencyGood, model.ConsistencyNeedsResync})
	if err != nil {
		span.Errorf("buddy failover for group %d: notification failed: %s", groupUID, errors.Detail(err))
	}
	span.Infof("buddy group %d failed over: primary=%d secondary=%d", groupUID, newPrimary, newSecondary)
	return nil
}

// SetBad transitions a group member to the bad state. Per §4.H this is
// operator-only and requires the group to retain a healthy surviving
// member — the coordinator enforces that half of the invariant here since
// it spans both members of the row, something a single-table CHECK can't
// express.
func (c *Coordinator) SetBad(ctx context.Context, groupUID, memberUID model.UID) error {
	group, err := c.Store.GetBuddyGroup(ctx, groupUID)
	if err != nil {
		return err
	}
	var peerUID model.UID
	switch memberUID {
	case group.PrimaryUID:
		peerUID = group.SecondaryUID
	case group.SecondaryUID:
		peerUID = group.PrimaryUID
	default:
		return errors.New(errors.KindConstraint, "buddy.SetBad", "target is not a member of this group")
	}
	peer, err := c.Store.GetTarget(ctx, peerUID)
	if err != nil {
		return err
	}
	if peer.Consistency == model.ConsistencyBad {
		return errors.New(errors.KindConstraint, "buddy.SetBad", "group has no healthy surviving member")
	}
	if err := c.Topology.SetTargetConsistency(ctx, memberUID, model.ConsistencyBad); err != nil {
		return err
	}
	target, err := c.Store.GetTarget(ctx, memberUID)
	if err != nil {
		return err
	}
	return c.Notifier.NotifyConsistencyChange(ctx, []uint16{target.TargetID}, []model.Consistency{model.ConsistencyBad})
}
