package topology

import (
	"context"
	"strconv"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/model"
	"github.com/thinkparq/mgmtd/store"
	"github.com/thinkparq/mgmtd/supervisor"
)

// Config controls the registration/liveness behavior described in §4.E.
type Config struct {
	RegistrationDisabled    bool
	NodeOfflineTimeoutSec   int64
	ClientAutoRemoveSec     int64
}

// Manager is the single source of truth for the in-memory cluster view.
// The store remains the durable truth; Manager mirrors it for fast reads
// and drives the registration/liveness state machine.
type Manager struct {
	cfg   Config
	store *store.Store
	cache *cache
	clock supervisor.Source

	subsMu sync.Mutex
	subs   []chan *Snapshot
}

func NewManager(s *store.Store, cfg Config, clock supervisor.Source) *Manager {
	return &Manager{cfg: cfg, store: s, cache: newCache(), clock: clock}
}

// Snapshot returns the current immutable view; callers never block writers.
func (m *Manager) Snapshot() *Snapshot { return m.cache.load() }

// Subscribe returns a channel that receives the new snapshot after every
// mutation. A slow subscriber whose buffer fills is dropped from future
// delivery rather than allowed to block the manager (§4.E caveat).
func (m *Manager) Subscribe(buf int) <-chan *Snapshot {
	ch := make(chan *Snapshot, buf)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) publish() {
	snap := m.cache.load()
	m.subsMu.Lock()
	live := m.subs[:0]
	for _, ch := range m.subs {
		select {
		case ch <- snap:
			live = append(live, ch)
		default:
			close(ch) // slow consumer dropped
		}
	}
	m.subs = live
	m.subsMu.Unlock()
}

// Load populates the cache from the store; called once at startup before
// the BeeMsg/RPC servers start accepting traffic.
func (m *Manager) Load(ctx context.Context) error {
	m.cache.update(func(s *Snapshot) {})

	for _, kind := range []model.NodeKind{model.NodeMeta, model.NodeStorage, model.NodeClient, model.NodeManagement} {
		nodes, err := m.store.ListNodes(ctx, kind)
		if err != nil {
			return err
		}
		m.cache.update(func(s *Snapshot) {
			for _, n := range nodes {
				s.Nodes[n.UID] = n
			}
		})
	}
	for _, kind := range []model.TargetKind{model.TargetMeta, model.TargetStorage} {
		targets, err := m.store.ListTargets(ctx, kind)
		if err != nil {
			return err
		}
		m.cache.update(func(s *Snapshot) {
			for _, t := range targets {
				s.Targets[t.UID] = t
			}
		})
		groups, err := m.store.ListBuddyGroups(ctx, kind)
		if err != nil {
			return err
		}
		m.cache.update(func(s *Snapshot) {
			for _, g := range groups {
				s.BuddyGroups[g.UID] = g
			}
		})
	}
	pools, err := m.store.ListStoragePools(ctx)
	if err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) {
		for _, p := range pools {
			s.Pools[p.UID] = p
		}
	})
	m.publish()
	return nil
}

// RegisterNode implements the UNKNOWN->PROPOSED->ACTIVE transition from
// §4.E's state machine. Re-registration from a known machine UUID is
// idempotent (P4): it always returns the previously assigned node_id,
// ignoring any newly requested id. The manager's own ID assignment rule
// (smallest unused id in the kind's namespace) takes precedence over
// whatever the caller requested. Id assignment and the insert happen in
// one store.CreateNodeAutoID transaction so that N concurrent callers for
// the same kind each land on a distinct id (P3) rather than racing two
// separate "read smallest unused, then insert" round trips.
//
// bypassDisable lets an authenticated administrator's AddNode RPC through
// even when --registration-disable rejects self-registering BeeMsg nodes;
// self-registration always passes false.
func (m *Manager) RegisterNode(ctx context.Context, kind model.NodeKind, port uint16, nics []model.Nic, machineUUID string, bypassDisable bool) (*model.Node, error) {
	span := trace.SpanFromContextSafe(ctx)

	if existing, err := m.store.FindNodeByMachineUUID(ctx, kind, machineUUID); err == nil {
		return existing, nil
	} else if errors.KindOf(err) != errors.KindNotFound {
		return nil, err
	}

	if m.cfg.RegistrationDisabled && !bypassDisable {
		return nil, errors.ErrRegistrationDisabled
	}

	n := &model.Node{
		Kind:        kind,
		Port:        port,
		Nics:        nics,
		MachineUUID: machineUUID,
		State:       model.StateActive,
		LastContact: m.clock.Now().Unix(),
	}
	uid, err := m.store.CreateNodeAutoID(ctx, n, func(id uint16) string { return randomAlias(kind, id) })
	if err != nil {
		return nil, err
	}
	n.UID = uid

	m.cache.update(func(s *Snapshot) { s.Nodes[uid] = n })
	m.publish()
	span.Infof("registered node %s", n.String())
	return n, nil
}

// Heartbeat advances a node's last-contact time and, if it was OFFLINE,
// transitions it back to ACTIVE.
func (m *Manager) Heartbeat(ctx context.Context, uid model.UID) error {
	now := m.clock.Now().Unix()
	if err := m.store.UpdateNodeHeartbeat(ctx, uid, now, model.StateActive); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) {
		if n, ok := s.Nodes[uid]; ok {
			updated := *n
			updated.LastContact = now
			updated.State = model.StateActive
			s.Nodes[uid] = &updated
		}
	})
	m.publish()
	return nil
}

// Tick runs one liveness pass (§4.E): meta/storage/management nodes past
// the offline timeout transition to OFFLINE (sticky — never auto-deleted);
// client nodes also go OFFLINE past the offline timeout, and an OFFLINE
// client silent past the auto-remove timeout is reaped.
func (m *Manager) Tick(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	now := m.clock.Now().Unix()
	snap := m.cache.load()

	for uid, n := range snap.Nodes {
		age := now - n.LastContact
		switch {
		case n.Kind == model.NodeClient:
			if n.State == model.StateActive && age > m.cfg.NodeOfflineTimeoutSec {
				if err := m.transitionOffline(ctx, uid, n); err != nil {
					return err
				}
			} else if n.State == model.StateOffline && age > m.cfg.ClientAutoRemoveSec {
				if err := m.reapClient(ctx, uid); err != nil {
					return err
				}
			}
		default:
			if n.State == model.StateActive && age > m.cfg.NodeOfflineTimeoutSec {
				if err := m.transitionOffline(ctx, uid, n); err != nil {
					return err
				}
			}
		}
	}
	span.Debugf("liveness tick complete")
	return nil
}

func (m *Manager) transitionOffline(ctx context.Context, uid model.UID, n *model.Node) error {
	if err := m.store.UpdateNodeHeartbeat(ctx, uid, n.LastContact, model.StateOffline); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) {
		if cur, ok := s.Nodes[uid]; ok {
			updated := *cur
			updated.State = model.StateOffline
			s.Nodes[uid] = &updated
		}
	})
	m.publish()
	return nil
}

func (m *Manager) reapClient(ctx context.Context, uid model.UID) error {
	if err := m.store.DeleteNode(ctx, uid); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) { delete(s.Nodes, uid) })
	m.publish()
	return nil
}

func randomAlias(kind model.NodeKind, id uint16) string {
	return string(kind) + "_" + strconv.FormatUint(uint64(id), 10)
}

// CreateTargetAutoID inserts a target through the store and mirrors it into
// the cache before publishing, so a subscriber's next Snapshot reflects the
// new target (§4.E's "publishes updates" responsibility, S6).
func (m *Manager) CreateTargetAutoID(ctx context.Context, t *model.Target) (model.UID, error) {
	uid, err := m.store.CreateTargetAutoID(ctx, t)
	if err != nil {
		return 0, err
	}
	if err := m.refreshTarget(ctx, uid); err != nil {
		return 0, err
	}
	return uid, nil
}

// RemoveTarget deletes a target and evicts it from the cache.
func (m *Manager) RemoveTarget(ctx context.Context, uid model.UID) error {
	if err := m.store.DeleteTarget(ctx, uid); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) { delete(s.Targets, uid) })
	m.publish()
	return nil
}

// RemapTarget reassigns a target's parent node and refreshes the cache.
func (m *Manager) RemapTarget(ctx context.Context, uid, nodeUID model.UID) error {
	if err := m.store.RemapTarget(ctx, uid, nodeUID); err != nil {
		return err
	}
	return m.refreshTarget(ctx, uid)
}

// SetTargetConsistency updates a target's consistency state and refreshes
// the cache; called by the buddy coordinator on resync/bad-marking as well
// as the BeeMsg SetTargetConsistency path.
func (m *Manager) SetTargetConsistency(ctx context.Context, uid model.UID, c model.Consistency) error {
	if err := m.store.SetTargetConsistency(ctx, uid, c); err != nil {
		return err
	}
	return m.refreshTarget(ctx, uid)
}

func (m *Manager) refreshTarget(ctx context.Context, uid model.UID) error {
	t, err := m.store.GetTarget(ctx, uid)
	if err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) { s.Targets[uid] = t })
	m.publish()
	return nil
}

// CreateStoragePool inserts a pool and mirrors it into the cache.
func (m *Manager) CreateStoragePool(ctx context.Context, alias string, poolID uint16) (model.UID, error) {
	uid, err := m.store.CreateStoragePool(ctx, alias, poolID)
	if err != nil {
		return 0, err
	}
	p, err := m.store.GetStoragePool(ctx, uid)
	if err != nil {
		return 0, err
	}
	m.cache.update(func(s *Snapshot) { s.Pools[uid] = p })
	m.publish()
	return uid, nil
}

// RemoveStoragePool deletes a pool and evicts it from the cache.
func (m *Manager) RemoveStoragePool(ctx context.Context, uid model.UID) error {
	if err := m.store.DeleteStoragePool(ctx, uid); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) { delete(s.Pools, uid) })
	m.publish()
	return nil
}

// CreateBuddyGroup assigns the next group id for the kind, inserts the
// group, and mirrors it into the cache.
func (m *Manager) CreateBuddyGroup(ctx context.Context, g *model.BuddyGroup) (model.UID, error) {
	id, err := m.store.NextGroupID(ctx, g.Kind)
	if err != nil {
		return 0, err
	}
	g.GroupID = id
	uid, err := m.store.CreateBuddyGroup(ctx, g)
	if err != nil {
		return 0, err
	}
	g.UID = uid
	m.cache.update(func(s *Snapshot) { s.BuddyGroups[uid] = g })
	m.publish()
	return uid, nil
}

// RemoveBuddyGroup deletes a group and evicts it from the cache.
func (m *Manager) RemoveBuddyGroup(ctx context.Context, uid model.UID) error {
	if err := m.store.DeleteBuddyGroup(ctx, uid); err != nil {
		return err
	}
	m.cache.update(func(s *Snapshot) { delete(s.BuddyGroups, uid) })
	m.publish()
	return nil
}

// Failover swaps a buddy group's primary and secondary and refreshes the
// cached group so a subscriber observes the swap in its next Snapshot
// within one tick (S6).
func (m *Manager) Failover(ctx context.Context, groupUID model.UID) (primary, secondary model.UID, err error) {
	primary, secondary, err = m.store.Failover(ctx, groupUID)
	if err != nil {
		return 0, 0, err
	}
	g, err := m.store.GetBuddyGroup(ctx, groupUID)
	if err != nil {
		return 0, 0, err
	}
	m.cache.update(func(s *Snapshot) { s.BuddyGroups[groupUID] = g })
	m.publish()
	return primary, secondary, nil
}
