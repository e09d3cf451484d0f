// Package topology is the in-memory, caller-facing view layered over the
// Store (§4.E): the store holds durable truth, the manager holds a warm,
// read-optimized cache refreshed on mutation. The cache is one immutable
// struct swapped via atomic.Pointer on every update — "fully replaced per
// update, not mutated in place" (§5) — generalizing the teacher's
// per-field sync.Map/RWMutex mix (master/cluster/cluster.go, node.go) into
// a single swap.
package topology

import (
	"sync/atomic"

	"github.com/thinkparq/mgmtd/model"
)

// Snapshot is one immutable view of the cluster, indexed by UID for O(1)
// lookup without any in-memory back-pointers (§9: "cycles ... expressed
// via foreign-key-like references ... never by in-memory cyclic ownership").
type Snapshot struct {
	Nodes       map[model.UID]*model.Node
	Targets     map[model.UID]*model.Target
	Pools       map[model.UID]*model.StoragePool
	BuddyGroups map[model.UID]*model.BuddyGroup
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Nodes:       map[model.UID]*model.Node{},
		Targets:     map[model.UID]*model.Target{},
		Pools:       map[model.UID]*model.StoragePool{},
		BuddyGroups: map[model.UID]*model.BuddyGroup{},
	}
}

// clone returns a shallow copy suitable for a single field mutation: the
// map is copied, the *model.X value pointers inside are replaced wholesale
// rather than edited in place, preserving the "readers never observe a
// half-updated entity" guarantee.
func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Nodes:       make(map[model.UID]*model.Node, len(s.Nodes)),
		Targets:     make(map[model.UID]*model.Target, len(s.Targets)),
		Pools:       make(map[model.UID]*model.StoragePool, len(s.Pools)),
		BuddyGroups: make(map[model.UID]*model.BuddyGroup, len(s.BuddyGroups)),
	}
	for k, v := range s.Nodes {
		out.Nodes[k] = v
	}
	for k, v := range s.Targets {
		out.Targets[k] = v
	}
	for k, v := range s.Pools {
		out.Pools[k] = v
	}
	for k, v := range s.BuddyGroups {
		out.BuddyGroups[k] = v
	}
	return out
}

// cache is the atomic holder; Manager embeds one.
type cache struct {
	ptr atomic.Pointer[Snapshot]
}

func newCache() *cache {
	c := &cache{}
	c.ptr.Store(emptySnapshot())
	return c
}

func (c *cache) load() *Snapshot { return c.ptr.Load() }

func (c *cache) update(fn func(*Snapshot)) {
	next := c.load().clone()
	fn(next)
	c.ptr.Store(next)
}
