package beemsg

import (
	"net"
	"sync"
	"time"

	"github.com/thinkparq/mgmtd/errors"
)

// peerConns holds the pooled, idle-timed-out TCP connections to one peer
// address, capped at the server's connection limit.
type peerConns struct {
	mu    sync.Mutex
	idle  []*pooledConn
	limit int
	open  int
}

type pooledConn struct {
	conn    net.Conn
	lastUse time.Time
}

// idleTimeout matches BeeMsg's usual per-connection idle window: a pooled
// connection unused this long is closed rather than kept warm.
const idleTimeout = 30 * time.Second

// connPool is a per-peer-address registry of TCP connections, grounded on
// the teacher's sync.Map-of-queues in raft/transport.go — generalized here
// from one queue per remote range to one bounded pool per remote address.
type connPool struct {
	limit int
	peers sync.Map // addr string -> *peerConns
}

func newConnPool(limit int) *connPool {
	return &connPool{limit: limit}
}

func (p *connPool) peerFor(addr string) *peerConns {
	v, _ := p.peers.LoadOrStore(addr, &peerConns{limit: p.limit})
	return v.(*peerConns)
}

// get returns a pooled connection to addr, dialing a new one if the pool
// is empty and under its limit.
func (p *connPool) get(addr string, dialTimeout time.Duration) (net.Conn, error) {
	pc := p.peerFor(addr)

	pc.mu.Lock()
	for len(pc.idle) > 0 {
		c := pc.idle[len(pc.idle)-1]
		pc.idle = pc.idle[:len(pc.idle)-1]
		if time.Since(c.lastUse) > idleTimeout {
			c.conn.Close()
			pc.open--
			continue
		}
		pc.mu.Unlock()
		return c.conn, nil
	}
	canOpen := pc.open < pc.limit
	if canOpen {
		pc.open++
	}
	pc.mu.Unlock()

	if !canOpen {
		return nil, errors.New(errors.KindBusy, "beemsg.connPool.get", "per-peer connection limit reached")
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		if canOpen {
			pc.mu.Lock()
			pc.open--
			pc.mu.Unlock()
		}
		return nil, err
	}
	return conn, nil
}

// put returns a connection to the pool, or closes it if the peer's idle
// list is already at its limit.
func (p *connPool) put(addr string, conn net.Conn) {
	pc := p.peerFor(addr)
	pc.mu.Lock()
	if len(pc.idle) >= pc.limit {
		pc.mu.Unlock()
		conn.Close()
		return
	}
	pc.idle = append(pc.idle, &pooledConn{conn: conn, lastUse: time.Now()})
	pc.mu.Unlock()
}

// discard closes conn without returning it to the pool, used after a
// write/read error that leaves the connection in an unknown state.
func (p *connPool) discard(addr string, conn net.Conn) {
	pc := p.peerFor(addr)
	pc.mu.Lock()
	pc.open--
	pc.mu.Unlock()
	conn.Close()
}

func (p *connPool) closeAll() {
	p.peers.Range(func(_, v any) bool {
		pc := v.(*peerConns)
		pc.mu.Lock()
		for _, c := range pc.idle {
			c.conn.Close()
		}
		pc.idle = nil
		pc.mu.Unlock()
		return true
	})
}
