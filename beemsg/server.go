// Package beemsg implements the legacy BeeMsg transport from §4.A/§4.C: a
// UDP listener for request/response traffic, a per-peer TCP connection
// pool for server-initiated traffic (consistency changes, quota usage
// pulls, exceeded quota), and shared-secret authentication via the
// truncated SHA-256 hash carried in every frame header. Grounded on the
// teacher's raft/transport.go, which plays the analogous role of a
// peer-addressed, connection-pooled binary transport sitting next to the
// gRPC service.
package beemsg

import (
	"context"
	"net"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"golang.org/x/sync/errgroup"

	"github.com/thinkparq/mgmtd/errors"
	"github.com/thinkparq/mgmtd/metrics"
	"github.com/thinkparq/mgmtd/wire"
)

// Config controls the listener and auth behavior, grounded on the flag
// surface named in §6 (--beemsg-port, --auth-disable, --auth-file,
// --connection-limit).
type Config struct {
	ListenAddr      string
	AuthDisable     bool
	AuthSecret      string
	ConnectionLimit int // per-peer TCP connections, default 12
}

const defaultConnectionLimit = 12

// Server is the BeeMsg endpoint: it answers UDP requests synchronously and
// maintains outbound TCP connections for broadcasts it initiates.
type Server struct {
	cfg      Config
	handlers *Handlers
	pool     *connPool
	udp      net.PacketConn
}

// NewServer wires h to the same connection pool the Server uses for its
// own outbound broadcasts, so h's PullUsage/PushExceeded/
// NotifyConsistencyChange calls all share one per-peer connection limit
// instead of each opening their own set of connections. Inbound requests
// arrive over UDP and do not use the pool.
func NewServer(cfg Config, h *Handlers) *Server {
	if cfg.ConnectionLimit <= 0 {
		cfg.ConnectionLimit = defaultConnectionLimit
	}
	pool := newConnPool(cfg.ConnectionLimit)
	h.Pool = pool
	return &Server{cfg: cfg, handlers: h, pool: pool}
}

// Serve listens for UDP request/response traffic until ctx is cancelled.
// It does not return until the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(errors.KindBind, "beemsg.Serve", err)
	}
	s.udp = conn

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})
	group.Go(func() error {
		return s.serveUDP(ctx, conn)
	})
	return group.Wait()
}

func (s *Server) serveUDP(ctx context.Context, conn net.PacketConn) error {
	span := trace.SpanFromContextSafe(ctx)
	buf := make([]byte, wire.MaxFrameSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			span.Warnf("beemsg udp read failed: %s", errors.Detail(err))
			continue
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		go s.handleDatagram(ctx, conn, addr, raw)
	}
}

func (s *Server) handleDatagram(ctx context.Context, conn net.PacketConn, addr net.Addr, raw []byte) {
	span := trace.SpanFromContextSafe(ctx)

	header, payload, err := wire.DecodeFrame(raw)
	if err != nil {
		span.Warnf("beemsg: malformed frame from %s: %s", addr, errors.Detail(err))
		return
	}
	if !s.cfg.AuthDisable {
		if !checkAuthHash(header.AuthHash, s.cfg.AuthSecret) {
			metrics.BeemsgAuthFailuresTotal.Inc()
			span.Warnf("beemsg: auth failure from %s", addr)
			return
		}
	}
	metrics.BeemsgRequestsTotal.WithLabelValues(header.MsgType.String()).Inc()

	respType, respPayload, err := s.handlers.Dispatch(ctx, header.MsgType, payload)
	if err != nil {
		span.Warnf("beemsg: handler for msg type %d failed: %s", header.MsgType, errors.Detail(err))
		return
	}
	if respPayload == nil && respType == 0 {
		return // one-way message, no reply expected
	}

	frame := wire.EncodeFrame(respType, header.FeatureFlags, header.AuthHash, respPayload)
	if _, err := conn.WriteTo(frame, addr); err != nil {
		span.Warnf("beemsg: reply write to %s failed: %s", addr, errors.Detail(err))
	}
	wire.ReleaseFrame(frame)
}

// Close tears down the UDP listener and all pooled TCP connections.
func (s *Server) Close() {
	if s.udp != nil {
		s.udp.Close()
	}
	s.pool.closeAll()
}
