// Package rpcserver implements the administrative RPC interface from §4.D:
// a TLS-secured, framed RPC service for operator tools and BeeGFS clients to
// query and mutate cluster topology, quota limits, and buddy-group state.
// Transport, TLS and interceptor chaining are the real
// google.golang.org/grpc machinery; message encoding uses the package's own
// jsonCodec (see codec.go) in place of the teacher's protoc-generated
// proto package, since protoc cannot be invoked in this environment.
package rpcserver

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/thinkparq/mgmtd/metrics"
)

// Config configures the listener and auth for NewGRPCServer, grounded on
// the flag surface named in §6 (--grpc-port, --tls-*, --auth-*).
type Config struct {
	ListenAddr  string
	TLSDisabled bool
	TLSCertFile string
	TLSKeyFile  string
	AuthDisable bool
	AuthSecret  string
}

// NewGRPCServer builds the grpc.Server and its listener, but does not start
// serving — callers invoke Serve in a tracked goroutine (see supervisor).
func NewGRPCServer(cfg Config, h *Handlers) (*grpc.Server, net.Listener, error) {
	auth := &authInterceptor{secret: cfg.AuthSecret, disable: cfg.AuthDisable}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(tracerUnaryInterceptor, metrics.GRPCMetrics.UnaryServerInterceptor(), auth.unary),
		grpc.ChainStreamInterceptor(metrics.GRPCMetrics.StreamServerInterceptor(), auth.stream),
	}

	if cfg.TLSDisabled {
		opts = append(opts, grpc.Creds(insecure.NewCredentials()))
	} else {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})))
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, nil, err
	}

	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, h)
	return s, lis, nil
}

func tracerUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	span := trace.SpanFromContextSafe(ctx)
	span.Infof("rpc %s", info.FullMethod)
	return handler(ctx, req)
}

// serviceDesc is hand-written in place of a protoc-generated *_grpc.pb.go
// file: each handler is reached through a thin adapter that unmarshals via
// the registered jsonCodec and forwards to the matching Handlers method.
const serviceName = "mgmtd.Management"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListNodes", func(h *Handlers, ctx context.Context, req *ListNodesRequest) (any, error) {
			return h.ListNodes(ctx, req)
		}),
		unaryMethod("AddNode", func(h *Handlers, ctx context.Context, req *AddNodeRequest) (any, error) {
			return h.AddNode(ctx, req)
		}),
		unaryMethod("RemoveNode", func(h *Handlers, ctx context.Context, req *RemoveNodeRequest) (any, error) {
			return h.RemoveNode(ctx, req)
		}),
		unaryMethod("ListTargets", func(h *Handlers, ctx context.Context, req *ListTargetsRequest) (any, error) {
			return h.ListTargets(ctx, req)
		}),
		unaryMethod("AddTarget", func(h *Handlers, ctx context.Context, req *AddTargetRequest) (any, error) {
			return h.AddTarget(ctx, req)
		}),
		unaryMethod("RemoveTarget", func(h *Handlers, ctx context.Context, req *RemoveTargetRequest) (any, error) {
			return h.RemoveTarget(ctx, req)
		}),
		unaryMethod("SetTargetMapping", func(h *Handlers, ctx context.Context, req *SetTargetMappingRequest) (any, error) {
			return h.SetTargetMapping(ctx, req)
		}),
		unaryMethod("ListStoragePools", func(h *Handlers, ctx context.Context, req *ListStoragePoolsRequest) (any, error) {
			return h.ListStoragePools(ctx, req)
		}),
		unaryMethod("AddStoragePool", func(h *Handlers, ctx context.Context, req *AddStoragePoolRequest) (any, error) {
			return h.AddStoragePool(ctx, req)
		}),
		unaryMethod("RemoveStoragePool", func(h *Handlers, ctx context.Context, req *RemoveStoragePoolRequest) (any, error) {
			return h.RemoveStoragePool(ctx, req)
		}),
		unaryMethod("ListBuddyGroups", func(h *Handlers, ctx context.Context, req *ListBuddyGroupsRequest) (any, error) {
			return h.ListBuddyGroups(ctx, req)
		}),
		unaryMethod("AddBuddyGroup", func(h *Handlers, ctx context.Context, req *AddBuddyGroupRequest) (any, error) {
			return h.AddBuddyGroup(ctx, req)
		}),
		unaryMethod("RemoveBuddyGroup", func(h *Handlers, ctx context.Context, req *RemoveBuddyGroupRequest) (any, error) {
			return h.RemoveBuddyGroup(ctx, req)
		}),
		unaryMethod("TriggerFailover", func(h *Handlers, ctx context.Context, req *TriggerFailoverRequest) (any, error) {
			return h.TriggerFailover(ctx, req)
		}),
		unaryMethod("GetQuotaLimits", func(h *Handlers, ctx context.Context, req *GetQuotaLimitsRequest) (any, error) {
			return h.GetQuotaLimits(ctx, req)
		}),
		unaryMethod("SetQuotaLimits", func(h *Handlers, ctx context.Context, req *SetQuotaLimitsRequest) (any, error) {
			return h.SetQuotaLimits(ctx, req)
		}),
		unaryMethod("GetCapacityPoolClass", func(h *Handlers, ctx context.Context, req *GetCapacityPoolClassRequest) (any, error) {
			return h.GetCapacityPoolClass(ctx, req)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeTopologyChanges",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				h := srv.(*Handlers)
				var req TopologyChangeEvent // empty request, subscription takes no arguments
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				return h.SubscribeTopologyChanges(stream.Context(), func(evt *TopologyChangeEvent) error {
					return stream.SendMsg(evt)
				})
			},
		},
	},
}

// unaryMethod adapts a strongly-typed Handlers method into the
// interface{}-based grpc.MethodHandler shape grpc.ServiceDesc requires. Req
// is inferred as the pointee type from fn's *Req parameter.
func unaryMethod[Req any](name string, fn func(*Handlers, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			h := srv.(*Handlers)
			if interceptor == nil {
				return fn(h, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(h, ctx, req.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}
