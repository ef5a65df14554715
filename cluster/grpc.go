package cluster

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the coordinator messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

const exchangeMethod = "/qobserve.cluster.Coordinator/Exchange"

type exchanger interface {
	Exchange(context.Context, *message) (*reply, error)
}

type service struct {
	c *coordinator
}

func (s *service) Exchange(ctx context.Context, m *message) (*reply, error) {
	return s.c.submit(ctx, m), nil
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchanger).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(exchanger).Exchange(ctx, req.(*message))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "qobserve.cluster.Coordinator",
	HandlerType: (*exchanger)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cluster/grpc.go",
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// grpcHost is the transport of rank 0, which serves the coordinator to its peers.
type grpcHost struct {
	c     *coordinator
	srv   *grpc.Server
	drain time.Duration
}

func (h *grpcHost) exchange(ctx context.Context, m *message) (*reply, error) {
	return h.c.submit(ctx, m), nil
}

// close waits for the peers to finalize before stopping the server.
func (h *grpcHost) close() error {
	select {
	case <-h.c.allDetached:
	case <-time.After(h.drain):
	}
	h.srv.GracefulStop()
	return nil
}

type grpcClient struct {
	conn *grpc.ClientConn
}

func (g *grpcClient) exchange(ctx context.Context, m *message) (*reply, error) {
	out := new(reply)
	if err := g.conn.Invoke(ctx, exchangeMethod, m, out, grpc.WaitForReady(true)); err != nil {
		if status.Code(err) == codes.DeadlineExceeded {
			return nil, errors.Wrap(ErrTimeout, err.Error())
		}
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

func (g *grpcClient) close() error {
	return errors.Wrap(g.conn.Close(), "")
}

// connect establishes a worker set according to cfg.
func connect(ctx context.Context, cfg Config, listen func(addr string) (net.Listener, error), dialOpts ...grpc.DialOption) (*WorkerSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	var t transport
	switch {
	case cfg.Size == 1:
		t = hub{c: newCoordinator(1)}
	case cfg.Rank == 0:
		lis, err := listen(cfg.Coordinator)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		h := &grpcHost{c: newCoordinator(cfg.Size), srv: grpc.NewServer(), drain: defaultDrain}
		if cfg.Timeout > 0 {
			h.drain = cfg.Timeout
		}
		h.srv.RegisterService(&serviceDesc, &service{c: h.c})
		go h.srv.Serve(lis)
		t = h
	default:
		opts := append([]grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name()))}, dialOpts...)
		conn, err := grpc.NewClient(cfg.Coordinator, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		t = &grpcClient{conn: conn}
	}

	ws := newWorkerSet(cfg.Rank, cfg.Size, cfg.Timeout, t)
	if cfg.Size > 1 {
		if err := ws.Barrier(ctx); err != nil {
			ws.Finalize()
			return nil, errors.Wrap(err, "join")
		}
	}
	return ws, nil
}
