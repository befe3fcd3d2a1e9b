package rpc

import (
	"context"
	"net"
	"time"

	"ChatRelay/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the service name reported next to the overall ("") status.
const RelayService = "chat.Relay"

// HealthServer exposes grpc.health.v1 for orchestrators.
type HealthServer struct {
	gs     *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewHealthServer() *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &HealthServer{gs: gs, health: hs, log: logger.Named("grpc")}
}

// SetServing flips both the overall and the relay status.
func (h *HealthServer) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(RelayService, st)
}

// Serve blocks until ctx ends, then reports NOT_SERVING and stops gracefully.
func (h *HealthServer) Serve(ctx context.Context, ln net.Listener) error {
	h.SetServing(true)
	errCh := make(chan error, 1)
	go func() { errCh <- h.gs.Serve(ln) }()
	h.log.Info("[gRPC] health listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	h.health.Shutdown()
	h.gs.GracefulStop()
	return nil
}

// Listen binds addr before Serve so callers can probe the bound address.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "grpc listen %s", addr)
	}
	return ln, nil
}

// LocalTarget 把监听地址转成本机可拨的 target（0.0.0.0 / :: -> localhost）
func LocalTarget(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// WaitForHealth polls target until service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, target, service string) error {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrapf(err, "dial %s", target)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "wait for grpc health")
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}
