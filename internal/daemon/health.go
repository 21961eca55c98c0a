package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that tracks the WhatsApp
// transport. The empty service reports the daemon process itself.
const HealthService = "bridge.whatsapp"

// HealthServer serves gRPC health checks on the session's Unix domain socket.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	bus        *bus.Bus
	machine    *status.Machine
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// NewHealthServer binds the health socket. A stale socket file is replaced.
func NewHealthServer(socketPath string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*HealthServer, error) {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		bus:        b,
		machine:    machine,
		logger:     logger.Named("health"),
	}, nil
}

// Start follows transport state changes and serves in the background.
func (s *HealthServer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ch, unsub := s.bus.Subscribe(bus.KindStatusChanged, 16)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.setTransport(s.machine.Current())
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					s.setTransport(change.To)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("health server starting", zap.String("socket", s.socketPath))
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()
}

func (s *HealthServer) setTransport(state status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if state == status.Connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, st)
	s.logger.Debug("transport health updated", zap.String("state", string(state)), zap.String("health", st.String()))
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *HealthServer) Stop() {
	s.logger.Info("health server stopping")
	if s.cancel != nil {
		s.cancel()
	}
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
