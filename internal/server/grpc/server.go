// Package grpcserver runs the standard gRPC health service for orchestrators and load
// balancers. Serving status follows a periodic storage ping.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "zknotes"

// Pinger checks a dependency the process cannot serve without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the health server.
type Options struct {
	Pinger      Pinger
	Interval    time.Duration // how often Pinger is called; defaults to 5s
	PingTimeout time.Duration // per ping; defaults to 2s
	Reflection  bool
}

// Health wraps a grpc.Server carrying only the health service.
type Health struct {
	srv  *grpc.Server
	hs   *health.Server
	opts Options
	log  *zap.Logger
}

// New builds the server with recovery and logging interceptors. Status starts NOT_SERVING
// until the first successful ping.
func New(log *zap.Logger, opts Options) *Health {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if opts.Reflection {
		reflection.Register(s)
	}
	h := &Health{srv: s, hs: hs, opts: opts, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop.
func (h *Health) Serve(lis net.Listener) error { return h.srv.Serve(lis) }

// Check pings once and updates the serving status.
func (h *Health) Check(ctx context.Context) bool {
	if h.opts.Pinger == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return true
	}
	pctx, cancel := context.WithTimeout(ctx, h.opts.PingTimeout)
	defer cancel()
	if err := h.opts.Pinger.Ping(pctx); err != nil {
		h.log.Warn("health: ping failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch runs Check at the configured interval until ctx is done.
func (h *Health) Watch(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// Stop marks every service NOT_SERVING and then stops gracefully, bounded by ctx.
func (h *Health) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}
