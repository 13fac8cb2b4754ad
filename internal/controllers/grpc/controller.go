// Package grpc serves the ViewService: rendered views, status and device
// control over gRPC with a JSON codec.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/grpcutil"
	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Controller represents the gRPC controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	Server     *grpc.Server
	GRPCConfig config.GRPCData
	service    *controllers.Service
	logger     *zap.SugaredLogger
	listener   net.Listener
}

// NewController creates a new gRPC controller instance
func NewController(ctx context.Context, wg *sync.WaitGroup, gc config.GRPCData, service *controllers.Service, logger *zap.SugaredLogger) (*Controller, error) {
	logger = logger.Named("grpc")

	if gc.ListenAddr == "" {
		gc.ListenAddr = "0.0.0.0"
	}
	if (gc.Cert == "") != (gc.Key == "") {
		return nil, fmt.Errorf("grpc server TLS requires both cert and key")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		GRPCConfig: gc,
		service:    service,
		logger:     logger,
	}

	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(ctrl.unaryInterceptor)}

	// Create gRPC server with optional TLS
	if gc.Cert != "" && gc.Key != "" {
		creds, err := credentials.NewServerTLSFromFile(gc.Cert, gc.Key)
		if err != nil {
			return nil, fmt.Errorf("could not create TLS server from keypair: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	ctrl.Server = grpc.NewServer(opts...)

	grpcutil.RegisterViewServiceServer(ctrl.Server, ctrl)
	reflection.Register(ctrl.Server)

	return ctrl, nil
}

// StartController listens on the configured address and serves until the
// context is cancelled
func (c *Controller) StartController() error {
	listener, err := net.Listen("tcp", c.ListenAddr())
	if err != nil {
		return fmt.Errorf("could not create gRPC listener: %w", err)
	}
	return c.Serve(listener)
}

// ListenAddr is the configured host:port
func (c *Controller) ListenAddr() string {
	return fmt.Sprintf("%v:%v", c.GRPCConfig.ListenAddr, c.GRPCConfig.Port)
}

// TLSEnabled reports whether the server terminates TLS itself
func (c *Controller) TLSEnabled() bool {
	return c.GRPCConfig.Cert != "" && c.GRPCConfig.Key != ""
}

// Serve runs the gRPC server on listener until the context is cancelled
func (c *Controller) Serve(listener net.Listener) error {
	c.listener = listener
	c.logger.Infow("starting gRPC server controller...", "addr", listener.Addr().String())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(listener); err != nil && err != grpc.ErrServerStopped && c.ctx.Err() == nil {
			c.logger.Errorf("gRPC server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the gRPC server...")
		c.Server.GracefulStop()
	}()

	return nil
}

// Addr is the bound listen address; valid after StartController.
func (c *Controller) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *Controller) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	err = grpcutil.ToStatus(err)
	code := status.Code(err)
	metrics.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
	if err != nil {
		c.logger.Debugw("grpc call failed", "method", info.FullMethod, "code", code.String(), "error", err)
	}
	return resp, err
}

func (c *Controller) render(in *grpcutil.ViewRequest) (*view.Result, error) {
	state, err := c.service.NewState(in.RangeHours, in.OffsetHours)
	if err != nil {
		return nil, err
	}
	res, err := c.service.View(state, in.Weight)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Controller) GetView(ctx context.Context, in *grpcutil.ViewRequest) (*view.Result, error) {
	return c.render(in)
}

func (c *Controller) GetStatus(ctx context.Context, in *grpcutil.Empty) (*controllers.Status, error) {
	st := c.service.Status()
	return &st, nil
}

func (c *Controller) StartDevice(ctx context.Context, in *grpcutil.StartRequest) (*controllers.Status, error) {
	if err := c.service.Session.Start(ctx, in.Weight); err != nil {
		return nil, err
	}
	st := c.service.Status()
	return &st, nil
}

func (c *Controller) StopDevice(ctx context.Context, in *grpcutil.Empty) (*controllers.Status, error) {
	if err := c.service.Session.Stop(ctx); err != nil {
		return nil, err
	}
	st := c.service.Status()
	return &st, nil
}

func (c *Controller) Refresh(ctx context.Context, in *grpcutil.Empty) (*controllers.Status, error) {
	st := c.service.Refresh(ctx)
	return &st, nil
}

// WatchView sends the requested view now and again after every refresh.
// The offset is re-clamped on each send as the buffer span can change.
func (c *Controller) WatchView(in *grpcutil.ViewRequest, stream grpc.ServerStream) error {
	updates, cancel := c.service.Store.Subscribe()
	defer cancel()

	send := func() error {
		res, err := c.render(in)
		if err != nil {
			return grpcutil.ToStatus(err)
		}
		return stream.SendMsg(res)
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-c.ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			if err := send(); err != nil {
				return err
			}
		}
	}
}
