package managers

import (
	"context"
	"fmt"
	"net"
	"sync"

	grpccontroller "github.com/chrissnell/fluidwatch/internal/controllers/grpc"
	"github.com/chrissnell/fluidwatch/internal/controllers/restserver"
	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
)

// sharedListener serves the REST and gRPC controllers on one port, routing
// each connection by protocol
type sharedListener struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	addr   string
	rest   *restserver.Controller
	grpc   *grpccontroller.Controller
	logger *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
}

// shareListeners replaces a REST and a gRPC controller configured on the
// same address with one sharedListener. Cleartext only: connections are
// matched on their first bytes.
func (cm *controllerManager) shareListeners() error {
	var (
		rests = make(map[string]int)
		grpcs = make(map[string]int)
	)
	for i, c := range cm.controllers {
		switch ctrl := c.(type) {
		case *restserver.Controller:
			if _, dup := rests[ctrl.ListenAddr()]; dup {
				return fmt.Errorf("two rest controllers configured on %s", ctrl.ListenAddr())
			}
			rests[ctrl.ListenAddr()] = i
		case *grpccontroller.Controller:
			if _, dup := grpcs[ctrl.ListenAddr()]; dup {
				return fmt.Errorf("two grpc controllers configured on %s", ctrl.ListenAddr())
			}
			grpcs[ctrl.ListenAddr()] = i
		}
	}

	merged := make(map[int]Controller)
	for addr, ri := range rests {
		gi, ok := grpcs[addr]
		if !ok {
			continue
		}
		rest := cm.controllers[ri].(*restserver.Controller)
		grpc := cm.controllers[gi].(*grpccontroller.Controller)
		if rest.TLSEnabled() || grpc.TLSEnabled() {
			return fmt.Errorf("rest and grpc controllers sharing %s cannot use TLS", addr)
		}
		merged[ri] = &sharedListener{
			ctx:    cm.ctx,
			wg:     cm.wg,
			addr:   addr,
			rest:   rest,
			grpc:   grpc,
			logger: cm.logger.Named("mux"),
		}
		merged[gi] = nil
	}
	if len(merged) == 0 {
		return nil
	}

	controllers := make([]Controller, 0, len(cm.controllers))
	for i, c := range cm.controllers {
		if m, ok := merged[i]; ok {
			if m != nil {
				controllers = append(controllers, m)
			}
			continue
		}
		controllers = append(controllers, c)
	}
	cm.controllers = controllers
	return nil
}

func (s *sharedListener) StartController() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("could not create shared listener: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	m := cmux.New(listener)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())

	if err := s.grpc.Serve(grpcL); err != nil {
		listener.Close()
		return err
	}
	if err := s.rest.Serve(httpL); err != nil {
		listener.Close()
		return err
	}

	s.logger.Infow("serving rest and grpc on one port", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := m.Serve(); err != nil && s.ctx.Err() == nil {
			s.logger.Errorf("shared listener error: %v", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		listener.Close()
	}()

	return nil
}

// Addr is the bound address; valid after StartController
func (s *sharedListener) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
