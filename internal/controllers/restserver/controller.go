// Package restserver serves the dashboard API, the live view websocket and
// Prometheus metrics over HTTP.
package restserver

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/log"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	FS         fs.FS
	service    *controllers.Service
	live       *liveHub
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, service *controllers.Service, logger *zap.SugaredLogger) (*Controller, error) {
	logger = logger.Named("rest")

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultRESTPort)
		rc.Port = config.DefaultRESTPort
	}

	if (rc.Cert == "") != (rc.Key == "") {
		return nil, fmt.Errorf("rest server TLS requires both cert and key")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		FS:         GetAssets(),
		service:    service,
		live:       newLiveHub(service, logger),
		logger:     logger,
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController listens on the configured address and serves
func (c *Controller) StartController() error {
	listener, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("could not create REST listener: %w", err)
	}
	return c.Serve(listener)
}

// ListenAddr is the configured host:port
func (c *Controller) ListenAddr() string {
	return c.Server.Addr
}

// TLSEnabled reports whether the server terminates TLS itself
func (c *Controller) TLSEnabled() bool {
	return c.restConfig.Cert != "" && c.restConfig.Key != ""
}

// Serve runs the REST server and the live view hub on listener until the
// context is cancelled
func (c *Controller) Serve(listener net.Listener) error {
	c.logger.Infow("starting REST server controller...", "addr", listener.Addr().String())

	c.wg.Add(1)
	go c.live.run(c.ctx, c.wg)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var err error
		if c.TLSEnabled() {
			err = c.Server.ServeTLS(listener, c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.Serve(listener)
		}
		if err != http.ErrServerClosed && c.ctx.Err() == nil {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPLogger(c.logger))

	c.handle(router, "/api/view", c.handlers.GetView, http.MethodGet)
	c.handle(router, "/api/latest", c.handlers.GetLatest, http.MethodGet)
	c.handle(router, "/api/chart.png", c.handlers.GetChart, http.MethodGet)
	c.handle(router, "/api/history", c.handlers.GetHistory, http.MethodGet)
	c.handle(router, "/api/refresh", c.handlers.PostRefresh, http.MethodPost)
	c.handle(router, "/api/device/start", c.handlers.PostDeviceStart, http.MethodPost)
	c.handle(router, "/api/device/stop", c.handlers.PostDeviceStop, http.MethodPost)
	c.handle(router, "/healthz", c.handlers.GetHealth, http.MethodGet)

	router.HandleFunc("/ws", c.live.ServeHTTP)
	router.Handle("/metrics", promhttp.Handler())

	// Static file serving
	router.PathPrefix("/").Handler(http.FileServer(http.FS(c.FS)))

	return router
}

// handle registers an instrumented route
func (c *Controller) handle(r *mux.Router, path string, h http.HandlerFunc, methods ...string) {
	r.Handle(path, instrument(path, h)).Methods(methods...)
}
