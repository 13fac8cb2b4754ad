package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/controllers/grpc"
	"github.com/chrissnell/fluidwatch/internal/controllers/restserver"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, cc []config.ControllerData, service *controllers.Service, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		service:     service,
		logger:      logger,
		controllers: make([]Controller, 0, len(cc)),
	}

	// Create controllers based on configuration
	for _, con := range cc {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating %s controller: %w", con.Type, err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	if err := cm.shareListeners(); err != nil {
		return nil, err
	}

	return cm, nil
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	service     *controllers.Service
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %w", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "rest", "restserver":
		var rc config.RESTServerData
		if cc.RESTServer != nil {
			rc = *cc.RESTServer
		}
		return restserver.NewController(cm.ctx, cm.wg, rc, cm.service, cm.logger)
	case "grpc":
		if cc.GRPC == nil {
			return nil, fmt.Errorf("grpc controller has no grpc section")
		}
		return grpc.NewController(cm.ctx, cm.wg, *cc.GRPC, cm.service, cm.logger)
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
