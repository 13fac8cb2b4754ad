package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/log"
	"github.com/chrissnell/fluidwatch/internal/managers"
	"github.com/chrissnell/fluidwatch/internal/session"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// NewDeviceClient builds the sensor client from the device section
func NewDeviceClient(cfg *config.ConfigData, logger *zap.SugaredLogger) (*device.Client, error) {
	timeout, err := cfg.DeviceTimeout()
	if err != nil {
		return nil, err
	}
	return device.NewClient(cfg.Device.BaseURL, timeout, logger.With("device", cfg.Device.Name)), nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	table, err := cfg.Table()
	if err != nil {
		return err
	}
	location, err := cfg.LoadLocation()
	if err != nil {
		return err
	}
	every, err := cfg.RefreshEvery()
	if err != nil {
		return err
	}

	client, err := NewDeviceClient(cfg, a.logger)
	if err != nil {
		return err
	}

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := storageManager.Close(); err != nil {
			log.Errorf("error closing storage backends: %v", err)
		}
	}()

	geometry := cfg.Geometry()
	store := feed.NewStore(geometry)
	refresher := feed.NewRefresher(client, geometry, store, storageManager.GetSnapshotDistributor(), a.logger)

	service := &controllers.Service{
		Store:      store,
		Refresher:  refresher,
		Session:    session.New(ctx, client, refresher, cfg.Session.Weight, a.logger),
		History:    storageManager.History(),
		Health:     storageManager.Health,
		Table:      table,
		Thresholds: cfg.RateThresholds(),
		Location:   location,
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Controllers, service, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		return err
	}

	if err := refresher.Start(ctx, &wg, every); err != nil {
		return err
	}

	log.Infow("Application started successfully", "device", cfg.Device.BaseURL, "controllers", len(cfg.Controllers))

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
