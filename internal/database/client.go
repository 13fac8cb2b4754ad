// Package database holds the gorm connection and models for the postgres
// fetch history backend.
package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go.uber.org/zap"
)

// CreateConnection opens a postgres connection with the standard gorm
// configuration, routing gorm's own log output through zap
func CreateConnection(connectionString string, log *zap.SugaredLogger) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.Desugar()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	log.Info("connecting to postgres...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warnf("warning: unable to create a postgres connection: %v", err)
		return nil, err
	}
	log.Info("postgres connection successful")

	return db, nil
}
