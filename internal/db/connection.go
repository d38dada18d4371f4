// Package db wires the gateway's optional Postgres persistence layer:
// a Device row per IMEI seen logging in, and a GPSData row per decoded
// location/alarm sample.
package db

import (
	"fmt"
	"log"

	"gt06_gateway/config"
	"gt06_gateway/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the process-wide database handle, set by Initialize.
var DB *gorm.DB

// Initialize opens the Postgres connection described by config.GetDatabaseConfig
// and runs auto-migration for the gateway's models.
func Initialize() error {
	dbConfig := config.GetDatabaseConfig()
	dsn := dbConfig.GetDSN()

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	log.Println("database connection established")

	if err := RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RunMigrations auto-migrates the Device and GPSData tables.
func RunMigrations() error {
	if err := DB.AutoMigrate(&models.Device{}); err != nil {
		return fmt.Errorf("device table migration: %w", err)
	}
	if err := DB.AutoMigrate(&models.GPSData{}); err != nil {
		return fmt.Errorf("gps_data table migration: %w", err)
	}
	log.Println("database migrations complete")
	return nil
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return DB
}

// Close closes the underlying connection pool.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
