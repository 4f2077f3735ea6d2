// Package db sets up the GORM database connection and schema migration.
package db

import (
	"fmt"
	"time"

	"codelab/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM database instance.
type Database struct {
	DB *gorm.DB
}

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// New opens a PostgreSQL connection, configures pooling and runs migrations.
func New(config *Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		config.Host, config.Port, config.User, config.Password,
		config.DBName, config.SSLMode, config.TimeZone,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	database := &Database{DB: gdb}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

// Migrate auto-migrates all entity schemas.
func (d *Database) Migrate() error {
	return Migrate(d.DB)
}

// Migrate auto-migrates all entity schemas on an arbitrary gorm DB. Exposed
// separately so tests can migrate an in-memory database.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.LabSession{},
		&models.SessionEnrollment{},
		&models.Activity{},
		&models.TestCase{},
		&models.Submission{},
		&models.CodeSnapshot{},
		&models.MonitoringSession{},
		&models.MonitoringEvent{},
	)
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
