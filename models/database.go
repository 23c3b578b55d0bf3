package models

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectionPoolConfig holds connection pool configuration
type ConnectionPoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// GetConnectionPoolConfig reads connection pool settings from v, falling
// back to defaults for unset or non-positive values.
func GetConnectionPoolConfig(v *viper.Viper) ConnectionPoolConfig {
	config := ConnectionPoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	if v == nil {
		return config
	}

	if n := v.GetInt("DB_MAX_IDLE_CONNS"); n > 0 {
		config.MaxIdleConns = n
	}
	if n := v.GetInt("DB_MAX_OPEN_CONNS"); n > 0 {
		config.MaxOpenConns = n
	}
	if n := v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES"); n > 0 {
		config.ConnMaxLifetime = time.Duration(n) * time.Minute
	}
	if n := v.GetInt("DB_CONN_MAX_IDLE_TIME_MINUTES"); n > 0 {
		config.ConnMaxIdleTime = time.Duration(n) * time.Minute
	}

	return config
}

// InitDatabase initializes the database connection with connection pooling
func InitDatabase(dsn string, poolConfig ConnectionPoolConfig) (*gorm.DB, error) {
	if dsn == "" {
		return nil, nil // Database is optional
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(poolConfig.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(poolConfig.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&ForecastRecord{}); err != nil {
		return fmt.Errorf("failed to migrate forecast records: %w", err)
	}
	return nil
}
