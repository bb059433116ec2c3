package database

import (
	"fmt"

	"lasso-go/internal/config"
	logging "lasso-go/internal/logging"
	"lasso-go/internal/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Init opens the configured database and runs migrations.
func Init(conf config.DatabaseConfig, log *zap.Logger) error {
	dialector, err := dialectorFor(conf)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormZapLogger(log),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("driver", conf.Driver))

	if err := Migrate(DB); err != nil {
		return err
	}
	log.Info("Database migrations completed successfully.")
	return nil
}

// Migrate creates or updates the result tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ClusteringResult{},
		&models.ClusterEdgePoint{},
		&models.ClusterMembership{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Exports are read back per cluster in stroke order.
	edgeIndex := `CREATE INDEX IF NOT EXISTS idx_edge_points_order ON cluster_edge_points (result_id, cluster_index, seq);`
	if err := db.Exec(edgeIndex).Error; err != nil {
		return fmt.Errorf("failed to create index on edge points: %w", err)
	}
	return nil
}

func dialectorFor(conf config.DatabaseConfig) (gorm.Dialector, error) {
	switch conf.Driver {
	case "", "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			conf.Host, conf.User, conf.Password, conf.DBName, conf.Port)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(conf.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
}
