package database

import (
	"fmt"

	"github.com/nimbuslab/crewbase/internal/common/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDatabase opens a connection for the configured driver and runs the
// schema migration. All three drivers share the same store implementation.
func NewDatabase(cfg *config.DatabaseConfig) (Database, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := gormDB.AutoMigrate(
		&User{}, &Role{}, &Permission{}, &RolePermission{}, &UserRole{},
		&Team{}, &TeamMember{}, &Invitation{},
		&Plan{}, &Subscription{}, &Invoice{}, &WebhookEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &store{db: gormDB}, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.Open(cfg.GetDSN()), nil
	case "mysql":
		return mysql.Open(cfg.GetDSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.GetDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
