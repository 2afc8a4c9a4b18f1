package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
)

func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}

func AutoMigrateAll(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("db: nil handle")
	}
	return gdb.AutoMigrate(
		&types.Screen{},
		&types.Task{},
		&types.Action{},
		&types.Transition{},

		&types.ScreenGroup{},
		&types.GroupMembership{},
		&types.RecoveryEdge{},

		&types.ExtractionJob{},
	)
}
