package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationActiveSlotUniqueIndex = "2026-01-12_active_slot_unique_index"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationActiveSlotUniqueIndex, apply: createActiveSlotUniqueIndex},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// createActiveSlotUniqueIndex installs the partial unique index that makes a
// slot claim an atomic compare-and-insert: at most one reservation with an
// active status may exist per (table_id, slot_date, slot_time). AutoMigrate
// cannot express partial indexes, so it lives here as raw SQL.
func createActiveSlotUniqueIndex(db *gorm.DB) error {
	const statement = `CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_slot
ON reservations(table_id, slot_date, slot_time)
WHERE status IN ('pending','confirmed');`
	return db.Exec(statement).Error
}
