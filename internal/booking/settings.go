package booking

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opSettingsLoad = "booking.settings.load"
	opSettingsSave = "booking.settings.save"
)

// settingsRowID pins the single authoritative settings record. Writes replace
// this row transactionally, so "latest wins" holds without scanning history.
const settingsRowID = 1

var errSettingsMissing = errors.New("operating settings not configured")

// SettingsStore supplies and replaces the current operating parameters.
type SettingsStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSettingsStore binds a SettingsStore to the given database handle. A nil
// clock defaults to time.Now.
func NewSettingsStore(db *gorm.DB, clock func() time.Time) *SettingsStore {
	if clock == nil {
		clock = time.Now
	}
	return &SettingsStore{db: db, clock: clock}
}

// SettingsInput carries the writable operating parameters.
type SettingsInput struct {
	OpeningTime          ClockTime
	ClosingTime          ClockTime
	HoursEnabled         bool
	ConfirmationDelayMin int
	DelayEnabled         bool
	QuotaCount           int
	QuotaWindowHours     int
	QuotaEnabled         bool
}

// Load returns the current settings. A missing row is a config_missing
// error: booking cannot proceed without operating parameters, though read
// and cancel paths never call this.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	var record Settings
	err := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, newServiceError(KindConfigMissing, opSettingsLoad, "settings_missing", errSettingsMissing)
	}
	if err != nil {
		return Settings{}, newServiceError(KindInternal, opSettingsLoad, "query_failed", err)
	}
	return record, nil
}

// Save replaces the current settings in one upsert, bumping the version.
func (s *SettingsStore) Save(ctx context.Context, input SettingsInput) (Settings, error) {
	if input.HoursEnabled && !input.OpeningTime.Before(input.ClosingTime) {
		return Settings{}, newServiceError(KindValidation, opSettingsSave, "inverted_hours",
			errors.New("opening time must precede closing time"))
	}
	if input.DelayEnabled && input.ConfirmationDelayMin <= 0 {
		return Settings{}, newServiceError(KindValidation, opSettingsSave, "invalid_delay",
			errors.New("confirmation delay must be positive"))
	}
	if input.QuotaEnabled && (input.QuotaCount <= 0 || input.QuotaWindowHours <= 0) {
		return Settings{}, newServiceError(KindValidation, opSettingsSave, "invalid_quota",
			errors.New("quota count and window must be positive"))
	}

	record := Settings{
		ID:                   settingsRowID,
		OpeningTime:          input.OpeningTime.String(),
		ClosingTime:          input.ClosingTime.String(),
		HoursEnabled:         input.HoursEnabled,
		ConfirmationDelayMin: input.ConfirmationDelayMin,
		DelayEnabled:         input.DelayEnabled,
		QuotaCount:           input.QuotaCount,
		QuotaWindowHours:     input.QuotaWindowHours,
		QuotaEnabled:         input.QuotaEnabled,
		Version:              1,
		UpdatedAtSeconds:     s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"opening_time":           record.OpeningTime,
				"closing_time":           record.ClosingTime,
				"hours_enabled":          record.HoursEnabled,
				"confirmation_delay_min": record.ConfirmationDelayMin,
				"delay_enabled":          record.DelayEnabled,
				"quota_count":            record.QuotaCount,
				"quota_window_hours":     record.QuotaWindowHours,
				"quota_enabled":          record.QuotaEnabled,
				"updated_at_s":           record.UpdatedAtSeconds,
				"version":                gorm.Expr("version + 1"),
			}),
		}).Create(&record).Error
	})
	if txErr != nil {
		return Settings{}, newServiceError(KindInternal, opSettingsSave, "store_failed", txErr)
	}
	return s.Load(ctx)
}
