package booking

import (
	"context"
	"testing"
	"time"
)

func TestSettingsMissingRowIsConfigMissing(t *testing.T) {
	db := openTestDatabase(t)
	store := NewSettingsStore(db, nil)

	_, err := store.Load(context.Background())
	if kindOfError(t, err) != KindConfigMissing {
		t.Fatalf("expected config_missing, got %v", err)
	}
}

func TestSettingsLatestWriteWins(t *testing.T) {
	clock := newManualClock(time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC))
	db := openTestDatabase(t)
	store := NewSettingsStore(db, clock.Now)

	first := SettingsInput{
		OpeningTime:          mustTime(t, "10:00"),
		ClosingTime:          mustTime(t, "22:00"),
		HoursEnabled:         true,
		ConfirmationDelayMin: 10,
		DelayEnabled:         true,
		QuotaCount:           2,
		QuotaWindowHours:     24,
		QuotaEnabled:         true,
	}
	saved, err := store.Save(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	second := first
	second.ConfirmationDelayMin = 30
	saved, err = store.Save(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", saved.Version)
	}
	if saved.ConfirmationDelayMin != 30 {
		t.Fatalf("latest write must win, got delay %d", saved.ConfirmationDelayMin)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if loaded.ConfirmationDelayMin != 30 || loaded.Version != 2 {
		t.Fatalf("load must return the current row, got %#v", loaded)
	}
}

func TestSettingsSaveValidatesPolicyShapes(t *testing.T) {
	clock := newManualClock(time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC))
	db := openTestDatabase(t)
	store := NewSettingsStore(db, clock.Now)

	base := SettingsInput{
		OpeningTime: mustTime(t, "10:00"),
		ClosingTime: mustTime(t, "22:00"),
	}

	inverted := base
	inverted.HoursEnabled = true
	inverted.OpeningTime = mustTime(t, "23:00")
	if _, err := store.Save(context.Background(), inverted); kindOfError(t, err) != KindValidation {
		t.Fatalf("expected validation for inverted hours")
	}

	badDelay := base
	badDelay.DelayEnabled = true
	if _, err := store.Save(context.Background(), badDelay); kindOfError(t, err) != KindValidation {
		t.Fatalf("expected validation for non-positive delay")
	}

	badQuota := base
	badQuota.QuotaEnabled = true
	if _, err := store.Save(context.Background(), badQuota); kindOfError(t, err) != KindValidation {
		t.Fatalf("expected validation for non-positive quota")
	}
}
