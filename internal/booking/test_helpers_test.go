package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// openTestDatabase builds an isolated in-memory schema including the partial
// unique index over active reservations that production migrations install.
func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&Table{}, &AvailabilityRange{}, &Reservation{}, &Settings{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	const indexStatement = `CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_slot
ON reservations(table_id, slot_date, slot_time)
WHERE status IN ('pending','confirmed');`
	if err := db.Exec(indexStatement).Error; err != nil {
		t.Fatalf("failed to create unique index: %v", err)
	}
	return db
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type recordingApprovals struct {
	mu        sync.Mutex
	scheduled []string
}

func (r *recordingApprovals) Schedule(reservationID ReservationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, reservationID.String())
}

func (r *recordingApprovals) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scheduled...)
}

func newTestService(t *testing.T, clock *manualClock) (*Service, *gorm.DB, *recordingApprovals) {
	t.Helper()
	db := openTestDatabase(t)
	approvals := &recordingApprovals{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDGenerator{prefix: "res"},
		Approvals:  approvals,
	})
	if err != nil {
		t.Fatalf("failed to build booking service: %v", err)
	}
	return service, db, approvals
}

func mustTableID(t *testing.T, value string) TableID {
	t.Helper()
	id, err := NewTableID(value)
	if err != nil {
		t.Fatalf("unexpected table id error: %v", err)
	}
	return id
}

func mustReservationID(t *testing.T, value string) ReservationID {
	t.Helper()
	id, err := NewReservationID(value)
	if err != nil {
		t.Fatalf("unexpected reservation id error: %v", err)
	}
	return id
}

func mustRequesterID(t *testing.T, value string) RequesterID {
	t.Helper()
	id, err := NewRequesterID(value)
	if err != nil {
		t.Fatalf("unexpected requester id error: %v", err)
	}
	return id
}

func mustDate(t *testing.T, value string) SlotDate {
	t.Helper()
	date, err := NewSlotDate(value)
	if err != nil {
		t.Fatalf("unexpected date error: %v", err)
	}
	return date
}

func mustTime(t *testing.T, value string) ClockTime {
	t.Helper()
	clockTime, err := NewClockTime(value)
	if err != nil {
		t.Fatalf("unexpected time error: %v", err)
	}
	return clockTime
}

func mustRange(t *testing.T, start, end string) TimeRange {
	t.Helper()
	return TimeRange{Start: mustTime(t, start), End: mustTime(t, end)}
}

func seedTable(t *testing.T, db *gorm.DB, id, name string) {
	t.Helper()
	record := Table{
		ID:       id,
		Name:     name,
		Capacity: 4,
		Status:   string(TableAvailable),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}
}

func seedSettings(t *testing.T, db *gorm.DB, settings Settings) {
	t.Helper()
	settings.ID = settingsRowID
	if settings.Version == 0 {
		settings.Version = 1
	}
	if err := db.Create(&settings).Error; err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
}

// defaultTestSettings keeps hours, delay and quota disabled so individual
// tests opt in to exactly the policy they exercise.
func defaultTestSettings() Settings {
	return Settings{
		OpeningTime: "10:00",
		ClosingTime: "22:00",
	}
}

func kindOfError(t *testing.T, err error) ErrorKind {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected a service error, got %v", err)
	}
	return serviceErr.Kind()
}

func bookOnce(t *testing.T, service *Service, table TableID, date SlotDate, slot ClockTime, requester RequesterID) Reservation {
	t.Helper()
	reservation, err := service.Book(context.Background(), BookRequest{
		TableID:     table,
		Date:        date,
		Time:        slot,
		RequesterID: requester,
	})
	if err != nil {
		t.Fatalf("unexpected booking error: %v", err)
	}
	return reservation
}
