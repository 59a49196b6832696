package scheduling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/booking"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

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

	if err := db.AutoMigrate(&booking.Table{}, &booking.AvailabilityRange{}, &booking.Reservation{}, &booking.Settings{}); err != nil {
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
	mu   sync.Mutex
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("res-%d", g.next), nil
}

// fakeTimers records armed timers and lets tests fire them synchronously.
type fakeTimers struct {
	mu    sync.Mutex
	armed []*fakeTimer
}

type fakeTimer struct {
	delay     time.Duration
	callback  func()
	cancelled bool
}

func (f *fakeTimers) factory(delay time.Duration, callback func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{delay: delay, callback: callback}
	f.armed = append(f.armed, timer)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		timer.cancelled = true
	}
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.armed)
}

func (f *fakeTimers) timerAt(index int) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed[index]
}

func newBookingService(t *testing.T, db *gorm.DB, clock *manualClock) *booking.Service {
	t.Helper()
	service, err := booking.NewService(booking.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to build booking service: %v", err)
	}
	return service
}

func seedSettings(t *testing.T, db *gorm.DB, delayEnabled bool, delayMinutes int) {
	t.Helper()
	record := booking.Settings{
		ID:                   1,
		OpeningTime:          "10:00",
		ClosingTime:          "22:00",
		DelayEnabled:         delayEnabled,
		ConfirmationDelayMin: delayMinutes,
		Version:              1,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
}

func seedTableWithBlocks(t *testing.T, db *gorm.DB, service *booking.Service, tableID string, blocks []booking.BlockInput) {
	t.Helper()
	record := booking.Table{
		ID:       tableID,
		Name:     "table " + tableID,
		Capacity: 4,
		Status:   string(booking.TableAvailable),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}
	if err := service.Catalog().SetAvailability(context.Background(), booking.TableID(tableID), blocks); err != nil {
		t.Fatalf("failed to seed availability: %v", err)
	}
}

func mustBlock(t *testing.T, date string, ranges ...[2]string) booking.BlockInput {
	t.Helper()
	slotDate, err := booking.NewSlotDate(date)
	if err != nil {
		t.Fatalf("unexpected date error: %v", err)
	}
	times := make([]booking.TimeRange, 0, len(ranges))
	for _, pair := range ranges {
		start, err := booking.NewClockTime(pair[0])
		if err != nil {
			t.Fatalf("unexpected time error: %v", err)
		}
		end, err := booking.NewClockTime(pair[1])
		if err != nil {
			t.Fatalf("unexpected time error: %v", err)
		}
		times = append(times, booking.TimeRange{Start: start, End: end})
	}
	return booking.BlockInput{Date: slotDate, Times: times}
}

func reservationStatus(t *testing.T, service *booking.Service, id string) string {
	t.Helper()
	record, err := service.Ledger().Get(context.Background(), booking.ReservationID(id))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	return record.Status
}

// waitForStatus polls for asynchronous transitions driven by goroutines.
func waitForStatus(t *testing.T, service *booking.Service, id, expected string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reservationStatus(t, service, id) == expected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reservation %s never reached status %s (now %s)", id, expected, reservationStatus(t, service, id))
}
