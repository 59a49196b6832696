package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	opLedgerClaim   = "booking.ledger.claim_slot"
	opLedgerGet     = "booking.ledger.get"
	opLedgerStatus  = "booking.ledger.set_status"
	opLedgerCount   = "booking.ledger.count_active"
	opLedgerFind    = "booking.ledger.find_active"
	opLedgerOverdue = "booking.ledger.find_overdue_pending"
	opLedgerList    = "booking.ledger.list_for_requester"
	opLedgerHide    = "booking.ledger.hide"
)

var errSlotTaken = errors.New("slot already booked")

// Ledger is the sole authority for creating and mutating reservations.
type Ledger struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewLedger binds a Ledger to the given database handle. A nil clock
// defaults to time.Now.
func NewLedger(db *gorm.DB, clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{db: db, clock: clock}
}

// SlotClaim carries the parameters of an atomic slot claim.
type SlotClaim struct {
	ReservationID ReservationID
	TableID       TableID
	RequesterID   RequesterID
	Date          SlotDate
	Time          ClockTime
	Details       string
	// DueAt is the persisted auto-confirmation deadline; zero when the
	// confirmation delay is disabled.
	DueAt time.Time
}

// ClaimSlot inserts a pending reservation. The partial unique index over
// active reservations makes the insert itself the concurrency gate: when an
// active reservation already holds (table, date, time) the insert fails and
// a conflict is returned. There is no separate existence check.
func (l *Ledger) ClaimSlot(ctx context.Context, claim SlotClaim) (Reservation, error) {
	now := l.clock().UTC().Unix()
	record := Reservation{
		ID:               claim.ReservationID.String(),
		TableID:          claim.TableID.String(),
		RequesterID:      claim.RequesterID.String(),
		SlotDate:         claim.Date.String(),
		SlotTime:         claim.Time.String(),
		Status:           string(ReservationPending),
		Details:          claim.Details,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if !claim.DueAt.IsZero() {
		record.DueAtSeconds = claim.DueAt.UTC().Unix()
	}

	if err := l.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return Reservation{}, newServiceError(KindConflict, opLedgerClaim, "slot_taken", errSlotTaken)
		}
		return Reservation{}, newServiceError(KindInternal, opLedgerClaim, "insert_failed", err)
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get loads a reservation by id.
func (l *Ledger) Get(ctx context.Context, id ReservationID) (Reservation, error) {
	var record Reservation
	err := l.db.WithContext(ctx).Where("id = ?", id.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Reservation{}, newServiceError(KindNotFound, opLedgerGet, "reservation_not_found", err)
	}
	if err != nil {
		return Reservation{}, newServiceError(KindInternal, opLedgerGet, "query_failed", err)
	}
	return record, nil
}

// SetStatus performs a guarded compare-and-swap: the transition applies only
// when the stored status equals fromExpected. When the guard misses but the
// record exists, the current record is returned with changed=false so
// duplicated timer callbacks and overlapping sweeps stay idempotent.
func (l *Ledger) SetStatus(ctx context.Context, id ReservationID, fromExpected, to ReservationStatus) (Reservation, bool, error) {
	return l.swapStatus(ctx, id, []ReservationStatus{fromExpected}, to)
}

// SetStatusFromActive transitions a reservation out of either active status.
// Same no-op semantics as SetStatus when the record is already terminal.
func (l *Ledger) SetStatusFromActive(ctx context.Context, id ReservationID, to ReservationStatus) (Reservation, bool, error) {
	return l.swapStatus(ctx, id, []ReservationStatus{ReservationPending, ReservationConfirmed}, to)
}

func (l *Ledger) swapStatus(ctx context.Context, id ReservationID, fromExpected []ReservationStatus, to ReservationStatus) (Reservation, bool, error) {
	expected := make([]string, 0, len(fromExpected))
	for _, status := range fromExpected {
		expected = append(expected, string(status))
	}

	result := l.db.WithContext(ctx).Model(&Reservation{}).
		Where("id = ? AND status IN ?", id.String(), expected).
		Updates(map[string]any{
			"status":       string(to),
			"updated_at_s": l.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return Reservation{}, false, newServiceError(KindInternal, opLedgerStatus, "update_failed", result.Error)
	}

	record, err := l.Get(ctx, id)
	if err != nil {
		return Reservation{}, false, err
	}
	return record, result.RowsAffected > 0, nil
}

// CountActiveForRequester counts a requester's active reservations created at
// or after the given instant.
func (l *Ledger) CountActiveForRequester(ctx context.Context, requesterID RequesterID, since time.Time) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&Reservation{}).
		Where("requester_id = ? AND status IN ? AND created_at_s >= ?",
			requesterID.String(), activeStatuses(), since.UTC().Unix()).
		Count(&count).Error
	if err != nil {
		return 0, newServiceError(KindInternal, opLedgerCount, "query_failed", err)
	}
	return count, nil
}

// FindActiveForTable returns a table's active reservations.
func (l *Ledger) FindActiveForTable(ctx context.Context, tableID TableID) ([]Reservation, error) {
	var records []Reservation
	err := l.db.WithContext(ctx).
		Where("table_id = ? AND status IN ?", tableID.String(), activeStatuses()).
		Order("slot_date ASC, slot_time ASC").
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opLedgerFind, "query_failed", err)
	}
	return records, nil
}

// FindActive returns every active reservation. The sweeper walks this set
// once per cycle.
func (l *Ledger) FindActive(ctx context.Context) ([]Reservation, error) {
	var records []Reservation
	err := l.db.WithContext(ctx).
		Where("status IN ?", activeStatuses()).
		Order("slot_date ASC, slot_time ASC").
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opLedgerFind, "query_failed", err)
	}
	return records, nil
}

// FindOverduePending returns pending reservations whose persisted
// auto-confirmation deadline has passed. This is the durable complement to
// the in-process approval timers: it survives a restart.
func (l *Ledger) FindOverduePending(ctx context.Context, now time.Time) ([]Reservation, error) {
	var records []Reservation
	err := l.db.WithContext(ctx).
		Where("status = ? AND due_at_s > 0 AND due_at_s <= ?",
			string(ReservationPending), now.UTC().Unix()).
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opLedgerOverdue, "query_failed", err)
	}
	return records, nil
}

// FindPendingWithDeadline returns every pending reservation carrying a
// persisted deadline, due or not. Used to re-arm timers after a restart.
func (l *Ledger) FindPendingWithDeadline(ctx context.Context) ([]Reservation, error) {
	var records []Reservation
	err := l.db.WithContext(ctx).
		Where("status = ? AND due_at_s > 0", string(ReservationPending)).
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opLedgerOverdue, "query_failed", err)
	}
	return records, nil
}

// ListForRequester returns a requester's reservations, newest first, with
// hidden records filtered out.
func (l *Ledger) ListForRequester(ctx context.Context, requesterID RequesterID) ([]Reservation, error) {
	var records []Reservation
	err := l.db.WithContext(ctx).
		Where("requester_id = ? AND hidden = ?", requesterID.String(), false).
		Order("created_at_s DESC").
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opLedgerList, "query_failed", err)
	}
	return records, nil
}

// Hide marks a reservation hidden from its requester's listing. The record
// itself is never deleted.
func (l *Ledger) Hide(ctx context.Context, id ReservationID) error {
	result := l.db.WithContext(ctx).Model(&Reservation{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"hidden":       true,
			"updated_at_s": l.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return newServiceError(KindInternal, opLedgerHide, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(KindNotFound, opLedgerHide, "reservation_not_found", gorm.ErrRecordNotFound)
	}
	return nil
}

func activeStatuses() []string {
	return []string{string(ReservationPending), string(ReservationConfirmed)}
}
