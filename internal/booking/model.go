package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TableStatus enumerates the occupancy states of a table.
type TableStatus string

const (
	// TableAvailable means at least one slot is still bookable.
	TableAvailable TableStatus = "available"
	// TableReserved means every slot of the table's availability is claimed.
	TableReserved TableStatus = "reserved"
	// TableMaintenance is an admin-set sticky status; derivation never overrides it.
	TableMaintenance TableStatus = "maintenance"
	// TableExpired is a sweeper-set sticky status for tables whose availability has fully passed.
	TableExpired TableStatus = "expired"
)

// ReservationStatus enumerates the lifecycle states of a reservation.
type ReservationStatus string

const (
	// ReservationPending is the initial state of a claimed slot.
	ReservationPending ReservationStatus = "pending"
	// ReservationConfirmed is reached by auto-approval or an explicit confirm.
	ReservationConfirmed ReservationStatus = "confirmed"
	// ReservationCancelled is a terminal state set by the requester.
	ReservationCancelled ReservationStatus = "cancelled"
	// ReservationExpired is a terminal state set by the expiration sweeper.
	ReservationExpired ReservationStatus = "expired"
)

// IsActive reports whether the status still occupies its slot.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

const maxIdentifierLength = 190

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	// ErrInvalidTableID indicates that a table identifier is empty or exceeds storage bounds.
	ErrInvalidTableID = errors.New("booking: invalid table id")
	// ErrInvalidReservationID indicates that a reservation identifier is empty or exceeds storage bounds.
	ErrInvalidReservationID = errors.New("booking: invalid reservation id")
	// ErrInvalidRequesterID indicates that a requester identifier is empty or exceeds storage bounds.
	ErrInvalidRequesterID = errors.New("booking: invalid requester id")
	// ErrInvalidDate indicates that a calendar date is not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("booking: invalid date")
	// ErrInvalidTime indicates that a time of day is not in HH:MM form.
	ErrInvalidTime = errors.New("booking: invalid time")
	// ErrInvalidTableName indicates that a table name is empty or exceeds storage bounds.
	ErrInvalidTableName = errors.New("booking: invalid table name")
	// ErrInvalidCapacity indicates a non-positive table capacity.
	ErrInvalidCapacity = errors.New("booking: invalid capacity")
)

// TableID represents a validated table identifier.
type TableID string

// NewTableID validates raw input and returns a TableID.
func NewTableID(rawInput string) (TableID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTableID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTableID, maxIdentifierLength)
	}
	return TableID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TableID) String() string {
	return string(id)
}

// ReservationID represents a validated reservation identifier.
type ReservationID string

// NewReservationID validates raw input and returns a ReservationID.
func NewReservationID(rawInput string) (ReservationID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReservationID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidReservationID, maxIdentifierLength)
	}
	return ReservationID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ReservationID) String() string {
	return string(id)
}

// RequesterID represents a validated requester identifier. The core treats it
// as opaque; authentication happens outside this module.
type RequesterID string

// NewRequesterID validates raw input and returns a RequesterID.
func NewRequesterID(rawInput string) (RequesterID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRequesterID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRequesterID, maxIdentifierLength)
	}
	return RequesterID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RequesterID) String() string {
	return string(id)
}

// SlotDate represents a validated calendar date in YYYY-MM-DD form.
type SlotDate string

// NewSlotDate validates raw input and returns a SlotDate.
func NewSlotDate(rawInput string) (SlotDate, error) {
	trimmed := strings.TrimSpace(rawInput)
	if _, err := time.Parse(dateLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	return SlotDate(trimmed), nil
}

// String returns the date in YYYY-MM-DD form.
func (d SlotDate) String() string {
	return string(d)
}

// Before reports whether the date is strictly earlier than the reference day.
// Zero-padded ISO dates compare correctly as strings.
func (d SlotDate) Before(reference SlotDate) bool {
	return string(d) < string(reference)
}

// ClockTime represents a validated time of day in HH:MM form.
type ClockTime string

// NewClockTime validates raw input and returns a ClockTime.
func NewClockTime(rawInput string) (ClockTime, error) {
	trimmed := strings.TrimSpace(rawInput)
	if _, err := time.Parse(timeLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, rawInput)
	}
	return ClockTime(trimmed), nil
}

// String returns the time in HH:MM form.
func (t ClockTime) String() string {
	return string(t)
}

// Before reports whether the time of day is strictly earlier than other.
// Zero-padded HH:MM values compare correctly as strings.
func (t ClockTime) Before(other ClockTime) bool {
	return string(t) < string(other)
}

// DateAtTime combines a slot date and a time of day into an instant in UTC.
func DateAtTime(date SlotDate, clock ClockTime) time.Time {
	combined, _ := time.Parse(dateLayout+" "+timeLayout, date.String()+" "+clock.String())
	return combined
}

// DateOf converts an instant into the SlotDate of its UTC calendar day.
func DateOf(instant time.Time) SlotDate {
	return SlotDate(instant.UTC().Format(dateLayout))
}

// TimeOf converts an instant into the ClockTime of its UTC wall clock.
func TimeOf(instant time.Time) ClockTime {
	return ClockTime(instant.UTC().Format(timeLayout))
}

// TimeRange is a half-open bookable range within a block. Start is the
// bookable slot; End bounds the seating window.
type TimeRange struct {
	Start ClockTime
	End   ClockTime
}

// Overlaps reports whether two half-open ranges intersect.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// BlockInput describes one date's worth of bookable ranges as supplied by the
// availability administrator.
type BlockInput struct {
	Date  SlotDate
	Times []TimeRange
}

// Block is a stored availability block: a date plus its ordered ranges.
type Block struct {
	TableID TableID
	Date    SlotDate
	Times   []TimeRange
}

// Table models the persisted table record.
type Table struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_tables_name"`
	Capacity         int    `gorm:"column:capacity;not null"`
	Status           string `gorm:"column:status;size:32;not null;default:'available'"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Table) TableName() string {
	return "tables"
}

// AvailabilityRange is one stored time range of an availability block. The
// rows sharing (table_id, block_date) form the block, ordered by position.
type AvailabilityRange struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	TableID   string `gorm:"column:table_id;size:190;not null;index:idx_ranges_table_date,priority:1"`
	BlockDate string `gorm:"column:block_date;size:10;not null;index:idx_ranges_table_date,priority:2"`
	StartTime string `gorm:"column:start_time;size:5;not null"`
	EndTime   string `gorm:"column:end_time;size:5;not null"`
	Position  int    `gorm:"column:position;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AvailabilityRange) TableName() string {
	return "availability_ranges"
}

// Reservation models the persisted reservation record. The partial unique
// index idx_reservations_active_slot (see internal/database) guarantees that
// at most one active reservation exists per (table_id, slot_date, slot_time).
type Reservation struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	TableID          string `gorm:"column:table_id;size:190;not null;index:idx_reservations_table"`
	RequesterID      string `gorm:"column:requester_id;size:190;not null;index:idx_reservations_requester"`
	SlotDate         string `gorm:"column:slot_date;size:10;not null"`
	SlotTime         string `gorm:"column:slot_time;size:5;not null"`
	Status           string `gorm:"column:status;size:32;not null"`
	Hidden           bool   `gorm:"column:hidden;not null;default:false"`
	Details          string `gorm:"column:details;type:text;not null;default:''"`
	DueAtSeconds     int64  `gorm:"column:due_at_s;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reservation) TableName() string {
	return "reservations"
}

// Settings is the single authoritative operating configuration. Exactly one
// row exists (id = settingsRowID); writes replace it transactionally so the
// latest write always wins without scanning history.
type Settings struct {
	ID                   int64  `gorm:"column:id;primaryKey"`
	OpeningTime          string `gorm:"column:opening_time;size:5;not null"`
	ClosingTime          string `gorm:"column:closing_time;size:5;not null"`
	HoursEnabled         bool   `gorm:"column:hours_enabled;not null"`
	ConfirmationDelayMin int    `gorm:"column:confirmation_delay_min;not null"`
	DelayEnabled         bool   `gorm:"column:delay_enabled;not null"`
	QuotaCount           int    `gorm:"column:quota_count;not null"`
	QuotaWindowHours     int    `gorm:"column:quota_window_hours;not null"`
	QuotaEnabled         bool   `gorm:"column:quota_enabled;not null"`
	Version              int64  `gorm:"column:version;not null;default:1"`
	UpdatedAtSeconds     int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Settings) TableName() string {
	return "settings"
}
