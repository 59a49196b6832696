package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errTableUnbookable   = errors.New("table is not bookable")
	errSlotOutsideBlock  = errors.New("slot is not in the table's availability")
	errOutsideHours      = errors.New("slot is outside operating hours")
	errNotOwner          = errors.New("reservation belongs to another requester")
	errAlreadyConfirmed  = errors.New("already confirmed")
	errNotPending        = errors.New("reservation is not pending")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "booking.service.new"
	opBook            = "booking.book"
	opCancel          = "booking.cancel"
	opConfirm         = "booking.confirm"
	opHide            = "booking.hide"
	opAvailableSlots  = "booking.available_slots"
	opSetAvailability = "booking.set_availability"
	opCreateTable     = "booking.create_table"
	opListTables      = "booking.list_tables"
	opSetTableStatus  = "booking.set_table_status"
)

// ApprovalScheduler receives newly created reservations for deferred
// auto-confirmation. Implementations must be safe to call concurrently and
// must tolerate duplicate hand-offs for the same reservation.
type ApprovalScheduler interface {
	Schedule(reservationID ReservationID)
}

// ServiceConfig describes the dependencies of the booking service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Approvals  ApprovalScheduler
	Logger     *zap.Logger
}

// Service orchestrates the booking workflow over the catalog, ledger,
// settings store, quota guard, and status deriver.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	approvals  ApprovalScheduler
	logger     *zap.Logger

	catalog  *Catalog
	ledger   *Ledger
	settings *SettingsStore
	quota    *QuotaGuard
	deriver  *StatusDeriver
}

// NewService validates the configuration and constructs the booking service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(KindInternal, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(KindInternal, opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	catalog := NewCatalog(cfg.Database)
	ledger := NewLedger(cfg.Database, clock)

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		approvals:  cfg.Approvals,
		logger:     logger,
		catalog:    catalog,
		ledger:     ledger,
		settings:   NewSettingsStore(cfg.Database, clock),
		quota:      NewQuotaGuard(ledger, clock),
		deriver:    NewStatusDeriver(cfg.Database, catalog, ledger, clock, logger),
	}, nil
}

// SetApprovals installs the approval scheduler after construction. The
// scheduler itself needs the ledger and deriver, so wiring is two-phase.
func (s *Service) SetApprovals(approvals ApprovalScheduler) {
	s.approvals = approvals
}

// Ledger exposes the reservation authority for the background schedulers.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Catalog exposes availability storage for the background schedulers.
func (s *Service) Catalog() *Catalog { return s.catalog }

// SettingsStore exposes the operating-settings provider.
func (s *Service) SettingsStore() *SettingsStore { return s.settings }

// Deriver exposes the status deriver for the background schedulers.
func (s *Service) Deriver() *StatusDeriver { return s.deriver }

// BookRequest carries the parameters of a booking call.
type BookRequest struct {
	TableID     TableID
	Date        SlotDate
	Time        ClockTime
	RequesterID RequesterID
	Details     string
}

// Book claims a slot for the requester. Conflicts are terminal for the
// caller; there are no retries at this layer.
func (s *Service) Book(ctx context.Context, request BookRequest) (Reservation, error) {
	table, err := s.getTable(ctx, opBook, request.TableID)
	if err != nil {
		return Reservation{}, err
	}
	if table.Status == string(TableMaintenance) || table.Status == string(TableExpired) {
		return Reservation{}, newServiceError(KindConflict, opBook, "table_unbookable",
			fmt.Errorf("%w: status %s", errTableUnbookable, table.Status))
	}

	block, found, err := s.catalog.FindBlock(ctx, request.TableID, request.Date)
	if err != nil {
		return Reservation{}, err
	}
	if !found || !SlotInBlock(block, request.Time) {
		return Reservation{}, newServiceError(KindValidation, opBook, "slot_unavailable",
			fmt.Errorf("%w: %s %s", errSlotOutsideBlock, request.Date, request.Time))
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return Reservation{}, err
	}
	if settings.HoursEnabled {
		opening := ClockTime(settings.OpeningTime)
		closing := ClockTime(settings.ClosingTime)
		if request.Time.Before(opening) || closing.Before(request.Time) {
			return Reservation{}, newServiceError(KindValidation, opBook, "outside_hours",
				fmt.Errorf("%w: %s not within %s-%s", errOutsideHours, request.Time, opening, closing))
		}
	}

	if err := s.quota.Check(ctx, request.RequesterID, settings); err != nil {
		return Reservation{}, err
	}

	rawID, err := s.idProvider.NewID()
	if err != nil {
		return Reservation{}, newServiceError(KindInternal, opBook, "id_generation_failed", err)
	}

	claim := SlotClaim{
		ReservationID: ReservationID(rawID),
		TableID:       request.TableID,
		RequesterID:   request.RequesterID,
		Date:          request.Date,
		Time:          request.Time,
		Details:       request.Details,
	}
	if settings.DelayEnabled {
		claim.DueAt = s.clock().UTC().Add(time.Duration(settings.ConfirmationDelayMin) * time.Minute)
	}

	reservation, err := s.ledger.ClaimSlot(ctx, claim)
	if err != nil {
		return Reservation{}, err
	}

	if s.approvals != nil {
		s.approvals.Schedule(ReservationID(reservation.ID))
	}
	s.recomputeStatus(ctx, opBook, request.TableID)

	s.logger.Info("slot booked",
		zap.String("reservation_id", reservation.ID),
		zap.String("table_id", reservation.TableID),
		zap.String("slot", reservation.SlotDate+" "+reservation.SlotTime))
	return reservation, nil
}

// Cancel transitions a requester's reservation to cancelled. Cancelling an
// already terminal reservation is a no-op returning the current record. The
// in-flight auto-approval timer is left alone; its guarded CAS makes the
// late callback harmless.
func (s *Service) Cancel(ctx context.Context, id ReservationID, requesterID RequesterID) (Reservation, error) {
	reservation, err := s.ledger.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.RequesterID != requesterID.String() {
		return Reservation{}, newServiceError(KindForbidden, opCancel, "not_owner", errNotOwner)
	}

	updated, changed, err := s.ledger.SetStatusFromActive(ctx, id, ReservationCancelled)
	if err != nil {
		return Reservation{}, err
	}
	if changed {
		s.recomputeStatus(ctx, opCancel, TableID(updated.TableID))
		s.logger.Info("reservation cancelled", zap.String("reservation_id", updated.ID))
	}
	return updated, nil
}

// Confirm explicitly transitions a pending reservation to confirmed.
func (s *Service) Confirm(ctx context.Context, id ReservationID) (Reservation, error) {
	updated, changed, err := s.ledger.SetStatus(ctx, id, ReservationPending, ReservationConfirmed)
	if err != nil {
		return Reservation{}, err
	}
	if !changed {
		if updated.Status == string(ReservationConfirmed) {
			return Reservation{}, newServiceError(KindConflict, opConfirm, "already_confirmed", errAlreadyConfirmed)
		}
		return Reservation{}, newServiceError(KindConflict, opConfirm, "not_pending",
			fmt.Errorf("%w: status %s", errNotPending, updated.Status))
	}
	s.recomputeStatus(ctx, opConfirm, TableID(updated.TableID))
	s.logger.Info("reservation confirmed", zap.String("reservation_id", updated.ID))
	return updated, nil
}

// Hide removes a reservation from the requester's listing without deleting
// the record.
func (s *Service) Hide(ctx context.Context, id ReservationID, requesterID RequesterID) error {
	reservation, err := s.ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if reservation.RequesterID != requesterID.String() {
		return newServiceError(KindForbidden, opHide, "not_owner", errNotOwner)
	}
	return s.ledger.Hide(ctx, id)
}

// ListForRequester returns a requester's visible reservations.
func (s *Service) ListForRequester(ctx context.Context, requesterID RequesterID) ([]Reservation, error) {
	return s.ledger.ListForRequester(ctx, requesterID)
}

// AvailableSlots returns the bookable slot starts of a table on a date:
// the block's range starts minus the starts held by active reservations.
func (s *Service) AvailableSlots(ctx context.Context, tableID TableID, date SlotDate) ([]ClockTime, error) {
	if _, err := s.getTable(ctx, opAvailableSlots, tableID); err != nil {
		return nil, err
	}

	block, found, err := s.catalog.FindBlock(ctx, tableID, date)
	if err != nil {
		return nil, err
	}
	if !found {
		return []ClockTime{}, nil
	}

	reservations, err := s.ledger.FindActiveForTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{})
	for _, reservation := range reservations {
		if reservation.SlotDate == date.String() {
			taken[reservation.SlotTime] = struct{}{}
		}
	}

	slots := make([]ClockTime, 0, len(block.Times))
	for _, timeRange := range block.Times {
		if _, held := taken[timeRange.Start.String()]; !held {
			slots = append(slots, timeRange.Start)
		}
	}
	return slots, nil
}

// SetAvailability validates and stores a table's availability blocks, then
// recomputes occupancy. Existing reservations are never retroactively
// invalidated by an availability edit.
func (s *Service) SetAvailability(ctx context.Context, tableID TableID, blocks []BlockInput) error {
	if _, err := s.getTable(ctx, opSetAvailability, tableID); err != nil {
		return err
	}
	if err := s.catalog.SetAvailability(ctx, tableID, blocks); err != nil {
		return err
	}
	s.recomputeStatus(ctx, opSetAvailability, tableID)
	return nil
}

// CreateTableInput carries the parameters of table creation.
type CreateTableInput struct {
	Name     string
	Capacity int
}

// CreateTable registers a new table with a unique name.
func (s *Service) CreateTable(ctx context.Context, input CreateTableInput) (Table, error) {
	name := input.Name
	if name == "" || len(name) > maxIdentifierLength {
		return Table{}, newServiceError(KindValidation, opCreateTable, "invalid_name", ErrInvalidTableName)
	}
	if input.Capacity <= 0 {
		return Table{}, newServiceError(KindValidation, opCreateTable, "invalid_capacity", ErrInvalidCapacity)
	}

	rawID, err := s.idProvider.NewID()
	if err != nil {
		return Table{}, newServiceError(KindInternal, opCreateTable, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	record := Table{
		ID:               rawID,
		Name:             name,
		Capacity:         input.Capacity,
		Status:           string(TableAvailable),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return Table{}, newServiceError(KindConflict, opCreateTable, "name_taken",
				fmt.Errorf("table name %q already exists", name))
		}
		return Table{}, newServiceError(KindInternal, opCreateTable, "insert_failed", err)
	}
	return record, nil
}

// ListTables returns every table, oldest first.
func (s *Service) ListTables(ctx context.Context) ([]Table, error) {
	var records []Table
	err := s.db.WithContext(ctx).Order("created_at_s ASC").Find(&records).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opListTables, "query_failed", err)
	}
	return records, nil
}

// SetTableStatus applies an admin status change. Only maintenance may be set
// directly; clearing to available hands the table back to the deriver, which
// immediately recomputes the real occupancy.
func (s *Service) SetTableStatus(ctx context.Context, tableID TableID, status TableStatus) (Table, error) {
	if status != TableMaintenance && status != TableAvailable {
		return Table{}, newServiceError(KindValidation, opSetTableStatus, "status_not_settable",
			fmt.Errorf("status %q is derived, not settable", status))
	}
	if _, err := s.getTable(ctx, opSetTableStatus, tableID); err != nil {
		return Table{}, err
	}

	err := s.db.WithContext(ctx).Model(&Table{}).
		Where("id = ?", tableID.String()).
		Updates(map[string]any{
			"status":       string(status),
			"updated_at_s": s.clock().UTC().Unix(),
		}).Error
	if err != nil {
		return Table{}, newServiceError(KindInternal, opSetTableStatus, "update_failed", err)
	}

	if status == TableAvailable {
		s.recomputeStatus(ctx, opSetTableStatus, tableID)
	}
	return s.getTable(ctx, opSetTableStatus, tableID)
}

// ExpireTable marks a table expired. This is the sweeper's transition for
// tables whose availability has fully passed; expired is sticky and the
// deriver never overrides it.
func (s *Service) ExpireTable(ctx context.Context, tableID TableID) error {
	result := s.db.WithContext(ctx).Model(&Table{}).
		Where("id = ? AND status <> ?", tableID.String(), string(TableExpired)).
		Updates(map[string]any{
			"status":       string(TableExpired),
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return newServiceError(KindInternal, opSetTableStatus, "update_failed", result.Error)
	}
	return nil
}

// GetSettings returns the current operating settings.
func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	return s.settings.Load(ctx)
}

// UpdateSettings replaces the operating settings; the new values apply to
// subsequent bookings only.
func (s *Service) UpdateSettings(ctx context.Context, input SettingsInput) (Settings, error) {
	return s.settings.Save(ctx, input)
}

func (s *Service) getTable(ctx context.Context, operation string, tableID TableID) (Table, error) {
	var table Table
	err := s.db.WithContext(ctx).Where("id = ?", tableID.String()).Take(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Table{}, newServiceError(KindNotFound, operation, "table_not_found", err)
	}
	if err != nil {
		return Table{}, newServiceError(KindInternal, operation, "table_load_failed", err)
	}
	return table, nil
}

// recomputeStatus is best-effort: a reservation write and its table's status
// are two separate operations, and a lagging status self-corrects on the
// next trigger.
func (s *Service) recomputeStatus(ctx context.Context, operation string, tableID TableID) {
	if err := s.deriver.Recompute(ctx, tableID); err != nil {
		s.logger.Warn("status recompute failed",
			zap.String("operation", operation),
			zap.String("table_id", tableID.String()),
			zap.Error(err))
	}
}
