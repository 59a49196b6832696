package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/booking"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/metrics"
	"go.uber.org/zap"
)

// SweeperConfig describes the dependencies of the expiration sweeper.
type SweeperConfig struct {
	Booking  *booking.Service
	Interval time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Sweeper periodically retires reservations and availability whose wall-clock
// window has passed, and promotes pending reservations whose persisted
// auto-confirmation deadline was missed. Every transition is a guarded
// compare-and-swap, so a sweep is idempotent by construction.
type Sweeper struct {
	service  *booking.Service
	interval time.Duration
	clock    func() time.Time
	logger   *zap.Logger

	// runMu enforces single-flight cycles: a tick that arrives while a
	// sweep is still running is skipped, not queued.
	runMu    sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper validates the configuration and constructs the sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Booking == nil {
		return nil, errors.New("scheduling: booking service is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("scheduling: sweep interval must be positive")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		service:  cfg.Booking,
		interval: cfg.Interval,
		clock:    clock,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for an in-flight cycle to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// RunOnce executes one sweep cycle. It returns false when another cycle is
// still running. Per-item failures are logged and do not abort the cycle.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	if !s.runMu.TryLock() {
		s.logger.Debug("sweep skipped, previous cycle still running")
		return false
	}
	defer s.runMu.Unlock()

	started := s.clock()
	now := started.UTC()

	touched := make(map[string]struct{})
	s.expirePassedReservations(ctx, now, touched)
	s.retireAvailability(ctx, now, touched)
	s.promoteOverduePending(ctx, now, touched)

	for tableID := range touched {
		if err := s.service.Deriver().Recompute(ctx, booking.TableID(tableID)); err != nil {
			s.logger.Warn("sweep status recompute failed",
				zap.String("table_id", tableID), zap.Error(err))
		}
	}

	metrics.SweepDuration.Observe(s.clock().Sub(started).Seconds())
	return true
}

// expirePassedReservations expires every active reservation whose slot end
// has passed. The end time comes from the matching availability range; a
// reservation stranded by an availability edit ages out by its date alone.
func (s *Sweeper) expirePassedReservations(ctx context.Context, now time.Time, touched map[string]struct{}) {
	active, err := s.service.Ledger().FindActive(ctx)
	if err != nil {
		s.logger.Error("sweep failed to list active reservations", zap.Error(err))
		return
	}

	today := booking.DateOf(now)
	for _, reservation := range active {
		tableID := booking.TableID(reservation.TableID)
		slotDate := booking.SlotDate(reservation.SlotDate)

		passed := false
		block, found, err := s.service.Catalog().FindBlock(ctx, tableID, slotDate)
		if err != nil {
			s.logger.Error("sweep failed to load block",
				zap.String("reservation_id", reservation.ID), zap.Error(err))
			continue
		}
		if found {
			if end, ok := rangeEndFor(block, booking.ClockTime(reservation.SlotTime)); ok {
				passed = !booking.DateAtTime(slotDate, end).After(now)
			} else {
				passed = slotDate.Before(today)
			}
		} else {
			passed = slotDate.Before(today)
		}
		if !passed {
			continue
		}

		_, changed, err := s.service.Ledger().SetStatusFromActive(ctx, booking.ReservationID(reservation.ID), booking.ReservationExpired)
		if err != nil {
			s.logger.Error("sweep failed to expire reservation",
				zap.String("reservation_id", reservation.ID), zap.Error(err))
			continue
		}
		if changed {
			metrics.ReservationsExpired.Inc()
			touched[reservation.TableID] = struct{}{}
			s.logger.Info("reservation expired",
				zap.String("reservation_id", reservation.ID),
				zap.String("slot", reservation.SlotDate+" "+reservation.SlotTime))
		}
	}
}

// retireAvailability expires tables whose availability has fully passed,
// cascading expiry to their active reservations, and prunes passed blocks
// and ranges from the rest.
func (s *Sweeper) retireAvailability(ctx context.Context, now time.Time, touched map[string]struct{}) {
	tables, err := s.service.ListTables(ctx)
	if err != nil {
		s.logger.Error("sweep failed to list tables", zap.Error(err))
		return
	}

	today := booking.DateOf(now)
	nowTime := booking.TimeOf(now)

	for _, table := range tables {
		if table.Status == string(booking.TableExpired) {
			continue
		}
		tableID := booking.TableID(table.ID)

		blocks, err := s.service.Catalog().ListBlocks(ctx, tableID)
		if err != nil {
			s.logger.Error("sweep failed to list blocks",
				zap.String("table_id", table.ID), zap.Error(err))
			continue
		}
		if len(blocks) == 0 {
			continue
		}

		if availabilityFullyPassed(blocks, today, nowTime) {
			if err := s.expireTable(ctx, tableID); err != nil {
				s.logger.Error("sweep failed to expire table",
					zap.String("table_id", table.ID), zap.Error(err))
			}
			continue
		}

		for _, block := range blocks {
			keep, pruned := prunedRanges(block, today, nowTime)
			if !pruned {
				continue
			}
			if err := s.service.Catalog().PruneBlock(ctx, tableID, block.Date, keep); err != nil {
				s.logger.Error("sweep failed to prune block",
					zap.String("table_id", table.ID),
					zap.String("date", block.Date.String()),
					zap.Error(err))
				continue
			}
			touched[table.ID] = struct{}{}
		}
	}
}

func (s *Sweeper) expireTable(ctx context.Context, tableID booking.TableID) error {
	if err := s.service.Catalog().ClearAvailability(ctx, tableID); err != nil {
		return err
	}
	if err := s.service.ExpireTable(ctx, tableID); err != nil {
		return err
	}
	metrics.TablesExpired.Inc()
	s.logger.Info("table expired", zap.String("table_id", tableID.String()))

	active, err := s.service.Ledger().FindActiveForTable(ctx, tableID)
	if err != nil {
		return err
	}
	for _, reservation := range active {
		_, changed, err := s.service.Ledger().SetStatusFromActive(ctx, booking.ReservationID(reservation.ID), booking.ReservationExpired)
		if err != nil {
			s.logger.Error("sweep failed to cascade expiry",
				zap.String("reservation_id", reservation.ID), zap.Error(err))
			continue
		}
		if changed {
			metrics.ReservationsExpired.Inc()
		}
	}
	return nil
}

// promoteOverduePending confirms pending reservations whose persisted
// deadline passed without the in-process timer firing, e.g. across a
// restart. The guarded swap keeps this safe alongside live timers.
func (s *Sweeper) promoteOverduePending(ctx context.Context, now time.Time, touched map[string]struct{}) {
	overdue, err := s.service.Ledger().FindOverduePending(ctx, now)
	if err != nil {
		s.logger.Error("sweep failed to list overdue pending reservations", zap.Error(err))
		return
	}

	for _, reservation := range overdue {
		updated, changed, err := s.service.Ledger().SetStatus(ctx, booking.ReservationID(reservation.ID), booking.ReservationPending, booking.ReservationConfirmed)
		if err != nil {
			s.logger.Error("sweep failed to promote overdue reservation",
				zap.String("reservation_id", reservation.ID), zap.Error(err))
			continue
		}
		if changed {
			metrics.AutoConfirmations.WithLabelValues("sweep").Inc()
			touched[updated.TableID] = struct{}{}
			s.logger.Info("overdue reservation confirmed by sweep",
				zap.String("reservation_id", updated.ID))
		}
	}
}

func rangeEndFor(block booking.Block, start booking.ClockTime) (booking.ClockTime, bool) {
	for _, timeRange := range block.Times {
		if timeRange.Start == start {
			return timeRange.End, true
		}
	}
	return "", false
}

func availabilityFullyPassed(blocks []booking.Block, today booking.SlotDate, nowTime booking.ClockTime) bool {
	for _, block := range blocks {
		if today.Before(block.Date) {
			return false
		}
		if block.Date == today {
			for _, timeRange := range block.Times {
				if nowTime.Before(timeRange.End) {
					return false
				}
			}
		}
	}
	return true
}

// prunedRanges returns the ranges of a block that are still current, and
// whether anything was dropped.
func prunedRanges(block booking.Block, today booking.SlotDate, nowTime booking.ClockTime) ([]booking.TimeRange, bool) {
	if block.Date.Before(today) {
		return nil, true
	}
	if block.Date != today {
		return block.Times, false
	}
	keep := make([]booking.TimeRange, 0, len(block.Times))
	for _, timeRange := range block.Times {
		if nowTime.Before(timeRange.End) {
			keep = append(keep, timeRange)
		}
	}
	return keep, len(keep) != len(block.Times)
}
