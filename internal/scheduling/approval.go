// Package scheduling hosts the background workers of the reservation engine:
// the auto-approval timers and the expiration sweeper. Both are explicit
// objects with start/stop lifecycles and injected dependencies.
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

// TimerFactory arms a one-shot timer and returns its cancel function. The
// default factory wraps time.AfterFunc; tests substitute a manual one.
type TimerFactory func(delay time.Duration, callback func()) (cancel func())

func defaultTimerFactory(delay time.Duration, callback func()) func() {
	timer := time.AfterFunc(delay, callback)
	return func() { timer.Stop() }
}

var errSchedulerStopped = errors.New("approval scheduler is stopped")

// ApprovalSchedulerConfig describes the dependencies of the approval timers.
type ApprovalSchedulerConfig struct {
	Booking *booking.Service
	Clock   func() time.Time
	Timers  TimerFactory
	Logger  *zap.Logger
}

// ApprovalScheduler arms one fire-and-forget timer per newly created
// reservation and promotes it from pending to confirmed when it fires. The
// callback is a guarded compare-and-swap, so duplicated or late firings are
// harmless no-ops.
type ApprovalScheduler struct {
	service *booking.Service
	clock   func() time.Time
	timers  TimerFactory
	logger  *zap.Logger

	mu       sync.Mutex
	pending  map[string]func()
	stopped  bool
	stopOnce sync.Once
}

// NewApprovalScheduler validates the configuration and constructs the scheduler.
func NewApprovalScheduler(cfg ApprovalSchedulerConfig) (*ApprovalScheduler, error) {
	if cfg.Booking == nil {
		return nil, errors.New("scheduling: booking service is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	timers := cfg.Timers
	if timers == nil {
		timers = defaultTimerFactory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalScheduler{
		service: cfg.Booking,
		clock:   clock,
		timers:  timers,
		logger:  logger,
		pending: make(map[string]func()),
	}, nil
}

// Schedule arms the auto-confirmation of a reservation. Settings are read at
// call time: a disabled delay confirms immediately through the same
// transition path as the timer.
func (s *ApprovalScheduler) Schedule(reservationID booking.ReservationID) {
	settings, err := s.service.GetSettings(context.Background())
	if err != nil {
		s.logger.Error("approval scheduling failed to read settings",
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err))
		return
	}

	if !settings.DelayEnabled {
		go s.fire(reservationID)
		return
	}

	delay := time.Duration(settings.ConfirmationDelayMin) * time.Minute
	s.arm(reservationID, delay)
}

// RearmPending re-derives timers from the persisted deadlines of pending
// reservations. Called once at startup so confirmations survive a restart.
func (s *ApprovalScheduler) RearmPending(ctx context.Context) error {
	records, err := s.service.Ledger().FindPendingWithDeadline(ctx)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	for _, record := range records {
		reservationID := booking.ReservationID(record.ID)
		delay := time.Unix(record.DueAtSeconds, 0).UTC().Sub(now)
		if delay <= 0 {
			go s.fire(reservationID)
			continue
		}
		s.arm(reservationID, delay)
	}

	if len(records) > 0 {
		s.logger.Info("re-armed pending auto-confirmations", zap.Int("count", len(records)))
	}
	return nil
}

// Stop cancels every armed timer. In-flight callbacks complete; their
// guarded transitions remain safe.
func (s *ApprovalScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
		for id, cancel := range s.pending {
			cancel()
			delete(s.pending, id)
		}
	})
}

func (s *ApprovalScheduler) arm(reservationID booking.ReservationID, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("approval scheduling skipped", zap.Error(errSchedulerStopped),
			zap.String("reservation_id", reservationID.String()))
		return
	}
	if cancel, exists := s.pending[reservationID.String()]; exists {
		cancel()
	}
	s.pending[reservationID.String()] = s.timers(delay, func() {
		s.fire(reservationID)
	})
}

func (s *ApprovalScheduler) fire(reservationID booking.ReservationID) {
	s.mu.Lock()
	delete(s.pending, reservationID.String())
	s.mu.Unlock()

	ctx := context.Background()
	updated, changed, err := s.service.Ledger().SetStatus(ctx, reservationID, booking.ReservationPending, booking.ReservationConfirmed)
	if err != nil {
		s.logger.Error("auto-confirmation failed",
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err))
		return
	}
	if !changed {
		// Already cancelled, confirmed, or expired; the timer no-ops.
		return
	}

	metrics.AutoConfirmations.WithLabelValues("timer").Inc()
	s.logger.Info("reservation auto-confirmed",
		zap.String("reservation_id", updated.ID),
		zap.String("table_id", updated.TableID))

	if err := s.service.Deriver().Recompute(ctx, booking.TableID(updated.TableID)); err != nil {
		s.logger.Warn("status recompute after auto-confirmation failed",
			zap.String("table_id", updated.TableID),
			zap.Error(err))
	}
}
