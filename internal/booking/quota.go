package booking

import (
	"context"
	"fmt"
	"time"
)

const opQuotaCheck = "booking.quota.check"

// QuotaGuard rejects bookings once a requester's active-reservation count in
// a trailing window meets the configured ceiling.
type QuotaGuard struct {
	ledger *Ledger
	clock  func() time.Time
}

// NewQuotaGuard constructs a guard over the reservation ledger.
func NewQuotaGuard(ledger *Ledger, clock func() time.Time) *QuotaGuard {
	if clock == nil {
		clock = time.Now
	}
	return &QuotaGuard{ledger: ledger, clock: clock}
}

// Check enforces the rolling-window quota from the given settings. Disabled
// quotas always pass.
func (g *QuotaGuard) Check(ctx context.Context, requesterID RequesterID, settings Settings) error {
	if !settings.QuotaEnabled {
		return nil
	}

	since := g.clock().UTC().Add(-time.Duration(settings.QuotaWindowHours) * time.Hour)
	count, err := g.ledger.CountActiveForRequester(ctx, requesterID, since)
	if err != nil {
		return err
	}
	if count >= int64(settings.QuotaCount) {
		return newServiceError(KindQuotaExceeded, opQuotaCheck, "quota_exceeded",
			fmt.Errorf("%d active reservations in the last %dh, limit %d",
				count, settings.QuotaWindowHours, settings.QuotaCount))
	}
	return nil
}
