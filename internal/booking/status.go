package booking

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opStatusRecompute = "booking.status.recompute"

// StatusDeriver recomputes a table's occupancy status from its availability
// and active reservations. Sticky statuses are never overridden.
type StatusDeriver struct {
	db      *gorm.DB
	catalog *Catalog
	ledger  *Ledger
	clock   func() time.Time
	logger  *zap.Logger
}

// NewStatusDeriver constructs a deriver over the shared storage handles.
func NewStatusDeriver(db *gorm.DB, catalog *Catalog, ledger *Ledger, clock func() time.Time, logger *zap.Logger) *StatusDeriver {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusDeriver{db: db, catalog: catalog, ledger: ledger, clock: clock, logger: logger}
}

// Recompute derives and stores the occupancy status of a table. It is a
// no-op for maintenance and expired tables, and writes only when the derived
// status differs from the stored one.
func (d *StatusDeriver) Recompute(ctx context.Context, tableID TableID) error {
	var table Table
	err := d.db.WithContext(ctx).Where("id = ?", tableID.String()).Take(&table).Error
	if err != nil {
		return newServiceError(KindInternal, opStatusRecompute, "table_load_failed", err)
	}
	if table.Status == string(TableMaintenance) || table.Status == string(TableExpired) {
		return nil
	}

	blocks, err := d.catalog.ListBlocks(ctx, tableID)
	if err != nil {
		return err
	}
	reservations, err := d.ledger.FindActiveForTable(ctx, tableID)
	if err != nil {
		return err
	}

	derived := deriveStatus(blocks, reservations)
	if string(derived) == table.Status {
		return nil
	}

	updateErr := d.db.WithContext(ctx).Model(&Table{}).
		Where("id = ?", tableID.String()).
		Updates(map[string]any{
			"status":       string(derived),
			"updated_at_s": d.clock().UTC().Unix(),
		}).Error
	if updateErr != nil {
		return newServiceError(KindInternal, opStatusRecompute, "update_failed", updateErr)
	}

	d.logger.Debug("table status recomputed",
		zap.String("table_id", tableID.String()),
		zap.String("status", string(derived)))
	return nil
}

// deriveStatus counts a slot as reserved only when an active reservation's
// (date, time) still matches a stored range start, so reservations stranded
// by availability edits never pin a table reserved.
func deriveStatus(blocks []Block, reservations []Reservation) TableStatus {
	totalSlots := 0
	starts := make(map[string]struct{})
	for _, block := range blocks {
		totalSlots += len(block.Times)
		for _, timeRange := range block.Times {
			starts[block.Date.String()+" "+timeRange.Start.String()] = struct{}{}
		}
	}

	reservedSlots := 0
	for _, reservation := range reservations {
		if _, ok := starts[reservation.SlotDate+" "+reservation.SlotTime]; ok {
			reservedSlots++
		}
	}

	if totalSlots > 0 && reservedSlots == totalSlots {
		return TableReserved
	}
	return TableAvailable
}
