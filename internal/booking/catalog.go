package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

const (
	opCatalogSet    = "booking.catalog.set_availability"
	opCatalogFind   = "booking.catalog.find_block"
	opCatalogList   = "booking.catalog.list_blocks"
	opCatalogPrune  = "booking.catalog.prune"
	opCatalogClear  = "booking.catalog.clear"
	opCatalogTables = "booking.catalog.list_tables"
)

var (
	errEmptyBlockList = errors.New("availability requires at least one block")
	errEmptyRangeList = errors.New("block requires at least one time range")
	errRangeInverted  = errors.New("range start must precede range end")
)

// Catalog owns each table's availability blocks. It validates and stores
// blocks; it never mutates reservations or table status.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog binds a Catalog to the given database handle.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// SetAvailability validates and replaces the full availability of a table.
// It rejects empty block lists, empty range lists, inverted ranges, and any
// pair of overlapping ranges within the same block, naming the offending pair.
func (c *Catalog) SetAvailability(ctx context.Context, tableID TableID, blocks []BlockInput) error {
	if err := ValidateBlocks(blocks); err != nil {
		return err
	}

	rows := make([]AvailabilityRange, 0, len(blocks))
	for _, block := range blocks {
		for position, timeRange := range block.Times {
			rows = append(rows, AvailabilityRange{
				TableID:   tableID.String(),
				BlockDate: block.Date.String(),
				StartTime: timeRange.Start.String(),
				EndTime:   timeRange.End.String(),
				Position:  position,
			})
		}
	}

	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ?", tableID.String()).Delete(&AvailabilityRange{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if txErr != nil {
		return newServiceError(KindInternal, opCatalogSet, "store_failed", txErr)
	}
	return nil
}

// ValidateBlocks checks block shape without touching storage.
func ValidateBlocks(blocks []BlockInput) error {
	if len(blocks) == 0 {
		return newServiceError(KindValidation, opCatalogSet, "empty_blocks", errEmptyBlockList)
	}
	for _, block := range blocks {
		if len(block.Times) == 0 {
			return newServiceError(KindValidation, opCatalogSet, "empty_ranges",
				fmt.Errorf("%w: date %s", errEmptyRangeList, block.Date))
		}
		for _, timeRange := range block.Times {
			if !timeRange.Start.Before(timeRange.End) {
				return newServiceError(KindValidation, opCatalogSet, "inverted_range",
					fmt.Errorf("%w: %s-%s on %s", errRangeInverted, timeRange.Start, timeRange.End, block.Date))
			}
		}
		for firstIndex := 0; firstIndex < len(block.Times); firstIndex++ {
			for secondIndex := firstIndex + 1; secondIndex < len(block.Times); secondIndex++ {
				first := block.Times[firstIndex]
				second := block.Times[secondIndex]
				if first.Overlaps(second) {
					return newServiceError(KindValidation, opCatalogSet, "overlapping_ranges",
						fmt.Errorf("ranges %s-%s and %s-%s overlap on %s",
							first.Start, first.End, second.Start, second.End, block.Date))
				}
			}
		}
	}
	return nil
}

// FindBlock returns the availability block of a table for a date, or false
// when the table has no ranges on that date.
func (c *Catalog) FindBlock(ctx context.Context, tableID TableID, date SlotDate) (Block, bool, error) {
	var rows []AvailabilityRange
	err := c.db.WithContext(ctx).
		Where("table_id = ? AND block_date = ?", tableID.String(), date.String()).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return Block{}, false, newServiceError(KindInternal, opCatalogFind, "query_failed", err)
	}
	if len(rows) == 0 {
		return Block{}, false, nil
	}
	return blockFromRows(tableID, date, rows), true, nil
}

// SlotInBlock reports whether a time of day is the start of one of the
// block's ranges.
func SlotInBlock(block Block, slotTime ClockTime) bool {
	for _, timeRange := range block.Times {
		if timeRange.Start == slotTime {
			return true
		}
	}
	return false
}

// ListBlocks returns every availability block of a table, ordered by date.
func (c *Catalog) ListBlocks(ctx context.Context, tableID TableID) ([]Block, error) {
	var rows []AvailabilityRange
	err := c.db.WithContext(ctx).
		Where("table_id = ?", tableID.String()).
		Order("block_date ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, newServiceError(KindInternal, opCatalogList, "query_failed", err)
	}

	grouped := make(map[string][]AvailabilityRange)
	dates := make([]string, 0)
	for _, row := range rows {
		if _, seen := grouped[row.BlockDate]; !seen {
			dates = append(dates, row.BlockDate)
		}
		grouped[row.BlockDate] = append(grouped[row.BlockDate], row)
	}
	sort.Strings(dates)

	blocks := make([]Block, 0, len(dates))
	for _, date := range dates {
		blocks = append(blocks, blockFromRows(tableID, SlotDate(date), grouped[date]))
	}
	return blocks, nil
}

// PruneBlock replaces the stored ranges of one block, or deletes the block
// entirely when keep is empty. Used by the sweeper to drop passed ranges.
func (c *Catalog) PruneBlock(ctx context.Context, tableID TableID, date SlotDate, keep []TimeRange) error {
	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ? AND block_date = ?", tableID.String(), date.String()).
			Delete(&AvailabilityRange{}).Error; err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		rows := make([]AvailabilityRange, 0, len(keep))
		for position, timeRange := range keep {
			rows = append(rows, AvailabilityRange{
				TableID:   tableID.String(),
				BlockDate: date.String(),
				StartTime: timeRange.Start.String(),
				EndTime:   timeRange.End.String(),
				Position:  position,
			})
		}
		return tx.Create(&rows).Error
	})
	if txErr != nil {
		return newServiceError(KindInternal, opCatalogPrune, "store_failed", txErr)
	}
	return nil
}

// ClearAvailability removes every block of a table. Used by the sweeper when
// a table's availability has fully passed.
func (c *Catalog) ClearAvailability(ctx context.Context, tableID TableID) error {
	err := c.db.WithContext(ctx).
		Where("table_id = ?", tableID.String()).
		Delete(&AvailabilityRange{}).Error
	if err != nil {
		return newServiceError(KindInternal, opCatalogClear, "store_failed", err)
	}
	return nil
}

func blockFromRows(tableID TableID, date SlotDate, rows []AvailabilityRange) Block {
	times := make([]TimeRange, 0, len(rows))
	for _, row := range rows {
		times = append(times, TimeRange{Start: ClockTime(row.StartTime), End: ClockTime(row.EndTime)})
	}
	return Block{TableID: tableID, Date: date, Times: times}
}
