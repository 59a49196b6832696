package booking

import (
	"context"
	"strings"
	"testing"
)

func TestValidateBlocksRejectsOverlappingRanges(t *testing.T) {
	tests := []struct {
		name    string
		first   [2]string
		second  [2]string
		overlap bool
	}{
		{name: "contained overlap", first: [2]string{"11:00", "13:00"}, second: [2]string{"12:00", "14:00"}, overlap: true},
		{name: "identical ranges", first: [2]string{"11:00", "12:00"}, second: [2]string{"11:00", "12:00"}, overlap: true},
		{name: "adjacent ranges", first: [2]string{"11:00", "12:00"}, second: [2]string{"12:00", "13:00"}, overlap: false},
		{name: "disjoint ranges", first: [2]string{"09:00", "10:00"}, second: [2]string{"18:00", "19:00"}, overlap: false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			blocks := []BlockInput{{
				Date: mustDate(t, "2025-07-25"),
				Times: []TimeRange{
					mustRange(t, testCase.first[0], testCase.first[1]),
					mustRange(t, testCase.second[0], testCase.second[1]),
				},
			}}
			err := ValidateBlocks(blocks)
			if testCase.overlap {
				if err == nil {
					t.Fatalf("expected overlap rejection")
				}
				if kindOfError(t, err) != KindValidation {
					t.Fatalf("expected validation kind, got %v", kindOfError(t, err))
				}
				if !strings.Contains(err.Error(), "overlap") {
					t.Fatalf("expected offending pair in message, got %q", err.Error())
				}
			} else if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}

func TestValidateBlocksRejectsEmptyShapes(t *testing.T) {
	if err := ValidateBlocks(nil); err == nil {
		t.Fatalf("expected empty block list rejection")
	}

	blocks := []BlockInput{{Date: mustDate(t, "2025-07-25")}}
	if err := ValidateBlocks(blocks); err == nil {
		t.Fatalf("expected empty range list rejection")
	}

	inverted := []BlockInput{{
		Date:  mustDate(t, "2025-07-25"),
		Times: []TimeRange{{Start: mustTime(t, "14:00"), End: mustTime(t, "13:00")}},
	}}
	if err := ValidateBlocks(inverted); err == nil {
		t.Fatalf("expected inverted range rejection")
	}
}

func TestCatalogStoresAndFindsBlocks(t *testing.T) {
	db := openTestDatabase(t)
	catalog := NewCatalog(db)
	tableID := mustTableID(t, "table-1")

	blocks := []BlockInput{
		{Date: mustDate(t, "2025-07-25"), Times: []TimeRange{mustRange(t, "18:00", "19:00"), mustRange(t, "19:00", "20:00")}},
		{Date: mustDate(t, "2025-07-26"), Times: []TimeRange{mustRange(t, "12:00", "13:00")}},
	}
	if err := catalog.SetAvailability(context.Background(), tableID, blocks); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	block, found, err := catalog.FindBlock(context.Background(), tableID, mustDate(t, "2025-07-25"))
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if !found {
		t.Fatalf("expected block for 2025-07-25")
	}
	if len(block.Times) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(block.Times))
	}
	if !SlotInBlock(block, mustTime(t, "19:00")) {
		t.Fatalf("expected 19:00 to be a slot start")
	}
	if SlotInBlock(block, mustTime(t, "19:30")) {
		t.Fatalf("19:30 is not a range start")
	}

	_, found, err = catalog.FindBlock(context.Background(), tableID, mustDate(t, "2025-08-01"))
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if found {
		t.Fatalf("expected no block for 2025-08-01")
	}
}

func TestCatalogSetAvailabilityReplacesPreviousBlocks(t *testing.T) {
	db := openTestDatabase(t)
	catalog := NewCatalog(db)
	tableID := mustTableID(t, "table-1")

	first := []BlockInput{{Date: mustDate(t, "2025-07-25"), Times: []TimeRange{mustRange(t, "18:00", "19:00")}}}
	if err := catalog.SetAvailability(context.Background(), tableID, first); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}
	second := []BlockInput{{Date: mustDate(t, "2025-07-26"), Times: []TimeRange{mustRange(t, "12:00", "13:00")}}}
	if err := catalog.SetAvailability(context.Background(), tableID, second); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	blocks, err := catalog.ListBlocks(context.Background(), tableID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Date.String() != "2025-07-26" {
		t.Fatalf("expected only the replacement block, got %#v", blocks)
	}
}

func TestCatalogPruneBlockDropsOrReplacesRanges(t *testing.T) {
	db := openTestDatabase(t)
	catalog := NewCatalog(db)
	tableID := mustTableID(t, "table-1")
	date := mustDate(t, "2025-07-25")

	blocks := []BlockInput{{Date: date, Times: []TimeRange{mustRange(t, "18:00", "19:00"), mustRange(t, "19:00", "20:00")}}}
	if err := catalog.SetAvailability(context.Background(), tableID, blocks); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	if err := catalog.PruneBlock(context.Background(), tableID, date, []TimeRange{mustRange(t, "19:00", "20:00")}); err != nil {
		t.Fatalf("unexpected prune error: %v", err)
	}
	block, found, err := catalog.FindBlock(context.Background(), tableID, date)
	if err != nil || !found {
		t.Fatalf("expected block to survive partial prune: %v", err)
	}
	if len(block.Times) != 1 || block.Times[0].Start.String() != "19:00" {
		t.Fatalf("unexpected ranges after prune: %#v", block.Times)
	}

	if err := catalog.PruneBlock(context.Background(), tableID, date, nil); err != nil {
		t.Fatalf("unexpected prune error: %v", err)
	}
	_, found, err = catalog.FindBlock(context.Background(), tableID, date)
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if found {
		t.Fatalf("expected block to be dropped entirely")
	}
}
