package report

import (
	"context"
	"testing"
	"time"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
)

// recordingCache remembers the last key set and serves it back, so tests can
// observe the cache-first path without Redis.
type recordingCache struct {
	entries map[string][]byte
	sets    int
	deletes int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string][]byte{}}
}

func (c *recordingCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.entries[key] = payload
	c.sets++
	return nil
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.deletes++
	return nil
}

func sampleBills() []domain.Bill {
	now := time.Now().UTC()
	return []domain.Bill{
		{
			Number:    1,
			CreatedAt: now,
			Total:     money.MustParse("760.00"),
			Lines: []domain.SaleLine{
				{ItemCode: "SUGAR-1KG", Name: "Sugar 1kg", Qty: 2, UnitPrice: money.MustParse("290.00")},
				{ItemCode: "SOAP-BAR", Name: "Bath Soap Bar", Qty: 1, UnitPrice: money.MustParse("180.00")},
			},
		},
		{
			Number:    2,
			CreatedAt: now,
			Total:     money.MustParse("360.00"),
			Lines: []domain.SaleLine{
				{ItemCode: "SOAP-BAR", Name: "Bath Soap Bar", Qty: 2, UnitPrice: money.MustParse("180.00")},
			},
		},
	}
}

func TestDailySalesAggregatesAndSorts(t *testing.T) {
	engine := NewEngine(newRecordingCache(), time.Minute)

	report := engine.DailySales(context.Background(), "2026-08-31", sampleBills())

	if report.BillCount != 2 {
		t.Fatalf("expected 2 bills, got %d", report.BillCount)
	}
	if report.ItemsSold != 5 {
		t.Fatalf("expected 5 items sold, got %d", report.ItemsSold)
	}
	if report.GrossTotal.String() != "1120.00" {
		t.Fatalf("expected gross total 1120.00, got %s", report.GrossTotal)
	}
	if len(report.Lines) != 2 {
		t.Fatalf("expected 2 report lines, got %d", len(report.Lines))
	}
	// Highest quantity sold first.
	if report.Lines[0].ItemCode != "SOAP-BAR" || report.Lines[0].QtySold != 3 {
		t.Fatalf("unexpected first line: %+v", report.Lines[0])
	}
	if report.Lines[0].Revenue.String() != "540.00" {
		t.Fatalf("expected SOAP-BAR revenue 540.00, got %s", report.Lines[0].Revenue)
	}
	if report.Lines[1].ItemCode != "SUGAR-1KG" || report.Lines[1].Revenue.String() != "580.00" {
		t.Fatalf("unexpected second line: %+v", report.Lines[1])
	}
}

func TestDailySalesServesCachedReportUntilInvalidated(t *testing.T) {
	cacheStore := newRecordingCache()
	engine := NewEngine(cacheStore, time.Minute)
	ctx := context.Background()

	first := engine.DailySales(ctx, "2026-08-31", sampleBills())
	if cacheStore.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cacheStore.sets)
	}

	// Fewer bills passed in, but the cached report wins until invalidation.
	cached := engine.DailySales(ctx, "2026-08-31", nil)
	if cached.BillCount != first.BillCount || cacheStore.sets != 1 {
		t.Fatalf("expected cached report, got %+v (sets=%d)", cached, cacheStore.sets)
	}

	engine.InvalidateDailySales(ctx, "2026-08-31")
	if cacheStore.deletes != 1 {
		t.Fatalf("expected one cache delete, got %d", cacheStore.deletes)
	}

	fresh := engine.DailySales(ctx, "2026-08-31", nil)
	if fresh.BillCount != 0 {
		t.Fatalf("expected recomputed empty report after invalidation, got %+v", fresh)
	}
}

func TestReorderRanksByCombinedTotal(t *testing.T) {
	engine := NewEngine(nil, 0)
	now := time.Now().UTC()
	items := []domain.Item{
		{Code: "A-1", Name: "Item A", WarehouseQty: 30, ShelfQty: 10},
		{Code: "B-2", Name: "Item B", WarehouseQty: 5, ShelfQty: 5},
		{Code: "C-3", Name: "Item C", WarehouseQty: 200, ShelfQty: 40},
	}

	report := engine.Reorder(now, items, 50)
	if report.Threshold != 50 {
		t.Fatalf("expected threshold 50, got %d", report.Threshold)
	}
	if len(report.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", report.Suggestions)
	}
	if report.Suggestions[0].Code != "B-2" || report.Suggestions[1].Code != "A-1" {
		t.Fatalf("expected ascending order by combined total, got %+v", report.Suggestions)
	}
}

func TestStockReportDerivesStatuses(t *testing.T) {
	engine := NewEngine(nil, 0)
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)
	items := []domain.Item{
		{Code: "A-1", ShelfQty: 3},
		{Code: "B-2", WarehouseQty: 9},
		{Code: "C-3", ShelfQty: 4, ExpiryDate: &yesterday},
		{Code: "D-4"},
	}

	report := engine.Stock(now, items)
	statuses := map[string]domain.ItemStatus{}
	for _, view := range report.Items {
		statuses[view.Code] = view.Status
	}
	want := map[string]domain.ItemStatus{
		"A-1": domain.StatusOnShelf,
		"B-2": domain.StatusInStore,
		"C-3": domain.StatusExpired,
		"D-4": domain.StatusOutOfStock,
	}
	for code, status := range want {
		if statuses[code] != status {
			t.Fatalf("expected %s status %s, got %s", code, status, statuses[code])
		}
	}
}
