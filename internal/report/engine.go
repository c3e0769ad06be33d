package report

import (
	"context"
	"encoding/json"
	"log"
	"slices"
	"time"

	"syos/backend/internal/cache"
	"syos/backend/internal/domain"
	"syos/backend/internal/money"
)

// Engine builds the back office reports from ledger and bill data the caller
// has already loaded. Finished reports are cached by kind and date; a cache
// failure degrades to recompute, never to an error.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func dailySalesKey(date string) string {
	return "pos:report:daily-sales:" + date
}

func (e *Engine) DailySales(ctx context.Context, date string, bills []domain.Bill) domain.DailySalesReport {
	key := dailySalesKey(date)
	if payload, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		var cached domain.DailySalesReport
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached
		}
	}

	report := domain.DailySalesReport{
		Date:       date,
		BillCount:  len(bills),
		GrossTotal: money.Zero(),
		Lines:      make([]domain.DailySalesLine, 0, 16),
	}

	byCode := map[string]*domain.DailySalesLine{}
	for _, bill := range bills {
		report.GrossTotal = report.GrossTotal.Add(bill.Total)
		for _, line := range bill.Lines {
			report.ItemsSold += line.Qty.Int()
			entry := byCode[line.ItemCode]
			if entry == nil {
				entry = &domain.DailySalesLine{ItemCode: line.ItemCode, Name: line.Name, Revenue: money.Zero()}
				byCode[line.ItemCode] = entry
			}
			entry.QtySold += line.Qty
			entry.Revenue = entry.Revenue.Add(line.LineTotal())
		}
	}

	for _, entry := range byCode {
		report.Lines = append(report.Lines, *entry)
	}
	slices.SortFunc(report.Lines, func(a, b domain.DailySalesLine) int {
		if a.QtySold == b.QtySold {
			return cmpString(a.ItemCode, b.ItemCode)
		}
		if a.QtySold > b.QtySold {
			return -1
		}
		return 1
	})

	if payload, err := json.Marshal(report); err == nil {
		_ = e.cache.Set(ctx, key, payload, e.cacheTTL)
	}
	return report
}

// InvalidateDailySales drops the cached report for a date after a commit
// lands so the next read reflects the new bill.
func (e *Engine) InvalidateDailySales(ctx context.Context, date string) {
	if err := e.cache.Delete(ctx, dailySalesKey(date)); err != nil {
		log.Printf("[report] WARN: failed to invalidate daily sales cache date=%s: %v", date, err)
	}
}

func (e *Engine) Stock(now time.Time, items []domain.Item) domain.StockReport {
	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, domain.ItemView{Item: item, Status: item.Status(now)})
	}
	return domain.StockReport{
		GeneratedAt: now.Format(time.RFC3339),
		Items:       views,
	}
}

// Reorder flags items whose combined warehouse and shelf quantity has fallen
// to or below the threshold.
func (e *Engine) Reorder(now time.Time, items []domain.Item, threshold int) domain.ReorderReport {
	suggestions := make([]domain.ReorderSuggestion, 0, 8)
	for _, item := range items {
		total := item.WarehouseQty.Int() + item.ShelfQty.Int()
		if total > threshold {
			continue
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			Code:         item.Code,
			Name:         item.Name,
			ShelfQty:     item.ShelfQty,
			WarehouseQty: item.WarehouseQty,
			Threshold:    threshold,
		})
	}
	slices.SortFunc(suggestions, func(a, b domain.ReorderSuggestion) int {
		totalA := a.ShelfQty.Int() + a.WarehouseQty.Int()
		totalB := b.ShelfQty.Int() + b.WarehouseQty.Int()
		if totalA == totalB {
			return cmpString(a.Code, b.Code)
		}
		if totalA < totalB {
			return -1
		}
		return 1
	})
	return domain.ReorderReport{
		GeneratedAt: now.Format(time.RFC3339),
		Threshold:   threshold,
		Suggestions: suggestions,
	}
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
