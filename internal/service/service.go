package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
	"syos/backend/internal/report"
	"syos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	reports           *report.Engine
	lowStockThreshold int
	expiryWindowDays  int
	nowFn             func() time.Time
}

func New(repo store.Repository, reports *report.Engine, lowStockThreshold int, expiryWindowDays int) *Service {
	if lowStockThreshold < 1 {
		lowStockThreshold = 50
	}
	if expiryWindowDays < 1 {
		expiryWindowDays = 7
	}

	return &Service{
		repo:              repo,
		reports:           reports,
		lowStockThreshold: lowStockThreshold,
		expiryWindowDays:  expiryWindowDays,
		nowFn:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) now() time.Time {
	return s.nowFn()
}

// Restock adds quantity to an item's warehouse counter, creating the item on
// first sight. Reusing a code with a different name is rejected; price and
// expiry are refreshed on every delivery.
func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (domain.ItemView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ItemView{}, fmt.Errorf("admin role required")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" || req.Quantity < 1 {
		return domain.ItemView{}, store.ErrInvalidRequest
	}

	price, err := money.Parse(req.UnitPrice)
	if err != nil {
		return domain.ItemView{}, store.ErrInvalidRequest
	}
	if price.IsZero() {
		return domain.ItemView{}, store.ErrInvalidRequest
	}
	qty, err := money.NewQuantity(req.Quantity)
	if err != nil {
		return domain.ItemView{}, store.ErrInvalidRequest
	}

	var expiryDate *time.Time
	if strings.TrimSpace(req.ExpiryDate) != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			return domain.ItemView{}, store.ErrInvalidRequest
		}
		exp := parsed.UTC()
		expiryDate = &exp
	}

	now := s.now()
	saved, err := s.repo.Restock(ctx, domain.Item{
		Code:         req.Code,
		Name:         req.Name,
		UnitPrice:    price,
		ExpiryDate:   expiryDate,
		WarehouseQty: qty,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.ItemView{}, err
	}

	s.logAudit(ctx, "restock", "item", saved.Code, fmt.Sprintf("qty=%d,price=%s,expiry=%s", req.Quantity, price, req.ExpiryDate))
	return domain.ItemView{Item: *saved, Status: saved.Status(now)}, nil
}

// MoveToShelf transfers quantity from the warehouse counter to the shelf
// counter. The two counters always sum to the unsold stock of the item.
func (s *Service) MoveToShelf(ctx context.Context, req domain.MoveToShelfRequest) (domain.ItemView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ItemView{}, fmt.Errorf("admin role required")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		return domain.ItemView{}, store.ErrInvalidRequest
	}
	qty, err := money.NewQuantity(req.Quantity)
	if err != nil || qty.IsZero() {
		return domain.ItemView{}, store.ErrInvalidRequest
	}

	now := s.now()
	moved, err := s.repo.MoveToShelf(ctx, req.Code, qty, now)
	if err != nil {
		return domain.ItemView{}, err
	}

	s.logAudit(ctx, "move_to_shelf", "item", moved.Code, fmt.Sprintf("qty=%d", req.Quantity))
	return domain.ItemView{Item: *moved, Status: moved.Status(now)}, nil
}

func (s *Service) GetItem(ctx context.Context, code string) (domain.ItemView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.ItemView{}, store.ErrInvalidRequest
	}
	item, err := s.repo.GetItemByCode(ctx, code)
	if err != nil {
		return domain.ItemView{}, err
	}
	return domain.ItemView{Item: *item, Status: item.Status(s.now())}, nil
}

func (s *Service) ListItems(ctx context.Context) (domain.ItemListResponse, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ItemListResponse{}, err
	}
	now := s.now()
	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, domain.ItemView{Item: item, Status: item.Status(now)})
	}
	return domain.ItemListResponse{Items: views}, nil
}

// AvailableItems lists only items a sale could accept right now: unexpired
// with at least one unit on the shelf.
func (s *Service) AvailableItems(ctx context.Context) (domain.ItemListResponse, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ItemListResponse{}, err
	}
	now := s.now()
	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		if item.SellableShelfQty(now) < 1 {
			continue
		}
		views = append(views, domain.ItemView{Item: item, Status: item.Status(now)})
	}
	return domain.ItemListResponse{Items: views}, nil
}

func (s *Service) LowStockItems(ctx context.Context) (domain.ItemListResponse, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ItemListResponse{}, err
	}
	now := s.now()
	views := make([]domain.ItemView, 0, 8)
	for _, item := range items {
		if item.ShelfQty.Int() >= s.lowStockThreshold {
			continue
		}
		views = append(views, domain.ItemView{Item: item, Status: item.Status(now)})
	}
	return domain.ItemListResponse{Items: views}, nil
}

func (s *Service) ExpiringItems(ctx context.Context, windowDays int) (domain.ExpiringItemListResponse, error) {
	if windowDays < 1 {
		windowDays = s.expiryWindowDays
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ExpiringItemListResponse{}, err
	}

	now := s.now()
	cutoff := now.AddDate(0, 0, windowDays)
	result := make([]domain.ExpiringItem, 0, 8)
	for _, item := range items {
		if item.ExpiryDate == nil || item.Expired(now) {
			continue
		}
		if item.ExpiryDate.After(cutoff) {
			continue
		}
		if item.WarehouseQty.Int()+item.ShelfQty.Int() == 0 {
			continue
		}
		daysLeft := int(item.ExpiryDate.Sub(now).Hours() / 24)
		result = append(result, domain.ExpiringItem{Item: item, DaysLeft: daysLeft})
	}
	return domain.ExpiringItemListResponse{WindowDays: windowDays, Items: result}, nil
}

func (s *Service) GetBillByNumber(ctx context.Context, number int64) (domain.Bill, error) {
	if number < 1 {
		return domain.Bill{}, store.ErrInvalidRequest
	}
	bill, err := s.repo.GetBillByNumber(ctx, number)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func (s *Service) BillsForDate(ctx context.Context, date string) (domain.BillListResponse, error) {
	from, to, _, err := s.dayBounds(date)
	if err != nil {
		return domain.BillListResponse{}, err
	}
	bills, err := s.repo.ListBillsByDate(ctx, from, to)
	if err != nil {
		return domain.BillListResponse{}, err
	}
	return domain.BillListResponse{Bills: bills}, nil
}

func (s *Service) DailySalesReport(ctx context.Context, date string) (domain.DailySalesReport, error) {
	from, to, day, err := s.dayBounds(date)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	bills, err := s.repo.ListBillsByDate(ctx, from, to)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	return s.reports.DailySales(ctx, day, bills), nil
}

func (s *Service) StockReport(ctx context.Context) (domain.StockReport, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.StockReport{}, err
	}
	return s.reports.Stock(s.now(), items), nil
}

func (s *Service) ReorderReport(ctx context.Context) (domain.ReorderReport, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.ReorderReport{}, err
	}
	return s.reports.Reorder(s.now(), items, s.lowStockThreshold), nil
}

func (s *Service) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	now := s.now()
	day := now.Format("2006-01-02")

	sales, err := s.DailySalesReport(ctx, day)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	lowStock, err := s.LowStockItems(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	expiring, err := s.ExpiringItems(ctx, 0)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	return domain.DashboardSummary{
		Date:          day,
		BillsToday:    sales.BillCount,
		RevenueToday:  sales.GrossTotal,
		LowStockCount: len(lowStock.Items),
		ExpiringCount: len(expiring.Items),
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	from, to, _, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) dayBounds(date string) (time.Time, time.Time, string, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, time.Time{}, "", store.ErrInvalidRequest
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), day.Format("2006-01-02"), nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            uuid.NewString(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
