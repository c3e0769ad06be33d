package service

import (
	"context"
	"fmt"
	"sync"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
	"syos/backend/internal/store"
)

// SaleBuilder accumulates lines for one in-progress sale. Adding an item
// checks the requested quantity plus anything already on the sale against the
// item's sellable shelf stock, so the builder never holds more of an item
// than the shelf could cover at the time of the add. Stock is only decremented
// at CompleteSale, which revalidates everything atomically in the store.
type SaleBuilder struct {
	mu    sync.Mutex
	svc   *Service
	lines []domain.SaleLine
}

func (s *Service) NewSaleBuilder() *SaleBuilder {
	return &SaleBuilder{svc: s}
}

// AddItem appends quantity of an item to the sale. The unit price is
// snapshotted on the first add of a code and kept for later adds of the same
// code, so a restock mid-sale cannot change what the customer is charged.
func (b *SaleBuilder) AddItem(ctx context.Context, code string, qty int) (domain.SaleStateResponse, error) {
	quantity, err := money.NewQuantity(qty)
	if err != nil || quantity.IsZero() {
		return domain.SaleStateResponse{}, store.ErrInvalidRequest
	}

	view, err := b.svc.GetItem(ctx, code)
	if err != nil {
		return domain.SaleStateResponse{}, err
	}
	item := view.Item

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := -1
	alreadyOnSale := money.Quantity(0)
	for i, line := range b.lines {
		if line.ItemCode == item.Code {
			idx = i
			alreadyOnSale = line.Qty
			break
		}
	}

	sellable := item.SellableShelfQty(b.svc.now())
	if alreadyOnSale.Int()+quantity.Int() > sellable.Int() {
		return domain.SaleStateResponse{}, fmt.Errorf("%w: %s has %d on shelf, sale already holds %d", store.ErrInsufficientStock, item.Code, sellable.Int(), alreadyOnSale.Int())
	}

	if idx >= 0 {
		b.lines[idx].Qty = b.lines[idx].Qty.Add(quantity)
	} else {
		b.lines = append(b.lines, domain.SaleLine{
			ItemCode:  item.Code,
			Name:      item.Name,
			Qty:       quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return b.stateLocked(), nil
}

// RemoveItem drops an entire line from the sale. Removing a code that is not
// on the sale is a no-op, so callers can remove without checking first.
func (b *SaleBuilder) RemoveItem(code string) domain.SaleStateResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, line := range b.lines {
		if line.ItemCode == code {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			break
		}
	}
	return b.stateLocked()
}

func (b *SaleBuilder) Items() []domain.SaleLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := make([]domain.SaleLine, len(b.lines))
	copy(lines, b.lines)
	return lines
}

func (b *SaleBuilder) Subtotal() money.Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subtotalLocked()
}

// CompleteSale commits the sale. The store revalidates every line, decrements
// shelf stock, and allocates the bill number in one atomic step; a failure
// leaves both the stock and the builder untouched so the cashier can adjust
// and retry. On success the builder is cleared.
func (b *SaleBuilder) CompleteSale(ctx context.Context, cashTendered string) (domain.Bill, error) {
	tendered, err := money.Parse(cashTendered)
	if err != nil {
		return domain.Bill{}, store.ErrInvalidRequest
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return domain.Bill{}, store.ErrEmptySale
	}

	cashierName := "unknown"
	if actor, ok := ActorFromContext(ctx); ok {
		cashierName = actor.Username
	}

	lines := make([]domain.SaleLine, len(b.lines))
	copy(lines, b.lines)

	// The service clock stamps the commit, so expiry validation in the store
	// and the bill timestamp agree with the add-time checks.
	committed, err := b.svc.repo.CommitBill(ctx, domain.Bill{
		Lines:        lines,
		CashTendered: tendered,
		CashierName:  cashierName,
		CreatedAt:    b.svc.now(),
	})
	if err != nil {
		return domain.Bill{}, err
	}

	b.lines = nil
	b.svc.reports.InvalidateDailySales(ctx, committed.CreatedAt.Format("2006-01-02"))
	b.svc.logAudit(ctx, "complete_sale", "bill", fmt.Sprintf("%d", committed.Number), fmt.Sprintf("lines=%d,total=%s", len(committed.Lines), committed.Total))
	return *committed, nil
}

// Clear abandons the sale without touching stock.
func (b *SaleBuilder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

func (b *SaleBuilder) State() domain.SaleStateResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *SaleBuilder) stateLocked() domain.SaleStateResponse {
	lines := make([]domain.SaleLine, len(b.lines))
	copy(lines, b.lines)
	return domain.SaleStateResponse{
		Lines:    lines,
		Subtotal: b.subtotalLocked().String(),
	}
}

func (b *SaleBuilder) subtotalLocked() money.Money {
	subtotal := money.Zero()
	for _, line := range b.lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	return subtotal
}
