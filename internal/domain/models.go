package domain

import (
	"time"

	"syos/backend/internal/money"
)

// ItemStatus is the derived location state of an item, computed from its two
// quantity counters and expiry date. It is never stored.
type ItemStatus string

const (
	StatusOnShelf    ItemStatus = "ON_SHELF"
	StatusInStore    ItemStatus = "IN_STORE"
	StatusExpired    ItemStatus = "EXPIRED"
	StatusOutOfStock ItemStatus = "OUT_OF_STOCK"
)

// Item is a per-code stock ledger record. The code is immutable once created;
// quantities move through restock (warehouse up), shelf moves (warehouse to
// shelf) and committed sales (shelf down). Items are never deleted.
type Item struct {
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	UnitPrice    money.Money    `json:"unit_price"`
	ExpiryDate   *time.Time     `json:"expiry_date,omitempty"`
	WarehouseQty money.Quantity `json:"warehouse_qty"`
	ShelfQty     money.Quantity `json:"shelf_qty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (i Item) Expired(now time.Time) bool {
	return i.ExpiryDate != nil && i.ExpiryDate.Before(now)
}

func (i Item) Status(now time.Time) ItemStatus {
	if i.Expired(now) {
		return StatusExpired
	}
	if i.ShelfQty > 0 {
		return StatusOnShelf
	}
	if i.WarehouseQty > 0 {
		return StatusInStore
	}
	return StatusOutOfStock
}

// SellableShelfQty is what sale validation checks against. Expired stock
// counts as zero sellable regardless of the shelf counter.
func (i Item) SellableShelfQty(now time.Time) money.Quantity {
	if i.Expired(now) {
		return 0
	}
	return i.ShelfQty
}

// SaleLine is one line of an in-progress sale or a committed bill. UnitPrice
// is snapshotted when the line is added so a later price update does not
// change a sale already being rung up.
type SaleLine struct {
	ItemCode  string         `json:"item_code"`
	Name      string         `json:"name"`
	Qty       money.Quantity `json:"qty"`
	UnitPrice money.Money    `json:"unit_price"`
}

func (l SaleLine) LineTotal() money.Money {
	return l.UnitPrice.MulQuantity(l.Qty)
}

// Bill is the immutable record of a completed sale. Number is assigned by the
// commit protocol; committed bills are append-only.
type Bill struct {
	Number       int64       `json:"number"`
	CreatedAt    time.Time   `json:"created_at"`
	Lines        []SaleLine  `json:"lines"`
	Total        money.Money `json:"total"`
	CashTendered money.Money `json:"cash_tendered"`
	Change       money.Money `json:"change"`
	CashierName  string      `json:"cashier_name,omitempty"`
}

type RestockRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

type MoveToShelfRequest struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

type SaleStartResponse struct {
	SaleToken string `json:"sale_token"`
}

type SaleItemRequest struct {
	SaleToken string `json:"sale_token"`
	ItemCode  string `json:"item_code"`
	Quantity  int    `json:"quantity,omitempty"`
}

type SaleStateResponse struct {
	SaleToken string     `json:"sale_token"`
	Lines     []SaleLine `json:"lines"`
	Subtotal  string     `json:"subtotal"`
}

type CompleteSaleRequest struct {
	SaleToken    string `json:"sale_token"`
	CashTendered string `json:"cash_tendered"`
}

type BillResponse struct {
	Bill Bill `json:"bill"`
}

type BillListResponse struct {
	Bills []Bill `json:"bills"`
}

// ItemView is an Item plus its derived status, for API and report output.
type ItemView struct {
	Item
	Status ItemStatus `json:"status"`
}

type ItemListResponse struct {
	Items []ItemView `json:"items"`
}

type ExpiringItem struct {
	Item
	DaysLeft int `json:"days_left"`
}

type ExpiringItemListResponse struct {
	WindowDays int            `json:"window_days"`
	Items      []ExpiringItem `json:"items"`
}

type DailySalesLine struct {
	ItemCode string         `json:"item_code"`
	Name     string         `json:"name"`
	QtySold  money.Quantity `json:"qty_sold"`
	Revenue  money.Money    `json:"revenue"`
}

type DailySalesReport struct {
	Date       string           `json:"date"`
	BillCount  int              `json:"bill_count"`
	ItemsSold  int              `json:"items_sold"`
	GrossTotal money.Money      `json:"gross_total"`
	Lines      []DailySalesLine `json:"lines"`
}

type StockReport struct {
	GeneratedAt string     `json:"generated_at"`
	Items       []ItemView `json:"items"`
}

type ReorderSuggestion struct {
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	ShelfQty     money.Quantity `json:"shelf_qty"`
	WarehouseQty money.Quantity `json:"warehouse_qty"`
	Threshold    int            `json:"threshold"`
}

type ReorderReport struct {
	GeneratedAt string              `json:"generated_at"`
	Threshold   int                 `json:"threshold"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type DashboardSummary struct {
	Date          string      `json:"date"`
	BillsToday    int         `json:"bills_today"`
	RevenueToday  money.Money `json:"revenue_today"`
	LowStockCount int         `json:"low_stock_count"`
	ExpiringCount int         `json:"expiring_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
