package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
	"syos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	itemsByCode     map[string]domain.Item
	billsByNumber   map[int64]domain.Bill
	nextBillNumber  int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		itemsByCode:     make(map[string]domain.Item),
		billsByNumber:   make(map[int64]domain.Bill),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	nextMonth := now.AddDate(0, 1, 0)
	nextWeek := now.AddDate(0, 0, 5)
	items := []domain.Item{
		{Code: "MILK-1L", Name: "Fresh Milk 1L", UnitPrice: money.MustParse("240.00"), ExpiryDate: &nextWeek, WarehouseQty: 60, ShelfQty: 24},
		{Code: "BREAD-WHT", Name: "White Bread Loaf", UnitPrice: money.MustParse("150.00"), ExpiryDate: &nextWeek, WarehouseQty: 40, ShelfQty: 16},
		{Code: "RICE-5KG", Name: "Rice 5kg Bag", UnitPrice: money.MustParse("1850.00"), WarehouseQty: 80, ShelfQty: 20},
		{Code: "SUGAR-1KG", Name: "Sugar 1kg", UnitPrice: money.MustParse("290.00"), ExpiryDate: &nextMonth, WarehouseQty: 100, ShelfQty: 30},
		{Code: "TEA-100", Name: "Tea Leaves 100g", UnitPrice: money.MustParse("425.00"), ExpiryDate: &nextMonth, WarehouseQty: 50, ShelfQty: 12},
		{Code: "SOAP-BAR", Name: "Bath Soap Bar", UnitPrice: money.MustParse("110.00"), WarehouseQty: 120, ShelfQty: 36},
	}
	for _, item := range items {
		item.CreatedAt = now
		item.UpdatedAt = now
		s.itemsByCode[item.Code] = item
	}
	return s
}

func (s *Store) Restock(_ context.Context, item domain.Item) (*domain.Item, error) {
	code := strings.ToUpper(strings.TrimSpace(item.Code))
	name := strings.TrimSpace(item.Name)
	if code == "" || name == "" || item.WarehouseQty < 1 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := item.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	existing, exists := s.itemsByCode[code]
	if !exists {
		item.Code = code
		item.Name = name
		item.ShelfQty = 0
		item.CreatedAt = now
		item.UpdatedAt = now
		s.itemsByCode[code] = item
		created := cloneItem(item)
		return &created, nil
	}

	if !strings.EqualFold(existing.Name, name) {
		return nil, store.ErrDuplicateItem
	}
	existing.WarehouseQty += item.WarehouseQty
	existing.UnitPrice = item.UnitPrice
	existing.ExpiryDate = item.ExpiryDate
	existing.UpdatedAt = now
	s.itemsByCode[code] = existing
	updated := cloneItem(existing)
	return &updated, nil
}

func (s *Store) GetItemByCode(_ context.Context, code string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.itemsByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !exists {
		return nil, store.ErrItemNotFound
	}
	copyItem := cloneItem(item)
	return &copyItem, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByCode))
	for _, item := range s.itemsByCode {
		items = append(items, cloneItem(item))
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return cmpString(a.Code, b.Code)
	})
	return items, nil
}

func (s *Store) MoveToShelf(_ context.Context, code string, qty money.Quantity, at time.Time) (*domain.Item, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.itemsByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !exists {
		return nil, store.ErrItemNotFound
	}
	if item.WarehouseQty < qty {
		return nil, store.ErrInsufficientWarehouseStock
	}
	item.WarehouseQty -= qty
	item.ShelfQty += qty
	item.UpdatedAt = at
	s.itemsByCode[item.Code] = item
	moved := cloneItem(item)
	return &moved, nil
}

// CommitBill holds the write lock across validation, stock decrement, bill
// number assignment and persistence. Validation happens before any mutation,
// so a rejected commit leaves the ledger and the bill counter untouched.
func (s *Store) CommitBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	if len(bill.Lines) == 0 {
		return nil, store.ErrEmptySale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := bill.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Requested quantities are aggregated per code before validation, so a
	// bill carrying the same code on several lines is checked against the
	// combined demand and can never drive the shelf counter negative.
	total := money.Zero()
	required := make(map[string]money.Quantity, len(bill.Lines))
	for _, line := range bill.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidRequest
		}
		required[line.ItemCode] = required[line.ItemCode].Add(line.Qty)
		total = total.Add(line.LineTotal())
	}
	for code, qty := range required {
		item, exists := s.itemsByCode[code]
		if !exists {
			return nil, store.ErrItemNotFound
		}
		if item.SellableShelfQty(now) < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	if bill.CashTendered.LessThan(total) {
		return nil, store.ErrInsufficientPayment
	}
	change, err := bill.CashTendered.Sub(total)
	if err != nil {
		return nil, store.ErrInvalidRequest
	}

	for code, qty := range required {
		item := s.itemsByCode[code]
		item.ShelfQty -= qty
		item.UpdatedAt = now
		s.itemsByCode[code] = item
	}

	s.nextBillNumber++
	bill.Number = s.nextBillNumber
	bill.CreatedAt = now
	bill.Total = total
	bill.Change = change
	s.billsByNumber[bill.Number] = cloneBill(bill)

	committed := cloneBill(bill)
	return &committed, nil
}

func (s *Store) GetBillByNumber(_ context.Context, number int64) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, exists := s.billsByNumber[number]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBill := cloneBill(bill)
	return &copyBill, nil
}

func (s *Store) ListBillsByDate(_ context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Bill, 0, 32)
	for _, bill := range s.billsByNumber {
		if bill.CreatedAt.Before(from) || !bill.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneBill(bill))
	}
	slices.SortFunc(result, func(a, b domain.Bill) int {
		if a.Number < b.Number {
			return -1
		}
		if a.Number > b.Number {
			return 1
		}
		return 0
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRequest
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRequest
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
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

func cloneItem(src domain.Item) domain.Item {
	dup := src
	if src.ExpiryDate != nil {
		expiry := src.ExpiryDate.UTC()
		dup.ExpiryDate = &expiry
	}
	return dup
}

func cloneBill(src domain.Bill) domain.Bill {
	dup := src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}
