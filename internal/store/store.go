package store

import (
	"context"
	"errors"
	"time"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrItemNotFound               = errors.New("item not found")
	ErrDuplicateItem              = errors.New("item code already exists with a different name")
	ErrInsufficientStock          = errors.New("insufficient shelf stock")
	ErrInsufficientWarehouseStock = errors.New("insufficient warehouse stock")
	ErrEmptySale                  = errors.New("sale has no items")
	ErrInsufficientPayment        = errors.New("cash tendered is less than total")
	ErrInvalidRequest             = errors.New("invalid request")
)

type Repository interface {
	// Restock creates the item if the code is new, otherwise adds qty to the
	// warehouse counter and refreshes price and expiry. A code reused with a
	// different name fails with ErrDuplicateItem.
	Restock(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemByCode(ctx context.Context, code string) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	MoveToShelf(ctx context.Context, code string, qty money.Quantity, at time.Time) (*domain.Item, error)
	// CommitBill atomically re-validates shelf stock for every line,
	// decrements the shelf counters, assigns the next bill number and
	// persists the bill. Either everything happens or nothing does; a
	// failed commit never consumes a bill number.
	CommitBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	GetBillByNumber(ctx context.Context, number int64) (*domain.Bill, error)
	ListBillsByDate(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
