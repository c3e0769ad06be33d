package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
	"syos/backend/internal/store"
)

func TestCommitBillDecrementsShelfAndAllocatesNumber(t *testing.T) {
	databaseURL := os.Getenv("SYOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SYOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("IT-COMMIT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE number IN (SELECT bill_number FROM bill_lines WHERE item_code = $1)`, code)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_lines WHERE item_code = $1`, code)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE code = $1`, code)
	})

	now := time.Now().UTC()
	item, err := s.Restock(ctx, domain.Item{
		Code:         code,
		Name:         "Integration Commit Item",
		UnitPrice:    money.MustParse("120.00"),
		WarehouseQty: 10,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if _, err := s.MoveToShelf(ctx, item.Code, 10, now); err != nil {
		t.Fatalf("move to shelf: %v", err)
	}

	var before int64
	if err := s.db.QueryRowContext(ctx, `SELECT last_number FROM bill_counter WHERE id = 1`).Scan(&before); err != nil {
		t.Fatalf("read counter: %v", err)
	}

	bill, err := s.CommitBill(ctx, domain.Bill{
		Lines: []domain.SaleLine{
			{ItemCode: item.Code, Name: item.Name, Qty: 4, UnitPrice: item.UnitPrice},
		},
		CashTendered: money.MustParse("500.00"),
		CashierName:  "integration",
	})
	if err != nil {
		t.Fatalf("commit bill: %v", err)
	}
	if bill.Number != before+1 {
		t.Fatalf("expected bill number %d, got %d", before+1, bill.Number)
	}
	if bill.Total.String() != "480.00" || bill.Change.String() != "20.00" {
		t.Fatalf("unexpected totals: total=%s change=%s", bill.Total, bill.Change)
	}

	after, err := s.GetItemByCode(ctx, item.Code)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if after.ShelfQty.Int() != 6 {
		t.Fatalf("expected shelf 6 after commit, got %d", after.ShelfQty.Int())
	}

	// A commit that fails validation must not advance the counter.
	_, err = s.CommitBill(ctx, domain.Bill{
		Lines: []domain.SaleLine{
			{ItemCode: item.Code, Name: item.Name, Qty: 100, UnitPrice: item.UnitPrice},
		},
		CashTendered: money.MustParse("99999.00"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var counter int64
	if err := s.db.QueryRowContext(ctx, `SELECT last_number FROM bill_counter WHERE id = 1`).Scan(&counter); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if counter != bill.Number {
		t.Fatalf("expected counter to stay at %d after rejected commit, got %d", bill.Number, counter)
	}

	saved, err := s.GetBillByNumber(ctx, bill.Number)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(saved.Lines) != 1 || saved.Lines[0].Qty.Int() != 4 {
		t.Fatalf("unexpected stored lines: %+v", saved.Lines)
	}

	// Duplicate codes on one bill are validated against their combined
	// demand; 4+4 exceeds the remaining 6 and must leave the shelf alone.
	_, err = s.CommitBill(ctx, domain.Bill{
		Lines: []domain.SaleLine{
			{ItemCode: item.Code, Name: item.Name, Qty: 4, UnitPrice: item.UnitPrice},
			{ItemCode: item.Code, Name: item.Name, Qty: 4, UnitPrice: item.UnitPrice},
		},
		CashTendered: money.MustParse("99999.00"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for combined over-demand, got %v", err)
	}
	after, err = s.GetItemByCode(ctx, item.Code)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if after.ShelfQty.Int() != 6 {
		t.Fatalf("expected shelf still 6 after rejected duplicate-line commit, got %d", after.ShelfQty.Int())
	}
}

func TestConcurrentCommitsOnDisjointItemsAllSucceed(t *testing.T) {
	databaseURL := os.Getenv("SYOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SYOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	const workers = 5
	stamp := time.Now().UnixNano()
	now := time.Now().UTC()
	codes := make([]string, workers)
	for i := range codes {
		codes[i] = fmt.Sprintf("IT-DISJ-%d-%d", stamp, i)
	}
	t.Cleanup(func() {
		for _, code := range codes {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE number IN (SELECT bill_number FROM bill_lines WHERE item_code = $1)`, code)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_lines WHERE item_code = $1`, code)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE code = $1`, code)
		}
	})

	for _, code := range codes {
		if _, err := s.Restock(ctx, domain.Item{
			Code:         code,
			Name:         "Disjoint Commit Item",
			UnitPrice:    money.MustParse("50.00"),
			WarehouseQty: 5,
			UpdatedAt:    now,
		}); err != nil {
			t.Fatalf("restock %s: %v", code, err)
		}
		if _, err := s.MoveToShelf(ctx, code, 5, now); err != nil {
			t.Fatalf("move to shelf %s: %v", code, err)
		}
	}

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for _, code := range codes {
		code := code
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CommitBill(ctx, domain.Bill{
				Lines: []domain.SaleLine{
					{ItemCode: code, Name: "Disjoint Commit Item", Qty: 3, UnitPrice: money.MustParse("50.00")},
				},
				CashTendered: money.MustParse("150.00"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Disjoint stock means no commit may lose; the only shared row is the
	// bill counter, which serializes on its row lock without aborting.
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent disjoint commit failed: %v", err)
		}
	}
	for _, code := range codes {
		item, err := s.GetItemByCode(ctx, code)
		if err != nil {
			t.Fatalf("get item %s: %v", code, err)
		}
		if item.ShelfQty.Int() != 2 {
			t.Fatalf("expected shelf 2 for %s, got %d", code, item.ShelfQty.Int())
		}
	}
}
