package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"syos/backend/internal/domain"
	"syos/backend/internal/money"
	"syos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Restock(ctx context.Context, item domain.Item) (*domain.Item, error) {
	code := strings.ToUpper(strings.TrimSpace(item.Code))
	name := strings.TrimSpace(item.Name)
	if code == "" || name == "" || item.WarehouseQty < 1 {
		return nil, store.ErrInvalidRequest
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existingName string
	err = tx.QueryRowContext(ctx, `
		SELECT name
		FROM items
		WHERE code = $1
		FOR UPDATE
	`, code).Scan(&existingName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (code, name, unit_price, expiry_date, warehouse_qty, shelf_qty, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,0,now(),now())
		`, code, name, item.UnitPrice.String(), nullDate(item.ExpiryDate), item.WarehouseQty.Int())
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrDuplicateItem
			}
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if !strings.EqualFold(existingName, name) {
			return nil, store.ErrDuplicateItem
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET warehouse_qty = warehouse_qty + $2, unit_price = $3, expiry_date = $4, updated_at = now()
			WHERE code = $1
		`, code, item.WarehouseQty.Int(), item.UnitPrice.String(), nullDate(item.ExpiryDate))
		if err != nil {
			return nil, err
		}
	}

	saved, err := scanItem(tx.QueryRowContext(ctx, `
		SELECT code, name, unit_price, expiry_date, warehouse_qty, shelf_qty, created_at, updated_at
		FROM items
		WHERE code = $1
	`, code))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
		SELECT code, name, unit_price, expiry_date, warehouse_qty, shelf_qty, created_at, updated_at
		FROM items
		WHERE code = $1
	`, strings.ToUpper(strings.TrimSpace(code))))
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, unit_price, expiry_date, warehouse_qty, shelf_qty, created_at, updated_at
		FROM items
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MoveToShelf(ctx context.Context, code string, qty money.Quantity, at time.Time) (*domain.Item, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var warehouseQty int
	err = tx.QueryRowContext(ctx, `
		SELECT warehouse_qty
		FROM items
		WHERE code = $1
		FOR UPDATE
	`, code).Scan(&warehouseQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}
	if warehouseQty < qty.Int() {
		return nil, store.ErrInsufficientWarehouseStock
	}

	moved, err := scanItem(tx.QueryRowContext(ctx, `
		UPDATE items
		SET warehouse_qty = warehouse_qty - $2, shelf_qty = shelf_qty + $2, updated_at = $3
		WHERE code = $1
		RETURNING code, name, unit_price, expiry_date, warehouse_qty, shelf_qty, created_at, updated_at
	`, code, qty.Int(), at))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return moved, nil
}

// CommitBill runs validation, shelf decrement, bill number assignment and
// persistence inside one transaction. Requested quantities are aggregated per
// code and the item rows are locked with FOR UPDATE in sorted code order, so
// concurrent commits serialize per item without deadlocking and a bill
// carrying the same code on several lines is checked against the combined
// demand. The bill_counter row is locked and bumped only after every line has
// passed validation, so a rejected commit never consumes a number and issued
// numbers have no gaps. The row locks carry the whole serialization contract;
// serializable isolation would only add spurious 40001 aborts on the shared
// counter row.
func (s *Store) CommitBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if len(bill.Lines) == 0 {
		return nil, store.ErrEmptySale
	}

	now := bill.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	total := money.Zero()
	required := make(map[string]money.Quantity, len(bill.Lines))
	for _, line := range bill.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidRequest
		}
		required[line.ItemCode] = required[line.ItemCode].Add(line.Qty)
		total = total.Add(line.LineTotal())
	}
	codes := make([]string, 0, len(required))
	for code := range required {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, code := range codes {
		var shelfQty int
		var expiry sql.NullTime
		err = tx.QueryRowContext(ctx, `
			SELECT shelf_qty, expiry_date
			FROM items
			WHERE code = $1
			FOR UPDATE
		`, code).Scan(&shelfQty, &expiry)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrItemNotFound
			}
			return nil, err
		}
		if expiry.Valid && expiry.Time.UTC().Before(now) {
			return nil, store.ErrInsufficientStock
		}
		if shelfQty < required[code].Int() {
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

	for _, code := range codes {
		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET shelf_qty = shelf_qty - $2, updated_at = $3
			WHERE code = $1
		`, code, required[code].Int(), now)
		if err != nil {
			return nil, err
		}
	}

	var number int64
	err = tx.QueryRowContext(ctx, `
		UPDATE bill_counter
		SET last_number = last_number + 1
		WHERE id = 1
		RETURNING last_number
	`).Scan(&number)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (number, total, cash_tendered, change, cashier_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, number, total.String(), bill.CashTendered.String(), change.String(), nullIfEmpty(bill.CashierName), now)
	if err != nil {
		return nil, err
	}
	for _, line := range bill.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bill_lines (bill_number, item_code, name, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, number, line.ItemCode, line.Name, line.Qty.Int(), line.UnitPrice.String())
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	bill.Number = number
	bill.CreatedAt = now
	bill.Total = total
	bill.Change = change
	return &bill, nil
}

func (s *Store) GetBillByNumber(ctx context.Context, number int64) (*domain.Bill, error) {
	var bill domain.Bill
	var totalRaw, tenderedRaw, changeRaw string
	var cashierName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT number, total, cash_tendered, change, cashier_name, created_at
		FROM bills
		WHERE number = $1
	`, number).Scan(&bill.Number, &totalRaw, &tenderedRaw, &changeRaw, &cashierName, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if bill.Total, err = money.Parse(totalRaw); err != nil {
		return nil, err
	}
	if bill.CashTendered, err = money.Parse(tenderedRaw); err != nil {
		return nil, err
	}
	if bill.Change, err = money.Parse(changeRaw); err != nil {
		return nil, err
	}
	if cashierName.Valid {
		bill.CashierName = cashierName.String
	}
	bill.CreatedAt = bill.CreatedAt.UTC()

	lines, err := s.billLines(ctx, []int64{bill.Number})
	if err != nil {
		return nil, err
	}
	bill.Lines = lines[bill.Number]
	return &bill, nil
}

func (s *Store) ListBillsByDate(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, total, cash_tendered, change, cashier_name, created_at
		FROM bills
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY number ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	numbers := make([]int64, 0, 32)
	for rows.Next() {
		var bill domain.Bill
		var totalRaw, tenderedRaw, changeRaw string
		var cashierName sql.NullString
		if err := rows.Scan(&bill.Number, &totalRaw, &tenderedRaw, &changeRaw, &cashierName, &bill.CreatedAt); err != nil {
			return nil, err
		}
		if bill.Total, err = money.Parse(totalRaw); err != nil {
			return nil, err
		}
		if bill.CashTendered, err = money.Parse(tenderedRaw); err != nil {
			return nil, err
		}
		if bill.Change, err = money.Parse(changeRaw); err != nil {
			return nil, err
		}
		if cashierName.Valid {
			bill.CashierName = cashierName.String
		}
		bill.CreatedAt = bill.CreatedAt.UTC()
		bills = append(bills, bill)
		numbers = append(numbers, bill.Number)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return bills, nil
	}

	lineMap, err := s.billLines(ctx, numbers)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		bills[i].Lines = lineMap[bills[i].Number]
	}
	return bills, nil
}

func (s *Store) billLines(ctx context.Context, numbers []int64) (map[int64][]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bill_number, item_code, name, qty, unit_price
		FROM bill_lines
		WHERE bill_number = ANY($1)
		ORDER BY id ASC
	`, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]domain.SaleLine, len(numbers))
	for rows.Next() {
		var number int64
		var line domain.SaleLine
		var qty int
		var priceRaw string
		if err := rows.Scan(&number, &line.ItemCode, &line.Name, &qty, &priceRaw); err != nil {
			return nil, err
		}
		line.Qty = money.Quantity(qty)
		if line.UnitPrice, err = money.Parse(priceRaw); err != nil {
			return nil, err
		}
		result[number] = append(result[number], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRequest
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func scanItemRow(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var priceRaw string
	var warehouseQty, shelfQty int
	var expiry sql.NullTime
	err := row.Scan(&item.Code, &item.Name, &priceRaw, &expiry, &warehouseQty, &shelfQty, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if item.UnitPrice, err = money.Parse(priceRaw); err != nil {
		return nil, err
	}
	item.WarehouseQty = money.Quantity(warehouseQty)
	item.ShelfQty = money.Quantity(shelfQty)
	if expiry.Valid {
		e := nowDateUTC(expiry.Time.UTC())
		item.ExpiryDate = &e
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}
