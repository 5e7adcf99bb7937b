// Package storage is the SQLite persistence layer. It implements the store
// interfaces the services depend on.
//
// Monetary amounts are persisted as decimal strings and re-parsed on scan;
// sums are aggregated in Go with decimal arithmetic, never in SQL floats.
// All timestamps are written in UTC.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"duit/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- recurring rules ---

const ruleColumns = `id, user_id, name, kind, amount, category_id, bank_id, asset_id,
	frequency, day_of_month, day_of_week, start_date, end_date, next_run_at, is_active, deleted`

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) (core.Rule, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules
			(user_id, name, kind, amount, category_id, bank_id, asset_id,
			 frequency, day_of_month, day_of_week, start_date, end_date, next_run_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, rule.Name, string(rule.Kind), rule.Amount.String(),
		nullInt(rule.CategoryID), nullInt(rule.BankID), nullInt(rule.AssetID),
		string(rule.Frequency), nullIntVal(rule.DayOfMonth), nullIntVal(rule.DayOfWeek),
		nullTime(rule.StartDate), nullTime(rule.EndDate), nullTime(rule.NextRunAt),
		rule.IsActive)
	if err != nil {
		return core.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Rule{}, fmt.Errorf("rule insert id: %w", err)
	}
	rule.ID = id
	return rule, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, userID, id int64) (core.Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_rules
		WHERE id = ? AND user_id = ? AND deleted = 0`, id, userID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Rule{}, core.ErrNotFound
	}
	if err != nil {
		return core.Rule{}, fmt.Errorf("get rule %d: %w", id, err)
	}
	return rule, nil
}

func (r *SQLiteRepository) FindDueRules(ctx context.Context, now time.Time) ([]core.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_rules
		WHERE is_active = 1 AND deleted = 0
		  AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY id`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query due rules: %w", err)
	}
	defer rows.Close()

	var out []core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due rules: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SaveRule(ctx context.Context, rule core.Rule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_rules
		SET name = ?, kind = ?, amount = ?, category_id = ?, bank_id = ?, asset_id = ?,
		    frequency = ?, day_of_month = ?, day_of_week = ?,
		    start_date = ?, end_date = ?, next_run_at = ?, is_active = ?
		WHERE id = ? AND user_id = ? AND deleted = 0`,
		rule.Name, string(rule.Kind), rule.Amount.String(),
		nullInt(rule.CategoryID), nullInt(rule.BankID), nullInt(rule.AssetID),
		string(rule.Frequency), nullIntVal(rule.DayOfMonth), nullIntVal(rule.DayOfWeek),
		nullTime(rule.StartDate), nullTime(rule.EndDate), nullTime(rule.NextRunAt),
		rule.IsActive,
		rule.ID, rule.UserID)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	return requireRow(res, rule.ID)
}

func (r *SQLiteRepository) SoftDeleteRule(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_rules
		SET deleted = 1, is_active = 0, next_run_at = NULL
		WHERE id = ? AND user_id = ? AND deleted = 0`, id, userID)
	if err != nil {
		return fmt.Errorf("soft delete rule %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %d: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.Rule, error) {
	var (
		rule       core.Rule
		kind, freq string
		amount     string
		categoryID sql.NullInt64
		bankID     sql.NullInt64
		assetID    sql.NullInt64
		dayOfMonth sql.NullInt64
		dayOfWeek  sql.NullInt64
		startDate  sql.NullTime
		endDate    sql.NullTime
		nextRunAt  sql.NullTime
	)
	err := row.Scan(&rule.ID, &rule.UserID, &rule.Name, &kind, &amount,
		&categoryID, &bankID, &assetID, &freq, &dayOfMonth, &dayOfWeek,
		&startDate, &endDate, &nextRunAt, &rule.IsActive, &rule.Deleted)
	if err != nil {
		return core.Rule{}, err
	}

	rule.Kind = core.RuleKind(kind)
	rule.Frequency = core.Frequency(freq)
	if rule.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Rule{}, fmt.Errorf("parse rule amount %q: %w", amount, err)
	}
	rule.CategoryID = int64Ptr(categoryID)
	rule.BankID = int64Ptr(bankID)
	rule.AssetID = int64Ptr(assetID)
	rule.DayOfMonth = intPtr(dayOfMonth)
	rule.DayOfWeek = intPtr(dayOfWeek)
	rule.StartDate = timePtr(startDate)
	rule.EndDate = timePtr(endDate)
	rule.NextRunAt = timePtr(nextRunAt)
	return rule, nil
}

// --- transactions ---

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, category_id, bank_id, asset_id, amount, date, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, nullInt(t.CategoryID), nullInt(t.BankID), nullInt(t.AssetID),
		t.Amount.String(), t.Date.UTC(), t.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

func (r *SQLiteRepository) SumAbsAmount(ctx context.Context, userID, categoryID int64, w core.Window) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT amount
		FROM transactions
		WHERE user_id = ? AND category_id = ? AND deleted = 0
		  AND date BETWEEN ? AND ?`,
		userID, categoryID, w.Start, w.End)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query transaction amounts: %w", err)
	}
	defer rows.Close()
	return sumAmounts(rows)
}

func sumAmounts(rows *sql.Rows) (decimal.Decimal, error) {
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		total = total.Add(d.Abs())
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate amounts: %w", err)
	}
	return total, nil
}

// --- budgets ---

const budgetColumns = `id, user_id, category_id, name, amount, period, start_date, end_date, deleted`

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, category_id, name, amount, period, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.CategoryID, b.Name, b.Amount.String(), string(b.Period),
		nullTime(b.StartDate), nullTime(b.EndDate))
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget insert id: %w", err)
	}
	b.ID = id
	return b, nil
}

func (r *SQLiteRepository) FindBudgetsByUser(ctx context.Context, userID int64) ([]core.Budget, error) {
	return r.queryBudgets(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets
		WHERE user_id = ? AND deleted = 0
		ORDER BY id`, userID)
}

func (r *SQLiteRepository) FindBudgetsByCategory(ctx context.Context, userID, categoryID int64) ([]core.Budget, error) {
	return r.queryBudgets(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets
		WHERE user_id = ? AND category_id = ? AND deleted = 0
		ORDER BY id`, userID, categoryID)
}

func (r *SQLiteRepository) queryBudgets(ctx context.Context, query string, args ...any) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b       core.Budget
			amount  string
			period  string
			startAt sql.NullTime
			endAt   sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Name, &amount,
			&period, &startAt, &endAt, &b.Deleted); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse budget amount %q: %w", amount, err)
		}
		b.Period = core.Period(period)
		b.StartDate = timePtr(startAt)
		b.EndDate = timePtr(endAt)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// --- notifications ---

func (r *SQLiteRepository) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	var data any
	if n.Data != nil {
		encoded, err := json.Marshal(n.Data)
		if err != nil {
			return core.Notification{}, fmt.Errorf("marshal notification data: %w", err)
		}
		data = string(encoded)
	}

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications
			(user_id, type, severity, title, message, data, budget_id, window_start, window_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Type, string(n.Severity), n.Title, n.Message, data,
		nullInt(n.BudgetID), nullTime(n.WindowStart), nullTime(n.WindowEnd), createdAt.UTC())
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Notification{}, fmt.Errorf("notification insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = createdAt
	return n, nil
}

// ExistsForWindow reports whether a notification of the given type for the
// budget was already created inside the window. Runs on the dedup index.
func (r *SQLiteRepository) ExistsForWindow(ctx context.Context, userID int64, ntype string, budgetID int64, w core.Window) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = ? AND type = ? AND budget_id = ? AND deleted = 0
			  AND created_at BETWEEN ? AND ?
		)`, userID, ntype, budgetID, w.Start, w.End).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification window: %w", err)
	}
	return exists, nil
}

// --- insight aggregates ---

func (r *SQLiteRepository) UserIDsWithTransactions(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM transactions WHERE deleted = 0 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users with transactions: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return out, nil
}

// SumExpenses totals the user's spending in expense categories inside the
// window. Direction comes from the category type.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, userID int64, w core.Window) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.amount
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.deleted = 0 AND c.type = 'expense'
		  AND t.date BETWEEN ? AND ?`,
		userID, w.Start, w.End)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query expense amounts: %w", err)
	}
	defer rows.Close()
	return sumAmounts(rows)
}

func (r *SQLiteRepository) SumExpensesByCategory(ctx context.Context, userID int64, w core.Window) ([]core.CategorySum, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, t.amount
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.deleted = 0 AND c.type = 'expense'
		  AND t.date BETWEEN ? AND ?
		ORDER BY c.id`,
		userID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query category amounts: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]*core.CategorySum)
	var order []int64
	for rows.Next() {
		var (
			id   int64
			name string
			raw  string
		)
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return nil, fmt.Errorf("scan category amount: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		cs, ok := totals[id]
		if !ok {
			cs = &core.CategorySum{CategoryID: id, CategoryName: name}
			totals[id] = cs
			order = append(order, id)
		}
		cs.Total = cs.Total.Add(d.Abs())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category amounts: %w", err)
	}

	out := make([]core.CategorySum, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	return out, nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name, categoryType string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name, type) VALUES (?, ?, ?)`,
		userID, name, categoryType)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category insert id: %w", err)
	}
	return id, nil
}

// --- scan/bind helpers ---

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullIntVal(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
