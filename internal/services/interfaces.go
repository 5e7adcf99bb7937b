// Package services provides business logic and orchestration: budget
// evaluation, recurring-rule processing, rule lifecycle and smart insights.
//
// All collaborators (stores, clock, notification sink) are injected through
// the interfaces below so tests can substitute fakes and fix "now".
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"duit/internal/core"
)

// Clock supplies the current timestamp. Production code uses SystemClock;
// tests pin a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time normalized to UTC, the time zone
// policy applied uniformly across the system.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RuleStore persists recurring rules. Rules are soft-deleted, never removed.
type RuleStore interface {
	CreateRule(ctx context.Context, r core.Rule) (core.Rule, error)
	GetRule(ctx context.Context, userID, id int64) (core.Rule, error)
	// FindDueRules returns active, non-deleted rules whose next_run_at is
	// set and at or before now.
	FindDueRules(ctx context.Context, now time.Time) ([]core.Rule, error)
	SaveRule(ctx context.Context, r core.Rule) error
	SoftDeleteRule(ctx context.Context, userID, id int64) error
}

// TransactionStore is the appendable, queryable ledger of money movements.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// SumAbsAmount sums the absolute magnitudes of non-deleted
	// transactions for one user and category inside the window.
	SumAbsAmount(ctx context.Context, userID, categoryID int64, w core.Window) (decimal.Decimal, error)
}

type BudgetStore interface {
	FindBudgetsByUser(ctx context.Context, userID int64) ([]core.Budget, error)
	FindBudgetsByCategory(ctx context.Context, userID, categoryID int64) ([]core.Budget, error)
}

// NotificationStore is the append-only notification log. ExistsForWindow
// backs the at-most-once-per-window guarantee for threshold notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error)
	ExistsForWindow(ctx context.Context, userID int64, ntype string, budgetID int64, w core.Window) (bool, error)
}

// InsightStore aggregates expense transactions for the insight batch.
// Expense direction is derived from the category's type, not from the
// transaction itself.
type InsightStore interface {
	UserIDsWithTransactions(ctx context.Context) ([]int64, error)
	SumExpenses(ctx context.Context, userID int64, w core.Window) (decimal.Decimal, error)
	SumExpensesByCategory(ctx context.Context, userID int64, w core.Window) ([]core.CategorySum, error)
}

// Notifier persists a notification and fans it out to the event sink.
// Implemented by NotificationService.
type Notifier interface {
	Create(ctx context.Context, n core.Notification) (core.Notification, error)
}
