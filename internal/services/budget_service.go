package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"duit/internal/core"
)

// DefaultThreshold is the notification threshold applied when configuration
// supplies none: 80% of the budget ceiling.
const DefaultThreshold = 0.8

// windowTimeLayout is how window bounds are rendered inside notification
// payloads.
const windowTimeLayout = "2006-01-02 15:04:05"

type (
	// Evaluation is the result of checking one budget against its window.
	Evaluation struct {
		Spent     decimal.Decimal
		Remaining decimal.Decimal
		Amount    decimal.Decimal
		Progress  decimal.Decimal // percent, 2 decimals, capped at 100
		Window    core.Window
	}

	// BudgetResult pairs a budget with its evaluation, for callers that
	// evaluate several budgets in one pass.
	BudgetResult struct {
		Budget core.Budget
		Eval   Evaluation
	}
)

// BudgetService evaluates budget consumption and emits threshold
// notifications with at-most-one-per-window duplicate suppression.
type BudgetService struct {
	budgets   BudgetStore
	txns      TransactionStore
	notes     NotificationStore
	notifier  Notifier
	clock     Clock
	threshold float64 // raw configured value, normalized per call
}

func NewBudgetService(budgets BudgetStore, txns TransactionStore, notes NotificationStore, notifier Notifier, clock Clock, threshold float64) *BudgetService {
	return &BudgetService{
		budgets:   budgets,
		txns:      txns,
		notes:     notes,
		notifier:  notifier,
		clock:     clock,
		threshold: threshold,
	}
}

// NormalizeThreshold accepts a threshold given either as a percentage
// (e.g. 80) or a fraction (e.g. 0.8) and returns a fraction in (0, 1].
// Absent or non-positive input falls back to DefaultThreshold.
func NormalizeThreshold(raw float64) float64 {
	if raw > 1 {
		raw = raw / 100
	}
	if raw <= 0 {
		return DefaultThreshold
	}
	if raw > 1 {
		return 1
	}
	return raw
}

// Compute derives the budget's current window and aggregates spending
// inside it. Spent and remaining are rounded to two decimals; remaining is
// floored at zero and progress is capped at 100.
func (s *BudgetService) Compute(ctx context.Context, b core.Budget) (Evaluation, error) {
	w := core.BudgetWindow(b, s.clock.Now())

	spent, err := s.txns.SumAbsAmount(ctx, b.UserID, b.CategoryID, w)
	if err != nil {
		return Evaluation{}, fmt.Errorf("sum transactions for budget %d: %w", b.ID, err)
	}
	spent = spent.Round(2)

	return Evaluation{
		Spent:     spent,
		Remaining: core.Remaining(b.Amount, spent),
		Amount:    b.Amount,
		Progress:  core.Progress(spent, b.Amount),
		Window:    w,
	}, nil
}

// MaybeNotify emits a budget_threshold notification when progress has
// reached the threshold, unless one already exists for this budget inside
// the current window. Returns nil without error when suppressed.
func (s *BudgetService) MaybeNotify(ctx context.Context, b core.Budget, eval Evaluation, threshold float64) (*core.Notification, error) {
	th := NormalizeThreshold(threshold)
	if eval.Progress.LessThan(decimal.NewFromFloat(th * 100)) {
		return nil, nil
	}

	exists, err := s.notes.ExistsForWindow(ctx, b.UserID, core.TypeBudgetThreshold, b.ID, eval.Window)
	if err != nil {
		return nil, fmt.Errorf("check existing threshold notification: %w", err)
	}
	if exists {
		return nil, nil
	}

	name := b.Name
	if name == "" {
		name = "-"
	}
	msg := fmt.Sprintf("Budget %q has reached %s%% of its %s ceiling.",
		name, eval.Progress.StringFixed(2), eval.Amount.StringFixed(2))

	// The payload repeats budget id and window bounds so the suppression
	// query can be re-derived from the event alone.
	n := core.Notification{
		UserID:      b.UserID,
		Type:        core.TypeBudgetThreshold,
		Severity:    core.SeverityWarning,
		Title:       "Budget almost exhausted",
		Message:     msg,
		BudgetID:    &b.ID,
		WindowStart: &eval.Window.Start,
		WindowEnd:   &eval.Window.End,
		Data: map[string]any{
			"budget_id":    b.ID,
			"category_id":  b.CategoryID,
			"progress":     eval.Progress.InexactFloat64(),
			"threshold":    th * 100,
			"spent":        eval.Spent.InexactFloat64(),
			"amount":       eval.Amount.InexactFloat64(),
			"window_start": eval.Window.Start.Format(windowTimeLayout),
			"window_end":   eval.Window.End.Format(windowTimeLayout),
		},
	}

	created, err := s.notifier.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("create threshold notification: %w", err)
	}
	return &created, nil
}

// EvaluateForUser evaluates every non-deleted budget the user owns. A
// failure on one budget is logged and does not stop the others.
func (s *BudgetService) EvaluateForUser(ctx context.Context, userID int64) ([]BudgetResult, error) {
	budgets, err := s.budgets.FindBudgetsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find budgets for user %d: %w", userID, err)
	}
	return s.evaluate(ctx, budgets), nil
}

// EvaluateForCategory evaluates the user's budgets tied to one category.
// Called after a transaction in that category is created or changed.
func (s *BudgetService) EvaluateForCategory(ctx context.Context, userID, categoryID int64) ([]BudgetResult, error) {
	budgets, err := s.budgets.FindBudgetsByCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("find budgets for category %d: %w", categoryID, err)
	}
	return s.evaluate(ctx, budgets), nil
}

// OnTransactionChanged is the hook invoked after a transaction mutation has
// been committed for the given category.
func (s *BudgetService) OnTransactionChanged(ctx context.Context, userID, categoryID int64) ([]BudgetResult, error) {
	return s.EvaluateForCategory(ctx, userID, categoryID)
}

func (s *BudgetService) evaluate(ctx context.Context, budgets []core.Budget) []BudgetResult {
	results := make([]BudgetResult, 0, len(budgets))
	for _, b := range budgets {
		eval, err := s.Compute(ctx, b)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to compute budget",
				"budget_id", b.ID,
				"error", err)
			continue
		}
		results = append(results, BudgetResult{Budget: b, Eval: eval})

		if _, err := s.MaybeNotify(ctx, b, eval, s.threshold); err != nil {
			slog.ErrorContext(ctx, "Failed to emit budget threshold notification",
				"budget_id", b.ID,
				"error", err)
		}
	}
	return results
}
