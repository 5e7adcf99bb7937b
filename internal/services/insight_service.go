package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"duit/internal/core"
)

const (
	// changeAlertPercent is the month-over-month increase, in percent,
	// above which a spending-change insight is emitted.
	changeAlertPercent = 20

	// suggestionSharePercent is the share of total monthly spending one
	// category must reach before a category suggestion is emitted.
	suggestionSharePercent = 25
)

// suggestionMinAmount filters out categories whose absolute spend is too
// small to be worth a suggestion, whatever their share.
var suggestionMinAmount = decimal.NewFromInt(50)

type (
	// SpendingChange compares the current month's expenses to the
	// previous month's. ChangePercent is unset when the previous month
	// had no spending.
	SpendingChange struct {
		Current       decimal.Decimal
		Previous      decimal.Decimal
		ChangePercent *decimal.Decimal
	}

	// Suggestion flags one category that dominates the month's spending.
	Suggestion struct {
		CategoryID   int64
		CategoryName string
		Amount       decimal.Decimal
		SharePercent decimal.Decimal
		Advice       string
	}
)

// InsightService produces smart insights: month-over-month spending deltas
// and per-category saving suggestions, fanned out as notifications by the
// periodic batch.
type InsightService struct {
	store    InsightStore
	notifier Notifier
	clock    Clock
}

func NewInsightService(store InsightStore, notifier Notifier, clock Clock) *InsightService {
	return &InsightService{store: store, notifier: notifier, clock: clock}
}

// MonthlySpendingChange sums expenses for the calendar month containing now
// and for the month before it. The previous window is derived by stepping
// one day before the current month's start, so year boundaries need no
// special casing.
func (s *InsightService) MonthlySpendingChange(ctx context.Context, userID int64) (SpendingChange, error) {
	now := s.clock.Now()
	this := core.RangeFor(core.RangeMonth, now)
	prev := core.RangeFor(core.RangeMonth, this.Start.AddDate(0, 0, -1))

	current, err := s.store.SumExpenses(ctx, userID, this)
	if err != nil {
		return SpendingChange{}, fmt.Errorf("sum current month expenses: %w", err)
	}
	previous, err := s.store.SumExpenses(ctx, userID, prev)
	if err != nil {
		return SpendingChange{}, fmt.Errorf("sum previous month expenses: %w", err)
	}

	change := SpendingChange{
		Current:  current.Round(2),
		Previous: previous.Round(2),
	}
	if previous.IsPositive() {
		pct := current.Sub(previous).
			Div(previous).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		change.ChangePercent = &pct
	}
	return change, nil
}

// CategorySuggestions returns saving advice for categories that both exceed
// the minimum spend and take at least suggestionSharePercent of the month's
// total expenses.
func (s *InsightService) CategorySuggestions(ctx context.Context, userID int64) ([]Suggestion, error) {
	w := core.RangeFor(core.RangeMonth, s.clock.Now())

	sums, err := s.store.SumExpensesByCategory(ctx, userID, w)
	if err != nil {
		return nil, fmt.Errorf("sum expenses by category: %w", err)
	}

	total := decimal.Zero
	for _, cs := range sums {
		total = total.Add(cs.Total)
	}
	if !total.IsPositive() {
		return nil, nil
	}

	minShare := decimal.NewFromInt(suggestionSharePercent)
	var out []Suggestion
	for _, cs := range sums {
		if cs.Total.LessThan(suggestionMinAmount) {
			continue
		}
		share := cs.Total.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		if share.LessThan(minShare) {
			continue
		}
		out = append(out, Suggestion{
			CategoryID:   cs.CategoryID,
			CategoryName: cs.CategoryName,
			Amount:       cs.Total.Round(2),
			SharePercent: share,
			Advice:       adviceFor(cs.CategoryName),
		})
	}
	return out, nil
}

// RunForAllUsers generates insights for every user with transaction history
// and emits them as smart_insight notifications. A failure for one user is
// logged and the batch continues; the number of notifications created is
// returned.
func (s *InsightService) RunForAllUsers(ctx context.Context) (int, error) {
	users, err := s.store.UserIDsWithTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users with transactions: %w", err)
	}

	slog.InfoContext(ctx, "Generating smart insights", "users", len(users))

	created := 0
	for _, userID := range users {
		n, err := s.runForUser(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to generate insights for user",
				"user_id", userID,
				"error", err)
			continue
		}
		created += n
	}

	slog.InfoContext(ctx, "Smart insight generation complete",
		"users", len(users),
		"notifications", created)
	return created, nil
}

func (s *InsightService) runForUser(ctx context.Context, userID int64) (int, error) {
	created := 0

	change, err := s.MonthlySpendingChange(ctx, userID)
	if err != nil {
		return created, err
	}
	if n, ok := spendingChangeNotification(userID, change); ok {
		if _, err := s.notifier.Create(ctx, n); err != nil {
			return created, fmt.Errorf("create spending change notification: %w", err)
		}
		created++
	}

	suggestions, err := s.CategorySuggestions(ctx, userID)
	if err != nil {
		return created, err
	}
	for _, sg := range suggestions {
		if _, err := s.notifier.Create(ctx, suggestionNotification(userID, sg)); err != nil {
			return created, fmt.Errorf("create suggestion notification: %w", err)
		}
		created++
	}
	return created, nil
}

// spendingChangeNotification maps a month-over-month change onto a
// notification. Only increases above changeAlertPercent produce one.
func spendingChangeNotification(userID int64, c SpendingChange) (core.Notification, bool) {
	if c.ChangePercent == nil {
		return core.Notification{}, false
	}
	pct := *c.ChangePercent
	if pct.LessThanOrEqual(decimal.NewFromInt(changeAlertPercent)) {
		return core.Notification{}, false
	}
	return core.Notification{
		UserID:   userID,
		Type:     core.TypeSmartInsight,
		Severity: core.SeverityWarning,
		Title:    "Spending is up this month",
		Message: fmt.Sprintf("You spent %s this month, %s%% more than last month's %s.",
			c.Current.StringFixed(2), pct.StringFixed(2), c.Previous.StringFixed(2)),
		Data: map[string]any{
			"insight":        "spending_change",
			"current":        c.Current.InexactFloat64(),
			"previous":       c.Previous.InexactFloat64(),
			"change_percent": pct.InexactFloat64(),
		},
	}, true
}

func suggestionNotification(userID int64, sg Suggestion) core.Notification {
	return core.Notification{
		UserID:   userID,
		Type:     core.TypeSmartInsight,
		Severity: core.SeverityInfo,
		Title:    fmt.Sprintf("%s dominates your spending", sg.CategoryName),
		Message: fmt.Sprintf("%s accounts for %s%% of this month's expenses (%s). %s",
			sg.CategoryName, sg.SharePercent.StringFixed(2), sg.Amount.StringFixed(2), sg.Advice),
		Data: map[string]any{
			"insight":       "category_suggestion",
			"category_id":   sg.CategoryID,
			"category_name": sg.CategoryName,
			"amount":        sg.Amount.InexactFloat64(),
			"share_percent": sg.SharePercent.InexactFloat64(),
		},
	}
}

// adviceFor picks a canned tip by keyword in the category name, falling
// back to generic advice.
func adviceFor(category string) string {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "food") || strings.Contains(c, "restaurant") || strings.Contains(c, "dining"):
		return "Cooking at home a few more nights could bring this down."
	case strings.Contains(c, "subscription") || strings.Contains(c, "streaming"):
		return "Review active subscriptions and cancel the ones you no longer use."
	case strings.Contains(c, "transport") || strings.Contains(c, "fuel") || strings.Contains(c, "taxi"):
		return "Consider pooling rides or public transport for regular trips."
	case strings.Contains(c, "shopping") || strings.Contains(c, "clothes"):
		return "Try a short waiting period before non-essential purchases."
	default:
		return "Setting a budget for this category can help keep it in check."
	}
}
