package services

import (
	"context"
	"testing"
	"time"

	"duit/internal/core"
)

func TestNormalizeThreshold(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{name: "fraction passes through", raw: 0.75, want: 0.75},
		{name: "percentage is scaled", raw: 80, want: 0.8},
		{name: "one hundred percent", raw: 100, want: 1},
		{name: "exactly one", raw: 1, want: 1},
		{name: "zero falls back to default", raw: 0, want: DefaultThreshold},
		{name: "negative falls back to default", raw: -5, want: DefaultThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeThreshold(tt.raw); got != tt.want {
				t.Errorf("NormalizeThreshold(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func budgetFixture(clock fakeClock, budgets []core.Budget) (*BudgetService, *fakeTransactionStore, *fakeNotificationStore) {
	txns := &fakeTransactionStore{}
	notes := &fakeNotificationStore{}
	svc := NewBudgetService(&fakeBudgetStore{budgets: budgets}, txns, notes, newNotifier(notes, clock), clock, 0.8)
	return svc, txns, notes
}

func spend(t *testing.T, txns *fakeTransactionStore, userID, categoryID int64, amount string, on time.Time) {
	t.Helper()
	cat := categoryID
	_, err := txns.InsertTransaction(context.Background(), core.Transaction{
		UserID:     userID,
		CategoryID: &cat,
		Amount:     dec(amount),
		Date:       on,
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
}

func TestBudgetServiceCompute(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budget := core.Budget{ID: 1, UserID: 7, CategoryID: 3, Name: "Groceries", Amount: dec("300"), Period: core.PeriodMonthly}

	svc, txns, _ := budgetFixture(clock, []core.Budget{budget})
	spend(t, txns, 7, 3, "120.50", date(2026, 3, 2))
	spend(t, txns, 7, 3, "99.999", date(2026, 3, 10))
	spend(t, txns, 7, 3, "50", date(2026, 2, 28)) // previous month, outside window
	spend(t, txns, 7, 4, "500", date(2026, 3, 5)) // other category

	eval, err := svc.Compute(context.Background(), budget)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if got, want := eval.Spent, dec("220.50"); !got.Equal(want) {
		t.Errorf("Spent = %s, want %s", got, want)
	}
	if got, want := eval.Remaining, dec("79.50"); !got.Equal(want) {
		t.Errorf("Remaining = %s, want %s", got, want)
	}
	if got, want := eval.Progress, dec("73.5"); !got.Equal(want) {
		t.Errorf("Progress = %s, want %s", got, want)
	}
	if !eval.Window.Start.Equal(date(2026, 3, 1)) {
		t.Errorf("Window.Start = %v, want 2026-03-01", eval.Window.Start)
	}
}

func TestBudgetServiceComputeOverspent(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budget := core.Budget{ID: 1, UserID: 7, CategoryID: 3, Amount: dec("100"), Period: core.PeriodMonthly}

	svc, txns, _ := budgetFixture(clock, []core.Budget{budget})
	spend(t, txns, 7, 3, "250", date(2026, 3, 2))

	eval, err := svc.Compute(context.Background(), budget)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !eval.Progress.Equal(dec("100")) {
		t.Errorf("Progress = %s, want capped at 100", eval.Progress)
	}
	if !eval.Remaining.Equal(dec("0")) {
		t.Errorf("Remaining = %s, want floored at 0", eval.Remaining)
	}
}

func TestBudgetServiceMaybeNotify(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budget := core.Budget{ID: 1, UserID: 7, CategoryID: 3, Name: "Groceries", Amount: dec("100"), Period: core.PeriodMonthly}

	svc, txns, notes := budgetFixture(clock, []core.Budget{budget})
	spend(t, txns, 7, 3, "85", date(2026, 3, 2))

	eval, err := svc.Compute(context.Background(), budget)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	n, err := svc.MaybeNotify(context.Background(), budget, eval, 0.8)
	if err != nil {
		t.Fatalf("MaybeNotify() error = %v", err)
	}
	if n == nil {
		t.Fatal("MaybeNotify() = nil, want a notification at 85% of a 0.8 threshold")
	}
	if n.Type != core.TypeBudgetThreshold {
		t.Errorf("Type = %q, want %q", n.Type, core.TypeBudgetThreshold)
	}
	if n.Severity != core.SeverityWarning {
		t.Errorf("Severity = %q, want warning", n.Severity)
	}
	if n.BudgetID == nil || *n.BudgetID != budget.ID {
		t.Errorf("BudgetID = %v, want %d", n.BudgetID, budget.ID)
	}
	if n.WindowStart == nil || !n.WindowStart.Equal(eval.Window.Start) {
		t.Errorf("WindowStart = %v, want %v", n.WindowStart, eval.Window.Start)
	}
	for _, key := range []string{"budget_id", "category_id", "progress", "threshold", "spent", "amount", "window_start", "window_end"} {
		if _, ok := n.Data[key]; !ok {
			t.Errorf("payload missing key %q", key)
		}
	}

	// Second evaluation in the same window is suppressed.
	again, err := svc.MaybeNotify(context.Background(), budget, eval, 0.8)
	if err != nil {
		t.Fatalf("second MaybeNotify() error = %v", err)
	}
	if again != nil {
		t.Errorf("second MaybeNotify() = %+v, want nil (suppressed)", again)
	}
	if got := len(notes.byType(core.TypeBudgetThreshold)); got != 1 {
		t.Errorf("stored threshold notifications = %d, want 1", got)
	}
}

func TestBudgetServiceMaybeNotifyBelowThreshold(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budget := core.Budget{ID: 1, UserID: 7, CategoryID: 3, Amount: dec("100"), Period: core.PeriodMonthly}

	svc, txns, notes := budgetFixture(clock, []core.Budget{budget})
	spend(t, txns, 7, 3, "50", date(2026, 3, 2))

	eval, err := svc.Compute(context.Background(), budget)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	n, err := svc.MaybeNotify(context.Background(), budget, eval, 0.8)
	if err != nil {
		t.Fatalf("MaybeNotify() error = %v", err)
	}
	if n != nil {
		t.Errorf("MaybeNotify() = %+v, want nil below threshold", n)
	}
	if got := len(notes.byType(core.TypeBudgetThreshold)); got != 0 {
		t.Errorf("stored threshold notifications = %d, want 0", got)
	}
}

func TestBudgetServiceNotifiesAgainInNextWindow(t *testing.T) {
	budget := core.Budget{ID: 1, UserID: 7, CategoryID: 3, Amount: dec("100"), Period: core.PeriodMonthly}

	march := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	txns := &fakeTransactionStore{}
	notes := &fakeNotificationStore{}
	svc := NewBudgetService(&fakeBudgetStore{budgets: []core.Budget{budget}}, txns, notes, newNotifier(notes, march), march, 0.8)

	spend(t, txns, 7, 3, "90", date(2026, 3, 2))
	if _, err := svc.EvaluateForCategory(context.Background(), 7, 3); err != nil {
		t.Fatalf("EvaluateForCategory() error = %v", err)
	}
	if got := len(notes.byType(core.TypeBudgetThreshold)); got != 1 {
		t.Fatalf("march notifications = %d, want 1", got)
	}

	// Same budget in April: the dedup key is the new window, so it fires
	// again.
	april := fakeClock{now: time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)}
	svc = NewBudgetService(&fakeBudgetStore{budgets: []core.Budget{budget}}, txns, notes, newNotifier(notes, april), april, 0.8)
	spend(t, txns, 7, 3, "95", date(2026, 4, 3))
	if _, err := svc.EvaluateForCategory(context.Background(), 7, 3); err != nil {
		t.Fatalf("EvaluateForCategory() error = %v", err)
	}
	if got := len(notes.byType(core.TypeBudgetThreshold)); got != 2 {
		t.Errorf("total notifications = %d, want 2 after the window rolled", got)
	}
}

func TestBudgetServiceEvaluateForUser(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budgets := []core.Budget{
		{ID: 1, UserID: 7, CategoryID: 3, Amount: dec("100"), Period: core.PeriodMonthly},
		{ID: 2, UserID: 7, CategoryID: 4, Amount: dec("200"), Period: core.PeriodMonthly},
		{ID: 3, UserID: 8, CategoryID: 3, Amount: dec("50"), Period: core.PeriodMonthly},
	}

	svc, txns, _ := budgetFixture(clock, budgets)
	spend(t, txns, 7, 3, "10", date(2026, 3, 2))

	results, err := svc.EvaluateForUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("EvaluateForUser() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (only user 7's budgets)", len(results))
	}
	if !results[0].Eval.Spent.Equal(dec("10")) {
		t.Errorf("budget 1 spent = %s, want 10", results[0].Eval.Spent)
	}
	if !results[1].Eval.Spent.Equal(dec("0")) {
		t.Errorf("budget 2 spent = %s, want 0", results[1].Eval.Spent)
	}
}

func TestBudgetServiceCustomWindow(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	budget := core.Budget{
		ID: 1, UserID: 7, CategoryID: 3, Amount: dec("100"), Period: core.PeriodCustom,
		StartDate: datePtr(2026, 3, 10),
		EndDate:   datePtr(2026, 3, 20),
	}

	svc, txns, _ := budgetFixture(clock, []core.Budget{budget})
	spend(t, txns, 7, 3, "30", date(2026, 3, 12))
	spend(t, txns, 7, 3, "30", date(2026, 3, 25)) // after custom window

	eval, err := svc.Compute(context.Background(), budget)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !eval.Spent.Equal(dec("30")) {
		t.Errorf("Spent = %s, want 30 (only the in-window transaction)", eval.Spent)
	}
}
