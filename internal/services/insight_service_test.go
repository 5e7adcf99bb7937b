package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"duit/internal/core"
)

func insightExpenses(userID int64, current, previous string) map[int64]map[time.Time]decimal.Decimal {
	return map[int64]map[time.Time]decimal.Decimal{
		userID: {
			date(2026, 3, 1): dec(current),
			date(2026, 2, 1): dec(previous),
		},
	}
}

func TestInsightServiceMonthlySpendingChange(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{expenses: insightExpenses(7, "600", "400")}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	change, err := svc.MonthlySpendingChange(context.Background(), 7)
	if err != nil {
		t.Fatalf("MonthlySpendingChange() error = %v", err)
	}
	if !change.Current.Equal(dec("600")) {
		t.Errorf("Current = %s, want 600", change.Current)
	}
	if !change.Previous.Equal(dec("400")) {
		t.Errorf("Previous = %s, want 400", change.Previous)
	}
	if change.ChangePercent == nil || !change.ChangePercent.Equal(dec("50")) {
		t.Errorf("ChangePercent = %v, want 50", change.ChangePercent)
	}
}

func TestInsightServiceChangeAcrossYearBoundary(t *testing.T) {
	// January's previous month is December of the prior year.
	clock := fakeClock{now: time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{expenses: map[int64]map[time.Time]decimal.Decimal{
		7: {
			date(2026, 1, 1):  dec("200"),
			date(2025, 12, 1): dec("100"),
		},
	}}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	change, err := svc.MonthlySpendingChange(context.Background(), 7)
	if err != nil {
		t.Fatalf("MonthlySpendingChange() error = %v", err)
	}
	if change.ChangePercent == nil || !change.ChangePercent.Equal(dec("100")) {
		t.Errorf("ChangePercent = %v, want 100", change.ChangePercent)
	}
}

func TestInsightServiceNoPreviousSpending(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{expenses: insightExpenses(7, "600", "0")}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	change, err := svc.MonthlySpendingChange(context.Background(), 7)
	if err != nil {
		t.Fatalf("MonthlySpendingChange() error = %v", err)
	}
	if change.ChangePercent != nil {
		t.Errorf("ChangePercent = %v, want nil when the previous month is empty", change.ChangePercent)
	}
}

func TestInsightServiceCategorySuggestions(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{categories: map[int64][]core.CategorySum{
		7: {
			{CategoryID: 1, CategoryName: "Restaurants", Total: dec("300")}, // 60%
			{CategoryID: 2, CategoryName: "Transport", Total: dec("160")},   // 32%
			{CategoryID: 3, CategoryName: "Books", Total: dec("40")},        // under min amount
		},
	}}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	suggestions, err := svc.CategorySuggestions(context.Background(), 7)
	if err != nil {
		t.Fatalf("CategorySuggestions() error = %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(suggestions))
	}
	if suggestions[0].CategoryName != "Restaurants" {
		t.Errorf("first suggestion = %q, want Restaurants", suggestions[0].CategoryName)
	}
	if !suggestions[0].SharePercent.Equal(dec("60")) {
		t.Errorf("Restaurants share = %s, want 60", suggestions[0].SharePercent)
	}
	if suggestions[0].Advice == "" {
		t.Error("suggestion should carry advice")
	}
}

func TestInsightServiceCategorySuggestionsBelowShare(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{categories: map[int64][]core.CategorySum{
		7: {
			{CategoryID: 1, CategoryName: "A", Total: dec("100")},
			{CategoryID: 2, CategoryName: "B", Total: dec("100")},
			{CategoryID: 3, CategoryName: "C", Total: dec("100")},
			{CategoryID: 4, CategoryName: "D", Total: dec("100")},
			{CategoryID: 5, CategoryName: "E", Total: dec("100")},
		},
	}}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	suggestions, err := svc.CategorySuggestions(context.Background(), 7)
	if err != nil {
		t.Fatalf("CategorySuggestions() error = %v", err)
	}
	// Five even categories at 20% each: none reaches the 25% share.
	if len(suggestions) != 0 {
		t.Errorf("suggestions = %d, want 0", len(suggestions))
	}
}

func TestInsightServiceRunForAllUsers(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{
		users: []int64{7, 8},
		expenses: map[int64]map[time.Time]decimal.Decimal{
			7: {date(2026, 3, 1): dec("600"), date(2026, 2, 1): dec("400")}, // +50%, fires
			8: {date(2026, 3, 1): dec("410"), date(2026, 2, 1): dec("400")}, // +2.5%, quiet
		},
		categories: map[int64][]core.CategorySum{
			7: {{CategoryID: 1, CategoryName: "Restaurants", Total: dec("600")}}, // 100% share
		},
	}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	created, err := svc.RunForAllUsers(context.Background())
	if err != nil {
		t.Fatalf("RunForAllUsers() error = %v", err)
	}
	// User 7: one spending-change alert plus one category suggestion.
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	insights := notes.byType(core.TypeSmartInsight)
	if len(insights) != 2 {
		t.Fatalf("smart_insight notifications = %d, want 2", len(insights))
	}
	for _, n := range insights {
		if n.UserID != 7 {
			t.Errorf("notification for user %d, want only user 7", n.UserID)
		}
	}
}

func TestInsightServiceIncreaseAtThresholdIsQuiet(t *testing.T) {
	clock := fakeClock{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := &fakeInsightStore{
		users:    []int64{7},
		expenses: insightExpenses(7, "480", "400"), // exactly +20%
	}
	notes := &fakeNotificationStore{}
	svc := NewInsightService(store, newNotifier(notes, clock), clock)

	created, err := svc.RunForAllUsers(context.Background())
	if err != nil {
		t.Fatalf("RunForAllUsers() error = %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0 at exactly the alert threshold", created)
	}
}
