package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"duit/internal/core"
)

// fakeClock pins "now" for deterministic window and recurrence arithmetic.
type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

var errStoreDown = errors.New("store down")

type fakeRuleStore struct {
	mu      sync.Mutex
	rules   map[int64]core.Rule
	nextID  int64
	failFor map[int64]bool // SaveRule fails for these rule IDs
}

func newFakeRuleStore(rules ...core.Rule) *fakeRuleStore {
	s := &fakeRuleStore{rules: make(map[int64]core.Rule), failFor: make(map[int64]bool)}
	for _, r := range rules {
		s.rules[r.ID] = r
		if r.ID > s.nextID {
			s.nextID = r.ID
		}
	}
	return s
}

func (s *fakeRuleStore) CreateRule(ctx context.Context, r core.Rule) (core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.rules[r.ID] = r
	return r, nil
}

func (s *fakeRuleStore) GetRule(ctx context.Context, userID, id int64) (core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID || r.Deleted {
		return core.Rule{}, core.ErrNotFound
	}
	return r, nil
}

func (s *fakeRuleStore) FindDueRules(ctx context.Context, now time.Time) ([]core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Rule
	for _, r := range s.rules {
		if r.IsActive && !r.Deleted && r.NextRunAt != nil && !r.NextRunAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRuleStore) SaveRule(ctx context.Context, r core.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[r.ID] {
		return errStoreDown
	}
	if _, ok := s.rules[r.ID]; !ok {
		return core.ErrNotFound
	}
	s.rules[r.ID] = r
	return nil
}

func (s *fakeRuleStore) SoftDeleteRule(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID || r.Deleted {
		return core.ErrNotFound
	}
	r.Deleted = true
	r.IsActive = false
	r.NextRunAt = nil
	s.rules[id] = r
	return nil
}

func (s *fakeRuleStore) get(id int64) core.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id]
}

type fakeTransactionStore struct {
	mu          sync.Mutex
	txns        []core.Transaction
	nextID      int64
	failForUser int64 // InsertTransaction fails for this user when set
}

func (s *fakeTransactionStore) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failForUser != 0 && t.UserID == s.failForUser {
		return core.Transaction{}, errStoreDown
	}
	s.nextID++
	t.ID = s.nextID
	s.txns = append(s.txns, t)
	return t, nil
}

func (s *fakeTransactionStore) SumAbsAmount(ctx context.Context, userID, categoryID int64, w core.Window) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, t := range s.txns {
		if t.UserID != userID || t.Deleted {
			continue
		}
		if t.CategoryID == nil || *t.CategoryID != categoryID {
			continue
		}
		if !w.Contains(t.Date) {
			continue
		}
		total = total.Add(t.Amount.Abs())
	}
	return total, nil
}

func (s *fakeTransactionStore) all() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txns...)
}

type fakeBudgetStore struct {
	budgets []core.Budget
}

func (s *fakeBudgetStore) FindBudgetsByUser(ctx context.Context, userID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID && !b.Deleted {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBudgetStore) FindBudgetsByCategory(ctx context.Context, userID, categoryID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID && b.CategoryID == categoryID && !b.Deleted {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeNotificationStore struct {
	mu     sync.Mutex
	notes  []core.Notification
	nextID int64
}

func (s *fakeNotificationStore) InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	s.notes = append(s.notes, n)
	return n, nil
}

// ExistsForWindow mirrors the SQL dedup query: same user, type and budget
// with created_at inside the window.
func (s *fakeNotificationStore) ExistsForWindow(ctx context.Context, userID int64, ntype string, budgetID int64, w core.Window) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.UserID != userID || n.Type != ntype || n.Deleted {
			continue
		}
		if n.BudgetID == nil || *n.BudgetID != budgetID {
			continue
		}
		if w.Contains(n.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeNotificationStore) byType(ntype string) []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.notes {
		if n.Type == ntype {
			out = append(out, n)
		}
	}
	return out
}

type fakeInsightStore struct {
	users      []int64
	expenses   map[int64]map[time.Time]decimal.Decimal // userID -> window start -> total
	categories map[int64][]core.CategorySum
}

func (s *fakeInsightStore) UserIDsWithTransactions(ctx context.Context) ([]int64, error) {
	return s.users, nil
}

func (s *fakeInsightStore) SumExpenses(ctx context.Context, userID int64, w core.Window) (decimal.Decimal, error) {
	if byWindow, ok := s.expenses[userID]; ok {
		if total, ok := byWindow[w.Start]; ok {
			return total, nil
		}
	}
	return decimal.Zero, nil
}

func (s *fakeInsightStore) SumExpensesByCategory(ctx context.Context, userID int64, w core.Window) ([]core.CategorySum, error) {
	return s.categories[userID], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

// newNotifier wires a NotificationService over the fake store with no AMQP
// client, the same shape production uses when events are disabled.
func newNotifier(store *fakeNotificationStore, clock Clock) *NotificationService {
	return NewNotificationService(store, nil, clock)
}
