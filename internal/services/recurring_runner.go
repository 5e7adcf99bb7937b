package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"duit/internal/core"
)

// recurringDescriptionPrefix tags machine-generated transactions so they
// are distinguishable from manual entries.
const recurringDescriptionPrefix = "[RECURRING] "

type ruleOutcome int

const (
	outcomeCreated ruleOutcome = iota
	outcomeExpired
)

// RunStats summarizes one batch pass over the due rules.
type RunStats struct {
	Due     int64
	Created int64
	Expired int64
	Failed  int64
}

// RecurringRunner materializes transactions from due recurring rules. It is
// a single-pass batch: one invocation pulls every due rule, processes each
// independently, and returns. Distinct rules touch disjoint rows, so they
// run on a bounded worker pool with no ordering guarantee; a failure in one
// rule never aborts the rest. The external scheduler is expected to prevent
// overlapping batch runs.
type RecurringRunner struct {
	rules    RuleStore
	txns     TransactionStore
	budgets  *BudgetService
	notifier Notifier
	clock    Clock
	workers  int
}

func NewRecurringRunner(rules RuleStore, txns TransactionStore, budgets *BudgetService, notifier Notifier, clock Clock, workers int) *RecurringRunner {
	if workers < 1 {
		workers = 1
	}
	return &RecurringRunner{
		rules:    rules,
		txns:     txns,
		budgets:  budgets,
		notifier: notifier,
		clock:    clock,
		workers:  workers,
	}
}

// Run processes all rules due at the current clock time.
func (r *RecurringRunner) Run(ctx context.Context) (RunStats, error) {
	now := r.clock.Now()

	due, err := r.rules.FindDueRules(ctx, now)
	if err != nil {
		return RunStats{}, fmt.Errorf("find due rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing due recurring rules",
		"due", len(due),
		"run_date", now.Format("2006-01-02"))

	var created, expired, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, rule := range due {
		rule := rule
		g.Go(func() error {
			outcome, err := r.processRule(ctx, rule, now)
			switch {
			case err != nil:
				// The rule's next_run_at was not advanced, so it
				// stays due and is retried on the next batch.
				failed.Add(1)
				slog.ErrorContext(ctx, "Failed to process recurring rule",
					"rule_id", rule.ID,
					"name", rule.Name,
					"error", err)
			case outcome == outcomeExpired:
				expired.Add(1)
			default:
				created.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are counted

	stats := RunStats{
		Due:     int64(len(due)),
		Created: created.Load(),
		Expired: expired.Load(),
		Failed:  failed.Load(),
	}

	slog.InfoContext(ctx, "Recurring rule processing complete",
		"due", stats.Due,
		"created", stats.Created,
		"expired", stats.Expired,
		"failed", stats.Failed)

	return stats, nil
}

// processRule handles one rule: expire it, or create its transaction,
// notify, re-check budgets and advance next_run_at. The rule is only
// advanced after the transaction has been durably created.
func (r *RecurringRunner) processRule(ctx context.Context, rule core.Rule, now time.Time) (ruleOutcome, error) {
	if rule.ExpiredAt(now) {
		rule.IsActive = false
		rule.NextRunAt = nil
		if err := r.rules.SaveRule(ctx, rule); err != nil {
			return 0, fmt.Errorf("deactivate expired rule: %w", err)
		}
		slog.InfoContext(ctx, "Recurring rule expired, deactivated",
			"rule_id", rule.ID,
			"name", rule.Name)
		return outcomeExpired, nil
	}

	ts := now
	if rule.NextRunAt != nil {
		ts = *rule.NextRunAt
	}

	txn, err := r.txns.InsertTransaction(ctx, core.Transaction{
		UserID:      rule.UserID,
		CategoryID:  rule.CategoryID,
		BankID:      rule.BankID,
		AssetID:     rule.AssetID,
		Amount:      rule.Amount,
		Date:        ts,
		Description: recurringDescriptionPrefix + rule.Name,
	})
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}

	// Notification and budget re-check are best-effort; the transaction
	// is already durable.
	data := map[string]any{"transaction_id": txn.ID}
	if rule.CategoryID != nil {
		data["category_id"] = *rule.CategoryID
	}
	if _, err := r.notifier.Create(ctx, core.Notification{
		UserID:   rule.UserID,
		Type:     core.TypeTransactionCreated,
		Severity: core.SeveritySuccess,
		Title:    "Recurring transaction",
		Message: fmt.Sprintf("Recurring transaction %q of %s was created automatically.",
			rule.Name, rule.Amount.StringFixed(2)),
		Data: data,
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to create transaction notification",
			"rule_id", rule.ID,
			"error", err)
	}

	if rule.CategoryID != nil {
		if _, err := r.budgets.OnTransactionChanged(ctx, rule.UserID, *rule.CategoryID); err != nil {
			slog.ErrorContext(ctx, "Failed to re-evaluate budgets",
				"rule_id", rule.ID,
				"category_id", *rule.CategoryID,
				"error", err)
		}
	}

	if next, ok := core.NextRun(rule, now); ok {
		rule.NextRunAt = &next
	} else {
		rule.NextRunAt = nil
	}
	if err := r.rules.SaveRule(ctx, rule); err != nil {
		return 0, fmt.Errorf("advance rule after transaction %d: %w", txn.ID, err)
	}

	slog.InfoContext(ctx, "Created transaction from recurring rule",
		"rule_id", rule.ID,
		"transaction_id", txn.ID,
		"amount", rule.Amount.StringFixed(2),
		"frequency", rule.Frequency)

	return outcomeCreated, nil
}
