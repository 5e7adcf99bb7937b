package services

import (
	"context"
	"fmt"
	"time"

	"duit/internal/core"
)

// RuleService owns the recurring-rule lifecycle. next_run_at is computed on
// creation and recomputed whenever a schedule-relevant field changes or the
// rule is reactivated, always re-anchored strictly after the current clock.
type RuleService struct {
	rules RuleStore
	clock Clock
}

func NewRuleService(rules RuleStore, clock Clock) *RuleService {
	return &RuleService{rules: rules, clock: clock}
}

// Create validates the rule and stores it with its first occurrence
// computed. Inactive rules are stored with a null next_run_at.
func (s *RuleService) Create(ctx context.Context, r core.Rule) (core.Rule, error) {
	if err := r.Validate(); err != nil {
		return core.Rule{}, fmt.Errorf("validate rule: %w", err)
	}
	r.Deleted = false
	s.reschedule(&r)

	created, err := s.rules.CreateRule(ctx, r)
	if err != nil {
		return core.Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return created, nil
}

// Update persists user edits. When the frequency, day-of-week, day-of-month,
// start date or active flag changed, next_run_at is recomputed from now.
func (s *RuleService) Update(ctx context.Context, r core.Rule) (core.Rule, error) {
	if err := r.Validate(); err != nil {
		return core.Rule{}, fmt.Errorf("validate rule: %w", err)
	}

	old, err := s.rules.GetRule(ctx, r.UserID, r.ID)
	if err != nil {
		return core.Rule{}, fmt.Errorf("load rule %d: %w", r.ID, err)
	}

	if scheduleChanged(old, r) {
		s.reschedule(&r)
	} else {
		r.NextRunAt = old.NextRunAt
	}

	if err := s.rules.SaveRule(ctx, r); err != nil {
		return core.Rule{}, fmt.Errorf("save rule %d: %w", r.ID, err)
	}
	return r, nil
}

// SetActive flips the active flag. Reactivation recomputes next_run_at from
// the reactivation point; deactivation clears it.
func (s *RuleService) SetActive(ctx context.Context, userID, id int64, active bool) (core.Rule, error) {
	r, err := s.rules.GetRule(ctx, userID, id)
	if err != nil {
		return core.Rule{}, fmt.Errorf("load rule %d: %w", id, err)
	}
	r.IsActive = active
	s.reschedule(&r)
	if err := s.rules.SaveRule(ctx, r); err != nil {
		return core.Rule{}, fmt.Errorf("save rule %d: %w", id, err)
	}
	return r, nil
}

// Delete soft-deletes the rule. Rules are never hard-deleted.
func (s *RuleService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.rules.SoftDeleteRule(ctx, userID, id); err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	return nil
}

func (s *RuleService) reschedule(r *core.Rule) {
	if next, ok := core.FirstRun(*r, s.clock.Now()); ok {
		r.NextRunAt = &next
	} else {
		r.NextRunAt = nil
	}
}

func scheduleChanged(old, new core.Rule) bool {
	return old.Frequency != new.Frequency ||
		!eqIntPtr(old.DayOfMonth, new.DayOfMonth) ||
		!eqIntPtr(old.DayOfWeek, new.DayOfWeek) ||
		!eqTimePtr(old.StartDate, new.StartDate) ||
		old.IsActive != new.IsActive
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
