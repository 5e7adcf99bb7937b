package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	PeriodMonthly Period = "monthly"
	PeriodWeekly  Period = "weekly"
	PeriodYearly  Period = "yearly"
	PeriodCustom  Period = "custom"
)

const (
	KindIncome  RuleKind = "income"
	KindExpense RuleKind = "expense"
)

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification type tags. budget_threshold payloads must carry the budget id
// and window bounds so the duplicate-suppression query works on replay.
const (
	TypeTransactionCreated = "transaction_created"
	TypeBudgetThreshold    = "budget_threshold"
	TypeSmartInsight       = "smart_insight"
)

type (
	Frequency string
	Period    string
	RuleKind  string
	Severity  string

	// Rule is a recurring-transaction definition. Amount is always a
	// non-negative magnitude; direction is carried by Kind.
	Rule struct {
		ID         int64
		UserID     int64
		Name       string
		Kind       RuleKind
		Amount     decimal.Decimal
		CategoryID *int64
		BankID     *int64
		AssetID    *int64
		Frequency  Frequency
		DayOfMonth *int // 1-31, monthly only
		DayOfWeek  *int // 0=Sunday..6=Saturday, weekly only
		StartDate  *time.Time
		EndDate    *time.Time // inclusive
		NextRunAt  *time.Time
		IsActive   bool
		Deleted    bool
	}

	// Budget is a spending ceiling for one category. The evaluation window
	// is never stored; it is derived from Period and the current clock,
	// except for PeriodCustom which uses StartDate/EndDate.
	Budget struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Name       string
		Amount     decimal.Decimal
		Period     Period
		StartDate  *time.Time
		EndDate    *time.Time
		Deleted    bool
	}

	// Transaction is a single money movement. Amount is stored as a
	// non-negative magnitude; income vs expense is derived from the
	// category's type.
	Transaction struct {
		ID          int64
		UserID      int64
		CategoryID  *int64
		BankID      *int64
		AssetID     *int64
		Amount      decimal.Decimal
		Date        time.Time
		Description string
		Deleted     bool
	}

	Notification struct {
		ID          int64
		UserID      int64
		Type        string
		Severity    Severity
		Title       string
		Message     string
		Data        map[string]any
		BudgetID    *int64
		WindowStart *time.Time
		WindowEnd   *time.Time
		ReadAt      *time.Time
		Deleted     bool
		CreatedAt   time.Time
	}

	// CategorySum is one row of a per-category spending aggregate.
	CategorySum struct {
		CategoryID   int64
		CategoryName string
		Total        decimal.Decimal
	}
)

var (
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidKind       = errors.New("invalid kind")
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrInvalidDayOfWeek  = errors.New("day of week must be between 0 and 6")
	ErrEndBeforeStart    = errors.New("end date must not be before start date")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrMissingWindow     = errors.New("custom period requires start and end dates")
	ErrUnexpectedWindow  = errors.New("start and end dates are only valid for custom period")
	ErrInvalidSeverity   = errors.New("invalid severity")

	// ErrNotFound is returned by stores when a referenced entity does not
	// exist or is soft-deleted. It surfaces to the caller and is never
	// retried.
	ErrNotFound = errors.New("not found")
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (p Period) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodWeekly, PeriodYearly, PeriodCustom:
		return true
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

func (r Rule) Validate() error {
	if len(strings.TrimSpace(r.Name)) == 0 {
		return ErrEmptyName
	}
	if r.Kind != KindIncome && r.Kind != KindExpense {
		return ErrInvalidKind
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		return ErrInvalidDayOfMonth
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return ErrInvalidDayOfWeek
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// ExpiredAt reports whether the rule's end date has passed. The end date is
// inclusive, so a rule expires once it is strictly before the start of the
// current day.
func (r Rule) ExpiredAt(now time.Time) bool {
	if r.EndDate == nil {
		return false
	}
	return r.EndDate.Before(StartOfDay(now))
}

func (b Budget) Validate() error {
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if b.Period == PeriodCustom {
		if b.StartDate == nil || b.EndDate == nil {
			return ErrMissingWindow
		}
		if b.EndDate.Before(*b.StartDate) {
			return ErrEndBeforeStart
		}
		return nil
	}
	if b.StartDate != nil || b.EndDate != nil {
		return ErrUnexpectedWindow
	}
	return nil
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.Type) == "" || strings.TrimSpace(n.Title) == "" {
		return ErrEmptyName
	}
	if !n.Severity.Valid() {
		return ErrInvalidSeverity
	}
	return nil
}
