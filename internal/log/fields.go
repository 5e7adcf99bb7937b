package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldUserID        = "user_id"
	FieldRuleID        = "rule_id"
	FieldBudgetID      = "budget_id"
	FieldCategoryID    = "category_id"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldFrequency     = "frequency"
	FieldProgress      = "progress"
	FieldWindowStart   = "window_start"
	FieldWindowEnd     = "window_end"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentRecurring = "recurring"
	ComponentBudget    = "budget"
	ComponentInsight   = "insight"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpRun      = "run"
	OpNotify   = "notify"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithUser adds user ID field
func (f LogFields) WithUser(userID int64) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithRule adds rule-related fields
func (f LogFields) WithRule(ruleID int64, frequency string) LogFields {
	f[FieldRuleID] = ruleID
	f[FieldFrequency] = frequency
	return f
}

// WithBudget adds budget-related fields
func (f LogFields) WithBudget(budgetID int64, progress float64) LogFields {
	f[FieldBudgetID] = budgetID
	f[FieldProgress] = progress
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
