package budget

import (
	"github.com/capitalize-ai/komo-relay/internal/model"
)

// Report describes what Fit did to a conversation.
type Report struct {
	Before    int
	After     int
	Dropped   int
	Truncated bool
}

// Budgeter fits conversations into a fixed token budget.
// The zero value uses DefaultMaxTokens.
type Budgeter struct {
	MaxTokens int
}

// NewBudgeter creates a budgeter. A non-positive maxTokens selects DefaultMaxTokens.
func NewBudgeter(maxTokens int) Budgeter {
	return Budgeter{MaxTokens: maxTokens}
}

// Limit returns the effective token budget.
func (b Budgeter) Limit() int {
	if b.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return b.MaxTokens
}

// Fit truncates conv only when its estimated cost exceeds the budget.
// The returned conversation never aliases conv.
func (b Budgeter) Fit(conv model.Conversation) (model.Conversation, Report) {
	before := EstimateConversation(conv)
	report := Report{Before: before, After: before}

	if before <= b.Limit() {
		return conv.Clone(), report
	}

	out := Truncate(conv, b.Limit())
	report.After = EstimateConversation(out)
	report.Dropped = len(conv) - len(out)
	report.Truncated = true
	return out, report
}
