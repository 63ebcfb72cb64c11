package domain

type InsightType string

const (
	InsightTypeCritical   InsightType = "critical"
	InsightTypeWarning    InsightType = "warning"
	InsightTypeSuccess    InsightType = "success"
	InsightTypeSuggestion InsightType = "suggestion"
)

type InsightPriority int

const (
	PriorityLow    InsightPriority = 1
	PriorityMedium InsightPriority = 2
	PriorityHigh   InsightPriority = 3
)

type InsightSubject string

const (
	InsightSubjectSavings InsightSubject = "savings"
	InsightSubjectIncome  InsightSubject = "income"
	InsightSubjectGoal    InsightSubject = "goal"
	InsightSubjectBudget  InsightSubject = "budget"
)

type Insight struct {
	Type     InsightType     `json:"type"`
	Subject  InsightSubject  `json:"subject"`
	Message  string          `json:"message"`
	Priority InsightPriority `json:"priority"`
	GoalID   *int32          `json:"goalId,omitempty"`
	BudgetID *int32          `json:"budgetId,omitempty"`
}
