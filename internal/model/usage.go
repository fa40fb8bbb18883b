package model

import "time"

// RunType distinguishes the two quota axes: LLM/embedding calls ("ai")
// versus plain API calls such as rerank or maps ("api").
type RunType string

const (
	RunTypeAI  RunType = "ai"
	RunTypeAPI RunType = "api"
)

// UsageRecord is one append-only billing entry. Cost is always >= 0 and a
// record is written only after the corresponding external call completed.
type UsageRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Cost      float64        `json:"cost"`
	Model     string         `json:"model"`
	Feature   string         `json:"feature"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RunType   RunType        `json:"run_type"`
	Billable  bool           `json:"billable"`
	CreatedAt time.Time      `json:"created_at"`
}

// UsageTotals aggregates the current month's usage records for one user.
type UsageTotals struct {
	CostUSD float64 `json:"cost_usd"`
	RunsAI  int     `json:"runs_ai"`
	RunsAPI int     `json:"runs_api"`
}

// BudgetSnapshot is a derived view of a user's remaining monthly budget.
// It is computed on demand from usage records, never stored.
type BudgetSnapshot struct {
	UserID           string    `json:"user_id"`
	Tier             string    `json:"tier"`
	MonthStart       time.Time `json:"month_start"`
	SpentUSD         float64   `json:"spent_usd"`
	RunsAI           int       `json:"runs_ai"`
	RunsAPI          int       `json:"runs_api"`
	MaxCostUSD       float64   `json:"max_cost_usd"`
	MaxRunsAI        int       `json:"max_runs_ai"`
	MaxRunsAPI       int       `json:"max_runs_api"`
	RemainingUSD     float64   `json:"remaining_usd"`
	RemainingRunsAI  int       `json:"remaining_runs_ai"`
	RemainingRunsAPI int       `json:"remaining_runs_api"`
}

// MonthWindow returns the UTC start of the calendar month containing t and
// the start of the following month.
func MonthWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
