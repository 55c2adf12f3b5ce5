package cost

import "fmt"

// BudgetExceededError rejects a request when hard-fail budgets are reached.
type BudgetExceededError struct {
	Period string
	Spent  float64
	Limit  float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s translation budget exceeded: spent $%.2f of $%.2f", e.Period, e.Spent, e.Limit)
}
