package domain

// Budget holds spending limits per period, in whole currency units.
type Budget struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
}

var DefaultBudget = Budget{Daily: 200, Weekly: 1400, Monthly: 6000}

// BudgetStatus reports spending against one budget limit.
type BudgetStatus struct {
	Spent      float64 `json:"spent"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
	Remaining  float64 `json:"remaining"`
	Status     string  `json:"status"` // good | warning | over
}

// BudgetState classifies spending against a limit: under 70% is "good",
// under 90% is "warning", anything above is "over".
func BudgetState(spent, limit float64) string {
	if limit <= 0 {
		return "over"
	}
	pct := spent / limit * 100
	switch {
	case pct < 70:
		return "good"
	case pct < 90:
		return "warning"
	default:
		return "over"
	}
}
