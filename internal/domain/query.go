package domain

// DateRange is an inclusive day-granularity range, both ends YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Filters select query candidates. They are mutually exclusive in priority
// order: DateRange > Category > Merchant > none (all records).
type Filters struct {
	DateRange *DateRange
	Category  string
	Merchant  string
}

type Page struct {
	Offset int
	Limit  int
}

var DefaultPage = Page{Offset: 0, Limit: 50}

// QueryResult is one window of a date-descending query. Total counts all
// candidates before windowing.
type QueryResult struct {
	Expenses []Expense `json:"expenses"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}
