package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expense is a single tracked expense record. ID and Timestamp are assigned
// on first save and never change afterwards.
type Expense struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"` // fixed 2-decimal string, e.g. "12.50"
	Merchant    string    `json:"merchant"`
	Category    string    `json:"category"`
	Date        string    `json:"date"` // normalized as YYYY-MM-DD
	Description string    `json:"description"`
	Items       []string  `json:"items"`
	Timestamp   time.Time `json:"timestamp"`
}

// Categories is the fixed set of expense categories. Anything else is
// coerced to "Other" at save time.
var Categories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Health",
	"Bills & Utilities",
	"Other",
}

const (
	DefaultMerchant  = "Unknown"
	FallbackCategory = "Other"
	DateLayout       = "2006-01-02"
)

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Normalize validates and canonicalizes an expense before it is persisted:
// amount becomes a fixed 2-decimal string, unknown categories collapse to
// "Other", an empty date becomes today, merchant defaults to "Unknown".
func Normalize(e Expense, now time.Time) (Expense, error) {
	amount, err := ParseAmount(e.Amount)
	if err != nil {
		return Expense{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e.Amount = strconv.FormatFloat(amount, 'f', 2, 64)

	if e.Merchant == "" {
		e.Merchant = DefaultMerchant
	}
	if !ValidCategory(e.Category) {
		e.Category = FallbackCategory
	}
	if e.Date == "" {
		e.Date = now.Format(DateLayout)
	} else if t, err := time.Parse(time.RFC3339, e.Date); err == nil {
		e.Date = t.Format(DateLayout)
	}
	if e.Items == nil {
		e.Items = []string{}
	}
	return e, nil
}

// ParseAmount coerces a human-entered amount ("$12.50", "12,50 USD") into a
// non-negative float by stripping everything that is not a digit or a dot.
func ParseAmount(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, fmt.Errorf("amount %q is not numeric", s)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not numeric", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	return v, nil
}

// AmountValue returns the numeric value of the stored amount. Stored amounts
// are normalized, so a parse failure yields 0.
func (e Expense) AmountValue() float64 {
	v, _ := strconv.ParseFloat(e.Amount, 64)
	return v
}
