package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
)

func buildExtractionPrompt(imageBase64, voiceContext string) string {
	var b strings.Builder
	b.WriteString("Analyze this receipt image and extract expense details.")
	if voiceContext != "" {
		fmt.Fprintf(&b, " User said: %q", voiceContext)
	}

	fmt.Fprintf(&b, `

Return ONLY valid JSON in this exact format:
{
  "amount": "12.50",
  "merchant": "Store Name",
  "date": "%s",
  "category": "Groceries",
  "items": ["item1", "item2", "item3"],
  "confidence": 0.9
}

Categories: %s

Image data: %s...`,
		time.Now().Format(domain.DateLayout),
		strings.Join(domain.Categories, ", "),
		truncate(imageBase64, 100),
	)
	return b.String()
}

func buildVoiceParsePrompt(text string) string {
	return fmt.Sprintf(`Parse this spoken expense description: %q

Extract the expense details and return ONLY valid JSON:
{
  "amount": "XX.XX",
  "merchant": "Name",
  "category": "Category",
  "date": "%s",
  "description": "brief description"
}

Categories: %s

If amount or merchant is unclear, make best guess.`,
		text,
		time.Now().Format(domain.DateLayout),
		strings.Join(domain.Categories, ", "),
	)
}

func buildInsightsPrompt(expenses []domain.Expense, timeRange string) string {
	var total float64
	byCategory := make(map[string]float64)
	for _, e := range expenses {
		total += e.AmountValue()
		byCategory[e.Category] += e.AmountValue()
	}

	topCategory := "None"
	var topAmount float64
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		if byCategory[c] > topAmount {
			topCategory, topAmount = c, byCategory[c]
		}
	}

	categoriesJSON, _ := json.Marshal(byCategory)

	recent := expenses
	if len(recent) > 10 {
		recent = recent[:10]
	}
	var lines []string
	for _, e := range recent {
		lines = append(lines, fmt.Sprintf("- $%s at %s (%s)", e.Amount, e.Merchant, e.Category))
	}

	return fmt.Sprintf(`Analyze these expenses for the past %s:

Total spent: $%.2f
Number of expenses: %d
Top category: %s ($%.2f)
All categories: %s

Recent expenses:
%s

Provide insights and return ONLY valid JSON:
{
  "total": "$%.2f",
  "topCategory": "%s",
  "comparison": "comparison to previous period",
  "tip": "actionable money-saving tip"
}`,
		timeRange, total, len(expenses), topCategory, topAmount, categoriesJSON,
		strings.Join(lines, "\n"), total, topCategory,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
