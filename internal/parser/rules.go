// Package parser is a lightweight rules-based fallback extractor, used when
// the inference channel is unavailable: regex guessing over the raw text
// instead of a model call.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
)

const fallbackConfidence = 0.4

type RulesParser struct{}

func NewRulesParser() *RulesParser { return &RulesParser{} }

var (
	priceRe = regexp.MustCompile(`(?i)(?:\$|usd)?\s*([0-9]+(?:\.[0-9]{1,2})?)`)
	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), // YYYY-MM-DD
		regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`), // MM/DD/YYYY
		regexp.MustCompile(`\b(\d{2})-(\d{2})-(\d{4})\b`), // MM-DD-YYYY
	}
	atMerchantRe = regexp.MustCompile(`(?i)\bat\s+([A-Za-z][\w'&. -]{1,40})`)
)

// Parse guesses expense fields from a free-form description such as
// "spent $12.50 at Corner Cafe for lunch".
func (p *RulesParser) Parse(text string) domain.ExtractedExpense {
	text = normalize(text)
	return domain.ExtractedExpense{
		Amount:     guessAmount(text),
		Merchant:   guessMerchant(text),
		Date:       guessDate(text),
		Category:   guessCategory(text),
		Items:      []string{},
		Confidence: fallbackConfidence,
		Raw:        text,
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func guessAmount(txt string) float64 {
	if m := priceRe.FindStringSubmatch(txt); len(m) >= 2 {
		v, err := domain.ParseAmount(m[1])
		if err == nil {
			return v
		}
	}
	return 0
}

func guessMerchant(txt string) string {
	if m := atMerchantRe.FindStringSubmatch(txt); len(m) >= 2 {
		candidate := strings.TrimSpace(m[1])
		// Trim trailing prepositional tails: "Cafe for lunch" -> "Cafe".
		for _, cut := range []string{" for ", " on ", " with "} {
			if i := strings.Index(strings.ToLower(candidate), cut); i > 0 {
				candidate = candidate[:i]
			}
		}
		if candidate != "" {
			return candidate
		}
	}
	return domain.DefaultMerchant
}

func guessDate(txt string) string {
	for i, r := range dateRes {
		m := r.FindStringSubmatch(txt)
		if len(m) != 4 {
			continue
		}
		if i == 0 {
			return m[1] + "-" + m[2] + "-" + m[3]
		}
		return m[3] + "-" + m[1] + "-" + m[2]
	}
	return time.Now().Format(domain.DateLayout)
}

var categoryHints = map[string][]string{
	"Food & Dining":     {"lunch", "dinner", "breakfast", "cafe", "coffee", "restaurant", "food"},
	"Groceries":         {"grocery", "groceries", "market", "supermarket"},
	"Transportation":    {"taxi", "uber", "bus", "train", "gas", "fuel", "parking"},
	"Shopping":          {"store", "shop", "mall", "clothes", "amazon"},
	"Entertainment":     {"movie", "cinema", "concert", "game", "ticket"},
	"Health":            {"pharmacy", "doctor", "dentist", "clinic", "gym"},
	"Bills & Utilities": {"bill", "electric", "water", "internet", "phone", "rent"},
}

func guessCategory(txt string) string {
	l := strings.ToLower(txt)
	for _, category := range domain.Categories {
		for _, hint := range categoryHints[category] {
			if strings.Contains(l, hint) {
				return category
			}
		}
	}
	return "Uncategorized"
}
