package correlator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

// parseResponse extracts the structured payload from an inbound message and
// validates it for the request kind. A string payload that is not valid JSON
// is surfaced as raw content rather than rejected.
func parseResponse(typ string, msg ports.InboundMessage) (any, error) {
	payload, err := extractPayload(msg)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeExpenseExtraction, TypeVoiceParse:
		return validateExpense(payload)
	case TypeInsights:
		return validateInsights(payload), nil
	default:
		return payload, nil
	}
}

func extractPayload(msg ports.InboundMessage) (map[string]any, error) {
	if msg.Data != nil {
		switch data := msg.Data.(type) {
		case string:
			return parseOrRaw(data), nil
		case map[string]any:
			return data, nil
		default:
			return map[string]any{"raw": fmt.Sprint(data)}, nil
		}
	}
	if msg.Message != "" {
		return parseOrRaw(msg.Message), nil
	}
	return nil, fmt.Errorf("%w: no data in inference response", domain.ErrResponseValidation)
}

func parseOrRaw(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{"raw": s}
	}
	return m
}

// validateExpense requires a coercible amount or a raw fallback, then fills
// defaults for everything else.
func validateExpense(m map[string]any) (domain.ExtractedExpense, error) {
	amount, present := coerceAmount(m["amount"])
	raw := stringField(m, "raw")
	if !present && raw == "" {
		return domain.ExtractedExpense{}, fmt.Errorf("%w: missing amount in expense data", domain.ErrResponseValidation)
	}

	merchant := stringField(m, "merchant")
	if merchant == "" {
		merchant = stringField(m, "vendor")
	}
	if merchant == "" {
		merchant = domain.DefaultMerchant
	}
	date := stringField(m, "date")
	if date == "" {
		date = time.Now().Format(domain.DateLayout)
	}
	category := stringField(m, "category")
	if category == "" {
		category = "Uncategorized"
	}
	confidence := numberField(m, "confidence")
	if confidence == 0 {
		confidence = 0.8
	}

	return domain.ExtractedExpense{
		Amount:      amount,
		Merchant:    merchant,
		Date:        date,
		Category:    category,
		Description: stringField(m, "description"),
		Items:       stringSliceField(m, "items"),
		Confidence:  confidence,
		Raw:         raw,
	}, nil
}

// validateInsights always succeeds; every missing field gets a default.
func validateInsights(m map[string]any) domain.Insights {
	out := domain.Insights{
		Total:       stringField(m, "total"),
		TopCategory: stringField(m, "topCategory"),
		Comparison:  stringField(m, "comparison"),
		Tip:         stringField(m, "tip"),
		Raw:         m,
	}
	if out.Total == "" {
		out.Total = "$0"
	}
	if out.TopCategory == "" {
		out.TopCategory = "None"
	}
	if out.Comparison == "" {
		out.Comparison = "N/A"
	}
	if out.Tip == "" {
		out.Tip = "Keep tracking your expenses!"
	}
	return out
}

// coerceAmount accepts a non-negative number or a numeric-looking string
// (non-numeric characters stripped, which drops any sign). present reports
// whether the field carried a usable non-empty value; a failed string parse
// coerces to 0 but still counts as present, matching the original firmware's
// lenient handling. Negative numbers are treated as unusable.
func coerceAmount(v any) (amount float64, present bool) {
	switch a := v.(type) {
	case float64:
		if a < 0 {
			return 0, false
		}
		return a, a != 0
	case json.Number:
		f, _ := a.Float64()
		if f < 0 {
			return 0, false
		}
		return f, f != 0
	case string:
		if a == "" {
			return 0, false
		}
		parsed, err := domain.ParseAmount(a)
		if err != nil {
			return 0, true
		}
		return parsed, true
	default:
		return 0, false
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func stringSliceField(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
