package domain

// ExtractedExpense is the validated result of a receipt-extraction or
// voice-parse request. Raw carries the unparsed payload when the inference
// service returned something that was not structured data.
type ExtractedExpense struct {
	Amount      float64  `json:"amount"`
	Merchant    string   `json:"merchant"`
	Date        string   `json:"date"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Items       []string `json:"items"`
	Confidence  float64  `json:"confidence"`
	Raw         string   `json:"raw,omitempty"`
}

// Insights is the validated result of an insights request. Every field has a
// default, so validation never fails for this kind.
type Insights struct {
	Total       string         `json:"total"`
	TopCategory string         `json:"topCategory"`
	Comparison  string         `json:"comparison"`
	Tip         string         `json:"tip"`
	Raw         map[string]any `json:"raw,omitempty"`
}
