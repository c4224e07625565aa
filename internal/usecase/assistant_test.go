package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cp25sy5-modjot/expense-engine/internal/correlator"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

// echoChannel answers every send with a canned payload, carrying the
// request's metadata back like the real inference service does.
type echoChannel struct {
	mu      sync.Mutex
	reply   map[string]any
	handler func(ports.InboundMessage)
	prompts []string
}

func (e *echoChannel) Send(_ context.Context, msg ports.OutboundMessage) error {
	e.mu.Lock()
	e.prompts = append(e.prompts, msg.Message)
	handler := e.handler
	reply := e.reply
	metadata := msg.Metadata
	e.mu.Unlock()

	var data any
	if reply != nil {
		data = reply
	}
	go handler(ports.InboundMessage{Data: data, Metadata: &metadata})
	return nil
}

func (e *echoChannel) SetHandler(h func(ports.InboundMessage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *echoChannel) lastPrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		return ""
	}
	return e.prompts[len(e.prompts)-1]
}

func newTestAssistant(reply map[string]any) (*Assistant, *echoChannel) {
	channel := &echoChannel{reply: reply}
	requests := correlator.New(channel, zerolog.Nop(), correlator.WithSendGrace(0))
	return NewAssistant(requests, zerolog.Nop()), channel
}

func TestExtractExpenseData(t *testing.T) {
	assistant, channel := newTestAssistant(map[string]any{
		"amount":   23.4,
		"merchant": "Corner Cafe",
		"category": "Food & Dining",
	})

	extracted, err := assistant.ExtractExpenseData(context.Background(), "aW1hZ2ViYXNlNjQ=", "lunch with team")
	require.NoError(t, err)
	assert.Equal(t, 23.4, extracted.Amount)
	assert.Equal(t, "Corner Cafe", extracted.Merchant)
	assert.Contains(t, channel.lastPrompt(), "lunch with team")
}

func TestParseVoiceExpense(t *testing.T) {
	assistant, channel := newTestAssistant(map[string]any{
		"amount":   8.0,
		"merchant": "Taco Truck",
	})

	extracted, err := assistant.ParseVoiceExpense(context.Background(), "eight dollars at the taco truck")
	require.NoError(t, err)
	assert.Equal(t, "Taco Truck", extracted.Merchant)
	assert.Contains(t, channel.lastPrompt(), "eight dollars at the taco truck")
}

func TestParseVoiceExpenseFallsBackWithoutChannel(t *testing.T) {
	requests := correlator.New(nil, zerolog.Nop())
	assistant := NewAssistant(requests, zerolog.Nop())

	extracted, err := assistant.ParseVoiceExpense(context.Background(), "spent $12.50 at Corner Cafe for lunch")
	require.NoError(t, err)
	assert.Equal(t, 12.5, extracted.Amount)
	assert.Equal(t, "Corner Cafe", extracted.Merchant)
}

func TestGenerateInsights(t *testing.T) {
	assistant, channel := newTestAssistant(map[string]any{
		"total":       "$30.00",
		"topCategory": "Groceries",
		"comparison":  "up from last week",
		"tip":         "Plan meals ahead.",
	})

	expenses := []domain.Expense{
		{Amount: "20.00", Merchant: "Market", Category: "Groceries", Date: "2025-01-14"},
		{Amount: "10.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-15"},
	}
	insights, err := assistant.GenerateInsights(context.Background(), expenses, "week")
	require.NoError(t, err)
	assert.Equal(t, "$30.00", insights.Total)
	assert.Equal(t, "Groceries", insights.TopCategory)
	assert.Contains(t, channel.lastPrompt(), "week")
}

func TestGenerateInsightsPropagatesValidationError(t *testing.T) {
	channel := &echoChannel{} // nil reply: response carries no data
	requests := correlator.New(channel, zerolog.Nop(), correlator.WithSendGrace(0))
	assistant := NewAssistant(requests, zerolog.Nop())

	_, err := assistant.GenerateInsights(context.Background(), nil, "week")
	assert.ErrorIs(t, err, domain.ErrResponseValidation)
}
