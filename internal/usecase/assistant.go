package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/correlator"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/parser"
)

const (
	extractionTimeout = 15 * time.Second
	insightsTimeout   = 10 * time.Second
	voiceParseTimeout = 10 * time.Second
)

// Requester issues correlated inference requests.
type Requester interface {
	SendRequest(typ, message string, timeout time.Duration) *correlator.Future
}

// Assistant wraps the inference channel with the three user-facing
// operations: receipt extraction, voice parsing and spending insights.
// Voice parsing degrades to a local rules parser when no channel is
// attached.
type Assistant struct {
	requests Requester
	rules    *parser.RulesParser
	log      zerolog.Logger
}

func NewAssistant(requests Requester, log zerolog.Logger) *Assistant {
	return &Assistant{
		requests: requests,
		rules:    parser.NewRulesParser(),
		log:      log.With().Str("component", "assistant").Logger(),
	}
}

// ExtractExpenseData asks the inference service to pull structured expense
// fields out of a receipt image. voiceContext, when non-empty, is what the
// user said while capturing.
func (a *Assistant) ExtractExpenseData(ctx context.Context, imageBase64, voiceContext string) (domain.ExtractedExpense, error) {
	prompt := buildExtractionPrompt(imageBase64, voiceContext)
	return a.awaitExpense(ctx, correlator.TypeExpenseExtraction, prompt, extractionTimeout)
}

// ParseVoiceExpense turns a transcribed spoken description into structured
// expense fields, falling back to the rules parser when the inference
// channel is unavailable.
func (a *Assistant) ParseVoiceExpense(ctx context.Context, transcribed string) (domain.ExtractedExpense, error) {
	prompt := buildVoiceParsePrompt(transcribed)
	extracted, err := a.awaitExpense(ctx, correlator.TypeVoiceParse, prompt, voiceParseTimeout)
	if errors.Is(err, domain.ErrTransportUnavailable) {
		a.log.Warn().Msg("inference channel unavailable, using rules parser")
		return a.rules.Parse(transcribed), nil
	}
	return extracted, err
}

// GenerateInsights summarizes the given expenses for a time range.
func (a *Assistant) GenerateInsights(ctx context.Context, expenses []domain.Expense, timeRange string) (domain.Insights, error) {
	prompt := buildInsightsPrompt(expenses, timeRange)
	value, err := a.requests.SendRequest(correlator.TypeInsights, prompt, insightsTimeout).Wait(ctx)
	if err != nil {
		return domain.Insights{}, err
	}
	insights, ok := value.(domain.Insights)
	if !ok {
		return domain.Insights{}, fmt.Errorf("%w: unexpected insights payload %T", domain.ErrResponseValidation, value)
	}
	return insights, nil
}

func (a *Assistant) awaitExpense(ctx context.Context, typ, prompt string, timeout time.Duration) (domain.ExtractedExpense, error) {
	value, err := a.requests.SendRequest(typ, prompt, timeout).Wait(ctx)
	if err != nil {
		return domain.ExtractedExpense{}, err
	}
	extracted, ok := value.(domain.ExtractedExpense)
	if !ok {
		return domain.ExtractedExpense{}, fmt.Errorf("%w: unexpected expense payload %T", domain.ErrResponseValidation, value)
	}
	a.log.Debug().Str("type", typ).Float64("amount", extracted.Amount).Str("merchant", extracted.Merchant).
		Msg("expense extracted")
	return extracted, nil
}
