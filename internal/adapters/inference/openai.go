package inference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

const openaiCallTimeout = 2 * time.Minute

// OpenAIChannel adapts the OpenAI chat-completion API onto the asynchronous
// channel contract: each Send spawns a completion call and the result is
// delivered to the inbound handler with the request metadata echoed back.
// A failed call delivers nothing; the caller's deadline handles it.
type OpenAIChannel struct {
	client *openai.Client
	model  string
	log    zerolog.Logger

	mu      sync.Mutex
	handler func(ports.InboundMessage)
}

func NewOpenAIChannel(apiKey, model string, log zerolog.Logger) *OpenAIChannel {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIChannel{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.With().Str("component", "inference-openai").Logger(),
	}
}

func (o *OpenAIChannel) SetHandler(h func(ports.InboundMessage)) {
	o.mu.Lock()
	o.handler = h
	o.mu.Unlock()
}

func (o *OpenAIChannel) Send(_ context.Context, msg ports.OutboundMessage) error {
	go o.complete(msg)
	return nil
}

func (o *OpenAIChannel) complete(msg ports.OutboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), openaiCallTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: msg.Message},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		o.log.Error().Err(err).Str("correlationId", msg.Metadata.CorrelationID).
			Msg("completion call failed")
		return
	}
	if len(resp.Choices) == 0 {
		o.log.Warn().Str("correlationId", msg.Metadata.CorrelationID).Msg("completion returned no choices")
		return
	}

	o.mu.Lock()
	handler := o.handler
	o.mu.Unlock()
	if handler == nil {
		return
	}

	metadata := msg.Metadata
	handler(ports.InboundMessage{
		Data:     resp.Choices[0].Message.Content,
		Metadata: &metadata,
	})
}
