package ports

import "context"

// RequestMetadata travels with every outbound inference message and is
// expected back, verbatim, on the matching response.
type RequestMetadata struct {
	CorrelationID string `json:"correlationId"`
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
}

// OutboundMessage is one request to the inference service.
type OutboundMessage struct {
	Message  string          `json:"message"`
	UseLLM   bool            `json:"useLLM"`
	Metadata RequestMetadata `json:"metadata"`
}

// InboundMessage is one asynchronous response from the inference service.
// Data holds the structured payload when present (a map, or a string that
// may itself be JSON); Message is the plain-text fallback. Metadata is nil
// when the host failed to echo the correlation id.
type InboundMessage struct {
	Data     any              `json:"data,omitempty"`
	Message  string           `json:"message,omitempty"`
	Metadata *RequestMetadata `json:"metadata,omitempty"`
}

// InferenceChannel is the single bidirectional channel to the inference
// service: one send primitive plus one inbound handler the host delivers
// responses through, in arbitrary order relative to sends.
type InferenceChannel interface {
	Send(ctx context.Context, msg OutboundMessage) error
	// SetHandler registers the inbound message handler. Must be called
	// before the first response can arrive.
	SetHandler(func(InboundMessage))
}
