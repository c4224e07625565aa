// Package inference provides the channel adapters to the host inference
// service: a websocket for the single bidirectional message channel, and an
// OpenAI-backed adapter that fakes the channel over request/response calls.
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

// WebsocketChannel speaks JSON messages over a single websocket. Outbound
// writes are serialized; inbound messages are pumped to the registered
// handler on a dedicated goroutine.
type WebsocketChannel struct {
	url string
	log zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(ports.InboundMessage)
	done    chan struct{}
}

func NewWebsocketChannel(url string, log zerolog.Logger) *WebsocketChannel {
	return &WebsocketChannel{
		url: url,
		log: log.With().Str("component", "inference-ws").Logger(),
	}
}

// Connect dials the host and starts the read pump. SetHandler should be
// called first so no inbound message is lost.
func (w *WebsocketChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial inference channel: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.readPump(conn)
	return nil
}

func (w *WebsocketChannel) SetHandler(h func(ports.InboundMessage)) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

func (w *WebsocketChannel) Send(_ context.Context, msg ports.OutboundMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("inference channel not connected")
	}
	return w.conn.WriteJSON(msg)
}

func (w *WebsocketChannel) readPump(conn *websocket.Conn) {
	defer close(w.done)
	for {
		var msg ports.InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			w.log.Warn().Err(err).Msg("inference channel read ended")
			return
		}

		w.mu.Lock()
		handler := w.handler
		w.mu.Unlock()
		if handler == nil {
			w.log.Warn().Msg("inbound inference message with no handler registered, dropping")
			continue
		}
		handler(msg)
	}
}

func (w *WebsocketChannel) Close() error {
	w.mu.Lock()
	conn := w.conn
	done := w.done
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}
