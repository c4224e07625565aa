// Package correlator matches asynchronous inference responses to their
// requests over a single shared channel, using a correlation id carried in
// message metadata. Sends are serialized (one in flight, short grace between
// them) and fully decoupled from responses, which may arrive in any order.
package correlator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

// Request kinds understood by response validation.
const (
	TypeExpenseExtraction = "expense_extraction"
	TypeVoiceParse        = "voice_parse"
	TypeInsights          = "insights"
)

const defaultSendGrace = 100 * time.Millisecond

type outcome struct {
	value any
	err   error
}

// Future resolves once the correlated response arrives, the request times
// out, or the table is cleared.
type Future struct {
	ch chan outcome
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-f.ch:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingRequest struct {
	id        string
	typ       string
	future    *Future
	timer     *time.Timer
	createdAt time.Time
}

type sendItem struct {
	correlationID string
	typ           string
	message       string
}

// Option tweaks correlator behavior.
type Option func(*Correlator)

// WithoutFallbackMatch disables the oldest-pending heuristic for responses
// arriving without a correlation id. With more than one outstanding request
// the heuristic can misattribute responses; callers needing correctness
// under concurrency should disable it and accept the drops.
func WithoutFallbackMatch() Option {
	return func(c *Correlator) { c.fallbackMatch = false }
}

// WithSendGrace overrides the pause between consecutive sends.
func WithSendGrace(d time.Duration) Option {
	return func(c *Correlator) { c.sendGrace = d }
}

type Correlator struct {
	channel       ports.InferenceChannel
	log           zerolog.Logger
	fallbackMatch bool
	sendGrace     time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingRequest
	order     []string // pending ids, oldest first
	sendQueue []sendItem
	sending   bool
}

// New builds a correlator over the given channel and registers itself as the
// channel's inbound handler. A nil channel is allowed; every request then
// fails immediately with ErrTransportUnavailable.
func New(channel ports.InferenceChannel, log zerolog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		channel:       channel,
		log:           log.With().Str("component", "correlator").Logger(),
		fallbackMatch: true,
		sendGrace:     defaultSendGrace,
		pending:       make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	if channel != nil {
		channel.SetHandler(c.HandleResponse)
	}
	return c
}

// SendRequest registers a pending request with a deadline, queues the
// message for transmission and returns the future the caller awaits.
func (c *Correlator) SendRequest(typ, message string, timeout time.Duration) *Future {
	future := &Future{ch: make(chan outcome, 1)}

	if c.channel == nil {
		future.ch <- outcome{err: domain.ErrTransportUnavailable}
		return future
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c.mu.Lock()
	id := c.freshID()
	req := &pendingRequest{
		id:        id,
		typ:       typ,
		future:    future,
		createdAt: time.Now(),
	}
	req.timer = time.AfterFunc(timeout, func() { c.expire(id, typ) })
	c.pending[id] = req
	c.order = append(c.order, id)
	c.sendQueue = append(c.sendQueue, sendItem{correlationID: id, typ: typ, message: message})
	start := !c.sending
	if start {
		c.sending = true
	}
	c.mu.Unlock()

	if start {
		go c.drainSends()
	}
	return future
}

// freshID returns a correlation id unique among currently pending requests.
// Caller holds the mutex.
func (c *Correlator) freshID() string {
	for {
		id := uuid.NewString()
		if _, taken := c.pending[id]; !taken {
			return id
		}
	}
}

// drainSends transmits queued messages one at a time, pausing sendGrace
// between them regardless of whether a response has arrived.
func (c *Correlator) drainSends() {
	for {
		c.mu.Lock()
		if len(c.sendQueue) == 0 {
			c.sending = false
			c.mu.Unlock()
			return
		}
		item := c.sendQueue[0]
		c.sendQueue = c.sendQueue[1:]
		c.mu.Unlock()

		msg := ports.OutboundMessage{
			Message: item.message,
			UseLLM:  true,
			Metadata: ports.RequestMetadata{
				CorrelationID: item.correlationID,
				Type:          item.typ,
				Timestamp:     time.Now().UnixMilli(),
			},
		}
		if err := c.channel.Send(context.Background(), msg); err != nil {
			c.log.Error().Err(err).Str("correlationId", item.correlationID).Msg("inference send failed")
			c.reject(item.correlationID, err)
		}

		time.Sleep(c.sendGrace)
	}
}

// HandleResponse matches an inbound message to its pending request. A
// message without a correlation id falls back to the oldest pending request
// (best effort); an unmatched message is dropped with a warning, which is
// not an error condition visible to any caller.
func (c *Correlator) HandleResponse(msg ports.InboundMessage) {
	var id string
	if msg.Metadata != nil {
		id = msg.Metadata.CorrelationID
	}

	c.mu.Lock()
	if id == "" && c.fallbackMatch && len(c.order) > 0 {
		id = c.order[0]
		c.log.Warn().Str("correlationId", id).Msg("response without correlation id, matching oldest pending request")
	}
	req, ok := c.pending[id]
	if ok {
		c.removeLocked(id)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn().Str("correlationId", id).Msg("response without matching request, dropping")
		return
	}
	req.timer.Stop()

	value, err := parseResponse(req.typ, msg)
	if err != nil {
		req.future.ch <- outcome{err: err}
		return
	}
	req.future.ch <- outcome{value: value}
}

// expire fires from the deadline timer: the request is removed and its
// future rejected. A late response will find no match and be dropped.
func (c *Correlator) expire(id, typ string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		c.removeLocked(id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.log.Warn().Str("correlationId", id).Str("type", typ).Msg("inference request timed out")
	req.future.ch <- outcome{err: fmt.Errorf("%w: %s", domain.ErrRequestTimeout, typ)}
}

func (c *Correlator) reject(id string, err error) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		c.removeLocked(id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	req.timer.Stop()
	req.future.ch <- outcome{err: err}
}

// removeLocked drops the request from the table and the age order. Caller
// holds the mutex.
func (c *Correlator) removeLocked(id string) {
	delete(c.pending, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// PendingCount reports currently outstanding requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Clear forcibly rejects every pending request and empties the send queue.
// Used on teardown.
func (c *Correlator) Clear() {
	c.mu.Lock()
	reqs := make([]*pendingRequest, 0, len(c.pending))
	for _, req := range c.pending {
		reqs = append(reqs, req)
	}
	c.pending = make(map[string]*pendingRequest)
	c.order = nil
	c.sendQueue = nil
	c.mu.Unlock()

	for _, req := range reqs {
		req.timer.Stop()
		req.future.ch <- outcome{err: domain.ErrRequestCleared}
	}
}
