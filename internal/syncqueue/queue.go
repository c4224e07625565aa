// Package syncqueue delivers "expense logged" entries to the external
// journal, offline-first: jobs queue in memory, drain strictly FIFO with at
// most one delivery attempt in flight, and exhausted jobs land in a bounded
// dead-letter list persisted through the key/value backend.
//
// On a failed attempt the exponential backoff value is computed and logged,
// but the queue re-arms on a fixed interval (60s) instead of that value.
// That fixed cadence is the externally observable contract of the original
// device firmware and is reproduced here deliberately.
package syncqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/codec"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/events"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

const (
	deadLetterKey     = "expense_snap_failed_syncs"
	deadLetterCap     = 100
	defaultMaxRetries = 5
)

// Config carries the queue's timing knobs. Zero values fall back to the
// production defaults; tests shrink them.
type Config struct {
	MaxRetries     int
	AttemptTimeout time.Duration // per delivery attempt
	RetryInterval  time.Duration // fixed re-arm cadence after a failed drain
	MaxBackoff     time.Duration // cap for the computed (logged) backoff
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 60 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

type Queue struct {
	transport ports.JournalTransport
	kv        ports.KV
	bus       *events.Bus
	log       zerolog.Logger
	cfg       Config

	mu      sync.Mutex
	jobs    []domain.SyncJob
	syncing bool
	enabled bool
	closed  bool
	rearm   *time.Timer
}

func New(transport ports.JournalTransport, kv ports.KV, bus *events.Bus, log zerolog.Logger, cfg Config) *Queue {
	return &Queue{
		transport: transport,
		kv:        kv,
		bus:       bus,
		log:       log.With().Str("component", "syncqueue").Logger(),
		cfg:       cfg.withDefaults(),
		enabled:   true,
	}
}

// SetEnabled flips the sync policy. Enabling with pending jobs triggers a
// drain.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	q.enabled = enabled
	pending := len(q.jobs) > 0
	q.mu.Unlock()

	if enabled && pending {
		q.kick()
	}
}

func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// Enqueue appends a sync job for the expense and triggers a drain. When
// syncing is disabled the job is dropped outright, not queued; the caller
// never learns of delivery failures either way (fire-and-forget).
func (q *Queue) Enqueue(e domain.Expense) {
	q.mu.Lock()
	if !q.enabled || q.closed {
		q.mu.Unlock()
		q.log.Debug().Str("id", e.ID).Msg("journal sync disabled, dropping job")
		return
	}
	q.jobs = append(q.jobs, domain.SyncJob{
		Expense: e,
		Retries: 0,
		AddedAt: time.Now(),
	})
	q.mu.Unlock()

	q.kick()
}

// kick starts a drain goroutine unless one is already running.
func (q *Queue) kick() {
	q.mu.Lock()
	if q.syncing || q.closed || !q.enabled || len(q.jobs) == 0 {
		q.mu.Unlock()
		return
	}
	q.syncing = true
	queued := len(q.jobs)
	q.mu.Unlock()

	q.bus.Emit(events.SyncStarted, domain.SyncStatus{
		Enabled:     true,
		Syncing:     true,
		QueueLength: queued,
		Pending:     true,
	})
	go q.drain()
}

// drain processes the queue head-first until empty or until an attempt
// fails with retry budget left. Exhausted jobs move to the dead-letter list
// and the drain continues with the next job.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 || q.closed {
			q.mu.Unlock()
			break
		}
		job := q.jobs[0]
		q.mu.Unlock()

		err := q.deliver(job)
		if err == nil {
			q.pop()
			q.bus.Emit(events.Synced, job)
			continue
		}

		q.log.Error().Err(err).Str("id", job.Expense.ID).Msg("journal sync failed")

		q.mu.Lock()
		if len(q.jobs) == 0 { // cleared while delivering
			q.mu.Unlock()
			break
		}
		q.jobs[0].Retries++
		job = q.jobs[0]
		q.mu.Unlock()

		if job.Retries > q.cfg.MaxRetries {
			q.log.Warn().Str("id", job.Expense.ID).Int("retries", job.Retries).
				Msg("giving up on sync job, moving to dead letter")
			q.pop()
			job.FailedAt = time.Now()
			q.persistDeadLetter(job)
			q.bus.Emit(events.SyncFailed, job)
			continue
		}

		backoff := q.backoff(job.Retries)
		q.log.Info().Dur("backoff", backoff).Int("retries", job.Retries).
			Int("maxRetries", q.cfg.MaxRetries).Msg("sync attempt failed, will retry")
		break
	}

	q.mu.Lock()
	q.syncing = false
	remaining := len(q.jobs)
	if remaining > 0 && !q.closed {
		// Fixed re-arm cadence, not the computed backoff.
		q.rearm = time.AfterFunc(q.cfg.RetryInterval, q.kick)
	}
	q.mu.Unlock()

	if remaining == 0 {
		q.bus.Emit(events.SyncCompleted, nil)
	}
}

func (q *Queue) deliver(job domain.SyncJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.AttemptTimeout)
	defer cancel()
	return q.transport.Deliver(ctx, FormatEntry(job.Expense))
}

func (q *Queue) pop() {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		q.jobs = q.jobs[1:]
	}
	q.mu.Unlock()
}

func (q *Queue) backoff(retries int) time.Duration {
	d := time.Second << uint(retries)
	if d > q.cfg.MaxBackoff {
		d = q.cfg.MaxBackoff
	}
	return d
}

// FormatEntry composes the plain-text journal message for an expense.
func FormatEntry(e domain.Expense) string {
	parts := []string{
		fmt.Sprintf("Expense logged: $%s", e.Amount),
		fmt.Sprintf("at %s", e.Merchant),
		fmt.Sprintf("for %s", e.Category),
	}
	if len(e.Items) > 0 {
		parts = append(parts, "Items: "+strings.Join(e.Items, ", "))
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	return strings.Join(parts, " ")
}

// persistDeadLetter appends the job to the persisted dead-letter list,
// keeping only the most recent entries. Persistence failures are logged and
// swallowed; the dead-letter list is best effort.
func (q *Queue) persistDeadLetter(job domain.SyncJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.AttemptTimeout)
	defer cancel()

	failed, _ := q.readDeadLetters(ctx)
	failed = append(failed, job)
	if len(failed) > deadLetterCap {
		failed = failed[len(failed)-deadLetterCap:]
	}
	encoded, err := codec.Encode(failed)
	if err != nil {
		q.log.Error().Err(err).Msg("failed to encode dead-letter list")
		return
	}
	if err := q.kv.Set(ctx, deadLetterKey, encoded); err != nil {
		q.log.Error().Err(err).Msg("failed to persist dead-letter list")
	}
}

func (q *Queue) readDeadLetters(ctx context.Context) ([]domain.SyncJob, error) {
	raw, found, err := q.kv.Get(ctx, deadLetterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	var failed []domain.SyncJob
	if err := codec.Decode(raw, &failed); err != nil {
		q.log.Warn().Err(err).Msg("corrupt dead-letter list, treating as empty")
		return nil, nil
	}
	return failed, nil
}

// FailedSyncs returns the persisted dead-letter list, oldest first.
func (q *Queue) FailedSyncs(ctx context.Context) ([]domain.SyncJob, error) {
	return q.readDeadLetters(ctx)
}

// RetryFailedSyncs moves every dead-letter entry back onto the live queue
// with its retry counter reset, then triggers a drain.
func (q *Queue) RetryFailedSyncs(ctx context.Context) error {
	failed, err := q.readDeadLetters(ctx)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		return nil
	}

	empty, err := codec.Encode([]domain.SyncJob{})
	if err != nil {
		return err
	}
	if err := q.kv.Set(ctx, deadLetterKey, empty); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	q.mu.Lock()
	for _, job := range failed {
		job.Retries = 0
		job.FailedAt = time.Time{}
		q.jobs = append(q.jobs, job)
	}
	q.mu.Unlock()

	q.kick()
	return nil
}

// Status reports the queue's introspection snapshot.
func (q *Queue) Status() domain.SyncStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return domain.SyncStatus{
		Enabled:     q.enabled,
		Syncing:     q.syncing,
		QueueLength: len(q.jobs),
		Pending:     len(q.jobs) > 0,
	}
}

// Clear drops all queued jobs and any scheduled re-arm.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.jobs = nil
	if q.rearm != nil {
		q.rearm.Stop()
		q.rearm = nil
	}
	q.mu.Unlock()
}

// Close stops the queue permanently. Queued jobs are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.jobs = nil
	if q.rearm != nil {
		q.rearm.Stop()
		q.rearm = nil
	}
	q.mu.Unlock()
}
