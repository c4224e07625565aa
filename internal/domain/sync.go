package domain

import "time"

// SyncJob is a snapshot of an expense queued for journal delivery, plus its
// retry bookkeeping. Exhausted jobs move verbatim to the dead-letter list.
type SyncJob struct {
	Expense  Expense   `json:"expense"`
	Retries  int       `json:"retries"`
	AddedAt  time.Time `json:"addedAt"`
	FailedAt time.Time `json:"failedAt,omitempty"`
}

// SyncStatus is the queue's introspection snapshot.
type SyncStatus struct {
	Enabled     bool `json:"enabled"`
	Syncing     bool `json:"syncing"`
	QueueLength int  `json:"queueLength"`
	Pending     bool `json:"pending"`
}
