package ports

import "context"

// JournalTransport delivers one formatted journal entry to the external
// journal. It must resolve within the caller's context deadline or the
// caller counts the attempt as a timeout failure.
type JournalTransport interface {
	Deliver(ctx context.Context, message string) error
}
