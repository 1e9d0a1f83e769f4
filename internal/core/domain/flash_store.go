package domain

import "context"

// FlashStore defines the contract for transient per-session flash queues.
// Flashes are single-read: Consume returns the queued messages and clears
// the queue in one atomic step.
type FlashStore interface {
	// Push appends a flash to the session's queue.
	Push(ctx context.Context, sessionToken string, flash Flash) error

	// Consume returns all queued flashes in push order and clears the queue.
	// Returns an empty slice when nothing is queued.
	Consume(ctx context.Context, sessionToken string) ([]Flash, error)
}
