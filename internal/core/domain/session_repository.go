package domain

import (
	"context"
	"time"
)

// SessionRow represents a session joined with its owner user, returned by
// session lookup queries. User is nil for anonymous sessions and for
// sessions whose user has since been deleted.
type SessionRow struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// SessionRepository defines the data-access contract for session operations.
// Implementations live in internal/core/repository (Core layer).
type SessionRepository interface {
	// Create inserts a new session. userID is nil for anonymous sessions.
	Create(ctx context.Context, token string, userID *int, expiresAt time.Time) error

	// Get looks up a session by token together with its user, when any.
	// Returns (nil, nil) when the token does not match any session.
	Get(ctx context.Context, token string) (*SessionRow, error)

	// SetUser attaches a user to an existing session.
	SetUser(ctx context.Context, token string, userID int) error

	// ClearUser detaches the user from a session, leaving the session row in
	// place so queued flashes still render after logout.
	ClearUser(ctx context.Context, token string) error

	// Delete removes a session row. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes all sessions past their expiry and returns the
	// number of rows deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
