package domain

import (
	"context"
	"errors"
)

// ErrDuplicateUser is returned by Create when the username or email is
// already taken. The repository maps storage-level unique violations to this
// error so the check-then-create race between concurrent registrations is
// closed by the database constraint, not by the lookup.
var ErrDuplicateUser = errors.New("duplicate user")

// UserRow represents a user record returned from the database.
// It includes the password hash so the Logic layer can verify credentials.
type UserRow struct {
	ID           int
	Username     string
	Email        string
	PasswordHash string
}

// UserRepository defines the data-access contract for user operations.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only — never on SQL or pgx directly.
type UserRepository interface {
	// GetByUsername returns the user matching the given username.
	// Returns (nil, nil) when no user is found.
	GetByUsername(ctx context.Context, username string) (*UserRow, error)

	// GetByUsernameOrEmail returns the user whose username or email equals
	// the given login identifier. Returns (nil, nil) when no user is found.
	GetByUsernameOrEmail(ctx context.Context, login string) (*UserRow, error)

	// GetByID returns the user with the given id.
	// Returns (nil, nil) when no user is found.
	GetByID(ctx context.Context, id int) (*UserRow, error)

	// ExistsByUsernameOrEmail returns true when a user with the given
	// username or email already exists.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// Create inserts a new user and returns the generated user ID.
	// Returns ErrDuplicateUser when the username or email is taken.
	Create(ctx context.Context, username, email, passwordHash string) (int, error)

	// List returns all users without their password hashes, ordered by id.
	List(ctx context.Context) ([]User, error)

	// UpdateLastLogin sets the last_login timestamp to now for the given user.
	UpdateLastLogin(ctx context.Context, userID int) error
}
