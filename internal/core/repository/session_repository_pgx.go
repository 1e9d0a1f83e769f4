package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/webauth-service/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository using pgxpool.
type PgxSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PgxSessionRepository {
	return &PgxSessionRepository{pool: pool}
}

// Create inserts a new session. userID is nil for anonymous sessions.
func (r *PgxSessionRepository) Create(ctx context.Context, token string, userID *int, expiresAt time.Time) error {
	query := `INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, query, token, userID, expiresAt)
	return err
}

// Get looks up a session by token together with its user, when any.
// The LEFT JOIN means a session whose user was deleted comes back with a nil
// User instead of an error, degrading to an anonymous session.
// Returns (nil, nil) when the token does not match any session.
func (r *PgxSessionRepository) Get(ctx context.Context, token string) (*domain.SessionRow, error) {
	query := `
		SELECT s.token, s.expires_at, u.id, u.username, u.email
		FROM sessions s
		LEFT JOIN users u ON s.user_id = u.id
		WHERE s.token = $1
	`

	var (
		row      domain.SessionRow
		id       *int
		username *string
		email    *string
	)
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&row.Token, &row.ExpiresAt, &id, &username, &email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if id != nil && username != nil && email != nil {
		row.User = &domain.User{ID: *id, Username: *username, Email: *email}
	}

	return &row, nil
}

// SetUser attaches a user to an existing session.
func (r *PgxSessionRepository) SetUser(ctx context.Context, token string, userID int) error {
	query := `UPDATE sessions SET user_id = $2 WHERE token = $1`
	_, err := r.pool.Exec(ctx, query, token, userID)
	return err
}

// ClearUser detaches the user from a session, leaving the row in place.
func (r *PgxSessionRepository) ClearUser(ctx context.Context, token string) error {
	query := `UPDATE sessions SET user_id = NULL WHERE token = $1`
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

// Delete removes a session row. Deleting a missing token is not an error.
func (r *PgxSessionRepository) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token = $1`
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

// DeleteExpired removes all sessions past their expiry.
func (r *PgxSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
