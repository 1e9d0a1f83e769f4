package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/webauth-service/internal/core/domain"
)

const uniqueViolationCode = "23505"

// PgxUserRepository implements domain.UserRepository using pgxpool.
type PgxUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PgxUserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PgxUserRepository {
	return &PgxUserRepository{pool: pool}
}

// GetByUsername returns the user matching the given username.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByUsername(ctx context.Context, username string) (*domain.UserRow, error) {
	query := `SELECT id, username, email, password_hash FROM users WHERE username = $1`
	return r.scanOne(ctx, query, username)
}

// GetByUsernameOrEmail returns the user whose username or email equals the
// given login identifier. Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByUsernameOrEmail(ctx context.Context, login string) (*domain.UserRow, error) {
	query := `SELECT id, username, email, password_hash FROM users WHERE username = $1 OR email = $1`
	return r.scanOne(ctx, query, login)
}

// GetByID returns the user with the given id.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByID(ctx context.Context, id int) (*domain.UserRow, error) {
	query := `SELECT id, username, email, password_hash FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgxUserRepository) scanOne(ctx context.Context, query string, arg any) (*domain.UserRow, error) {
	var row domain.UserRow
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&row.ID, &row.Username, &row.Email, &row.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &row, nil
}

// ExistsByUsernameOrEmail returns true when a user with the given
// username or email already exists.
func (r *PgxUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, username, email).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Create inserts a new user and returns the generated user ID.
// Unique constraint violations surface as domain.ErrDuplicateUser, so a
// registration losing the check-then-create race still resolves cleanly.
func (r *PgxUserRepository) Create(ctx context.Context, username, email, passwordHash string) (int, error) {
	query := `INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`

	var userID int
	err := r.pool.QueryRow(ctx, query, username, email, passwordHash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return 0, fmt.Errorf("insert user %q: %w", username, domain.ErrDuplicateUser)
		}
		return 0, err
	}

	return userID, nil
}

// List returns all users without their password hashes, ordered by id.
func (r *PgxUserRepository) List(ctx context.Context) ([]domain.User, error) {
	query := `SELECT id, username, email FROM users ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// UpdateLastLogin sets the last_login timestamp to now for the given user.
func (r *PgxUserRepository) UpdateLastLogin(ctx context.Context, userID int) error {
	query := `UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}
