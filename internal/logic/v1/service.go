package v1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/webauth-service/internal/core/domain"
	"github.com/duynhne/webauth-service/middleware"
)

// MinPasswordLength is the minimum accepted registration password length.
const MinPasswordLength = 6

// AuthService implements authentication and session business rules.
// It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type AuthService struct {
	users      domain.UserRepository
	sessions   domain.SessionRepository
	sessionTTL time.Duration
}

// NewAuthService creates a new AuthService with the given repository
// dependencies. sessionTTL is the absolute session lifetime; there is no
// sliding renewal.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
	}
}

// Authenticate resolves a login identifier (username or email) and password
// to a user. Failures are distinguished internally as ErrUserNotFound and
// ErrInvalidCredentials; callers must present both identically.
func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.authenticate", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	row, err := s.users.GetByUsernameOrEmail(ctx, login)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user %q: %w", login, err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", login, ErrUserNotFound)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", login, ErrInvalidCredentials)
	}

	// Update last_login timestamp (best-effort, don't fail login)
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	user := &domain.User{
		ID:       row.ID,
		Username: row.Username,
		Email:    row.Email,
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return user, nil
}

// Register validates the registration input, hashes the password and creates
// the user. The duplicate lookup runs first for the friendly error path; a
// unique violation on insert resolves to the same ErrUserExists, so the
// check-then-create race collapses into the duplicate outcome.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("register user: %w", ErrMissingFields)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("register user %q: %w", username, ErrPasswordTooShort)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", username, ErrUserExists)
	}

	userID, err := s.users.Create(ctx, username, email, string(passwordHash))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrDuplicateUser) {
			return nil, fmt.Errorf("register user %q: %w", username, ErrUserExists)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	user := &domain.User{
		ID:       userID,
		Username: username,
		Email:    email,
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")

	return user, nil
}

// StartSession creates an anonymous session and returns its token. Used when
// a flash must be queued before any login happened.
func (s *AuthService) StartSession(ctx context.Context) (string, error) {
	token := uuid.NewString()
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.sessions.Create(ctx, token, nil, expiresAt); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// BindSession establishes an authenticated session for the given user and
// returns the new token. The previous session, when any, is discarded so a
// pre-login token never survives authentication.
func (s *AuthService) BindSession(ctx context.Context, oldToken string, userID int) (string, error) {
	if oldToken != "" {
		// Best-effort: a stale row left behind is swept by DeleteExpired.
		_ = s.sessions.Delete(ctx, oldToken)
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.sessions.Create(ctx, token, &userID, expiresAt); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Session returns the live session for a token, or (nil, nil) when the token
// is unknown or expired. The returned row's User is nil for anonymous
// sessions and for sessions whose user has been deleted.
func (s *AuthService) Session(ctx context.Context, token string) (*domain.SessionRow, error) {
	if token == "" {
		return nil, nil
	}

	row, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, nil
	}

	return row, nil
}

// ResolveSession maps a session token back to its user. Absent, expired and
// user-deleted sessions all resolve to (nil, nil): the caller treats the
// request as unauthenticated rather than erroring.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	row, err := s.Session(ctx, token)
	if err != nil || row == nil {
		return nil, err
	}
	return row.User, nil
}

// Logout detaches the user from the session. The session row stays so the
// logout flash still renders on the next request.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.ClearUser(ctx, token); err != nil {
		return fmt.Errorf("clear session user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id, or (nil, nil) when no such
// user exists anymore.
func (s *AuthService) GetUser(ctx context.Context, id int) (*domain.User, error) {
	row, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", id, err)
	}
	if row == nil {
		return nil, nil
	}
	return &domain.User{ID: row.ID, Username: row.Username, Email: row.Email}, nil
}

// ListUsers returns all users. The domain.User projection carries no
// password hash, so listings cannot leak credentials.
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CleanupExpiredSessions removes sessions past their expiry.
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}
