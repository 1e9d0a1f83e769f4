package v1

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/webauth-service/internal/core/domain"
)

// --- fakes ---

type memUserRepo struct {
	nextID    int
	rows      map[int]domain.UserRow
	lastLogin map[int]int

	createErr error
	getErr    error
	listErr   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{rows: map[int]domain.UserRow{}, lastLogin: map[int]int{}}
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.UserRow, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, row := range r.rows {
		if row.Username == username {
			row := row
			return &row, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByUsernameOrEmail(_ context.Context, login string) (*domain.UserRow, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, row := range r.rows {
		if row.Username == login || row.Email == login {
			row := row
			return &row, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (*domain.UserRow, error) {
	if row, ok := r.rows[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (r *memUserRepo) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	for _, row := range r.rows {
		if row.Username == username || row.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) Create(_ context.Context, username, email, passwordHash string) (int, error) {
	if r.createErr != nil {
		return 0, r.createErr
	}
	for _, row := range r.rows {
		if row.Username == username || row.Email == email {
			return 0, fmt.Errorf("insert user %q: %w", username, domain.ErrDuplicateUser)
		}
	}
	r.nextID++
	r.rows[r.nextID] = domain.UserRow{ID: r.nextID, Username: username, Email: email, PasswordHash: passwordHash}
	return r.nextID, nil
}

func (r *memUserRepo) List(_ context.Context) ([]domain.User, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	users := []domain.User{}
	for id := 1; id <= r.nextID; id++ {
		if row, ok := r.rows[id]; ok {
			users = append(users, domain.User{ID: row.ID, Username: row.Username, Email: row.Email})
		}
	}
	return users, nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, userID int) error {
	r.lastLogin[userID]++
	return nil
}

type memSession struct {
	userID    *int
	expiresAt time.Time
}

type memSessionRepo struct {
	users *memUserRepo
	rows  map[string]memSession
}

func newMemSessionRepo(users *memUserRepo) *memSessionRepo {
	return &memSessionRepo{users: users, rows: map[string]memSession{}}
}

func (r *memSessionRepo) Create(_ context.Context, token string, userID *int, expiresAt time.Time) error {
	r.rows[token] = memSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *memSessionRepo) Get(_ context.Context, token string) (*domain.SessionRow, error) {
	s, ok := r.rows[token]
	if !ok {
		return nil, nil
	}
	row := &domain.SessionRow{Token: token, ExpiresAt: s.expiresAt}
	if s.userID != nil {
		if u, ok := r.users.rows[*s.userID]; ok {
			row.User = &domain.User{ID: u.ID, Username: u.Username, Email: u.Email}
		}
	}
	return row, nil
}

func (r *memSessionRepo) SetUser(_ context.Context, token string, userID int) error {
	s, ok := r.rows[token]
	if ok {
		s.userID = &userID
		r.rows[token] = s
	}
	return nil
}

func (r *memSessionRepo) ClearUser(_ context.Context, token string) error {
	s, ok := r.rows[token]
	if ok {
		s.userID = nil
		r.rows[token] = s
	}
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, token string) error {
	delete(r.rows, token)
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	now := time.Now()
	for token, s := range r.rows {
		if now.After(s.expiresAt) {
			delete(r.rows, token)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T) (*AuthService, *memUserRepo, *memSessionRepo) {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo(users)
	return NewAuthService(users, sessions, 24*time.Hour), users, sessions
}

func registerAlice(t *testing.T, svc *AuthService) *domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), "alice", "a@x.com", "secret1")
	require.NoError(t, err)
	return user
}

// --- registration ---

func TestRegisterStoresHashNotPlaintext(t *testing.T) {
	svc, users, _ := newTestService(t)

	user := registerAlice(t, svc)

	row := users.rows[user.ID]
	assert.NotEqual(t, "secret1", row.PasswordHash)
	assert.NotContains(t, row.PasswordHash, "secret1")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte("secret1")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, users, _ := newTestService(t)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), "alice", "other@x.com", "secret2")
	require.ErrorIs(t, err, ErrUserExists)
	assert.Len(t, users.rows, 1)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, users, _ := newTestService(t)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), "bob", "a@x.com", "secret2")
	require.ErrorIs(t, err, ErrUserExists)
	assert.Len(t, users.rows, 1)
}

func TestRegisterDuplicateRaceMapsConstraintViolation(t *testing.T) {
	// The exists check passed but the insert hit the unique constraint: the
	// losing writer must still see the duplicate outcome.
	svc, users, _ := newTestService(t)
	users.createErr = fmt.Errorf("insert user: %w", domain.ErrDuplicateUser)

	_, err := svc.Register(context.Background(), "alice", "a@x.com", "secret1")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "", "a@x.com", "secret1")
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(context.Background(), "alice", "", "secret1")
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(context.Background(), "alice", "a@x.com", "")
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(context.Background(), "alice", "a@x.com", "short")
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

// --- authentication ---

func TestAuthenticateSuccess(t *testing.T) {
	svc, users, _ := newTestService(t)
	registered := registerAlice(t, svc)

	user, err := svc.Authenticate(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 1, users.lastLogin[user.ID])
}

func TestAuthenticateByEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	user, err := svc.Authenticate(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "nobody", "secret1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticateBadPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, err := svc.Authenticate(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateStoreFault(t *testing.T) {
	svc, users, _ := newTestService(t)
	users.getErr = errors.New("connection refused")

	_, err := svc.Authenticate(context.Background(), "alice", "secret1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

// --- sessions ---

func TestBindSessionRotatesToken(t *testing.T) {
	svc, _, sessions := newTestService(t)
	user := registerAlice(t, svc)

	oldToken, err := svc.StartSession(context.Background())
	require.NoError(t, err)

	newToken, err := svc.BindSession(context.Background(), oldToken, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, newToken)

	// Old token is gone, new one resolves to the user.
	_, ok := sessions.rows[oldToken]
	assert.False(t, ok)

	resolved, err := svc.ResolveSession(context.Background(), newToken)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestResolveSessionAnonymous(t *testing.T) {
	svc, _, _ := newTestService(t)

	token, err := svc.StartSession(context.Background())
	require.NoError(t, err)

	user, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestResolveSessionExpired(t *testing.T) {
	svc, _, sessions := newTestService(t)
	user := registerAlice(t, svc)

	token, err := svc.BindSession(context.Background(), "", user.ID)
	require.NoError(t, err)

	s := sessions.rows[token]
	s.expiresAt = time.Now().Add(-time.Minute)
	sessions.rows[token] = s

	resolved, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolveSessionUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.ResolveSession(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestResolveSessionDeletedUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	user := registerAlice(t, svc)

	token, err := svc.BindSession(context.Background(), "", user.ID)
	require.NoError(t, err)

	delete(users.rows, user.ID)

	resolved, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, resolved, "session of a deleted user resolves as anonymous")
}

func TestLogoutKeepsSessionRow(t *testing.T) {
	svc, _, sessions := newTestService(t)
	user := registerAlice(t, svc)

	token, err := svc.BindSession(context.Background(), "", user.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), token))

	_, ok := sessions.rows[token]
	assert.True(t, ok, "logout keeps the session row for pending flashes")

	resolved, err := svc.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestCleanupExpiredSessions(t *testing.T) {
	svc, _, sessions := newTestService(t)

	live, err := svc.StartSession(context.Background())
	require.NoError(t, err)

	stale, err := svc.StartSession(context.Background())
	require.NoError(t, err)
	s := sessions.rows[stale]
	s.expiresAt = time.Now().Add(-time.Hour)
	sessions.rows[stale] = s

	n, err := svc.CleanupExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := sessions.rows[live]
	assert.True(t, ok)
}

func TestGetUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	registered := registerAlice(t, svc)

	user, err := svc.GetUser(context.Background(), registered.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	delete(users.rows, registered.ID)

	user, err = svc.GetUser(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Nil(t, user)
}

// --- listing ---

func TestListUsersExcludesHashes(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)
	_, err := svc.Register(context.Background(), "bob", "b@x.com", "secret2")
	require.NoError(t, err)

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
	// domain.User has no hash field; nothing further to assert beyond shape.
}
