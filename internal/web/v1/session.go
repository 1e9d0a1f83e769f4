package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/webauth-service/internal/core/domain"
	"github.com/duynhne/webauth-service/internal/logger"
	logicv1 "github.com/duynhne/webauth-service/internal/logic/v1"
)

const principalKey = "webauth.principal"

// Principal is the typed per-request session state resolved by the session
// middleware: the session token (empty when the client presented no live
// session) and the authenticated user, when any. It replaces any notion of
// process-wide mutable session state.
type Principal struct {
	Token string
	User  *domain.User
}

// SessionManager owns the session cookie and the flash queues. All handlers
// go through it; none touch cookies directly.
type SessionManager struct {
	auth       *logicv1.AuthService
	flashes    domain.FlashStore
	cookieName string
	maxAge     time.Duration
	secure     bool
}

// NewSessionManager creates a SessionManager. secure controls the cookie
// Secure flag and is tied to production mode.
func NewSessionManager(auth *logicv1.AuthService, flashes domain.FlashStore, cookieName string, maxAge time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		auth:       auth,
		flashes:    flashes,
		cookieName: cookieName,
		maxAge:     maxAge,
		secure:     secure,
	}
}

// Middleware resolves the session cookie into a Principal for downstream
// handlers. A missing, expired or unresolvable session yields an anonymous
// principal; a store fault is logged and degrades to anonymous rather than
// failing the request.
func (m *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal{}

		if token, err := c.Cookie(m.cookieName); err == nil && token != "" {
			row, err := m.auth.Session(c.Request.Context(), token)
			if err != nil {
				logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Session lookup failed")
			} else if row != nil {
				p.Token = row.Token
				p.User = row.User
			}
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// CurrentPrincipal returns the request's resolved session state.
func CurrentPrincipal(c *gin.Context) Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(Principal); ok {
			return p
		}
	}
	return Principal{}
}

// CurrentUser returns the authenticated user for the request, or nil.
func CurrentUser(c *gin.Context) *domain.User {
	return CurrentPrincipal(c).User
}

// RequireAuthenticated short-circuits to /login when the session does not
// resolve to a user.
func (m *SessionManager) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAnonymous short-circuits to /welcome when the session already
// resolves to a user.
func (m *SessionManager) RequireAnonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Redirect(http.StatusFound, "/welcome")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ensure returns the request's session token, starting an anonymous session
// and setting the cookie when none exists yet. Sessions are created lazily:
// a visitor who never logs in and never triggers a flash gets no session row.
func (m *SessionManager) ensure(c *gin.Context) (string, error) {
	p := CurrentPrincipal(c)
	if p.Token != "" {
		return p.Token, nil
	}

	token, err := m.auth.StartSession(c.Request.Context())
	if err != nil {
		return "", err
	}

	m.setCookie(c, token)
	p.Token = token
	c.Set(principalKey, p)
	return token, nil
}

// SignIn establishes an authenticated session for the user, rotating the
// session token so a pre-login token never survives authentication.
func (m *SessionManager) SignIn(c *gin.Context, userID int) error {
	p := CurrentPrincipal(c)

	token, err := m.auth.BindSession(c.Request.Context(), p.Token, userID)
	if err != nil {
		return err
	}

	m.setCookie(c, token)
	p.Token = token
	c.Set(principalKey, p)
	return nil
}

// SignOut detaches the user from the current session. The session itself
// survives so the logout flash renders on the next request.
func (m *SessionManager) SignOut(c *gin.Context) error {
	p := CurrentPrincipal(c)
	if err := m.auth.Logout(c.Request.Context(), p.Token); err != nil {
		return err
	}
	p.User = nil
	c.Set(principalKey, p)
	return nil
}

// Flash queues a one-time message for the next rendered response. Flash
// delivery is best-effort: a store fault is logged, never surfaced.
func (m *SessionManager) Flash(c *gin.Context, category, text string) {
	token, err := m.ensure(c)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Failed to start session for flash")
		return
	}
	if err := m.flashes.Push(c.Request.Context(), token, domain.Flash{Category: category, Text: text}); err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Failed to queue flash")
	}
}

// ConsumeFlashes drains the pending flashes for the request's session.
func (m *SessionManager) ConsumeFlashes(c *gin.Context) []domain.Flash {
	p := CurrentPrincipal(c)
	if p.Token == "" {
		return nil
	}

	flashes, err := m.flashes.Consume(c.Request.Context(), p.Token)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Failed to consume flashes")
		return nil
	}
	return flashes
}

func (m *SessionManager) setCookie(c *gin.Context, token string) {
	c.SetCookie(m.cookieName, token, int(m.maxAge.Seconds()), "/", "", m.secure, true)
}
