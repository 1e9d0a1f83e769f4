package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/webauth-service/internal/core/domain"
	"github.com/duynhne/webauth-service/internal/logger"
	logicv1 "github.com/duynhne/webauth-service/internal/logic/v1"
	"github.com/duynhne/webauth-service/middleware"
)

// Handler groups the page and form handlers.
// Dependencies are injected via the constructor — no global state.
type Handler struct {
	auth     *logicv1.AuthService
	sessions *SessionManager
}

// NewHandler creates a new Handler.
func NewHandler(auth *logicv1.AuthService, sessions *SessionManager) *Handler {
	return &Handler{auth: auth, sessions: sessions}
}

// RegisterRoutes registers all routes on the given engine. The session
// middleware must already be installed.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Home)
	r.GET("/enter", h.Enter)

	r.GET("/login", h.sessions.RequireAnonymous(), h.LoginPage)
	r.POST("/login", h.Login)
	r.GET("/register", h.sessions.RequireAnonymous(), h.RegisterPage)
	r.POST("/register", h.Register)
	r.GET("/logout", h.Logout)

	r.GET("/welcome", h.sessions.RequireAuthenticated(), h.Welcome)
	r.GET("/profile", h.sessions.RequireAuthenticated(), h.Profile)
	r.GET("/users", h.sessions.RequireAuthenticated(), h.ListUsers)
}

// render draws a view with the data every template expects: the current
// user and the pending flash messages, split by category.
func (h *Handler) render(c *gin.Context, status int, view string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}

	var errs, successes []string
	for _, f := range h.sessions.ConsumeFlashes(c) {
		switch f.Category {
		case domain.FlashSuccess:
			successes = append(successes, f.Text)
		default:
			errs = append(errs, f.Text)
		}
	}

	if _, ok := data["user"]; !ok {
		data["user"] = CurrentUser(c)
	}
	data["error"] = errs
	data["success"] = successes

	c.HTML(status, view, data)
}

// Home renders the landing page, with or without a signed-in user.
func (h *Handler) Home(c *gin.Context) {
	h.render(c, http.StatusOK, "home.html", nil)
}

// Enter renders the alternate landing page.
func (h *Handler) Enter(c *gin.Context) {
	h.render(c, http.StatusOK, "main.html", nil)
}

// LoginPage renders the login form with any pending flash errors.
func (h *Handler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", nil)
}

// Login handles the login form submission.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.login", trace.WithAttributes(
		attribute.String("layer", "web"),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	var form domain.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		span.RecordError(err)
		h.sessions.Flash(c, domain.FlashError, "Invalid username or password")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	user, err := h.auth.Authenticate(ctx, form.Username, form.Password)
	if err != nil {
		span.RecordError(err)

		switch {
		case errors.Is(err, logicv1.ErrUserNotFound), errors.Is(err, logicv1.ErrInvalidCredentials):
			// Same message for both, so usernames cannot be enumerated.
			h.sessions.Flash(c, domain.FlashError, "Invalid username or password")
		default:
			log.Error().Err(err).Msg("Login failed")
			h.sessions.Flash(c, domain.FlashError, "An error occurred during login")
		}
		c.Redirect(http.StatusFound, "/login")
		return
	}

	if err := h.sessions.SignIn(c, user.ID); err != nil {
		log.Error().Err(err).Msg("Session establishment failed")
		h.sessions.Flash(c, domain.FlashError, "An error occurred during login")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	log.Info().Int("user_id", user.ID).Msg("Login successful")
	c.Redirect(http.StatusFound, "/welcome")
}

// RegisterPage renders the registration form with any pending flash errors.
func (h *Handler) RegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", nil)
}

// Register handles the registration form submission.
func (h *Handler) Register(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.register", trace.WithAttributes(
		attribute.String("layer", "web"),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	var form domain.RegisterForm
	if err := c.ShouldBind(&form); err != nil {
		span.RecordError(err)
		h.sessions.Flash(c, domain.FlashError, "All fields are required")
		c.Redirect(http.StatusFound, "/register")
		return
	}

	user, err := h.auth.Register(ctx, form.Username, form.Email, form.Password)
	if err != nil {
		span.RecordError(err)

		switch {
		case errors.Is(err, logicv1.ErrMissingFields):
			h.sessions.Flash(c, domain.FlashError, "All fields are required")
		case errors.Is(err, logicv1.ErrPasswordTooShort):
			h.sessions.Flash(c, domain.FlashError, "Password must be at least 6 characters long")
		case errors.Is(err, logicv1.ErrUserExists):
			h.sessions.Flash(c, domain.FlashError, "Username or email already exists")
		default:
			log.Error().Err(err).Str("username", form.Username).Msg("Registration failed")
			h.sessions.Flash(c, domain.FlashError, "Error during registration. Please try again.")
		}
		c.Redirect(http.StatusFound, "/register")
		return
	}

	if err := h.sessions.SignIn(c, user.ID); err != nil {
		log.Error().Err(err).Msg("Auto-login after registration failed")
		h.sessions.Flash(c, domain.FlashError, "Registration successful, please login")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	log.Info().Int("user_id", user.ID).Msg("Registration successful")
	h.sessions.Flash(c, domain.FlashSuccess, "Registration successful!")
	c.Redirect(http.StatusFound, "/welcome")
}

// Logout clears the session's user and sends the visitor home.
func (h *Handler) Logout(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	if err := h.sessions.SignOut(c); err != nil {
		log.Error().Err(err).Msg("Logout failed")
		c.Redirect(http.StatusFound, "/welcome")
		return
	}

	h.sessions.Flash(c, domain.FlashSuccess, "Successfully logged out")
	c.Redirect(http.StatusFound, "/")
}

// Welcome renders the post-login page.
func (h *Handler) Welcome(c *gin.Context) {
	h.render(c, http.StatusOK, "welcome.html", nil)
}

// Profile renders the profile page. The record is re-read from the store so
// the page reflects the freshest state, not the snapshot taken at login.
func (h *Handler) Profile(c *gin.Context) {
	principal := CurrentUser(c)

	user, err := h.auth.GetUser(c.Request.Context(), principal.ID)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Profile lookup failed")
		user = principal
	}
	if user == nil {
		// Deleted mid-session: treat as unauthenticated.
		c.Redirect(http.StatusFound, "/login")
		return
	}

	h.render(c, http.StatusOK, "profile.html", gin.H{"user": user})
}

// ListUsers returns all users as JSON. The projection carries no password
// hash field at all, so it cannot leak one.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Error fetching users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching users"})
		return
	}

	c.JSON(http.StatusOK, users)
}
