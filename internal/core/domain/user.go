package domain

// User is the external representation of an account. It deliberately carries
// no password hash field, so listings and session payloads can never leak it.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Flash is a one-time notification queued for the next rendered response.
type Flash struct {
	Category string `json:"category"` // "error" or "success"
	Text     string `json:"text"`
}

// Flash categories.
const (
	FlashError   = "error"
	FlashSuccess = "success"
)

// LoginForm carries the POST /login body.
type LoginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// RegisterForm carries the POST /register body.
type RegisterForm struct {
	Username string `form:"username"`
	Email    string `form:"email"`
	Password string `form:"password"`
}
