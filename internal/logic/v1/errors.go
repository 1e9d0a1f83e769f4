// Package v1 provides authentication business logic.
//
// Error Handling:
// This package defines sentinel errors that represent common authentication failures.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned
// from business logic methods.
//
// Example Usage:
//
//	if user == nil {
//	    return nil, fmt.Errorf("authenticate user %q: %w", login, ErrUserNotFound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidCredentials), errors.Is(err, logicv1.ErrUserNotFound):
//	    // Both map to the same flash text so usernames cannot be enumerated.
//	    flash(c, domain.FlashError, "Invalid username or password")
//	default:
//	    flash(c, domain.FlashError, "An error occurred during login")
//	}
package v1

import "errors"

// Sentinel errors for authentication operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrInvalidCredentials indicates the provided password is incorrect.
	// Surfaced with the same message as ErrUserNotFound.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates the user does not exist in the system.
	// Surfaced with the same message as ErrInvalidCredentials
	// (don't reveal user existence).
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates the username or email already exists in the system.
	ErrUserExists = errors.New("user already exists")

	// ErrMissingFields indicates a required registration field was empty.
	ErrMissingFields = errors.New("missing required fields")

	// ErrPasswordTooShort indicates the registration password is below the
	// minimum length.
	ErrPasswordTooShort = errors.New("password too short")
)
