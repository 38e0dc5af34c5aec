package model

import "errors"

// Sentinel errors shared across providers.
var (
	// ErrNotAuthenticated is returned when an operation needs a stored session and none is present.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSignInRedirect is returned when an authenticated endpoint bounced the request to a sign-in page.
	ErrSignInRedirect = errors.New("redirected to sign-in page: session is not valid for this endpoint")

	// ErrPlayerTokenNotFound is returned when no player token could be located in the player-auth-token response.
	ErrPlayerTokenNotFound = errors.New("player token not found")

	// ErrBlobInvalid is returned when a license blob is an error page or lacks the key record layout.
	ErrBlobInvalid = errors.New("license blob invalid")

	// ErrActivationNotFound is returned when every automatic activation-bytes method failed.
	ErrActivationNotFound = errors.New("activation bytes not found")

	// ErrActivationNotSaved is returned alongside extracted activation bytes that could not be persisted.
	ErrActivationNotSaved = errors.New("activation bytes found but not saved")

	// ErrInvalidActivationBytes is returned when activation bytes are not exactly 8 hex characters.
	ErrInvalidActivationBytes = errors.New("activation bytes must be 8 hex characters")

	// ErrQueueCancelled is returned for queue items that were cancelled before or while running.
	ErrQueueCancelled = errors.New("queue cancelled")

	// ErrUnsupportedURL is returned when a URL cannot be mapped to a provider.
	ErrUnsupportedURL = errors.New("unsupported url")
)
