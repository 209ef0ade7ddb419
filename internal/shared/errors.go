package shared

import "errors"

var (
	// ErrNoSession is returned when a request carries no signed-in session.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidSessionUser means the session user is not a numeric id.
	ErrInvalidSessionUser = errors.New("session user is not a valid id")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrLockHeld occurs when another request holds the lock.
	ErrLockHeld = errors.New("lock held by another request")
)
