package domain

import "errors"

// ErrValidation is wrapped by every input validation failure so handlers can
// map the whole family to a client error with errors.Is.
var ErrValidation = errors.New("validation failed")

var (
	ErrContentRequired = validationError("message must have content or media")
	ErrContentTooLong  = validationError("message too long (max 2000 characters)")
	ErrInvalidReplyTo  = validationError("invalid reply_to message id")
	ErrInvalidLimit    = validationError("invalid limit")
	ErrInvalidCursor   = validationError("invalid before timestamp")
)

var (
	ErrNotMember     = errors.New("user is not a member of this room")
	ErrAlreadyMember = errors.New("user is already a member of this room")
	ErrUserNotFound  = errors.New("user not found")
	ErrRateLimited   = errors.New("rate limit exceeded")
)

type validationErr struct {
	msg string
}

func validationError(msg string) error {
	return &validationErr{msg: msg}
}

func (e *validationErr) Error() string { return e.msg }

func (e *validationErr) Unwrap() error { return ErrValidation }
