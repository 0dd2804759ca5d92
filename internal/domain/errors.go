package domain

import "errors"

// Error taxonomy shared by every service. Services wrap these with context
// (fmt.Errorf("%w: ...")) and the HTTP layer maps them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCode       = errors.New("invalid validation code")
	ErrNoOp              = errors.New("no-op: already settled")
	ErrCodeLocked        = errors.New("too many validation attempts")
	ErrWalletInactive    = errors.New("wallet is inactive")
)
