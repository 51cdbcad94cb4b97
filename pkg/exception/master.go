package exception

import "github.com/yanun0323/errors"

// Master errors
var (
	ErrDuplicateRegistration = errors.New("master: duplicate registration")
	ErrUnknownDestination    = errors.New("master: unknown destination")
	ErrNotRegistered         = errors.New("master: location not registered")
	ErrInvalidTransition     = errors.New("master: invalid phase transition")
)

// Participant errors, surfaced as zero returns by request helpers.
var (
	ErrInvalidAccount = errors.New("apprentice: no writer for destination")
	ErrNotReady       = errors.New("apprentice: not started")
)
