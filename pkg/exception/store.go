package exception

import "github.com/yanun0323/errors"

// Store errors
var (
	ErrRecordNotFound  = errors.New("store: record not found")
	ErrUnknownBackend  = errors.New("store: unknown backend")
	ErrSessionNotFound = errors.New("session: not found")
)
