package exception

import "github.com/yanun0323/errors"

// Bus errors
var (
	ErrAlreadyStarted = errors.New("bus: already started")
)
