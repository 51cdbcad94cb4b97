package exception

import "github.com/yanun0323/errors"

// Codec errors
var (
	ErrUnknownTag  = errors.New("codec: unknown tag")
	ErrPayloadSize = errors.New("codec: payload size mismatch")
	ErrRecordType  = errors.New("codec: record type does not match definition")
)
