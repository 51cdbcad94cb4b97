package exception

import "github.com/yanun0323/errors"

// Journal errors
var (
	// ErrSegmentUnavailable is returned when a segment already has a live writer.
	ErrSegmentUnavailable = errors.New("journal: segment unavailable")
	// ErrSegmentGone is reported once when a joined segment disappears.
	ErrSegmentGone = errors.New("journal: segment gone")
	// ErrCorruptHeader is returned when a segment header fails validation.
	ErrCorruptHeader = errors.New("journal: corrupt header")
	ErrFrameTooLarge = errors.New("journal: frame too large for page")
	ErrWriterClosed  = errors.New("journal: writer closed")
	ErrReaderClosed  = errors.New("journal: reader closed")
)
