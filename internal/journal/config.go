package journal

import (
	"fmt"
	"time"
)

const (
	defaultPageSize      = 4 << 20
	defaultProbeInterval = 10 * time.Millisecond
	minPageSize          = segmentHeaderSize
)

// Options controls segment layout and reader polling.
type Options struct {
	// PageSize applies to newly created segments; existing segments keep theirs.
	PageSize int
	// Clock returns the current time in nanoseconds. Writers stamp gen_time from it.
	Clock func() int64
	// ProbeInterval throttles how often idle readers stat pending or
	// possibly removed segments. Zero probes on every idle poll.
	ProbeInterval time.Duration
}

// DefaultOptions returns the baseline journal configuration.
func DefaultOptions() Options {
	return Options{
		PageSize:      defaultPageSize,
		Clock:         wallClock,
		ProbeInterval: defaultProbeInterval,
	}
}

func wallClock() int64 {
	return time.Now().UnixNano()
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = defaultPageSize
	}
	if o.Clock == nil {
		o.Clock = wallClock
	}
	return o
}

// Validate checks if the options are usable.
func (o Options) Validate() error {
	if o.PageSize < minPageSize {
		return fmt.Errorf("invalid journal options: PageSize must be >= %d", minPageSize)
	}
	if o.PageSize%segmentHeaderSize != 0 {
		return fmt.Errorf("invalid journal options: PageSize must be a multiple of %d", segmentHeaderSize)
	}
	if o.ProbeInterval < 0 {
		return fmt.Errorf("invalid journal options: ProbeInterval must be >= 0")
	}
	return nil
}
