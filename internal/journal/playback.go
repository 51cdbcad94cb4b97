package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yongdono/kungfu/internal/location"
)

// PlaybackConfig controls segment playback.
type PlaybackConfig struct {
	Root      string
	Locations []*location.Location
	// FromTime skips frames with trigger_time before it.
	FromTime int64
	// Speed scales gen_time gaps into sleeps; zero replays without pacing.
	Speed float64
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays every segment of the configured locations in merged order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("invalid playback config: Root is empty")
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("invalid playback config: Locations is empty")
	}
	if c.Speed < 0 {
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	}
	return nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run replays committed frames until every segment is drained.
func (p *Playback) Run(ctx context.Context, handler func(Frame) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	locator := location.NewLocator(p.cfg.Root)
	reader, err := NewReader(locator, Options{ProbeInterval: 0})
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, loc := range p.cfg.Locations {
		dests, err := locator.ListDests(loc)
		if err != nil {
			return err
		}
		for _, dest := range dests {
			if err := reader.Join(loc, dest, p.cfg.FromTime); err != nil {
				return fmt.Errorf("join %s/%08x: %w", loc, dest, err)
			}
		}
	}

	var prevTS int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, ok, err := reader.Next()
		if err != nil {
			var segErr *SegmentError
			if errors.As(err, &segErr) {
				continue
			}
			return err
		}
		if !ok {
			return nil
		}
		if err := p.pace(ctx, frame.GenTime, &prevTS); err != nil {
			return err
		}
		if err := handler(frame); err != nil {
			return err
		}
	}
}

func (p *Playback) pace(ctx context.Context, current int64, prevTS *int64) error {
	if p.cfg.Speed <= 0 || current <= 0 {
		return nil
	}
	if *prevTS > 0 {
		if delta := current - *prevTS; delta > 0 {
			sleep := time.Duration(float64(delta) / p.cfg.Speed)
			if err := p.clock.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}
	*prevTS = current
	return nil
}
