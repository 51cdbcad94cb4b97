package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/obs"
	"github.com/yongdono/kungfu/pkg/exception"
)

// Mode is the polling discipline, fixed at construction.
type Mode uint8

const (
	// ModeNormal sleeps IdleSleep when a cycle finds no frame.
	ModeNormal Mode = iota
	// ModeLowLatency busy-polls and never yields.
	ModeLowLatency
)

const defaultIdleSleep = time.Millisecond

// Config controls an Engine.
type Config struct {
	Mode      Mode
	IdleSleep time.Duration
	Clock     func() int64
	Metrics   *obs.Metrics
}

func (c Config) withDefaults() Config {
	if c.IdleSleep <= 0 {
		c.IdleSleep = defaultIdleSleep
	}
	if c.Clock == nil {
		c.Clock = func() int64 { return time.Now().UnixNano() }
	}
	return c
}

type subscription struct {
	name   string
	filter Filter
	action Action
}

// Engine pulls frames from a reader and dispatches each one to the
// subscriptions whose filter matches, in subscription order. The pipeline
// is fixed once the engine starts. Engine is single-threaded; only Stop may
// be called from another goroutine.
type Engine struct {
	reader  *journal.Reader
	cfg     Config
	subs    []subscription
	gone    []func(*journal.SegmentError)
	active  []func(now int64)
	started bool
	stopped uint32
}

// NewEngine creates an engine over reader.
func NewEngine(reader *journal.Reader, cfg Config) *Engine {
	return &Engine{reader: reader, cfg: cfg.withDefaults()}
}

// Reader returns the underlying reader.
func (e *Engine) Reader() *journal.Reader {
	return e.reader
}

// Mode returns the polling mode.
func (e *Engine) Mode() Mode {
	return e.cfg.Mode
}

// Now reads the engine clock.
func (e *Engine) Now() int64 {
	return e.cfg.Clock()
}

// Subscribe appends a filter and action pair.
func (e *Engine) Subscribe(name string, filter Filter, action Action) error {
	if e.started {
		return exception.ErrAlreadyStarted
	}
	if filter == nil {
		filter = Any()
	}
	e.subs = append(e.subs, subscription{name: name, filter: filter, action: action})
	return nil
}

// OnGone registers a handler for segments the reader dropped.
func (e *Engine) OnGone(fn func(*journal.SegmentError)) error {
	if e.started {
		return exception.ErrAlreadyStarted
	}
	e.gone = append(e.gone, fn)
	return nil
}

// OnActive registers a hook run once per poll cycle after dispatch.
func (e *Engine) OnActive(fn func(now int64)) error {
	if e.started {
		return exception.ErrAlreadyStarted
	}
	e.active = append(e.active, fn)
	return nil
}

// Start freezes the pipeline.
func (e *Engine) Start() error {
	if e.started {
		return exception.ErrAlreadyStarted
	}
	e.started = true
	return nil
}

// Started reports whether the pipeline is frozen.
func (e *Engine) Started() bool {
	return e.started
}

// ProduceOne dispatches at most one frame and reports whether it did.
// Dropped segments are routed to the OnGone handlers and never returned.
func (e *Engine) ProduceOne() (bool, error) {
	frame, ok, err := e.reader.Next()
	if err != nil {
		var segErr *journal.SegmentError
		if errors.As(err, &segErr) {
			e.cfg.Metrics.IncSegmentGone()
			for _, fn := range e.gone {
				fn(segErr)
			}
			return false, nil
		}
		return false, err
	}
	if !ok {
		return false, nil
	}

	start := time.Now()
	ev := &Event{Frame: frame}
	for i := range e.subs {
		s := &e.subs[i]
		if s.filter.Match(ev) {
			s.action(ev)
		}
	}
	e.cfg.Metrics.ObserveFrame(frame.MsgType, time.Since(start))
	return true, nil
}

// Step runs one poll cycle: ProduceOne then every OnActive hook.
func (e *Engine) Step() (bool, error) {
	got, err := e.ProduceOne()
	if err != nil {
		return got, err
	}
	if len(e.active) > 0 {
		now := e.cfg.Clock()
		for _, fn := range e.active {
			fn(now)
		}
	}
	return got, nil
}

// Run polls until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started {
		e.started = true
	}
	var idle *time.Timer
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()
	for {
		if atomic.LoadUint32(&e.stopped) != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		got, err := e.Step()
		if err != nil {
			return err
		}
		if got {
			continue
		}
		e.cfg.Metrics.IncIdle()
		if e.cfg.Mode == ModeLowLatency {
			continue
		}
		if idle == nil {
			idle = time.NewTimer(e.cfg.IdleSleep)
		} else {
			idle.Reset(e.cfg.IdleSleep)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

// Stop asks Run to return at the next cycle.
func (e *Engine) Stop() {
	atomic.StoreUint32(&e.stopped, 1)
}
