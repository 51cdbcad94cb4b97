// Package apprentice is the participant side of the master protocol: it
// registers a location, follows the master's instructions and exposes the
// request helpers apps use to wire channels.
package apprentice

import (
	"context"
	"os"
	"sort"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/internal/state"
	"github.com/yongdono/kungfu/pkg/backoff"
	"github.com/yongdono/kungfu/pkg/exception"
	"github.com/yongdono/kungfu/pkg/uds"
)

// Notifier tells the master a Register frame is waiting.
type Notifier interface {
	Notify(ctx context.Context, n uds.Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n uds.Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n uds.Notice) error {
	return f(ctx, n)
}

// Config controls an Apprentice.
type Config struct {
	Locator  *location.Locator
	Location *location.Location
	Journal  journal.Options
	Bus      bus.Config
	// Notifier is optional; without one the master must discover the app
	// some other way.
	Notifier Notifier
	Backoff  backoff.Backoff
	// NotifyAttempts bounds notify retries; zero retries until ctx ends.
	NotifyAttempts int
	PID            int32
}

type channelKey struct {
	source uint32
	dest   uint32
}

type localTimer struct {
	checkpoint int64
	duration   int64
	remaining  int32
	fn         func(now int64)
}

// Apprentice is a registered participant. Like the engine it wraps it is
// single-threaded.
type Apprentice struct {
	cfg     Config
	home    *location.Location
	master  *location.Location
	command *location.Location

	reader  *journal.Reader
	engine  *bus.Engine
	writers map[uint32]*journal.Writer

	locations map[uint32]*location.Location
	registry  map[uint32]*schema.Register
	channels  map[channelKey]schema.Channel
	configs   map[uint32]*schema.Config
	cache     *state.Cache
	timers    map[int32]*localTimer

	lifecycle    bus.Lifecycle
	registerTime int64
	nextTimerID  int32
	tradingDay   int64
	timeReset    schema.TimeReset
	pongs        int
	ready        bool
	ended        bool
	closed       bool
}

// New opens the home segments of cfg.Location. It fails with
// ErrSegmentUnavailable when another process already runs the location.
func New(cfg Config) (*Apprentice, error) {
	if cfg.Locator == nil || cfg.Location == nil {
		return nil, errors.New("apprentice: Locator and Location are required")
	}
	if cfg.PID == 0 {
		cfg.PID = int32(os.Getpid())
	}
	if cfg.Backoff == (backoff.Backoff{}) {
		cfg.Backoff = backoff.Default()
	}
	home := cfg.Location
	a := &Apprentice{
		cfg:       cfg,
		home:      home,
		master:    location.Master(),
		command:   location.MasterCommand(home.UID),
		writers:   make(map[uint32]*journal.Writer),
		locations: make(map[uint32]*location.Location),
		registry:  make(map[uint32]*schema.Register),
		channels:  make(map[channelKey]schema.Channel),
		configs:   make(map[uint32]*schema.Config),
		cache:     state.NewCache(),
		timers:    make(map[int32]*localTimer),
	}
	a.addLocation(home)
	a.addLocation(a.master)
	a.addLocation(a.command)

	reader, err := journal.NewReader(cfg.Locator, cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.reader = reader
	for _, dest := range []uint32{location.PublicUID, a.command.UID} {
		if _, err := a.openWriter(dest); err != nil {
			_ = a.release()
			return nil, err
		}
	}
	a.engine = bus.NewEngine(reader, cfg.Bus)
	if err := a.subscribe(); err != nil {
		_ = a.release()
		return nil, err
	}
	return a, nil
}

// Subscribe adds an app subscription. It must be called before Start.
func (a *Apprentice) Subscribe(name string, filter bus.Filter, action bus.Action) error {
	return a.engine.Subscribe(name, filter, action)
}

// Observe adds a lifecycle observer. It must be called before RequestStart arrives.
func (a *Apprentice) Observe(o bus.Observer) error {
	return a.lifecycle.Observe(o)
}

// Start writes the one Register frame, joins the master segments from that
// time and notifies the master.
func (a *Apprentice) Start(ctx context.Context) error {
	if a.registerTime != 0 {
		return exception.ErrAlreadyStarted
	}
	if err := a.engine.Start(); err != nil {
		return err
	}
	public := a.writers[location.PublicUID]
	if _, err := public.Write(0, schema.RegisterOf(a.home, a.cfg.PID, 0, 0)); err != nil {
		return errors.Wrap(err, "write register").With("location", a.home.UName)
	}
	a.registerTime = public.LastGenTime()

	if err := a.reader.Join(a.master, location.PublicUID, a.registerTime); err != nil {
		return err
	}
	if err := a.reader.Join(a.command, a.home.UID, a.registerTime); err != nil {
		return err
	}
	logs.Infof("apprentice %s registering at %d", a.home.UName, a.registerTime)

	if a.cfg.Notifier == nil {
		return nil
	}
	notice := uds.Notice{
		Mode:         int32(a.home.Mode),
		Category:     int32(a.home.Category),
		Group:        a.home.Group,
		Name:         a.home.Name,
		UID:          a.home.UID,
		PID:          a.cfg.PID,
		RegisterTime: a.registerTime,
	}
	return a.cfg.Backoff.Retry(ctx, a.cfg.NotifyAttempts, func(attempt int) error {
		err := a.cfg.Notifier.Notify(ctx, notice)
		if err != nil {
			logs.Warnf("apprentice %s notify master, attempt: %d, err: %+v", a.home.UName, attempt, err)
		}
		return err
	})
}

// Step runs one poll cycle.
func (a *Apprentice) Step() (bool, error) {
	return a.engine.Step()
}

// Run polls until ctx ends, Stop is called or the master ends the session.
func (a *Apprentice) Run(ctx context.Context) error {
	return a.engine.Run(ctx)
}

// Stop asks Run to return.
func (a *Apprentice) Stop() {
	a.engine.Stop()
}

// Close fires OnExit and releases every writer and the reader.
func (a *Apprentice) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.lifecycle.Exit()
	return a.release()
}

func (a *Apprentice) release() error {
	var firstErr error
	dests := make([]uint32, 0, len(a.writers))
	for dest := range a.writers {
		dests = append(dests, dest)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i] < dests[j] })
	for _, dest := range dests {
		if err := a.writers[dest].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.writers, dest)
	}
	if a.reader != nil {
		if err := a.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Apprentice) openWriter(dest uint32) (*journal.Writer, error) {
	if w, ok := a.writers[dest]; ok {
		return w, nil
	}
	w, err := journal.OpenWriter(a.cfg.Locator, a.home, dest, a.cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.writers[dest] = w
	return w, nil
}

func (a *Apprentice) addLocation(loc *location.Location) {
	if _, ok := a.locations[loc.UID]; !ok {
		a.locations[loc.UID] = loc
	}
}

// Home returns the location of this participant.
func (a *Apprentice) Home() *location.Location { return a.home }

// Ready reports whether RequestStart has arrived.
func (a *Apprentice) Ready() bool { return a.ready }

// Ended reports whether the master closed this participant's session.
func (a *Apprentice) Ended() bool { return a.ended }

// RegisterTime returns the gen_time of the Register frame, zero before Start.
func (a *Apprentice) RegisterTime() int64 { return a.registerTime }

// TradingDay returns the last trading day the master published.
func (a *Apprentice) TradingDay() int64 { return a.tradingDay }

// TimeReset returns the clock base the master sent at bootstrap.
func (a *Apprentice) TimeReset() schema.TimeReset { return a.timeReset }

// Pongs returns how many Ping replies arrived.
func (a *Apprentice) Pongs() int { return a.pongs }

// Cache returns the state the master restored plus state received since.
func (a *Apprentice) Cache() *state.Cache { return a.cache }

// Location looks up a known location.
func (a *Apprentice) Location(uid uint32) (*location.Location, bool) {
	loc, ok := a.locations[uid]
	return loc, ok
}

// IsLive reports whether the master announced uid as registered.
func (a *Apprentice) IsLive(uid uint32) bool {
	_, ok := a.registry[uid]
	return ok
}

// HasChannel reports whether the channel registry holds source -> dest.
func (a *Apprentice) HasChannel(source, dest uint32) bool {
	_, ok := a.channels[channelKey{source, dest}]
	return ok
}

// HasWriter reports whether this participant may write to dest.
func (a *Apprentice) HasWriter(dest uint32) bool {
	_, ok := a.writers[dest]
	return ok
}

// Config returns the config record the master holds for uid.
func (a *Apprentice) Config(uid uint32) (*schema.Config, bool) {
	c, ok := a.configs[uid]
	return c, ok
}
