// Package master runs the privileged participant that owns the public
// channel: it registers apps, wires channels between them, tracks sessions,
// runs app timers and mirrors typed state between app caches.
package master

import (
	"context"
	"sort"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/clock"
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/obs"
	"github.com/yongdono/kungfu/internal/profile"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/internal/session"
	"github.com/yongdono/kungfu/internal/state"
	"github.com/yongdono/kungfu/pkg/uds"
)

const (
	defaultCheckInterval  = time.Second
	defaultNoticeCapacity = 256
)

// Config wires the master to its stores and clocks.
type Config struct {
	Locator  *location.Locator
	Journal  journal.Options
	Bus      bus.Config
	Clock    clock.Clock
	Calendar clock.Calendar
	// CheckInterval is the period of the liveness sweep.
	CheckInterval  time.Duration
	NoticeCapacity int
	Profile        profile.Store
	Sessions       *session.Builder
	Metrics        *obs.Metrics
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.Wall{}
	}
	if c.Calendar == (clock.Calendar{}) {
		c.Calendar = clock.DefaultCalendar()
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.NoticeCapacity <= 0 {
		c.NoticeCapacity = defaultNoticeCapacity
	}
	c.Bus.Clock = c.Clock.Now
	if c.Bus.Metrics == nil {
		c.Bus.Metrics = c.Metrics
	}
	return c
}

type channelKey struct {
	source uint32
	dest   uint32
}

type timerTask struct {
	checkpoint  int64
	duration    int64
	repeatCount int32
	repeatLimit int32
}

// Master owns every piece of control-plane state. Apart from Notify it is
// single-threaded: all mutation happens inside the dispatch loop.
type Master struct {
	cfg     Config
	home    *location.Location
	reader  *journal.Reader
	engine  *bus.Engine
	public  *journal.Writer
	notices *bus.Queue[uds.Notice]

	locations map[uint32]*location.Location
	apps      *Apps
	channels  map[channelKey]schema.Channel
	timers    map[uint32]map[int32]*timerTask
	shift     *state.Shift

	startTime  int64
	lastCheck  int64
	tradingDay int64
	closed     bool
}

// New rehydrates known locations from the profile store, opens the public
// writer and marks SessionStart. It fails with ErrSegmentUnavailable when
// another master is running on the same root.
func New(cfg Config) (*Master, error) {
	if cfg.Locator == nil || cfg.Profile == nil || cfg.Sessions == nil {
		return nil, errors.New("master: Locator, Profile and Sessions are required")
	}
	cfg = cfg.withDefaults()

	m := &Master{
		cfg:       cfg,
		home:      location.Master(),
		notices:   bus.NewQueue[uds.Notice](cfg.NoticeCapacity),
		locations: make(map[uint32]*location.Location),
		apps:      NewApps(),
		channels:  make(map[channelKey]schema.Channel),
		timers:    make(map[uint32]map[int32]*timerTask),
		shift:     state.NewShift(),
		startTime: cfg.Clock.Now(),
	}
	m.tradingDay = cfg.Calendar.TradingDay(m.startTime)
	if err := m.rehydrate(); err != nil {
		return nil, err
	}
	if err := m.tryAddLocation(m.home); err != nil {
		return nil, err
	}

	public, err := journal.OpenWriter(cfg.Locator, m.home, location.PublicUID, cfg.Journal)
	if err != nil {
		return nil, errors.Wrap(err, "open master public writer")
	}
	m.public = public

	reader, err := journal.NewReader(cfg.Locator, cfg.Journal)
	if err != nil {
		_ = public.Close()
		return nil, err
	}
	m.reader = reader
	m.engine = bus.NewEngine(reader, cfg.Bus)
	if err := m.subscribe(); err != nil {
		_ = m.release()
		return nil, err
	}
	if err := m.engine.Start(); err != nil {
		_ = m.release()
		return nil, err
	}
	if _, err := m.public.Mark(m.startTime, schema.TagSessionStart); err != nil {
		_ = m.release()
		return nil, err
	}
	logs.Infof("master started, locations: %d", len(m.locations))
	return m, nil
}

func (m *Master) rehydrate() error {
	locs, err := m.cfg.Profile.GetAll(schema.TagLocation)
	if err != nil {
		return errors.Wrap(err, "load profile locations")
	}
	for _, p := range locs {
		loc := p.(*schema.Location).Resolve()
		m.locations[loc.UID] = loc
	}
	cfgs, err := m.cfg.Profile.GetAll(schema.TagConfig)
	if err != nil {
		return errors.Wrap(err, "load profile configs")
	}
	for _, p := range cfgs {
		if err := m.tryAddLocation(p.(*schema.Config).Resolve()); err != nil {
			return err
		}
	}
	chans, err := m.cfg.Profile.GetAll(schema.TagChannel)
	if err != nil {
		return errors.Wrap(err, "load profile channels")
	}
	for _, p := range chans {
		ch := *p.(*schema.Channel)
		m.channels[channelKey{ch.SourceID, ch.DestID}] = ch
	}
	m.cfg.Metrics.SetChannels(len(m.channels))
	return nil
}

func (m *Master) subscribe() error {
	subs := []struct {
		name   string
		filter bus.Filter
		action bus.Action
	}{
		{"feed", bus.Any(), m.onFrame},
		{"location", bus.Is(schema.TagLocation), m.onLocation},
		{"register", bus.All(bus.Is(schema.TagRegister), bus.To(location.PublicUID)), m.onRegister},
		{"deregister", bus.Is(schema.TagDeregister), m.onDeregister},
		{"request-write-to", bus.Is(schema.TagRequestWriteTo), m.onRequestWriteTo},
		{"request-read-from", bus.Is(schema.TagRequestReadFrom), m.onRequestReadFrom},
		{"request-read-from-public", bus.Is(schema.TagRequestReadFromPublic), m.onRequestReadFromPublic},
		{"channel", bus.Is(schema.TagChannel), m.onChannel},
		{"time-request", bus.Is(schema.TagTimeRequest), m.onTimeRequest},
		{"ping", bus.Is(schema.TagPing), m.onPing},
		{"cache-reset", bus.Is(schema.TagCacheReset), m.onCacheReset},
	}
	for _, s := range subs {
		if err := m.engine.Subscribe(s.name, s.filter, s.action); err != nil {
			return err
		}
	}
	if err := m.engine.OnGone(m.onGone); err != nil {
		return err
	}
	return m.engine.OnActive(m.onActive)
}

// Step runs one dispatch cycle.
func (m *Master) Step() (bool, error) {
	return m.engine.Step()
}

// Run dispatches until ctx ends or Stop is called.
func (m *Master) Run(ctx context.Context) error {
	return m.engine.Run(ctx)
}

// Stop asks Run to return.
func (m *Master) Stop() {
	m.engine.Stop()
}

// Close ends every session, marks SessionEnd publicly and releases the
// journal handles.
func (m *Master) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	now := m.cfg.Clock.Now()
	for _, uid := range m.apps.LiveUIDs() {
		if a, ok := m.apps.Get(uid); ok {
			m.snapshot(a)
		}
	}
	if err := m.cfg.Sessions.CloseAll(now); err != nil {
		logs.Errorf("master close sessions, err: %+v", err)
	}
	if _, err := m.public.Mark(now, schema.TagSessionEnd); err != nil {
		logs.Errorf("master mark session end, err: %+v", err)
	}
	m.notices.Close()
	logs.Info("master exit")
	return m.release()
}

func (m *Master) release() error {
	var firstErr error
	for _, uid := range m.apps.LiveUIDs() {
		if a, ok := m.apps.Get(uid); ok && a.writer != nil {
			if err := a.writer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			a.writer = nil
		}
	}
	if m.reader != nil {
		if err := m.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.public.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Notify queues a notice from another goroutine. The dispatch loop picks
// it up on its next cycle.
func (m *Master) Notify(n uds.Notice) error {
	return m.notices.TryPublish(n)
}

// Discover joins the public segment of the app a notice describes, from
// the time it wrote its Register frame.
func (m *Master) Discover(n uds.Notice) error {
	loc := location.New(location.Mode(n.Mode), location.Category(n.Category), n.Group, n.Name)
	if loc.UID != n.UID {
		return errors.Errorf("notice uid %08x does not match %s", n.UID, loc.UName)
	}
	if m.apps.Live(loc.UID) {
		return nil
	}
	return m.reader.Join(loc, location.PublicUID, n.RegisterTime)
}

// PublishTradingDay broadcasts the current trading day.
func (m *Master) PublishTradingDay() error {
	return m.writeTradingDay(0, m.public)
}

func (m *Master) writeTradingDay(trigger int64, w *journal.Writer) error {
	_, err := w.Write(trigger, &schema.TradingDay{Timestamp: m.cfg.Calendar.TradingDay(m.cfg.Clock.Now())})
	return err
}

func (m *Master) tryAddLocation(loc *location.Location) error {
	if _, ok := m.locations[loc.UID]; ok {
		return nil
	}
	if err := m.cfg.Profile.Set(schema.FromLocation(loc)); err != nil {
		return errors.Wrap(err, "persist location").With("location", loc.UName)
	}
	m.locations[loc.UID] = loc
	return nil
}

func (m *Master) writer(uid uint32) (*journal.Writer, bool) {
	if uid == location.PublicUID {
		return m.public, true
	}
	a, ok := m.apps.Get(uid)
	if !ok || a.writer == nil {
		return nil, false
	}
	return a.writer, true
}

func (m *Master) isLive(uid uint32) bool {
	return uid == location.PublicUID || m.apps.Live(uid)
}

// Home returns the master location.
func (m *Master) Home() *location.Location { return m.home }

// StartTime returns the clock reading taken at startup.
func (m *Master) StartTime() int64 { return m.startTime }

// Phase returns the registration phase of uid.
func (m *Master) Phase(uid uint32) Phase { return m.apps.Phase(uid) }

// IsLive reports whether uid is a live app.
func (m *Master) IsLive(uid uint32) bool { return m.apps.Live(uid) }

// LiveApps returns the live app uids in ascending order.
func (m *Master) LiveApps() []uint32 { return m.apps.LiveUIDs() }

// Location looks up a known location.
func (m *Master) Location(uid uint32) (*location.Location, bool) {
	loc, ok := m.locations[uid]
	return loc, ok
}

// HasChannel reports whether source -> dest is registered.
func (m *Master) HasChannel(source, dest uint32) bool {
	_, ok := m.channels[channelKey{source, dest}]
	return ok
}

// Channels returns the registered channels ordered by source then dest.
func (m *Master) Channels() []schema.Channel {
	keys := make([]channelKey, 0, len(m.channels))
	for k := range m.channels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].dest < keys[j].dest
	})
	out := make([]schema.Channel, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.channels[k])
	}
	return out
}

// Timers returns the number of pending timer tasks of uid.
func (m *Master) Timers(uid uint32) int { return len(m.timers[uid]) }

// Cache returns the mirrored state cache of uid, nil when none.
func (m *Master) Cache(uid uint32) *state.Cache { return m.shift.Cache(uid) }
