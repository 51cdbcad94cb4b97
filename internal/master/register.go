package master

import (
	"context"
	"sort"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/clock"
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/obs"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/internal/state"
	"github.com/yongdono/kungfu/pkg/exception"
)

func (m *Master) onRegister(e *bus.Event) {
	reg, ok := bus.As[*schema.Register](e)
	if !ok {
		return
	}
	loc := reg.Resolve()
	if loc.UID != e.Source || reg.LocationUID != loc.UID {
		logs.Warnf("master drop register of %s from %08x: uid mismatch", loc.UName, e.Source)
		return
	}
	if err := m.registerApp(e.GenTime, loc, *reg); err != nil {
		switch {
		case err == exception.ErrDuplicateRegistration:
			m.cfg.Metrics.IncRegistration(obs.RegistrationDuplicate)
			logs.Errorf("master reject register of %s: already live", loc.UName)
		case err == errStaleRegister:
			m.cfg.Metrics.IncRegistration(obs.RegistrationStale)
			logs.Warnf("master ignore stale register of %s", loc.UName)
		default:
			logs.Errorf("master register %s, err: %+v", loc.UName, err)
		}
	}
}

var errStaleRegister = errors.New("master: register from a dead process")

// registerApp runs the bootstrap. The location reaches the profile store
// before any frame announces it, and RequestStart is the last frame of the
// bootstrap written to the command channel.
func (m *Master) registerApp(trigger int64, loc *location.Location, reg schema.Register) error {
	if m.apps.Live(loc.UID) {
		return exception.ErrDuplicateRegistration
	}
	if !journal.WriterAlive(m.cfg.Locator, loc, location.PublicUID) {
		return errStaleRegister
	}
	a, err := m.apps.Begin(loc, reg)
	if err != nil {
		return err
	}
	if err := m.bootstrap(trigger, a); err != nil {
		m.abortRegister(trigger, a)
		return err
	}
	if err := m.apps.Activate(loc.UID); err != nil {
		return err
	}
	m.cfg.Metrics.IncRegistration(obs.RegistrationAccepted)
	m.cfg.Metrics.SetLiveApps(m.apps.LiveCount())
	logs.Infof("master registered %s, pid: %d", loc.UName, reg.PID)
	return nil
}

func (m *Master) bootstrap(trigger int64, a *App) error {
	loc, cmd := a.Location, a.Command
	w, err := journal.OpenWriter(m.cfg.Locator, cmd, loc.UID, m.cfg.Journal)
	if err != nil {
		return errors.Wrap(err, "open command writer").With("location", loc.UName)
	}
	a.writer = w

	if err := m.tryAddLocation(loc); err != nil {
		return err
	}
	if err := m.tryAddLocation(cmd); err != nil {
		return err
	}

	lastActive, err := m.cfg.Sessions.FindLastActiveTime(loc.UID)
	if err != nil {
		return err
	}
	a.Register.LastActiveTime = lastActive
	a.Register.CheckinTime = trigger

	if err := m.reader.Join(loc, location.PublicUID, trigger); err != nil {
		return err
	}
	if err := m.reader.Join(loc, cmd.UID, trigger); err != nil {
		return err
	}
	if _, err := m.cfg.Sessions.OpenSession(loc, trigger); err != nil {
		return err
	}

	if _, err := m.public.Write(trigger, schema.FromLocation(loc)); err != nil {
		return err
	}
	if _, err := m.public.Write(trigger, &a.Register); err != nil {
		return err
	}
	a.announced = true

	for _, dest := range []uint32{location.PublicUID, cmd.UID} {
		if _, err := w.Write(trigger, &schema.RequestWriteTo{TriggerTime: trigger, DestID: dest}); err != nil {
			return err
		}
	}
	if _, err := w.Mark(trigger, schema.TagSessionStart); err != nil {
		return err
	}
	system, steady := clock.Base()
	if _, err := w.Write(trigger, &schema.TimeReset{SystemClockCount: system, SteadyClockCount: steady}); err != nil {
		return err
	}
	if err := m.writeTradingDay(trigger, w); err != nil {
		return err
	}
	if err := m.writeProfile(trigger, w); err != nil {
		return err
	}
	if err := m.restoreState(trigger, a); err != nil {
		return err
	}
	if err := m.writeRegistry(trigger, w, &a.Register); err != nil {
		return err
	}
	if err := m.writeChannels(trigger, w); err != nil {
		return err
	}
	m.rewire(trigger, loc.UID)
	_, err = w.Mark(trigger, schema.TagRequestStart)
	return err
}

// abortRegister undoes a bootstrap that failed part way: the session is
// closed, the app segments are disjoined and, when the Register echo already
// went out, a Deregister follows it so no participant keeps a ghost.
func (m *Master) abortRegister(trigger int64, a *App) {
	uid := a.Location.UID
	if _, ok := m.cfg.Sessions.Live(uid); ok {
		if err := m.cfg.Sessions.CloseSession(uid, trigger); err != nil {
			logs.Errorf("master close session of %s, err: %+v", a.Location.UName, err)
		}
	}
	m.reader.Disjoin(uid)
	m.shift.Drop(uid)
	if a.writer != nil {
		if _, err := a.writer.Mark(trigger, schema.TagSessionEnd); err != nil {
			logs.Errorf("master mark session end for %s, err: %+v", a.Location.UName, err)
		}
		_ = a.writer.Close()
		a.writer = nil
	}
	if a.announced {
		if _, err := m.public.Write(trigger, schema.DeregisterOf(a.Location)); err != nil {
			logs.Errorf("master publish deregister of %s, err: %+v", a.Location.UName, err)
		}
	}
	m.apps.Abort(uid)
	m.cfg.Metrics.IncRegistration(obs.RegistrationFailed)
}

func (m *Master) writeProfile(trigger int64, w *journal.Writer) error {
	for _, tag := range []schema.Tag{schema.TagLocation, schema.TagConfig} {
		records, err := m.cfg.Profile.GetAll(tag)
		if err != nil {
			return err
		}
		for _, p := range records {
			if _, err := w.Write(trigger, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// restoreState loads the app cache from its last snapshot plus the state
// frames it wrote afterwards, then hands it to the app.
func (m *Master) restoreState(trigger int64, a *App) error {
	if a.Location.Category == location.CategoryMD {
		return nil
	}
	cache := m.shift.Cache(a.Location.UID)
	if cache == nil {
		res, err := state.Recover(context.Background(), state.RecoverConfig{
			Root:         m.cfg.Locator.Root(),
			Location:     a.Location,
			SnapshotPath: m.cfg.Locator.StatePath(a.Location),
		})
		if err != nil {
			return errors.Wrap(err, "recover state").With("location", a.Location.UName)
		}
		cache = res.Cache
		m.shift.Restore(a.Location.UID, cache)
	}
	_, err := cache.WriteTo(a.writer, trigger)
	return err
}

func (m *Master) writeRegistry(trigger int64, w *journal.Writer, self *schema.Register) error {
	for _, uid := range m.apps.LiveUIDs() {
		if a, ok := m.apps.Get(uid); ok {
			if _, err := w.Write(trigger, &a.Register); err != nil {
				return err
			}
		}
	}
	_, err := w.Write(trigger, self)
	return err
}

func (m *Master) writeChannels(trigger int64, w *journal.Writer) error {
	for _, ch := range m.Channels() {
		if _, err := w.Write(trigger, &ch); err != nil {
			return err
		}
	}
	return nil
}

func (m *Master) onDeregister(e *bus.Event) {
	rec, ok := bus.As[*schema.Deregister](e)
	if !ok || rec.LocationUID != e.Source {
		return
	}
	m.deregisterApp(e.GenTime, e.Source)
}

// deregisterApp ends the session of uid, tears down the channels it
// sources and erases its timers and registry entry. The state cache is
// snapshotted before it is dropped.
func (m *Master) deregisterApp(trigger int64, uid uint32) {
	a, err := m.apps.Retire(uid)
	if err != nil {
		return
	}
	loc := a.Location
	logs.Infof("master deregister %s", loc.UName)

	if err := m.cfg.Sessions.CloseSession(uid, trigger); err != nil {
		logs.Errorf("master close session of %s, err: %+v", loc.UName, err)
	}
	if a.writer != nil {
		if _, err := a.writer.Mark(trigger, schema.TagSessionEnd); err != nil {
			logs.Errorf("master mark session end for %s, err: %+v", loc.UName, err)
		}
	}
	m.dropChannels(uid)
	delete(m.timers, uid)
	m.snapshot(a)
	m.shift.Drop(uid)
	m.reader.Disjoin(uid)
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			logs.Errorf("master close command writer of %s, err: %+v", loc.UName, err)
		}
		a.writer = nil
	}
	if _, err := m.public.Write(trigger, schema.DeregisterOf(loc)); err != nil {
		logs.Errorf("master publish deregister of %s, err: %+v", loc.UName, err)
	}
	m.cfg.Metrics.IncDeregistration()
	m.cfg.Metrics.SetLiveApps(m.apps.LiveCount())
	m.cfg.Metrics.SetChannels(len(m.channels))
}

func (m *Master) snapshot(a *App) {
	cache := m.shift.Cache(a.Location.UID)
	if cache == nil {
		return
	}
	snap, err := cache.Snapshot(a.Location.UID, a.LastGenTime)
	if err != nil {
		logs.Errorf("master snapshot %s, err: %+v", a.Location.UName, err)
		return
	}
	if err := state.WriteSnapshot(m.cfg.Locator.StatePath(a.Location), snap); err != nil {
		logs.Errorf("master write snapshot of %s, err: %+v", a.Location.UName, err)
	}
}

func (m *Master) onLocation(e *bus.Event) {
	rec, ok := bus.As[*schema.Location](e)
	if !ok {
		return
	}
	if err := m.tryAddLocation(rec.Resolve()); err != nil {
		logs.Errorf("master add location, err: %+v", err)
		return
	}
	if _, err := m.public.Write(e.GenTime, rec); err != nil {
		logs.Errorf("master publish location, err: %+v", err)
	}
}

func (m *Master) onGone(segErr *journal.SegmentError) {
	if !m.apps.Live(segErr.Source) {
		return
	}
	logs.Warnf("master lost segment %s of live app, err: %+v", segErr.Path, segErr.Err)
	m.deregisterApp(m.cfg.Clock.Now(), segErr.Source)
}

// sweep deregisters live apps whose public writer no longer holds its lock.
func (m *Master) sweep(now int64) {
	for _, uid := range m.apps.LiveUIDs() {
		a, _ := m.apps.Get(uid)
		if journal.WriterAlive(m.cfg.Locator, a.Location, location.PublicUID) {
			continue
		}
		logs.Warnf("master found %s dead", a.Location.UName)
		m.deregisterApp(now, uid)
	}
	if err := m.cfg.Sessions.Flush(); err != nil {
		logs.Errorf("master flush sessions, err: %+v", err)
	}
}

func sortedUIDs[V any](m map[uint32]V) []uint32 {
	out := make([]uint32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
