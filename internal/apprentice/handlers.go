package apprentice

import (
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/internal/state"
)

func (a *Apprentice) subscribe() error {
	fromMaster := bus.FilterFunc(func(e *bus.Event) bool {
		return e.Source == a.master.UID || e.Source == a.command.UID
	})
	toHome := bus.All(bus.From(a.command.UID), bus.To(a.home.UID))

	subs := []struct {
		name   string
		filter bus.Filter
		action bus.Action
	}{
		{"location", bus.All(fromMaster, bus.Is(schema.TagLocation)), a.onLocation},
		{"register", bus.All(fromMaster, bus.Is(schema.TagRegister)), a.onRegister},
		{"deregister", bus.All(fromMaster, bus.Is(schema.TagDeregister)), a.onDeregister},
		{"channel", bus.All(fromMaster, bus.Is(schema.TagChannel)), a.onChannel},
		{"config", bus.All(fromMaster, bus.Is(schema.TagConfig)), a.onConfig},
		{"trading-day", bus.All(fromMaster, bus.Is(schema.TagTradingDay)), a.onTradingDay},
		{"time-reset", bus.All(toHome, bus.Is(schema.TagTimeReset)), a.onTimeReset},
		{"request-write-to", bus.All(toHome, bus.Is(schema.TagRequestWriteTo)), a.onRequestWriteTo},
		{"request-read-from", bus.All(toHome, bus.Is(schema.TagRequestReadFrom)), a.onRequestReadFrom},
		{"request-read-from-public", bus.All(toHome, bus.Is(schema.TagRequestReadFromPublic)), a.onRequestReadFromPublic},
		{"request-start", bus.All(toHome, bus.Is(schema.TagRequestStart)), a.onRequestStart},
		{"session-end", bus.All(toHome, bus.Is(schema.TagSessionEnd)), a.onSessionEnd},
		{"time", bus.All(toHome, bus.Is(schema.TagTime)), a.onTime},
		{"ping", bus.All(toHome, bus.Is(schema.TagPing)), a.onPing},
		{"state", bus.FilterFunc(func(e *bus.Event) bool { return schema.IsState(e.MsgType) }), a.onState},
	}
	for _, s := range subs {
		if err := a.engine.Subscribe(s.name, s.filter, s.action); err != nil {
			return err
		}
	}
	return nil
}

func (a *Apprentice) onLocation(e *bus.Event) {
	if rec, ok := bus.As[*schema.Location](e); ok {
		a.addLocation(rec.Resolve())
	}
}

func (a *Apprentice) onRegister(e *bus.Event) {
	rec, ok := bus.As[*schema.Register](e)
	if !ok {
		return
	}
	a.addLocation(rec.Resolve())
	a.registry[rec.LocationUID] = rec
}

func (a *Apprentice) onDeregister(e *bus.Event) {
	rec, ok := bus.As[*schema.Deregister](e)
	if !ok {
		return
	}
	delete(a.registry, rec.LocationUID)
	for key := range a.channels {
		if key.source == rec.LocationUID {
			delete(a.channels, key)
		}
	}
}

func (a *Apprentice) onChannel(e *bus.Event) {
	if rec, ok := bus.As[*schema.Channel](e); ok {
		a.channels[channelKey{rec.SourceID, rec.DestID}] = *rec
	}
}

func (a *Apprentice) onConfig(e *bus.Event) {
	if rec, ok := bus.As[*schema.Config](e); ok {
		a.configs[rec.LocationUID] = rec
	}
}

func (a *Apprentice) onTradingDay(e *bus.Event) {
	rec, ok := bus.As[*schema.TradingDay](e)
	if !ok {
		return
	}
	a.tradingDay = rec.Timestamp
	// the bootstrap value arrives before RequestStart; observers only see rollovers
	if a.ready {
		a.lifecycle.TradingDay(rec.Timestamp)
	}
}

func (a *Apprentice) onTimeReset(e *bus.Event) {
	if rec, ok := bus.As[*schema.TimeReset](e); ok {
		a.timeReset = *rec
	}
}

func (a *Apprentice) onRequestWriteTo(e *bus.Event) {
	rec, ok := bus.As[*schema.RequestWriteTo](e)
	if !ok {
		return
	}
	if _, err := a.openWriter(rec.DestID); err != nil {
		logs.Errorf("apprentice %s open writer to %08x, err: %+v", a.home.UName, rec.DestID, err)
	}
}

func (a *Apprentice) onRequestReadFrom(e *bus.Event) {
	if rec, ok := bus.As[*schema.RequestReadFrom](e); ok {
		a.join(rec.SourceID, a.home.UID, rec.FromTime)
	}
}

func (a *Apprentice) onRequestReadFromPublic(e *bus.Event) {
	if rec, ok := bus.As[*schema.RequestReadFromPublic](e); ok {
		a.join(rec.SourceID, location.PublicUID, rec.FromTime)
	}
}

func (a *Apprentice) join(source, dest uint32, from int64) {
	loc, ok := a.locations[source]
	if !ok {
		logs.Warnf("apprentice %s join unknown location %08x", a.home.UName, source)
		return
	}
	if err := a.reader.Join(loc, dest, from); err != nil {
		logs.Errorf("apprentice %s join %s/%08x, err: %+v", a.home.UName, loc.UName, dest, err)
	}
}

func (a *Apprentice) onRequestStart(*bus.Event) {
	if a.ready {
		return
	}
	a.ready = true
	logs.Infof("apprentice %s ready", a.home.UName)
	a.lifecycle.Start()
}

func (a *Apprentice) onSessionEnd(*bus.Event) {
	a.ready = false
	a.ended = true
	logs.Infof("apprentice %s session ended by master", a.home.UName)
}

// onTime fires the local timer that expires first. The master writes one
// Time marker per expiry, so markers and expiries pair up in order.
func (a *Apprentice) onTime(e *bus.Event) {
	var (
		nextID int32
		next   *localTimer
	)
	for id, t := range a.timers {
		if next == nil || t.checkpoint < next.checkpoint || (t.checkpoint == next.checkpoint && id < nextID) {
			nextID, next = id, t
		}
	}
	if next == nil {
		return
	}
	next.checkpoint += next.duration
	next.remaining--
	if next.remaining <= 0 {
		delete(a.timers, nextID)
	}
	if next.fn != nil {
		next.fn(e.GenTime)
	}
}

func (a *Apprentice) onPing(*bus.Event) {
	a.pongs++
}

func (a *Apprentice) onState(e *bus.Event) {
	data, err := e.Data()
	if err != nil {
		return
	}
	a.cache.Put(state.Entry{Data: data, Source: e.Source, Dest: e.Dest, UpdateTime: e.GenTime})
}
