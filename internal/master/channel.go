package master

import (
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// checkLive validates both endpoints of a channel request. A rejected
// request is only visible to the requester as a missing Channel echo.
func (m *Master) checkLive(tag schema.Tag, source, dest uint32) bool {
	if m.isLive(source) && m.isLive(dest) {
		return true
	}
	m.cfg.Metrics.IncRejected(tag)
	logs.Warnf("master reject %s %08x -> %08x: %v", tag, source, dest, exception.ErrUnknownDestination)
	return false
}

func (m *Master) onRequestWriteTo(e *bus.Event) {
	req, ok := bus.As[*schema.RequestWriteTo](e)
	if !ok || !m.checkLive(e.MsgType, e.Source, req.DestID) {
		return
	}
	m.join(e.Source, req.DestID, e.GenTime)
	m.requireWriteTo(e.GenTime, e.Source, req.DestID)
	if req.DestID != location.PublicUID {
		m.requireReadFrom(e.GenTime, req.DestID, e.Source, e.GenTime)
	}
	m.publishChannel(e.GenTime, schema.Channel{SourceID: e.Source, DestID: req.DestID})
}

func (m *Master) onRequestReadFrom(e *bus.Event) {
	req, ok := bus.As[*schema.RequestReadFrom](e)
	if !ok || !m.checkLive(e.MsgType, req.SourceID, e.Source) {
		return
	}
	m.join(req.SourceID, e.Source, e.GenTime)
	m.requireWriteTo(e.GenTime, req.SourceID, e.Source)
	m.requireReadFrom(e.GenTime, e.Source, req.SourceID, req.FromTime)
	m.publishChannel(e.GenTime, schema.Channel{SourceID: req.SourceID, DestID: e.Source})
}

func (m *Master) onRequestReadFromPublic(e *bus.Event) {
	req, ok := bus.As[*schema.RequestReadFromPublic](e)
	if !ok || !m.checkLive(e.MsgType, req.SourceID, e.Source) {
		return
	}
	w, ok := m.writer(e.Source)
	if !ok {
		return
	}
	if _, err := w.Write(e.GenTime, &schema.RequestReadFromPublic{SourceID: req.SourceID, FromTime: req.FromTime}); err != nil {
		logs.Errorf("master forward read-from-public to %08x, err: %+v", e.Source, err)
	}
}

func (m *Master) onChannel(e *bus.Event) {
	req, ok := bus.As[*schema.Channel](e)
	if !ok || m.HasChannel(req.SourceID, req.DestID) || !m.checkLive(e.MsgType, req.SourceID, req.DestID) {
		return
	}
	m.join(req.SourceID, req.DestID, e.GenTime)
	m.requireWriteTo(e.GenTime, req.SourceID, req.DestID)
	m.publishChannel(e.GenTime, *req)
}

func (m *Master) join(source, dest uint32, from int64) {
	loc, ok := m.locations[source]
	if !ok {
		return
	}
	if err := m.reader.Join(loc, dest, from); err != nil {
		logs.Errorf("master join %s/%08x, err: %+v", loc.UName, dest, err)
	}
}

func (m *Master) requireWriteTo(trigger int64, source, dest uint32) {
	w, ok := m.writer(source)
	if !ok || source == location.PublicUID {
		return
	}
	if _, err := w.Write(trigger, &schema.RequestWriteTo{TriggerTime: trigger, DestID: dest}); err != nil {
		logs.Errorf("master require %08x write to %08x, err: %+v", source, dest, err)
	}
}

func (m *Master) requireReadFrom(trigger int64, reader, source uint32, from int64) {
	w, ok := m.writer(reader)
	if !ok || reader == location.PublicUID {
		return
	}
	if _, err := w.Write(trigger, &schema.RequestReadFrom{SourceID: source, FromTime: from}); err != nil {
		logs.Errorf("master require %08x read from %08x, err: %+v", reader, source, err)
	}
}

// publishChannel records ch once and echoes it publicly on every request.
// A new channel reaches the profile store before its first echo.
func (m *Master) publishChannel(trigger int64, ch schema.Channel) {
	key := channelKey{ch.SourceID, ch.DestID}
	if _, ok := m.channels[key]; !ok {
		if err := m.cfg.Profile.Set(&ch); err != nil {
			logs.Errorf("master persist channel %08x -> %08x, err: %+v", ch.SourceID, ch.DestID, err)
			return
		}
		m.channels[key] = ch
		m.cfg.Metrics.SetChannels(len(m.channels))
	}
	if _, err := m.public.Write(trigger, &ch); err != nil {
		logs.Errorf("master publish channel %08x -> %08x, err: %+v", ch.SourceID, ch.DestID, err)
	}
}

// dropChannels forgets every channel sourced by uid.
func (m *Master) dropChannels(uid uint32) {
	for key, ch := range m.channels {
		if key.source != uid {
			continue
		}
		if err := m.cfg.Profile.Remove(schema.TagChannel, codec.UID(&ch)); err != nil {
			logs.Errorf("master remove channel %08x -> %08x, err: %+v", ch.SourceID, ch.DestID, err)
		}
		delete(m.channels, key)
	}
}

// rewire re-issues the wiring of every known channel touching uid whose
// other end is live. Channels loaded from the profile store after a
// restart carry data again once both ends have registered.
func (m *Master) rewire(trigger int64, uid uint32) {
	for _, ch := range m.Channels() {
		if ch.SourceID != uid && ch.DestID != uid {
			continue
		}
		other := ch.DestID
		if other == uid {
			other = ch.SourceID
		}
		if other != uid && !m.isLive(other) {
			continue
		}
		m.join(ch.SourceID, ch.DestID, trigger)
		m.requireWriteTo(trigger, ch.SourceID, ch.DestID)
		if ch.DestID != location.PublicUID {
			m.requireReadFrom(trigger, ch.DestID, ch.SourceID, trigger)
		}
	}
}
