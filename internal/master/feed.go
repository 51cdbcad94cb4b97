package master

import (
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/internal/state"
	"github.com/yongdono/kungfu/pkg/exception"
)

// onFrame records activity of live apps and, for apps outside the md
// category, mirrors their state records and persists their configs.
func (m *Master) onFrame(e *bus.Event) {
	a, ok := m.apps.Get(e.Source)
	if !ok || a.Phase != PhaseLive {
		return
	}
	m.cfg.Sessions.Update(e.Source, e.GenTime)
	if e.GenTime > a.LastGenTime {
		a.LastGenTime = e.GenTime
	}
	if a.Location.Category == location.CategoryMD {
		return
	}
	switch {
	case schema.IsState(e.MsgType):
		data, err := e.Data()
		if err != nil {
			return
		}
		m.shift.Feed(state.Entry{Data: data, Source: e.Source, Dest: e.Dest, UpdateTime: e.GenTime})
	case e.MsgType == schema.TagConfig:
		cfg, ok := bus.As[*schema.Config](e)
		if !ok {
			return
		}
		if err := m.cfg.Profile.Set(cfg); err != nil {
			logs.Errorf("master persist config of %08x, err: %+v", cfg.LocationUID, err)
		}
	}
}

func (m *Master) onCacheReset(e *bus.Event) {
	req, ok := bus.As[*schema.CacheReset](e)
	if !ok || !m.apps.Live(e.Source) {
		return
	}
	tag := schema.Tag(req.MsgType)
	if !schema.IsState(tag) {
		logs.Warnf("master ignore cache reset of %08x for non-state type %d", e.Source, req.MsgType)
		return
	}
	// a retired app keeps its state in its snapshot until it registers again
	if !m.apps.Live(e.Dest) {
		m.cfg.Metrics.IncRejected(e.MsgType)
		logs.Warnf("master reject cache reset %08x -> %08x: %v", e.Source, e.Dest, exception.ErrUnknownDestination)
		return
	}
	n := m.shift.Reset(tag, e.Source, e.Dest)
	m.cfg.Metrics.IncCacheShift()
	logs.Debugf("master moved %d %s entries %08x -> %08x", n, tag, e.Source, e.Dest)
}
