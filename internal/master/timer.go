package master

import (
	"sort"

	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/bus"
	"github.com/yongdono/kungfu/internal/schema"
)

func (m *Master) onTimeRequest(e *bus.Event) {
	req, ok := bus.As[*schema.TimeRequest](e)
	if !ok || !m.apps.Live(e.Source) {
		return
	}
	tasks, ok := m.timers[e.Source]
	if !ok {
		tasks = make(map[int32]*timerTask)
		m.timers[e.Source] = tasks
	}
	tasks[req.ID] = &timerTask{
		checkpoint:  m.cfg.Clock.Now() + req.Duration,
		duration:    req.Duration,
		repeatLimit: req.Repeat,
	}
}

func (m *Master) onPing(e *bus.Event) {
	w, ok := m.writer(e.Source)
	if !ok || !m.apps.Live(e.Source) {
		return
	}
	if _, err := w.Mark(e.GenTime, schema.TagPing); err != nil {
		logs.Errorf("master answer ping of %08x, err: %+v", e.Source, err)
	}
}

// onActive runs once per cycle: pending notices, due timers, the trading
// day rollover, then the liveness sweep once per CheckInterval.
func (m *Master) onActive(now int64) {
	m.drainNotices()
	m.fireTimers(now)
	if day := m.cfg.Calendar.TradingDay(now); day != m.tradingDay {
		m.tradingDay = day
		if err := m.PublishTradingDay(); err != nil {
			logs.Errorf("master publish trading day, err: %+v", err)
		} else {
			logs.Infof("master trading day rolled to %d", day)
		}
	}
	if m.lastCheck+int64(m.cfg.CheckInterval) < now {
		m.sweep(now)
		m.lastCheck = now
	}
}

func (m *Master) drainNotices() {
	for {
		n, ok := m.notices.TryPop()
		if !ok {
			return
		}
		if err := m.Discover(n); err != nil {
			logs.Warnf("master drop notice of %s/%s, err: %+v", n.Group, n.Name, err)
		}
	}
}

// fireTimers writes one Time marker per due task. A task with a repeat
// limit of 0 or 1 fires once.
func (m *Master) fireTimers(now int64) {
	for _, app := range sortedUIDs(m.timers) {
		tasks := m.timers[app]
		w, ok := m.writer(app)
		if !ok {
			delete(m.timers, app)
			continue
		}
		for _, id := range sortedIDs(tasks) {
			task := tasks[id]
			if task.checkpoint > now {
				continue
			}
			if _, err := w.Mark(0, schema.TagTime); err != nil {
				logs.Errorf("master fire timer %d of %08x, err: %+v", id, app, err)
			}
			m.cfg.Metrics.IncTimerFire()
			task.checkpoint += task.duration
			task.repeatCount++
			if task.repeatCount >= task.repeatLimit {
				logs.Debugf("master timer %d of %08x done", id, app)
				delete(tasks, id)
			}
		}
		if len(tasks) == 0 {
			delete(m.timers, app)
		}
	}
}

func sortedIDs(tasks map[int32]*timerTask) []int32 {
	out := make([]int32, 0, len(tasks))
	for id := range tasks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
