package bus

import (
	"sync/atomic"

	"github.com/yongdono/kungfu/pkg/exception"
)

// Observer receives participant lifecycle transitions. Nil hooks are skipped.
type Observer struct {
	Name         string
	OnStart      func()
	OnExit       func()
	OnTradingDay func(timestamp int64)
}

// Lifecycle runs a fixed, ordered list of observers.
type Lifecycle struct {
	observers []Observer
	frozen    bool
	started   uint32
	exited    uint32
}

// Observe appends an observer. The list is frozen by the first transition.
func (l *Lifecycle) Observe(o Observer) error {
	if l.frozen {
		return exception.ErrAlreadyStarted
	}
	l.observers = append(l.observers, o)
	return nil
}

// Start fires OnStart once.
func (l *Lifecycle) Start() bool {
	l.frozen = true
	if !atomic.CompareAndSwapUint32(&l.started, 0, 1) {
		return false
	}
	for _, o := range l.observers {
		if o.OnStart != nil {
			o.OnStart()
		}
	}
	return true
}

// Exit fires OnExit once.
func (l *Lifecycle) Exit() bool {
	l.frozen = true
	if !atomic.CompareAndSwapUint32(&l.exited, 0, 1) {
		return false
	}
	for _, o := range l.observers {
		if o.OnExit != nil {
			o.OnExit()
		}
	}
	return true
}

// TradingDay fires OnTradingDay for a rollover broadcast.
func (l *Lifecycle) TradingDay(timestamp int64) {
	l.frozen = true
	for _, o := range l.observers {
		if o.OnTradingDay != nil {
			o.OnTradingDay(timestamp)
		}
	}
}

// Started reports whether Start has fired.
func (l *Lifecycle) Started() bool {
	return atomic.LoadUint32(&l.started) != 0
}

// Exited reports whether Exit has fired.
func (l *Lifecycle) Exited() bool {
	return atomic.LoadUint32(&l.exited) != 0
}
