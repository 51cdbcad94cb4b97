package bus

import (
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/schema"
)

// Event wraps one frame for dispatch. It is only valid during dispatch.
type Event struct {
	journal.Frame

	data    schema.Payload
	err     error
	decoded bool
}

// Data decodes the payload once and caches the result for later subscriptions.
func (e *Event) Data() (schema.Payload, error) {
	if !e.decoded {
		e.data, e.err = e.Frame.Data()
		e.decoded = true
	}
	return e.data, e.err
}

// Action handles one matching event.
type Action func(e *Event)

// As decodes the payload of e as T.
func As[T schema.Payload](e *Event) (T, bool) {
	var zero T
	p, err := e.Data()
	if err != nil {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}
