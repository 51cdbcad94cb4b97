package apprentice

import (
	"time"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// Request helpers return the offset of the written frame. Before RequestStart
// they return 0 and ErrNotReady.

func (a *Apprentice) toMaster(p schema.Payload) (uint64, error) {
	if !a.ready {
		return 0, exception.ErrNotReady
	}
	return a.writers[a.command.UID].Write(0, p)
}

// RequestWriteTo asks the master for a channel from this participant to dest.
func (a *Apprentice) RequestWriteTo(dest uint32) (uint64, error) {
	w := a.writers[a.command.UID]
	return a.toMaster(&schema.RequestWriteTo{TriggerTime: w.LastGenTime(), DestID: dest})
}

// RequestReadFrom asks the master for a channel from source to this
// participant, read from fromTime.
func (a *Apprentice) RequestReadFrom(source uint32, fromTime int64) (uint64, error) {
	return a.toMaster(&schema.RequestReadFrom{SourceID: source, FromTime: fromTime})
}

// RequestReadFromPublic asks to read the public segment of source.
func (a *Apprentice) RequestReadFromPublic(source uint32, fromTime int64) (uint64, error) {
	return a.toMaster(&schema.RequestReadFromPublic{SourceID: source, FromTime: fromTime})
}

// RequestTimer asks the master to send repeat Time markers every duration
// and runs fn on each. It returns the timer id.
func (a *Apprentice) RequestTimer(duration time.Duration, repeat int32, fn func(now int64)) (int32, error) {
	if !a.ready {
		return 0, exception.ErrNotReady
	}
	a.nextTimerID++
	id := a.nextTimerID
	if _, err := a.toMaster(&schema.TimeRequest{ID: id, Duration: int64(duration), Repeat: repeat}); err != nil {
		return 0, err
	}
	remaining := repeat
	if remaining < 1 {
		remaining = 1
	}
	a.timers[id] = &localTimer{
		checkpoint: a.writers[a.command.UID].LastGenTime() + int64(duration),
		duration:   int64(duration),
		remaining:  remaining,
		fn:         fn,
	}
	return id, nil
}

// CacheReset hands this participant's msgType state over to dest. The
// master must be reading the segment to dest, so RequestWriteTo(dest) comes first.
func (a *Apprentice) CacheReset(dest uint32, msgType schema.Tag) (uint64, error) {
	if !a.ready {
		return 0, exception.ErrNotReady
	}
	w, ok := a.writers[dest]
	if !ok {
		return 0, exception.ErrInvalidAccount
	}
	return w.Write(0, &schema.CacheReset{MsgType: int32(msgType)})
}

// Ping asks the master for a Ping marker back.
func (a *Apprentice) Ping() (uint64, error) {
	if !a.ready {
		return 0, exception.ErrNotReady
	}
	return a.writers[a.command.UID].Mark(0, schema.TagPing)
}

// PublishConfig hands a config document to the master for persistence.
func (a *Apprentice) PublishConfig(value string) (uint64, error) {
	cfg := &schema.Config{
		LocationUID: a.home.UID,
		Mode:        int32(a.home.Mode),
		Category:    int32(a.home.Category),
		Group:       a.home.Group,
		Name:        a.home.Name,
		Value:       value,
	}
	return a.WriteTo(location.PublicUID, cfg)
}

// Deregister announces that this participant is leaving.
func (a *Apprentice) Deregister() (uint64, error) {
	if a.registerTime == 0 {
		return 0, exception.ErrNotReady
	}
	a.ready = false
	return a.writers[a.command.UID].Write(0, schema.DeregisterOf(a.home))
}

// WriteTo appends p to the segment for dest. It returns ErrInvalidAccount
// when the master never granted a channel to dest.
func (a *Apprentice) WriteTo(dest uint32, p schema.Payload) (uint64, error) {
	w, ok := a.writers[dest]
	if !ok {
		return 0, exception.ErrInvalidAccount
	}
	return w.Write(0, p)
}

// CurrentFrameUID identifies the next frame written to dest, zero when
// there is no writer for dest.
func (a *Apprentice) CurrentFrameUID(dest uint32) uint64 {
	w, ok := a.writers[dest]
	if !ok {
		return 0
	}
	return w.CurrentFrameUID()
}
