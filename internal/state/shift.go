package state

import (
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/schema"
)

// Shift holds the mirrored cache of every live app.
type Shift struct {
	caches map[uint32]*Cache
}

// NewShift creates an empty mirror.
func NewShift() *Shift {
	return &Shift{caches: make(map[uint32]*Cache)}
}

// Cache returns the cache of app, nil when none is mirrored.
func (s *Shift) Cache(app uint32) *Cache {
	return s.caches[app]
}

// Ensure returns the cache of app, creating it when missing.
func (s *Shift) Ensure(app uint32) *Cache {
	c, ok := s.caches[app]
	if !ok {
		c = NewCache()
		s.caches[app] = c
	}
	return c
}

// Restore installs cache as the mirror of app.
func (s *Shift) Restore(app uint32, cache *Cache) {
	s.caches[app] = cache
}

// Feed mirrors e into the cache of the app that wrote it.
func (s *Shift) Feed(e Entry) {
	s.Ensure(e.Source).Put(e)
}

// Reset moves the tag slot from the cache of source into the cache of dest
// and returns how many entries moved. Afterwards source holds nothing of tag.
func (s *Shift) Reset(tag schema.Tag, source, dest uint32) int {
	from, ok := s.caches[source]
	if !ok {
		return 0
	}
	slot := from.Take(tag)
	if len(slot) == 0 {
		return 0
	}
	s.Ensure(dest).Merge(tag, slot)
	return len(slot)
}

// Drop removes and returns the cache of app.
func (s *Shift) Drop(app uint32) *Cache {
	c := s.caches[app]
	delete(s.caches, app)
	return c
}

// Len returns the number of mirrored apps.
func (s *Shift) Len() int {
	return len(s.caches)
}

// WriteTo appends every entry of the cache to w ordered by tag then uid and
// returns how many frames were written.
func (c *Cache) WriteTo(w *journal.Writer, trigger int64) (int, error) {
	n := 0
	var err error
	c.Range(func(_ uint64, e Entry) bool {
		if _, err = w.Write(trigger, e.Data); err != nil {
			return false
		}
		n++
		return true
	})
	return n, err
}
