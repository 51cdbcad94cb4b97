package state

import (
	"sort"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
)

// State pairs a typed record with where it came from.
type State[T schema.Payload] struct {
	Data       T
	Source     uint32
	Dest       uint32
	UpdateTime int64
}

// Entry is a State of any record type.
type Entry = State[schema.Payload]

// Slot holds the entries of one tag keyed by record uid.
type Slot map[uint64]Entry

// Cache is the mirrored state of one app, by tag then record uid.
// Entries with equal primary keys collapse into one slot.
type Cache struct {
	slots map[schema.Tag]Slot
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{slots: make(map[schema.Tag]Slot)}
}

// Put stores e under the uid of its record and returns that uid.
func (c *Cache) Put(e Entry) uint64 {
	tag := e.Data.Tag()
	slot, ok := c.slots[tag]
	if !ok {
		slot = make(Slot)
		c.slots[tag] = slot
	}
	uid := codec.UID(e.Data)
	slot[uid] = e
	return uid
}

// Get returns the entry of tag with the given uid.
func (c *Cache) Get(tag schema.Tag, uid uint64) (Entry, bool) {
	e, ok := c.slots[tag][uid]
	return e, ok
}

// Slot returns the live slot of tag, nil when empty.
func (c *Cache) Slot(tag schema.Tag) Slot {
	return c.slots[tag]
}

// Take removes the slot of tag and returns it.
func (c *Cache) Take(tag schema.Tag) Slot {
	slot := c.slots[tag]
	delete(c.slots, tag)
	return slot
}

// Merge puts every entry of slot into the slot of tag.
func (c *Cache) Merge(tag schema.Tag, slot Slot) {
	if len(slot) == 0 {
		return
	}
	dst, ok := c.slots[tag]
	if !ok {
		dst = make(Slot, len(slot))
		c.slots[tag] = dst
	}
	for uid, e := range slot {
		dst[uid] = e
	}
}

// Len returns the number of entries across all tags.
func (c *Cache) Len() int {
	n := 0
	for _, slot := range c.slots {
		n += len(slot)
	}
	return n
}

// Range visits every entry ordered by tag then uid until fn returns false.
func (c *Cache) Range(fn func(uid uint64, e Entry) bool) {
	tags := make([]schema.Tag, 0, len(c.slots))
	for tag := range c.slots {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		slot := c.slots[tag]
		uids := make([]uint64, 0, len(slot))
		for uid := range slot {
			uids = append(uids, uid)
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		for _, uid := range uids {
			if !fn(uid, slot[uid]) {
				return
			}
		}
	}
}

// Typed returns the entries of tag whose record type is T.
func Typed[T schema.Payload](c *Cache, tag schema.Tag) []State[T] {
	slot := c.slots[tag]
	out := make([]State[T], 0, len(slot))
	for _, e := range slot {
		if v, ok := e.Data.(T); ok {
			out = append(out, State[T]{Data: v, Source: e.Source, Dest: e.Dest, UpdateTime: e.UpdateTime})
		}
	}
	return out
}
