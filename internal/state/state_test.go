package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
)

func position(holder uint32, instrument string, volume int64) *schema.Position {
	p := &schema.Position{HolderUID: holder, Direction: 1, Volume: volume}
	schema.PutString(p.InstrumentID[:], instrument)
	schema.PutString(p.ExchangeID[:], "SSE")
	return p
}

func TestCacheCollapsesPrimaryKeys(t *testing.T) {
	c := NewCache()
	first := c.Put(Entry{Data: position(1, "600000", 10), Source: 1, UpdateTime: 1})
	second := c.Put(Entry{Data: position(1, "600000", 25), Source: 1, UpdateTime: 2})
	require.Equal(t, first, second)
	require.Equal(t, 1, c.Len())

	e, ok := c.Get(schema.TagPosition, first)
	require.True(t, ok)
	assert.Equal(t, int64(25), e.Data.(*schema.Position).Volume)
	assert.Equal(t, int64(2), e.UpdateTime)

	c.Put(Entry{Data: position(1, "600001", 5), Source: 1})
	require.Equal(t, 2, c.Len())

	typed := Typed[*schema.Position](c, schema.TagPosition)
	require.Len(t, typed, 2)
	assert.Empty(t, Typed[*schema.Asset](c, schema.TagPosition))
}

func TestCacheRangeOrder(t *testing.T) {
	c := NewCache()
	c.Put(Entry{Data: &schema.OrderStat{OrderID: 9}})
	c.Put(Entry{Data: &schema.OrderStat{OrderID: 3}})
	c.Put(Entry{Data: position(2, "x", 1)})

	var tags []schema.Tag
	var uids []uint64
	c.Range(func(uid uint64, e Entry) bool {
		tags = append(tags, e.Data.Tag())
		uids = append(uids, uid)
		return true
	})
	require.Equal(t, []schema.Tag{schema.TagPosition, schema.TagOrderStat, schema.TagOrderStat}, tags)
	assert.Equal(t, []uint64{3, 9}, uids[1:])

	n := 0
	c.Range(func(uint64, Entry) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)
}

func TestShiftReset(t *testing.T) {
	s := NewShift()
	s.Feed(Entry{Data: position(1, "a", 1), Source: 11, Dest: 22})
	s.Feed(Entry{Data: position(1, "b", 2), Source: 11, Dest: 22})
	s.Feed(Entry{Data: &schema.OrderStat{OrderID: 1}, Source: 11})
	require.Equal(t, 1, s.Len())

	moved := s.Reset(schema.TagPosition, 11, 22)
	require.Equal(t, 2, moved)
	assert.Nil(t, s.Cache(11).Slot(schema.TagPosition))
	assert.Len(t, s.Cache(22).Slot(schema.TagPosition), 2)
	assert.Equal(t, 1, s.Cache(11).Len())

	assert.Zero(t, s.Reset(schema.TagPosition, 11, 22))
	assert.Zero(t, s.Reset(schema.TagPosition, 99, 22))

	dropped := s.Drop(22)
	require.NotNil(t, dropped)
	assert.Nil(t, s.Cache(22))
	s.Restore(22, dropped)
	assert.Equal(t, 2, s.Cache(22).Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := NewCache()
	c.Put(Entry{Data: position(1, "600000", 10), Source: 1, Dest: 2, UpdateTime: 5})
	c.Put(Entry{Data: &schema.OrderStat{OrderID: 4, AckTime: 9}, Source: 1, UpdateTime: 6})

	snap, err := c.Snapshot(1, 42)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)

	path := filepath.Join(t.TempDir(), "nested", "snap.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	restored := NewCache()
	require.NoError(t, restored.ApplySnapshot(loaded))
	require.Equal(t, 2, restored.Len())
	stats := Typed[*schema.OrderStat](restored, schema.TagOrderStat)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(9), stats[0].Data.AckTime)
	assert.Equal(t, int64(6), stats[0].UpdateTime)
}

func TestApplySnapshotRejectsBadPayload(t *testing.T) {
	c := NewCache()
	err := c.ApplySnapshot(Snapshot{Entries: []SnapshotEntry{{Tag: schema.TagOrderStat, Payload: []byte{1}}}})
	require.Error(t, err)
}

func TestRecoverFromSnapshotAndJournal(t *testing.T) {
	root := t.TempDir()
	locator := location.NewLocator(root)
	loc := location.New(location.ModeLive, location.CategoryStrategy, "default", "alpha")

	var now int64
	clock := func() int64 {
		now += 100
		return now
	}
	w, err := journal.OpenWriter(locator, loc, 0, journal.Options{PageSize: 4096, Clock: clock})
	require.NoError(t, err)
	_, err = w.Write(0, position(loc.UID, "old", 1))
	require.NoError(t, err)
	covered := w.LastGenTime()
	_, err = w.Mark(0, schema.TagPing)
	require.NoError(t, err)
	_, err = w.Write(0, position(loc.UID, "new", 7))
	require.NoError(t, err)
	last := w.LastGenTime()
	require.NoError(t, w.Close())

	// snapshot covers the first frame only
	base := NewCache()
	base.Put(Entry{Data: position(loc.UID, "old", 3), Source: loc.UID, UpdateTime: covered})
	snap, err := base.Snapshot(loc.UID, covered)
	require.NoError(t, err)
	snapPath := locator.StatePath(loc)
	require.NoError(t, WriteSnapshot(snapPath, snap))

	res, err := Recover(context.Background(), RecoverConfig{Root: root, Location: loc, SnapshotPath: snapPath})
	require.NoError(t, err)
	assert.Equal(t, last, res.LastGenTime)

	positions := Typed[*schema.Position](res.Cache, schema.TagPosition)
	require.Len(t, positions, 2)
	volumes := map[string]int64{}
	for _, p := range positions {
		volumes[schema.CString(p.Data.InstrumentID[:])] = p.Data.Volume
	}
	assert.Equal(t, map[string]int64{"old": 3, "new": 7}, volumes)
}

func TestRecoverWithoutHistory(t *testing.T) {
	root := t.TempDir()
	loc := location.New(location.ModeLive, location.CategoryMD, "sim", "none")
	res, err := Recover(context.Background(), RecoverConfig{
		Root:         root,
		Location:     loc,
		SnapshotPath: filepath.Join(root, "missing.json"),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Cache.Len())
	assert.Zero(t, res.LastGenTime)
}

func TestCacheWriteTo(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	cmd := location.MasterCommand(7)
	var now int64
	w, err := journal.OpenWriter(locator, cmd, 7, journal.Options{PageSize: 4096, Clock: func() int64 { now++; return now }})
	require.NoError(t, err)
	defer w.Close()

	c := NewCache()
	c.Put(Entry{Data: &schema.OrderStat{OrderID: 2}})
	c.Put(Entry{Data: position(7, "a", 1)})
	n, err := c.WriteTo(w, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	r, err := journal.NewReader(locator, journal.Options{})
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Join(cmd, 7, 0))
	var tags []schema.Tag
	for {
		f, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		tags = append(tags, f.MsgType)
	}
	assert.Equal(t, []schema.Tag{schema.TagPosition, schema.TagOrderStat}, tags)
}
