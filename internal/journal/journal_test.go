package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

type stepClock struct {
	now  int64
	step int64
}

func (c *stepClock) Now() int64 {
	c.now += c.step
	return c.now
}

func testOptions(clock func() int64) Options {
	return Options{PageSize: 4096, Clock: clock, ProbeInterval: 0}
}

func openWriter(t *testing.T, locator *location.Locator, loc *location.Location, dest uint32, opts Options) *Writer {
	t.Helper()
	w, err := OpenWriter(locator, loc, dest, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func openReader(t *testing.T, locator *location.Locator) *Reader {
	t.Helper()
	r, err := NewReader(locator, testOptions(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func drain(t *testing.T, r *Reader) []Frame {
	t.Helper()
	var out []Frame
	for {
		f, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		f.Payload = append([]byte(nil), f.Payload...)
		out = append(out, f)
	}
}

func TestWriteThenRead(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "a")
	clock := &stepClock{step: 10}
	w := openWriter(t, locator, loc, 7, testOptions(clock.Now))

	var offsets []uint64
	for i := uint32(1); i <= 5; i++ {
		off, err := w.Write(0, &schema.Channel{SourceID: i, DestID: i * 2})
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	_, err := w.Mark(0, schema.TagPing)
	require.NoError(t, err)
	for i := 1; i < len(offsets); i++ {
		require.Greater(t, offsets[i], offsets[i-1])
	}

	r := openReader(t, locator)
	require.NoError(t, r.Join(loc, 7, 0))
	frames := drain(t, r)
	require.Len(t, frames, 6)
	for i, f := range frames[:5] {
		require.Equal(t, schema.TagChannel, f.MsgType)
		require.Equal(t, loc.UID, f.Source)
		require.Equal(t, uint32(7), f.Dest)
		require.Equal(t, offsets[i], f.Offset)
		data, err := f.Data()
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), data.(*schema.Channel).SourceID)
	}
	require.Equal(t, schema.TagPing, frames[5].MsgType)
	require.Zero(t, frames[5].PayloadLength())
}

func TestPageRolloverIsTransparent(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryMD, "sim", "md")
	clock := &stepClock{step: 1}
	w := openWriter(t, locator, loc, location.PublicUID, testOptions(clock.Now))

	r := openReader(t, locator)
	require.NoError(t, r.Join(loc, location.PublicUID, 0))

	payload := make([]byte, 100)
	var got []Frame
	for i := 0; i < 300; i++ {
		payload[0] = byte(i)
		_, err := w.Append(0, schema.TagOrderStat, payload)
		require.NoError(t, err)
		if i%37 == 0 {
			got = append(got, drain(t, r)...)
		}
	}
	got = append(got, drain(t, r)...)
	require.Len(t, got, 300)
	require.Greater(t, w.pageID, uint32(5))
	for i, f := range got {
		require.Equal(t, byte(i), f.Payload[0])
		if i > 0 {
			require.GreaterOrEqual(t, f.GenTime, got[i-1].GenTime)
		}
	}
}

func TestSingleWriterPerSegment(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryStrategy, "g", "s")
	opts := testOptions(nil)

	w, err := OpenWriter(locator, loc, 1, opts)
	require.NoError(t, err)
	require.True(t, WriterAlive(locator, loc, 1))

	_, err = OpenWriter(locator, loc, 1, opts)
	require.ErrorIs(t, err, exception.ErrSegmentUnavailable)

	other, err := OpenWriter(locator, loc, 2, opts)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, w.Close())
	require.False(t, WriterAlive(locator, loc, 1))

	w2, err := OpenWriter(locator, loc, 1, opts)
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestWriterResumesExistingSegment(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "resume")

	clock := &stepClock{now: 1000, step: 10}
	w, err := OpenWriter(locator, loc, 0, testOptions(clock.Now))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Mark(0, schema.TagTime)
		require.NoError(t, err)
	}
	last := w.LastGenTime()
	require.NoError(t, w.Close())

	// a clock behind the journal must not move gen_time backwards
	w, err = OpenWriter(locator, loc, 0, Options{PageSize: 8192, Clock: func() int64 { return 5 }})
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, 4096, w.pageSize)
	_, err = w.Mark(0, schema.TagPing)
	require.NoError(t, err)

	r := openReader(t, locator)
	require.NoError(t, r.Join(loc, 0, 0))
	frames := drain(t, r)
	require.Len(t, frames, 4)
	require.Equal(t, last, frames[3].GenTime)
	require.Equal(t, schema.TagPing, frames[3].MsgType)
}

func TestTriggerTimeClamp(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "clamp")
	w := openWriter(t, locator, loc, 0, testOptions(func() int64 { return 500 }))

	for _, trigger := range []int64{0, 100, 900} {
		_, err := w.Mark(trigger, schema.TagTime)
		require.NoError(t, err)
	}
	r := openReader(t, locator)
	require.NoError(t, r.Join(loc, 0, 0))
	frames := drain(t, r)
	require.Len(t, frames, 3)
	require.Equal(t, int64(500), frames[0].TriggerTime)
	require.Equal(t, int64(100), frames[1].TriggerTime)
	require.Equal(t, int64(500), frames[2].TriggerTime)
}

func TestJoinFromTimeObservesSuffix(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryMD, "sim", "seek")
	clock := &stepClock{step: 10}
	w := openWriter(t, locator, loc, 0, testOptions(clock.Now))

	payload := make([]byte, 200)
	for i := 0; i < 200; i++ {
		_, err := w.Append(0, schema.TagOrderStat, payload)
		require.NoError(t, err)
	}

	for _, from := range []int64{0, 1, 10, 15, 995, 1000, 1990, 2000, 2001} {
		r := openReader(t, locator)
		require.NoError(t, r.Join(loc, 0, from))
		frames := drain(t, r)
		want := 0
		for gen := int64(10); gen <= 2000; gen += 10 {
			if gen >= from {
				want++
			}
		}
		require.Lenf(t, frames, want, "from %d", from)
		if want > 0 {
			require.GreaterOrEqual(t, frames[0].TriggerTime, from)
			if from > 10 {
				require.Less(t, frames[0].TriggerTime-10, from)
			}
		}
	}
}

func TestMergeOrdersByGenTimeThenSource(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	a := location.New(location.ModeLive, location.CategoryStrategy, "g", "a")
	b := location.New(location.ModeLive, location.CategoryStrategy, "g", "b")
	clock := &stepClock{step: 10}
	wa := openWriter(t, locator, a, 0, testOptions(clock.Now))
	wb := openWriter(t, locator, b, 0, testOptions(clock.Now))

	for i := 0; i < 3; i++ {
		_, err := wb.Mark(0, schema.TagPing)
		require.NoError(t, err)
		_, err = wa.Mark(0, schema.TagPing)
		require.NoError(t, err)
	}

	r := openReader(t, locator)
	require.NoError(t, r.Join(a, 0, 0))
	require.NoError(t, r.Join(b, 0, 0))
	frames := drain(t, r)
	require.Len(t, frames, 6)
	for i, f := range frames {
		want := b.UID
		if i%2 == 1 {
			want = a.UID
		}
		require.Equal(t, want, f.Source)
		if i > 0 {
			require.Greater(t, f.GenTime, frames[i-1].GenTime)
		}
	}
}

func TestMergeTieGoesToLowerSource(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	a := location.New(location.ModeLive, location.CategoryStrategy, "g", "a")
	b := location.New(location.ModeLive, location.CategoryStrategy, "g", "b")
	fixed := func() int64 { return 100 }
	wa := openWriter(t, locator, a, 0, testOptions(fixed))
	wb := openWriter(t, locator, b, 0, testOptions(fixed))

	hi, lo := wa, wb
	if a.UID < b.UID {
		hi, lo = wb, wa
	}
	_, err := hi.Mark(0, schema.TagPing)
	require.NoError(t, err)
	_, err = lo.Mark(0, schema.TagPing)
	require.NoError(t, err)

	r := openReader(t, locator)
	require.NoError(t, r.Join(hi.Location(), 0, 0))
	require.NoError(t, r.Join(lo.Location(), 0, 0))
	frames := drain(t, r)
	require.Len(t, frames, 2)
	require.Equal(t, lo.Location().UID, frames[0].Source)
	require.Equal(t, hi.Location().UID, frames[1].Source)
}

func TestJoinPendingSegment(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "late")
	r := openReader(t, locator)

	require.NoError(t, r.Join(loc, 3, 0))
	require.NoError(t, r.Join(loc, 3, 0))
	require.Equal(t, 1, r.Channels())
	require.Empty(t, drain(t, r))

	w := openWriter(t, locator, loc, 3, testOptions(nil))
	_, err := w.Write(0, &schema.CacheReset{MsgType: int32(schema.TagAsset)})
	require.NoError(t, err)

	frames := drain(t, r)
	require.Len(t, frames, 1)
	require.Equal(t, schema.TagCacheReset, frames[0].MsgType)
}

func TestDisjoin(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	a := location.New(location.ModeLive, location.CategoryTD, "sim", "a")
	b := location.New(location.ModeLive, location.CategoryTD, "sim", "b")
	r := openReader(t, locator)
	require.NoError(t, r.Join(a, 0, 0))
	require.NoError(t, r.Join(a, 1, 0))
	require.NoError(t, r.Join(b, 0, 0))

	require.Equal(t, 2, r.Disjoin(a.UID))
	require.False(t, r.Joined(a.UID, 1))
	require.True(t, r.Joined(b.UID, 0))
	require.True(t, r.DisjoinChannel(b.UID, 0))
	require.False(t, r.DisjoinChannel(b.UID, 0))
	require.Zero(t, r.Channels())
}

func TestSegmentGoneReportedOnce(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "gone")
	w := openWriter(t, locator, loc, 0, testOptions(nil))
	_, err := w.Mark(0, schema.TagPing)
	require.NoError(t, err)

	r := openReader(t, locator)
	require.NoError(t, r.Join(loc, 0, 0))
	require.Len(t, drain(t, r), 1)

	require.NoError(t, os.Remove(w.Path()))
	_, ok, err := r.Next()
	require.False(t, ok)
	require.ErrorIs(t, err, exception.ErrSegmentGone)
	var segErr *SegmentError
	require.ErrorAs(t, err, &segErr)
	require.Equal(t, loc.UID, segErr.Source)
	require.Zero(t, r.Channels())

	_, ok, err = r.Next()
	require.False(t, ok)
	require.NoError(t, err)
}

func TestCorruptHeaderRefused(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "bad")
	path := locator.JournalPath(loc, 0)
	require.NoError(t, os.MkdirAll(locator.JournalDir(loc), 0o755))
	junk := make([]byte, 2*segmentHeaderSize)
	copy(junk, "JUNKJUNK")
	require.NoError(t, os.WriteFile(path, junk, 0o644))

	_, err := OpenWriter(locator, loc, 0, testOptions(nil))
	require.ErrorIs(t, err, exception.ErrCorruptHeader)

	r := openReader(t, locator)
	require.ErrorIs(t, r.Join(loc, 0, 0), exception.ErrCorruptHeader)
	require.Zero(t, r.Channels())
}

func TestFrameTooLarge(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "big")
	w := openWriter(t, locator, loc, 0, testOptions(nil))
	_, err := w.Append(0, schema.TagConfig, make([]byte, 4096))
	require.ErrorIs(t, err, exception.ErrFrameTooLarge)
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	require.Error(t, Options{PageSize: 1000}.Validate())
	require.Error(t, Options{PageSize: 4096 * 3 / 2}.Validate())
	require.Error(t, Options{PageSize: 4096, ProbeInterval: -time.Second}.Validate())
}

type recordClock struct {
	slept []time.Duration
}

func (c *recordClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackMergesLocations(t *testing.T) {
	root := t.TempDir()
	locator := location.NewLocator(root)
	a := location.New(location.ModeLive, location.CategoryTD, "sim", "a")
	b := location.New(location.ModeLive, location.CategoryTD, "sim", "b")
	clock := &stepClock{step: 1000}
	wa := openWriter(t, locator, a, 0, testOptions(clock.Now))
	wb := openWriter(t, locator, b, 9, testOptions(clock.Now))
	_, _ = wa.Mark(0, schema.TagPing)
	_, _ = wb.Mark(0, schema.TagPing)
	_, _ = wa.Mark(0, schema.TagTime)

	pb, err := NewPlayback(PlaybackConfig{Root: root, Locations: []*location.Location{a, b}, Speed: 2})
	require.NoError(t, err)
	rc := &recordClock{}
	pb.WithClock(rc)

	var tags []schema.Tag
	require.NoError(t, pb.Run(t.Context(), func(f Frame) error {
		tags = append(tags, f.MsgType)
		return nil
	}))
	require.Equal(t, []schema.Tag{schema.TagPing, schema.TagPing, schema.TagTime}, tags)
	require.Equal(t, []time.Duration{500, 500}, rc.slept)

	_, err = NewPlayback(PlaybackConfig{Root: root})
	require.Error(t, err)
}

func TestCurrentFrameUIDAdvances(t *testing.T) {
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryStrategy, "g", "uid")
	clock := &stepClock{step: 1}
	w := openWriter(t, locator, loc, 3, testOptions(clock.Now))

	first := w.CurrentFrameUID()
	require.Equal(t, uint64(loc.UID^3), first>>32)
	_, err := w.Mark(0, schema.TagPing)
	require.NoError(t, err)
	second := w.CurrentFrameUID()
	require.Greater(t, second, first)
	require.Equal(t, first>>32, second>>32)
}
