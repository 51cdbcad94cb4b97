package bus

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

func event(tag schema.Tag, source, dest uint32) *Event {
	return &Event{Frame: journal.Frame{FrameHeader: journal.FrameHeader{MsgType: tag, Source: source, Dest: dest}}}
}

func TestFilters(t *testing.T) {
	e := event(schema.TagChannel, 1, 2)
	require.True(t, Is(schema.TagChannel).Match(e))
	require.True(t, Is(schema.TagPing, schema.TagChannel).Match(e))
	require.False(t, Is(schema.TagPing, schema.TagTime).Match(e))
	require.True(t, From(1).Match(e))
	require.False(t, From(2).Match(e))
	require.True(t, To(2).Match(e))
	require.False(t, IsMarker().Match(e))
	require.True(t, IsMarker().Match(event(schema.TagRequestStart, 1, 2)))
	require.True(t, All(Is(schema.TagChannel), From(1), To(2)).Match(e))
	require.False(t, All(Is(schema.TagChannel), From(9)).Match(e))
	require.True(t, Not(From(9)).Match(e))
	require.True(t, Any().Match(e))
}

func TestAs(t *testing.T) {
	payload, err := codec.Encode(nil, &schema.Channel{SourceID: 3, DestID: 4})
	require.NoError(t, err)
	e := event(schema.TagChannel, 3, 0)
	e.Payload = payload

	ch, ok := As[*schema.Channel](e)
	require.True(t, ok)
	require.Equal(t, uint32(4), ch.DestID)

	_, ok = As[*schema.Register](e)
	require.False(t, ok)

	bad := event(schema.TagChannel, 3, 0)
	bad.Payload = []byte{1}
	_, ok = As[*schema.Channel](bad)
	require.False(t, ok)
}

func TestSkipUntil(t *testing.T) {
	gate := SkipUntil(schema.TagRequestStart)
	require.False(t, gate.Match(event(schema.TagChannel, 1, 0)))
	require.False(t, gate.Match(event(schema.TagRequestStart, 1, 0)))
	require.True(t, gate.Match(event(schema.TagChannel, 1, 0)))

	other := SkipUntil(schema.TagRequestStart)
	require.False(t, other.Match(event(schema.TagChannel, 1, 0)))
}

func TestQueue(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	require.ErrorIs(t, q.TryPublish(3), ErrQueueFull)
	require.Equal(t, 2, q.Len())

	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	q.Close()
	require.ErrorIs(t, q.TryPublish(4), ErrQueueClosed)

	v, ok = q.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, v)
	_, ok = q.TryPop()
	require.False(t, ok)
}

func TestQueuePublishRacingClose(t *testing.T) {
	q := NewQueue[int](4)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := q.TryPublish(j)
				if err != nil && !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrQueueClosed) {
					t.Errorf("unexpected publish error: %v", err)
				}
				q.TryPop()
			}
		}()
	}
	q.Close()
	wg.Wait()
	require.ErrorIs(t, q.TryPublish(1), ErrQueueClosed)
}

func TestLifecycleFiresOnceInOrder(t *testing.T) {
	var l Lifecycle
	var calls []string
	require.NoError(t, l.Observe(Observer{
		Name:    "first",
		OnStart: func() { calls = append(calls, "start-1") },
		OnExit:  func() { calls = append(calls, "exit-1") },
	}))
	require.NoError(t, l.Observe(Observer{
		Name:         "second",
		OnStart:      func() { calls = append(calls, "start-2") },
		OnTradingDay: func(int64) { calls = append(calls, "day-2") },
	}))

	require.True(t, l.Start())
	require.False(t, l.Start())
	l.TradingDay(1)
	require.True(t, l.Exit())
	require.False(t, l.Exit())
	require.True(t, l.Started())
	require.True(t, l.Exited())
	require.Equal(t, []string{"start-1", "start-2", "day-2", "exit-1"}, calls)
	require.ErrorIs(t, l.Observe(Observer{}), exception.ErrAlreadyStarted)
}

type fixture struct {
	locator *location.Locator
	loc     *location.Location
	writer  *journal.Writer
	engine  *Engine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	locator := location.NewLocator(t.TempDir())
	loc := location.New(location.ModeLive, location.CategoryStrategy, "g", "s")
	opts := journal.Options{PageSize: 4096}
	w, err := journal.OpenWriter(locator, loc, location.PublicUID, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	r, err := journal.NewReader(locator, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Join(loc, location.PublicUID, 0))
	return &fixture{locator: locator, loc: loc, writer: w, engine: NewEngine(r, cfg)}
}

func TestEngineDispatchInSubscriptionOrder(t *testing.T) {
	f := newFixture(t, Config{})
	var seen []string

	require.NoError(t, f.engine.Subscribe("all", Any(), func(e *Event) {
		seen = append(seen, "all:"+e.MsgType.String())
	}))
	require.NoError(t, f.engine.Subscribe("gated", SkipUntil(schema.TagRequestStart), func(e *Event) {
		seen = append(seen, "gated:"+e.MsgType.String())
	}))
	require.NoError(t, f.engine.Subscribe("channel", Is(schema.TagChannel), func(e *Event) {
		data, err := e.Data()
		require.NoError(t, err)
		seen = append(seen, "channel:"+string(rune('0'+data.(*schema.Channel).DestID)))
	}))
	require.NoError(t, f.engine.Start())
	require.ErrorIs(t, f.engine.Subscribe("late", Any(), func(*Event) {}), exception.ErrAlreadyStarted)
	require.ErrorIs(t, f.engine.Start(), exception.ErrAlreadyStarted)

	_, err := f.writer.Write(0, &schema.Channel{SourceID: 1, DestID: 1})
	require.NoError(t, err)
	_, err = f.writer.Mark(0, schema.TagRequestStart)
	require.NoError(t, err)
	_, err = f.writer.Write(0, &schema.Channel{SourceID: 1, DestID: 2})
	require.NoError(t, err)

	for {
		got, err := f.engine.ProduceOne()
		require.NoError(t, err)
		if !got {
			break
		}
	}
	require.Equal(t, []string{
		"all:Channel", "channel:1",
		"all:RequestStart",
		"all:Channel", "gated:Channel", "channel:2",
	}, seen)
}

func TestEngineActiveHooksAndGone(t *testing.T) {
	f := newFixture(t, Config{Clock: func() int64 { return 42 }})
	var nows []int64
	var gone []*journal.SegmentError
	require.NoError(t, f.engine.OnActive(func(now int64) { nows = append(nows, now) }))
	require.NoError(t, f.engine.OnGone(func(e *journal.SegmentError) { gone = append(gone, e) }))
	require.NoError(t, f.engine.Start())

	got, err := f.engine.Step()
	require.NoError(t, err)
	require.False(t, got)
	require.Equal(t, []int64{42}, nows)

	require.NoError(t, os.Remove(f.writer.Path()))
	require.Eventually(t, func() bool {
		_, err := f.engine.Step()
		return err == nil && len(gone) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, f.loc.UID, gone[0].Source)
	require.ErrorIs(t, gone[0], exception.ErrSegmentGone)
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	for _, mode := range []Mode{ModeNormal, ModeLowLatency} {
		f := newFixture(t, Config{Mode: mode, IdleSleep: time.Millisecond})
		pings := 0
		require.NoError(t, f.engine.Subscribe("ping", Is(schema.TagPing), func(*Event) { pings++ }))
		_, err := f.writer.Mark(0, schema.TagPing)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		require.NoError(t, f.engine.Run(ctx))
		cancel()
		assert.Equal(t, 1, pings)
		assert.Equal(t, mode, f.engine.Mode())
	}
}

func TestEngineStop(t *testing.T) {
	f := newFixture(t, Config{})
	f.engine.Stop()
	require.NoError(t, f.engine.Run(t.Context()))
	require.True(t, f.engine.Started())
}
