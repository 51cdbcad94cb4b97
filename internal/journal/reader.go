package journal

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/pkg/exception"
)

// SegmentError reports a joined segment that was dropped from a reader.
// It wraps ErrSegmentGone or ErrCorruptHeader.
type SegmentError struct {
	Source uint32
	Dest   uint32
	Path   string
	Err    error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("%v: %08x -> %08x (%s)", e.Err, e.Source, e.Dest, e.Path)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

type channelKey struct {
	source uint32
	dest   uint32
}

func (k channelKey) less(o channelKey) bool {
	if k.source != o.source {
		return k.source < o.source
	}
	return k.dest < o.dest
}

type channel struct {
	key      channelKey
	path     string
	from     int64
	file     *os.File
	info     os.FileInfo
	header   region
	page     region
	pageID   uint32
	pageSize int
	pos      int
	ready    bool
}

// Reader multiplexes the joined segments into one stream ordered by
// gen_time, ties going to the lower source uid.
// Reader is not safe for concurrent use.
type Reader struct {
	locator   *location.Locator
	opts      Options
	channels  []*channel
	buf       []byte
	nextProbe time.Time
	closed    bool
}

// NewReader creates a reader with no joined channels.
func NewReader(locator *location.Locator, opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Reader{locator: locator, opts: opts}, nil
}

// Join adds the (loc, dest) segment, positioned at the first frame with
// trigger_time >= from. Joining an already joined channel is a no-op.
// A segment that does not exist yet is picked up once its writer creates it.
func (r *Reader) Join(loc *location.Location, dest uint32, from int64) error {
	if r.closed {
		return exception.ErrReaderClosed
	}
	key := channelKey{source: loc.UID, dest: dest}
	i := sort.Search(len(r.channels), func(i int) bool { return !r.channels[i].key.less(key) })
	if i < len(r.channels) && r.channels[i].key == key {
		return nil
	}
	c := &channel{key: key, path: r.locator.JournalPath(loc, dest), from: from}
	if _, err := c.open(); err != nil {
		c.close()
		return err
	}
	r.channels = append(r.channels, nil)
	copy(r.channels[i+1:], r.channels[i:])
	r.channels[i] = c
	return nil
}

// Disjoin removes every channel sourced from uid and returns how many were removed.
func (r *Reader) Disjoin(source uint32) int {
	kept := r.channels[:0]
	removed := 0
	for _, c := range r.channels {
		if c.key.source == source {
			c.close()
			removed++
			continue
		}
		kept = append(kept, c)
	}
	clear(r.channels[len(kept):])
	r.channels = kept
	return removed
}

// DisjoinChannel removes one (source, dest) channel.
func (r *Reader) DisjoinChannel(source, dest uint32) bool {
	for i, c := range r.channels {
		if c.key.source == source && c.key.dest == dest {
			c.close()
			r.channels = append(r.channels[:i], r.channels[i+1:]...)
			return true
		}
	}
	return false
}

// Joined reports whether (source, dest) is joined.
func (r *Reader) Joined(source, dest uint32) bool {
	for _, c := range r.channels {
		if c.key.source == source && c.key.dest == dest {
			return true
		}
	}
	return false
}

// Channels returns the number of joined channels.
func (r *Reader) Channels() int {
	return len(r.channels)
}

// Next returns the next frame across all joined channels. ok is false when
// no frame is committed yet. A *SegmentError is returned once for a segment
// that disappeared or failed validation; that channel is disjoined.
func (r *Reader) Next() (Frame, bool, error) {
	if r.closed {
		return Frame{}, false, exception.ErrReaderClosed
	}
	probe := r.probeDue()
	if probe {
		if err := r.openPending(); err != nil {
			return Frame{}, false, err
		}
	}

	var (
		best  *channel
		bestH FrameHeader
	)
	for _, c := range r.channels {
		h, ok, err := c.peek()
		if err != nil {
			return Frame{}, false, r.drop(c, err)
		}
		if ok && (best == nil || h.GenTime < bestH.GenTime) {
			best, bestH = c, h
		}
	}
	if best == nil {
		if probe {
			return Frame{}, false, r.checkGone()
		}
		return Frame{}, false, nil
	}

	page := best.page.view
	start := best.pos + frameHeaderSize
	end := best.pos + int(bestH.Length)
	r.buf = append(r.buf[:0], page[start:end]...)
	f := Frame{
		FrameHeader: bestH,
		Offset:      uint64(best.pageID)*uint64(best.pageSize) + uint64(best.pos),
		Payload:     r.buf,
	}
	best.pos = min(align(end), best.pageSize)
	return f, true, nil
}

func (r *Reader) probeDue() bool {
	if r.opts.ProbeInterval <= 0 {
		return true
	}
	now := time.Now()
	if now.Before(r.nextProbe) {
		return false
	}
	r.nextProbe = now.Add(r.opts.ProbeInterval)
	return true
}

func (r *Reader) openPending() error {
	for _, c := range r.channels {
		if c.ready {
			continue
		}
		if _, err := c.open(); err != nil {
			return r.drop(c, err)
		}
	}
	return nil
}

// checkGone reports the first opened segment whose file was removed or replaced.
func (r *Reader) checkGone() error {
	for _, c := range r.channels {
		if !c.ready {
			continue
		}
		info, err := os.Stat(c.path)
		if err == nil && os.SameFile(info, c.info) {
			continue
		}
		return r.drop(c, exception.ErrSegmentGone)
	}
	return nil
}

func (r *Reader) drop(c *channel, cause error) error {
	r.DisjoinChannel(c.key.source, c.key.dest)
	return &SegmentError{Source: c.key.source, Dest: c.key.dest, Path: c.path, Err: cause}
}

// Close releases every joined segment.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	for _, c := range r.channels {
		c.close()
	}
	r.channels = nil
	return nil
}

// open maps the segment once its writer has published the header.
func (c *channel) open() (bool, error) {
	if c.ready {
		return true, nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "open segment").With("path", c.path)
	}
	info, err := f.Stat()
	if err != nil || info.Size() < segmentHeaderSize {
		_ = f.Close()
		return false, nil
	}
	header, err := mapRegion(f, 0, segmentHeaderSize, false)
	if err != nil {
		_ = f.Close()
		return false, err
	}
	h, ok, err := decodeSegmentHeader(header.view)
	if err != nil || !ok {
		_ = header.unmap()
		_ = f.Close()
		return false, err
	}
	c.file, c.info, c.header = f, info, header
	c.pageSize = int(h.PageSize)
	if err := c.mapPage(c.seekPage()); err != nil {
		c.close()
		return false, err
	}
	c.ready = true
	return true, nil
}

// seekPage returns the last page whose first frame is older than from.
func (c *channel) seekPage() uint32 {
	count := int(loadPageCount(c.header.view))
	if c.from <= 0 || count <= 1 {
		return 0
	}
	buf := make([]byte, pageHeaderSize)
	idx := sort.Search(count, func(i int) bool {
		if _, err := c.file.ReadAt(buf, pageOffset(uint32(i), c.pageSize)); err != nil {
			return true
		}
		m := decodePageMeta(buf)
		return m.FrameCount == 0 || m.BeginTime >= c.from
	})
	if idx == 0 {
		return 0
	}
	return uint32(idx - 1)
}

func (c *channel) mapPage(id uint32) error {
	r, err := mapRegion(c.file, pageOffset(id, c.pageSize), c.pageSize, false)
	if err != nil {
		return err
	}
	_ = c.page.unmap()
	c.page = r
	c.pageID = id
	c.pos = pageHeaderSize
	return nil
}

// peek returns the header of the next committed frame without consuming it.
func (c *channel) peek() (FrameHeader, bool, error) {
	if !c.ready {
		return FrameHeader{}, false, nil
	}
	for {
		page := c.page.view
		committed := pageCommitted(page)
		if c.pos < committed {
			h, ok := decodeFrameHeader(page[c.pos:committed])
			if !ok || c.pos+int(h.Length) > committed {
				return FrameHeader{}, false, exception.ErrCorruptHeader
			}
			if c.from > 0 {
				if h.TriggerTime < c.from {
					c.pos = min(align(c.pos+int(h.Length)), c.pageSize)
					continue
				}
				c.from = 0
			}
			return h, true, nil
		}
		if !pageClosed(page) {
			return FrameHeader{}, false, nil
		}
		if pageCommitted(page) > c.pos {
			continue
		}
		if loadPageCount(c.header.view) <= uint64(c.pageID)+1 {
			return FrameHeader{}, false, nil
		}
		if err := c.mapPage(c.pageID + 1); err != nil {
			return FrameHeader{}, false, err
		}
	}
}

func (c *channel) close() {
	_ = c.page.unmap()
	_ = c.header.unmap()
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
	}
	c.ready = false
}
