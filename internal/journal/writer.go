package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// Writer appends frames to the segment of one (location, dest) pair.
// A segment has at most one live Writer across all processes.
// Writer is not safe for concurrent use.
type Writer struct {
	loc      *location.Location
	dest     uint32
	path     string
	clock    func() int64
	file     *os.File
	header   region
	page     region
	pageID   uint32
	pageSize int
	pos      int
	lastGen  int64
	scratch  []byte
	closed   bool
}

// OpenWriter opens the segment for writing, creating it when absent.
// It fails with ErrSegmentUnavailable when another writer holds the segment
// and with ErrCorruptHeader when the existing header does not validate.
func OpenWriter(locator *location.Locator, loc *location.Location, dest uint32, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	path := locator.JournalPath(loc, dest)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir journal dir").With("path", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open segment").With("path", path)
	}
	if err := lockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{
		loc:      loc,
		dest:     dest,
		path:     path,
		clock:    opts.Clock,
		file:     f,
		pageSize: opts.PageSize,
	}
	if err := w.attach(); err != nil {
		_ = w.release()
		return nil, err
	}
	return w, nil
}

func (w *Writer) attach() error {
	info, err := w.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat segment")
	}
	if info.Size() < segmentHeaderSize {
		return w.create()
	}
	w.header, err = mapRegion(w.file, 0, segmentHeaderSize, true)
	if err != nil {
		return err
	}
	h, ok, err := decodeSegmentHeader(w.header.view)
	if err != nil {
		return err
	}
	if !ok {
		_ = w.header.unmap()
		return w.create()
	}
	if h.Source != w.loc.UID || h.Dest != w.dest {
		return exception.ErrCorruptHeader
	}
	w.pageSize = int(h.PageSize)
	count := loadPageCount(w.header.view)
	if count == 0 {
		return exception.ErrCorruptHeader
	}
	w.pageID = uint32(count - 1)
	end := pageOffset(w.pageID, w.pageSize) + int64(w.pageSize)
	if info.Size() < end {
		return exception.ErrCorruptHeader
	}
	if w.page, err = mapRegion(w.file, pageOffset(w.pageID, w.pageSize), w.pageSize, true); err != nil {
		return err
	}
	meta := decodePageMeta(w.page.view)
	w.pos = pageCommitted(w.page.view)
	w.lastGen = meta.EndTime
	return nil
}

func (w *Writer) create() error {
	if err := w.file.Truncate(segmentHeaderSize + int64(w.pageSize)); err != nil {
		return errors.Wrap(err, "grow segment")
	}
	var err error
	if w.header, err = mapRegion(w.file, 0, segmentHeaderSize, true); err != nil {
		return err
	}
	if w.page, err = mapRegion(w.file, pageOffset(0, w.pageSize), w.pageSize, true); err != nil {
		return err
	}
	initPage(w.page.view, 0)
	initSegmentHeader(w.header.view, segmentHeader{
		PageSize:   uint32(w.pageSize),
		Source:     w.loc.UID,
		Dest:       w.dest,
		CreateTime: w.clock(),
	})
	w.pageID = 0
	w.pos = pageHeaderSize
	return nil
}

// Location returns the location this writer writes for.
func (w *Writer) Location() *location.Location {
	return w.loc
}

// Dest returns the destination uid of the segment.
func (w *Writer) Dest() uint32 {
	return w.dest
}

// Path returns the segment file path.
func (w *Writer) Path() string {
	return w.path
}

// LastGenTime returns the gen_time of the last appended frame.
func (w *Writer) LastGenTime() int64 {
	return w.lastGen
}

// CurrentFrameUID identifies the next frame this writer will append. It is
// unique within the segment and keyed by the (source, dest) pair above it.
func (w *Writer) CurrentFrameUID() uint64 {
	next := uint64(w.pageID)*uint64(w.pageSize) + uint64(w.pos)
	return uint64(w.loc.UID^w.dest)<<32 | (next>>3)&0xffffffff
}

// Append writes one frame and publishes it with a single atomic store of the
// page cursor. gen_time never decreases and trigger_time never exceeds it;
// a non-positive trigger is replaced by gen_time.
func (w *Writer) Append(trigger int64, tag schema.Tag, payload []byte) (uint64, error) {
	if w.closed {
		return 0, exception.ErrWriterClosed
	}
	size := frameHeaderSize + len(payload)
	if pageHeaderSize+size > w.pageSize {
		return 0, exception.ErrFrameTooLarge
	}
	if w.pos+size > w.pageSize {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	gen := w.clock()
	if gen < w.lastGen {
		gen = w.lastGen
	}
	if trigger <= 0 || trigger > gen {
		trigger = gen
	}

	page := w.page.view
	encodeFrameHeader(page[w.pos:], FrameHeader{
		Length:      uint32(size),
		GenTime:     gen,
		TriggerTime: trigger,
		MsgType:     tag,
		Source:      w.loc.UID,
		Dest:        w.dest,
	})
	copy(page[w.pos+frameHeaderSize:], payload)

	count := binary.LittleEndian.Uint32(page[phFrameCount:])
	if count == 0 {
		binary.LittleEndian.PutUint64(page[phBeginTime:], uint64(gen))
	}
	binary.LittleEndian.PutUint64(page[phEndTime:], uint64(gen))
	binary.LittleEndian.PutUint32(page[phFrameCount:], count+1)

	offset := uint64(w.pageID)*uint64(w.pageSize) + uint64(w.pos)
	w.pos = min(align(w.pos+size), w.pageSize)
	atomic.StoreUint64(u64(page, phCommitted), uint64(w.pos))
	w.lastGen = gen
	return offset, nil
}

// Write encodes p and appends it.
func (w *Writer) Write(trigger int64, p schema.Payload) (uint64, error) {
	buf, err := codec.Encode(w.scratch, p)
	if err != nil {
		return 0, err
	}
	w.scratch = buf
	return w.Append(trigger, p.Tag(), buf)
}

// Mark appends a zero-payload frame.
func (w *Writer) Mark(trigger int64, tag schema.Tag) (uint64, error) {
	return w.Append(trigger, tag, nil)
}

// roll chains a fresh page after the current one. The new page is
// initialized and published before the old page is marked closed so a
// reader that sees the close can always follow the chain.
func (w *Writer) roll() error {
	next := w.pageID + 1
	end := pageOffset(next, w.pageSize) + int64(w.pageSize)
	if err := w.file.Truncate(end); err != nil {
		return errors.Wrap(err, "grow segment").With("page", next)
	}
	r, err := mapRegion(w.file, pageOffset(next, w.pageSize), w.pageSize, true)
	if err != nil {
		return err
	}
	initPage(r.view, next)
	storePageCount(w.header.view, uint64(next)+1)
	closePage(w.page.view)
	_ = w.page.unmap()
	w.page = r
	w.pageID = next
	w.pos = pageHeaderSize
	return nil
}

// Close releases the mapping and the writer lock. The segment file stays.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.release()
}

func (w *Writer) release() error {
	_ = w.page.unmap()
	_ = w.header.unmap()
	_ = unlock(w.file)
	return w.file.Close()
}

// WriterAlive reports whether a live writer holds the (loc, dest) segment.
func WriterAlive(locator *location.Locator, loc *location.Location, dest uint32) bool {
	return writerAlive(locator.JournalPath(loc, dest))
}
