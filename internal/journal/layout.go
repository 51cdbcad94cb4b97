package journal

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/yongdono/kungfu/pkg/exception"
)

const (
	segmentVersion    uint32 = 1
	segmentHeaderSize        = 4096
	pageHeaderSize           = 64
	frameAlign               = 8
)

// segmentMagic is stored little-endian as one word so it can be published atomically.
var segmentMagic = binary.LittleEndian.Uint32([]byte{'K', 'F', 'J', 'N'})

// Segment header offsets.
const (
	shMagic      = 0
	shVersion    = 4
	shHeaderSize = 8
	shPageSize   = 12
	shSource     = 16
	shDest       = 20
	shCreateTime = 24
	shPageCount  = 32
)

// Page header offsets.
const (
	phCommitted  = 0
	phBeginTime  = 8
	phEndTime    = 16
	phPageID     = 24
	phFrameCount = 28
	phClosed     = 32
)

type segmentHeader struct {
	Version    uint32
	HeaderSize uint32
	PageSize   uint32
	Source     uint32
	Dest       uint32
	CreateTime int64
}

func u32(b []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off]))
}

func u64(b []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&b[off]))
}

// initSegmentHeader fills the header and publishes the magic last.
func initSegmentHeader(dst []byte, h segmentHeader) {
	_ = dst[segmentHeaderSize-1]
	binary.LittleEndian.PutUint32(dst[shVersion:], segmentVersion)
	binary.LittleEndian.PutUint32(dst[shHeaderSize:], segmentHeaderSize)
	binary.LittleEndian.PutUint32(dst[shPageSize:], h.PageSize)
	binary.LittleEndian.PutUint32(dst[shSource:], h.Source)
	binary.LittleEndian.PutUint32(dst[shDest:], h.Dest)
	binary.LittleEndian.PutUint64(dst[shCreateTime:], uint64(h.CreateTime))
	atomic.StoreUint64(u64(dst, shPageCount), 1)
	atomic.StoreUint32(u32(dst, shMagic), segmentMagic)
}

// decodeSegmentHeader validates a mapped header. ok is false while the
// writer has not published the magic yet.
func decodeSegmentHeader(src []byte) (h segmentHeader, ok bool, err error) {
	if len(src) < segmentHeaderSize {
		return h, false, nil
	}
	magic := atomic.LoadUint32(u32(src, shMagic))
	if magic == 0 {
		return h, false, nil
	}
	if magic != segmentMagic {
		return h, false, exception.ErrCorruptHeader
	}
	h = segmentHeader{
		Version:    binary.LittleEndian.Uint32(src[shVersion:]),
		HeaderSize: binary.LittleEndian.Uint32(src[shHeaderSize:]),
		PageSize:   binary.LittleEndian.Uint32(src[shPageSize:]),
		Source:     binary.LittleEndian.Uint32(src[shSource:]),
		Dest:       binary.LittleEndian.Uint32(src[shDest:]),
		CreateTime: int64(binary.LittleEndian.Uint64(src[shCreateTime:])),
	}
	if h.Version != segmentVersion || h.HeaderSize != segmentHeaderSize {
		return h, false, exception.ErrCorruptHeader
	}
	if h.PageSize < pageHeaderSize+frameHeaderSize || h.PageSize%segmentHeaderSize != 0 {
		return h, false, exception.ErrCorruptHeader
	}
	return h, true, nil
}

func loadPageCount(header []byte) uint64 {
	return atomic.LoadUint64(u64(header, shPageCount))
}

func storePageCount(header []byte, n uint64) {
	atomic.StoreUint64(u64(header, shPageCount), n)
}

func pageOffset(id uint32, pageSize int) int64 {
	return segmentHeaderSize + int64(id)*int64(pageSize)
}

func initPage(page []byte, id uint32) {
	clear(page[:pageHeaderSize])
	binary.LittleEndian.PutUint32(page[phPageID:], id)
	atomic.StoreUint64(u64(page, phCommitted), pageHeaderSize)
}

// pageCommitted is the end of the last published frame in page.
func pageCommitted(page []byte) int {
	c := int(atomic.LoadUint64(u64(page, phCommitted)))
	if c < pageHeaderSize {
		return pageHeaderSize
	}
	return c
}

func pageClosed(page []byte) bool {
	return atomic.LoadUint32(u32(page, phClosed)) != 0
}

func closePage(page []byte) {
	atomic.StoreUint32(u32(page, phClosed), 1)
}

type pageMeta struct {
	Committed  int
	BeginTime  int64
	EndTime    int64
	ID         uint32
	FrameCount uint32
}

func decodePageMeta(src []byte) pageMeta {
	c := int(binary.LittleEndian.Uint64(src[phCommitted:]))
	if c < pageHeaderSize {
		c = pageHeaderSize
	}
	return pageMeta{
		Committed:  c,
		BeginTime:  int64(binary.LittleEndian.Uint64(src[phBeginTime:])),
		EndTime:    int64(binary.LittleEndian.Uint64(src[phEndTime:])),
		ID:         binary.LittleEndian.Uint32(src[phPageID:]),
		FrameCount: binary.LittleEndian.Uint32(src[phFrameCount:]),
	}
}

func align(n int) int {
	return (n + frameAlign - 1) &^ (frameAlign - 1)
}
