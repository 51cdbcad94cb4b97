package journal

import (
	"encoding/binary"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
)

// frameHeaderSize is the packed frame header:
// length u32 | header_length u32 | gen_time i64 | trigger_time i64 |
// msg_type i32 | source u32 | dest u32
const frameHeaderSize = 36

// FrameHeader is the fixed part of every frame.
type FrameHeader struct {
	Length      uint32
	GenTime     int64
	TriggerTime int64
	MsgType     schema.Tag
	Source      uint32
	Dest        uint32
}

// PayloadLength is the number of bytes following the header.
func (h FrameHeader) PayloadLength() int {
	return int(h.Length) - frameHeaderSize
}

func encodeFrameHeader(dst []byte, h FrameHeader) {
	_ = dst[frameHeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.Length)
	binary.LittleEndian.PutUint32(dst[4:8], frameHeaderSize)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(h.GenTime))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(h.TriggerTime))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(h.MsgType))
	binary.LittleEndian.PutUint32(dst[28:32], h.Source)
	binary.LittleEndian.PutUint32(dst[32:36], h.Dest)
}

func decodeFrameHeader(src []byte) (FrameHeader, bool) {
	if len(src) < frameHeaderSize {
		return FrameHeader{}, false
	}
	h := FrameHeader{
		Length:      binary.LittleEndian.Uint32(src[0:4]),
		GenTime:     int64(binary.LittleEndian.Uint64(src[8:16])),
		TriggerTime: int64(binary.LittleEndian.Uint64(src[16:24])),
		MsgType:     schema.Tag(int32(binary.LittleEndian.Uint32(src[24:28]))),
		Source:      binary.LittleEndian.Uint32(src[28:32]),
		Dest:        binary.LittleEndian.Uint32(src[32:36]),
	}
	if binary.LittleEndian.Uint32(src[4:8]) != frameHeaderSize || h.Length < frameHeaderSize {
		return FrameHeader{}, false
	}
	return h, true
}

// Frame is one committed record read from a segment.
type Frame struct {
	FrameHeader
	// Offset is the position of the frame in its segment: page id * page size + in-page position.
	Offset uint64
	// Payload is only valid until the next call to Reader.Next.
	Payload []byte
}

// Data decodes the payload by its tag.
func (f *Frame) Data() (schema.Payload, error) {
	return codec.Decode(f.MsgType, f.Payload)
}
