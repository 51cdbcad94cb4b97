package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

func TestFixedLayoutIsPackedLittleEndian(t *testing.T) {
	buf, err := Encode(nil, &schema.RequestReadFrom{SourceID: 0x01020304, FromTime: 7})
	require.NoError(t, err)
	require.Len(t, buf, 12)
	require.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(buf[0:4]))
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(buf[4:12]))
	require.Equal(t, 12, Size(schema.TagRequestReadFrom))
}

func TestFixedRoundTrip(t *testing.T) {
	pos := &schema.Position{
		UpdateTime:   11,
		HolderUID:    22,
		Direction:    -1,
		Volume:       300,
		AvgOpenPrice: 1.25,
	}
	schema.PutString(pos.InstrumentID[:], "rb2501")
	schema.PutString(pos.ExchangeID[:], "SHFE")

	buf, err := Encode(make([]byte, 0, 256), pos)
	require.NoError(t, err)
	require.Len(t, buf, Size(schema.TagPosition))

	got, err := Decode(schema.TagPosition, buf)
	require.NoError(t, err)
	require.Equal(t, pos, got)
	require.Equal(t, "rb2501", schema.CString(got.(*schema.Position).InstrumentID[:]))
}

func TestBlobRoundTrip(t *testing.T) {
	reg := &schema.Register{Mode: 0, Category: 2, Group: "default", Name: "demo", LocationUID: 99, PID: 1234, CheckinTime: 5}
	buf, err := Encode(nil, reg)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"group":"default"`)

	got, err := Decode(schema.TagRegister, buf)
	require.NoError(t, err)
	require.Equal(t, reg, got)

	// decoded strings must not alias the frame buffer
	for i := range buf {
		buf[i] = 'x'
	}
	require.Equal(t, "default", got.(*schema.Register).Group)
}

func TestMarkerHasNoPayload(t *testing.T) {
	buf, err := Encode([]byte{1, 2, 3}, &schema.RequestStart{})
	require.NoError(t, err)
	require.Empty(t, buf)

	got, err := Decode(schema.TagRequestStart, nil)
	require.NoError(t, err)
	require.Equal(t, schema.TagRequestStart, got.Tag())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(schema.Tag(42), nil)
	require.ErrorIs(t, err, exception.ErrUnknownTag)

	_, err = Decode(schema.TagChannel, []byte{1, 2, 3})
	require.ErrorIs(t, err, exception.ErrPayloadSize)

	_, err = Decode(schema.TagRegister, []byte("{"))
	require.Error(t, err)
}

func TestEveryTagDecodesItsEncoding(t *testing.T) {
	for _, def := range schema.Default().Definitions() {
		p, _ := schema.New(def.Tag)
		buf, err := Encode(nil, p)
		require.NoErrorf(t, err, "encode %s", def.Name)
		got, err := Decode(def.Tag, buf)
		require.NoErrorf(t, err, "decode %s", def.Name)
		require.Equal(t, def.Tag, got.Tag())
	}
}

func TestUIDDependsOnlyOnPrimaryKeys(t *testing.T) {
	a := &schema.Position{HolderUID: 1, Direction: 1, Volume: 10, UpdateTime: 1}
	b := &schema.Position{HolderUID: 1, Direction: 1, Volume: 99, UpdateTime: 2}
	schema.PutString(a.InstrumentID[:], "600000")
	schema.PutString(b.InstrumentID[:], "600000")
	schema.PutString(a.ExchangeID[:], "SSE")
	schema.PutString(b.ExchangeID[:], "SSE")
	require.Equal(t, UID(a), UID(b))

	c := *b
	schema.PutString(c.InstrumentID[:], "600001")
	require.NotEqual(t, UID(a), UID(&c))

	d := *b
	d.Direction = 2
	require.NotEqual(t, UID(a), UID(&d))
}

func TestUIDIntegerKeysHashToValue(t *testing.T) {
	require.Equal(t, uint64(77), UID(&schema.OrderStat{OrderID: 77, AckTime: 3}))
	require.Equal(t, uint64(5^6), UID(&schema.Channel{SourceID: 5, DestID: 6}))
	require.Equal(t, uint64(0), UID(&schema.Time{}))
}
