package codec

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// step is one resolved field of a fixed layout.
type step struct {
	index  int
	kind   schema.Kind
	offset int
	size   int
}

type plan struct {
	def   *schema.Definition
	steps []step
	pks   []step
	size  int
}

var plans = buildPlans(schema.Default())

func buildPlans(r *schema.Registry) map[schema.Tag]*plan {
	out := make(map[schema.Tag]*plan, r.Count())
	for _, def := range r.Definitions() {
		p, ok := schema.New(def.Tag)
		if !ok {
			panic("codec: no payload for " + def.Name)
		}
		rt := reflect.TypeOf(p).Elem()
		pl := &plan{def: def, size: def.Size()}
		byName := make(map[string]step, len(def.Fields))
		offset := 0
		for _, f := range def.Fields {
			sf, ok := rt.FieldByName(f.Name)
			if !ok {
				panic("codec: " + def.Name + "." + f.Name + " missing")
			}
			size := f.Kind.Size()
			if f.Kind == schema.KindBytes {
				size = f.Len
			}
			s := step{index: sf.Index[0], kind: f.Kind, offset: offset, size: size}
			offset += size
			pl.steps = append(pl.steps, s)
			byName[f.Name] = s
		}
		for _, name := range def.PrimaryKeys {
			pl.pks = append(pl.pks, byName[name])
		}
		out[def.Tag] = pl
	}
	return out
}

// Size returns the payload size of a fixed record, 0 for markers and blobs.
func Size(tag schema.Tag) int {
	if pl, ok := plans[tag]; ok {
		return pl.size
	}
	return 0
}

// Encode serializes p and appends it to dst[:0].
func Encode(dst []byte, p schema.Payload) ([]byte, error) {
	pl, ok := plans[p.Tag()]
	if !ok {
		return nil, exception.ErrUnknownTag
	}
	switch pl.def.Layout {
	case schema.LayoutMarker:
		return dst[:0], nil
	case schema.LayoutBlob:
		b, err := sonic.ConfigStd.Marshal(p)
		if err != nil {
			return nil, errors.Wrap(err, "marshal blob").With("tag", p.Tag())
		}
		return append(dst[:0], b...), nil
	}

	if cap(dst) < pl.size {
		dst = make([]byte, pl.size)
	} else {
		dst = dst[:pl.size]
	}
	v := reflect.ValueOf(p).Elem()
	for _, s := range pl.steps {
		putField(dst[s.offset:s.offset+s.size], s.kind, v.Field(s.index))
	}
	return dst, nil
}

// Decode reconstructs the record carried by a frame of the given tag.
// The returned payload never aliases src.
func Decode(tag schema.Tag, src []byte) (schema.Payload, error) {
	pl, ok := plans[tag]
	if !ok {
		return nil, exception.ErrUnknownTag
	}
	p, _ := schema.New(tag)
	switch pl.def.Layout {
	case schema.LayoutMarker:
		return p, nil
	case schema.LayoutBlob:
		if err := sonic.ConfigStd.Unmarshal(src, p); err != nil {
			return nil, errors.Wrap(err, "unmarshal blob").With("tag", tag)
		}
		return p, nil
	}

	if len(src) < pl.size {
		return nil, exception.ErrPayloadSize
	}
	v := reflect.ValueOf(p).Elem()
	for _, s := range pl.steps {
		getField(src[s.offset:s.offset+s.size], s.kind, v.Field(s.index))
	}
	return p, nil
}

// UID folds the hashes of the primary key fields of p in declared order.
// Records with equal keys share a uid whatever their other fields hold.
func UID(p schema.Payload) uint64 {
	pl, ok := plans[p.Tag()]
	if !ok {
		return 0
	}
	v := reflect.ValueOf(p).Elem()
	var uid uint64
	for _, s := range pl.pks {
		uid ^= hashField(s.kind, v.Field(s.index))
	}
	return uid
}

func hashField(kind schema.Kind, f reflect.Value) uint64 {
	switch kind {
	case schema.KindInt32, schema.KindInt64:
		return uint64(f.Int())
	case schema.KindUint32, schema.KindUint64:
		return f.Uint()
	case schema.KindString:
		return uint64(location.HashString(f.String()))
	case schema.KindBytes:
		b := make([]byte, f.Len())
		reflect.Copy(reflect.ValueOf(b), f)
		return uint64(location.Hash32(b))
	default:
		return math.Float64bits(f.Float())
	}
}

func putField(dst []byte, kind schema.Kind, f reflect.Value) {
	switch kind {
	case schema.KindInt32:
		binary.LittleEndian.PutUint32(dst, uint32(f.Int()))
	case schema.KindUint32:
		binary.LittleEndian.PutUint32(dst, uint32(f.Uint()))
	case schema.KindInt64:
		binary.LittleEndian.PutUint64(dst, uint64(f.Int()))
	case schema.KindUint64:
		binary.LittleEndian.PutUint64(dst, f.Uint())
	case schema.KindFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f.Float()))
	case schema.KindBytes:
		reflect.Copy(reflect.ValueOf(dst), f)
	}
}

func getField(src []byte, kind schema.Kind, f reflect.Value) {
	switch kind {
	case schema.KindInt32:
		f.SetInt(int64(int32(binary.LittleEndian.Uint32(src))))
	case schema.KindUint32:
		f.SetUint(uint64(binary.LittleEndian.Uint32(src)))
	case schema.KindInt64:
		f.SetInt(int64(binary.LittleEndian.Uint64(src)))
	case schema.KindUint64:
		f.SetUint(binary.LittleEndian.Uint64(src))
	case schema.KindFloat64:
		f.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	case schema.KindBytes:
		reflect.Copy(f, reflect.ValueOf(src))
	}
}
