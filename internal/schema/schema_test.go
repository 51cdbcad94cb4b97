package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/location"
)

func TestEveryDefinitionHasPayload(t *testing.T) {
	for _, def := range Default().Definitions() {
		p, ok := New(def.Tag)
		if !ok {
			t.Fatalf("no payload for %s (%d)", def.Name, def.Tag)
		}
		if p.Tag() != def.Tag {
			t.Fatalf("payload tag mismatch for %s: %d", def.Name, p.Tag())
		}
	}
}

func TestDefinitionsMatchStructs(t *testing.T) {
	kinds := map[Kind]reflect.Kind{
		KindInt32:   reflect.Int32,
		KindUint32:  reflect.Uint32,
		KindInt64:   reflect.Int64,
		KindUint64:  reflect.Uint64,
		KindFloat64: reflect.Float64,
		KindBytes:   reflect.Array,
		KindString:  reflect.String,
	}
	for _, def := range Default().Definitions() {
		p, _ := New(def.Tag)
		rt := reflect.TypeOf(p).Elem()
		if def.Layout == LayoutMarker {
			require.Equalf(t, 0, rt.NumField(), "marker %s has fields", def.Name)
			continue
		}
		require.Equalf(t, len(def.Fields), rt.NumField(), "field count of %s", def.Name)
		for _, f := range def.Fields {
			sf, ok := rt.FieldByName(f.Name)
			require.Truef(t, ok, "%s.%s missing", def.Name, f.Name)
			require.Equalf(t, kinds[f.Kind], sf.Type.Kind(), "%s.%s kind", def.Name, f.Name)
			if f.Kind == KindBytes {
				require.Equalf(t, f.Len, sf.Type.Len(), "%s.%s length", def.Name, f.Name)
			}
		}
	}
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Tag: 1, Name: "A", Layout: LayoutFixed, Fields: []Field{{Name: "X", Kind: KindInt32}}}))
	require.Error(t, r.Add(Definition{Tag: 1, Name: "B"}))
	require.Error(t, r.Add(Definition{Tag: 2, Name: "A"}))
	require.Error(t, r.Add(Definition{Tag: 3, Name: "C", Layout: LayoutFixed, Fields: []Field{{Name: "S", Kind: KindString}}}))
	require.Error(t, r.Add(Definition{Tag: 4, Name: "D", Layout: LayoutFixed, Fields: []Field{{Name: "B", Kind: KindBytes}}}))
	require.Error(t, r.Add(Definition{Tag: 5, Name: "E", Layout: LayoutFixed, Fields: []Field{{Name: "X", Kind: KindInt32}}, PrimaryKeys: []string{"Y"}}))
	require.Error(t, r.Add(Definition{Tag: 6, Name: "F", Layout: LayoutMarker, Fields: []Field{{Name: "X", Kind: KindInt32}}}))
	require.Equal(t, 1, r.Count())
}

func TestClassification(t *testing.T) {
	require.True(t, IsMarker(TagRequestStart))
	require.False(t, IsMarker(TagChannel))
	require.True(t, IsState(TagPosition))
	require.False(t, IsState(TagRegister))
	require.True(t, IsProfile(TagLocation))
	require.True(t, IsProfile(TagConfig))
	require.True(t, IsProfile(TagChannel))
	require.Equal(t, "Channel", TagChannel.String())
	require.Equal(t, "Unknown", Tag(1).String())

	d, ok := Lookup(TagChannel)
	require.True(t, ok)
	require.Equal(t, 8, d.Size())
}

func TestLocationRecordRoundTrip(t *testing.T) {
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "acc")
	rec := FromLocation(loc)
	require.Equal(t, loc.UID, rec.LocationUID)
	require.Equal(t, loc.UID, rec.Resolve().UID)
	require.Equal(t, loc.UID, RegisterOf(loc, 1, 0, 0).Resolve().UID)
}

func TestFixedStrings(t *testing.T) {
	var b [8]byte
	PutString(b[:], "abcdefghijk")
	require.Equal(t, "abcdefgh", CString(b[:]))
	PutString(b[:], "xy")
	require.Equal(t, "xy", CString(b[:]))
}
