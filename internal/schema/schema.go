package schema

// Tag identifies the payload type of a frame. Values are part of the wire
// contract and never change.
type Tag int32

const (
	TagUnknown Tag = 0

	TagSessionStart          Tag = 10001
	TagSessionEnd            Tag = 10002
	TagTime                  Tag = 10003
	TagTimeRequest           Tag = 10004
	TagTimeReset             Tag = 10005
	TagRegister              Tag = 10011
	TagDeregister            Tag = 10012
	TagRequestReadFrom       Tag = 10021
	TagRequestReadFromPublic Tag = 10022
	TagRequestWriteTo        Tag = 10023
	TagRequestStart          Tag = 10025
	TagLocation              Tag = 10026
	TagTradingDay            Tag = 10027
	TagChannel               Tag = 10028
	TagCacheReset            Tag = 10029
	TagPing                  Tag = 10030
	TagConfig                Tag = 10031

	TagAsset     Tag = 203
	TagPosition  Tag = 204
	TagOrderStat Tag = 205
)

func (t Tag) String() string {
	if def, ok := Lookup(t); ok {
		return def.Name
	}
	return "Unknown"
}

// Layout is how a record is laid out inside a frame payload.
type Layout uint8

const (
	// LayoutMarker carries no payload.
	LayoutMarker Layout = iota
	// LayoutFixed is packed little-endian fields in declared order.
	LayoutFixed
	// LayoutBlob is a JSON document.
	LayoutBlob
)

// Kind is the wire type of one field.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindUint32
	KindInt64
	KindUint64
	KindFloat64
	KindBytes
	KindString
)

// Size is the packed width of a fixed field. KindBytes uses Field.Len.
func (k Kind) Size() int {
	switch k {
	case KindInt32, KindUint32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Field describes one record field. Name is the Go struct field name.
type Field struct {
	Name string
	Kind Kind
	Len  int
}

// Definition is the schema table entry of one record type.
type Definition struct {
	Tag         Tag
	Name        string
	Layout      Layout
	Fields      []Field
	PrimaryKeys []string

	// State marks types mirrored by cache-shift.
	State bool
	// Profile marks types persisted by the master and replayed to new apps.
	Profile bool
}

// Size is the packed payload size of a fixed layout; 0 otherwise.
func (d *Definition) Size() int {
	if d.Layout != LayoutFixed {
		return 0
	}
	n := 0
	for _, f := range d.Fields {
		if f.Kind == KindBytes {
			n += f.Len
			continue
		}
		n += f.Kind.Size()
	}
	return n
}

// Field returns the field definition by name.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
