package schema

import (
	"bytes"

	"github.com/yongdono/kungfu/internal/location"
)

// Payload is the closed set of records a frame can carry.
type Payload interface {
	Tag() Tag
	sealed()
}

// New returns a zero record for tag.
func New(tag Tag) (Payload, bool) {
	switch tag {
	case TagSessionStart:
		return &SessionStart{}, true
	case TagSessionEnd:
		return &SessionEnd{}, true
	case TagTime:
		return &Time{}, true
	case TagRequestStart:
		return &RequestStart{}, true
	case TagPing:
		return &Ping{}, true
	case TagTimeRequest:
		return &TimeRequest{}, true
	case TagTimeReset:
		return &TimeReset{}, true
	case TagRegister:
		return &Register{}, true
	case TagDeregister:
		return &Deregister{}, true
	case TagRequestReadFrom:
		return &RequestReadFrom{}, true
	case TagRequestReadFromPublic:
		return &RequestReadFromPublic{}, true
	case TagRequestWriteTo:
		return &RequestWriteTo{}, true
	case TagLocation:
		return &Location{}, true
	case TagTradingDay:
		return &TradingDay{}, true
	case TagChannel:
		return &Channel{}, true
	case TagCacheReset:
		return &CacheReset{}, true
	case TagConfig:
		return &Config{}, true
	case TagAsset:
		return &Asset{}, true
	case TagPosition:
		return &Position{}, true
	case TagOrderStat:
		return &OrderStat{}, true
	}
	return nil, false
}

type (
	SessionStart struct{}
	SessionEnd   struct{}
	Time         struct{}
	RequestStart struct{}
	Ping         struct{}
)

func (*SessionStart) Tag() Tag { return TagSessionStart }
func (*SessionEnd) Tag() Tag   { return TagSessionEnd }
func (*Time) Tag() Tag         { return TagTime }
func (*RequestStart) Tag() Tag { return TagRequestStart }
func (*Ping) Tag() Tag         { return TagPing }

// TimeRequest asks the master for a Time marker after Duration, Repeat times.
type TimeRequest struct {
	ID       int32 `json:"id"`
	Duration int64 `json:"duration"`
	Repeat   int32 `json:"repeat"`
}

func (*TimeRequest) Tag() Tag { return TagTimeRequest }

// TimeReset carries the master's clock readings for drift correction.
type TimeReset struct {
	SystemClockCount int64 `json:"system_clock_count"`
	SteadyClockCount int64 `json:"steady_clock_count"`
}

func (*TimeReset) Tag() Tag { return TagTimeReset }

// Location announces a known participant.
type Location struct {
	Mode        int32  `json:"mode"`
	Category    int32  `json:"category"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	LocationUID uint32 `json:"location_uid"`
}

func (*Location) Tag() Tag { return TagLocation }

// Register is the first frame a participant writes into its public segment.
type Register struct {
	Mode           int32  `json:"mode"`
	Category       int32  `json:"category"`
	Group          string `json:"group"`
	Name           string `json:"name"`
	LocationUID    uint32 `json:"location_uid"`
	PID            int32  `json:"pid"`
	LastActiveTime int64  `json:"last_active_time"`
	CheckinTime    int64  `json:"checkin_time"`
}

func (*Register) Tag() Tag { return TagRegister }

// Deregister announces a participant leaving.
type Deregister struct {
	Mode        int32  `json:"mode"`
	Category    int32  `json:"category"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	LocationUID uint32 `json:"location_uid"`
}

func (*Deregister) Tag() Tag { return TagDeregister }

type RequestReadFrom struct {
	SourceID uint32 `json:"source_id"`
	FromTime int64  `json:"from_time"`
}

func (*RequestReadFrom) Tag() Tag { return TagRequestReadFrom }

type RequestReadFromPublic struct {
	SourceID uint32 `json:"source_id"`
	FromTime int64  `json:"from_time"`
}

func (*RequestReadFromPublic) Tag() Tag { return TagRequestReadFromPublic }

type RequestWriteTo struct {
	TriggerTime int64  `json:"trigger_time"`
	DestID      uint32 `json:"dest_id"`
}

func (*RequestWriteTo) Tag() Tag { return TagRequestWriteTo }

type TradingDay struct {
	Timestamp int64 `json:"timestamp"`
}

func (*TradingDay) Tag() Tag { return TagTradingDay }

// Channel permits SourceID to write a segment DestID reads.
type Channel struct {
	SourceID uint32 `json:"source_id"`
	DestID   uint32 `json:"dest_id"`
}

func (*Channel) Tag() Tag { return TagChannel }

// CacheReset hands the MsgType state slot from the frame source to its dest.
type CacheReset struct {
	MsgType int32 `json:"msg_type"`
}

func (*CacheReset) Tag() Tag { return TagCacheReset }

// Config is an opaque per-location configuration document.
type Config struct {
	LocationUID uint32 `json:"location_uid"`
	Mode        int32  `json:"mode"`
	Category    int32  `json:"category"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	Value       string `json:"value"`
}

func (*Config) Tag() Tag { return TagConfig }

type Asset struct {
	UpdateTime     int64    `json:"update_time"`
	HolderUID      uint32   `json:"holder_uid"`
	LedgerCategory int32    `json:"ledger_category"`
	AccountID      [32]byte `json:"-"`
	Avail          float64  `json:"avail"`
	Margin         float64  `json:"margin"`
	MarketValue    float64  `json:"market_value"`
}

func (*Asset) Tag() Tag { return TagAsset }

type Position struct {
	UpdateTime      int64    `json:"update_time"`
	HolderUID       uint32   `json:"holder_uid"`
	InstrumentID    [32]byte `json:"-"`
	ExchangeID      [16]byte `json:"-"`
	Direction       int32    `json:"direction"`
	Volume          int64    `json:"volume"`
	YesterdayVolume int64    `json:"yesterday_volume"`
	AvgOpenPrice    float64  `json:"avg_open_price"`
}

func (*Position) Tag() Tag { return TagPosition }

type OrderStat struct {
	OrderID    uint64 `json:"order_id"`
	MDTime     int64  `json:"md_time"`
	InsertTime int64  `json:"insert_time"`
	AckTime    int64  `json:"ack_time"`
}

func (*OrderStat) Tag() Tag { return TagOrderStat }

func (*SessionStart) sealed()          {}
func (*SessionEnd) sealed()            {}
func (*Time) sealed()                  {}
func (*RequestStart) sealed()          {}
func (*Ping) sealed()                  {}
func (*TimeRequest) sealed()           {}
func (*TimeReset) sealed()             {}
func (*Location) sealed()              {}
func (*Register) sealed()              {}
func (*Deregister) sealed()            {}
func (*RequestReadFrom) sealed()       {}
func (*RequestReadFromPublic) sealed() {}
func (*RequestWriteTo) sealed()        {}
func (*TradingDay) sealed()            {}
func (*Channel) sealed()               {}
func (*CacheReset) sealed()            {}
func (*Config) sealed()                {}
func (*Asset) sealed()                 {}
func (*Position) sealed()              {}
func (*OrderStat) sealed()             {}

// FromLocation builds the Location record of loc.
func FromLocation(loc *location.Location) *Location {
	return &Location{
		Mode:        int32(loc.Mode),
		Category:    int32(loc.Category),
		Group:       loc.Group,
		Name:        loc.Name,
		LocationUID: loc.UID,
	}
}

// Resolve rebuilds the address of the record.
func (l *Location) Resolve() *location.Location {
	return location.New(location.Mode(l.Mode), location.Category(l.Category), l.Group, l.Name)
}

// RegisterOf builds the Register record of loc.
func RegisterOf(loc *location.Location, pid int32, lastActive, checkin int64) *Register {
	return &Register{
		Mode:           int32(loc.Mode),
		Category:       int32(loc.Category),
		Group:          loc.Group,
		Name:           loc.Name,
		LocationUID:    loc.UID,
		PID:            pid,
		LastActiveTime: lastActive,
		CheckinTime:    checkin,
	}
}

// Resolve rebuilds the address of the registering location.
func (r *Register) Resolve() *location.Location {
	return location.New(location.Mode(r.Mode), location.Category(r.Category), r.Group, r.Name)
}

// Resolve rebuilds the address the config belongs to.
func (c *Config) Resolve() *location.Location {
	return location.New(location.Mode(c.Mode), location.Category(c.Category), c.Group, c.Name)
}

// DeregisterOf builds the Deregister record of loc.
func DeregisterOf(loc *location.Location) *Deregister {
	return &Deregister{
		Mode:        int32(loc.Mode),
		Category:    int32(loc.Category),
		Group:       loc.Group,
		Name:        loc.Name,
		LocationUID: loc.UID,
	}
}

// PutString copies s into a NUL padded fixed field.
func PutString(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

// CString returns the bytes of a NUL padded field up to the first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
