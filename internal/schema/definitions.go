package schema

func locationFields() []Field {
	return []Field{
		{Name: "Mode", Kind: KindInt32},
		{Name: "Category", Kind: KindInt32},
		{Name: "Group", Kind: KindString},
		{Name: "Name", Kind: KindString},
		{Name: "LocationUID", Kind: KindUint32},
	}
}

func marker(tag Tag, name string) Definition {
	return Definition{Tag: tag, Name: name, Layout: LayoutMarker}
}

var definitions = []Definition{
	marker(TagSessionStart, "SessionStart"),
	marker(TagSessionEnd, "SessionEnd"),
	marker(TagTime, "Time"),
	marker(TagRequestStart, "RequestStart"),
	marker(TagPing, "Ping"),
	{
		Tag:    TagTimeRequest,
		Name:   "TimeRequest",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "ID", Kind: KindInt32},
			{Name: "Duration", Kind: KindInt64},
			{Name: "Repeat", Kind: KindInt32},
		},
		PrimaryKeys: []string{"ID"},
	},
	{
		Tag:    TagTimeReset,
		Name:   "TimeReset",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "SystemClockCount", Kind: KindInt64},
			{Name: "SteadyClockCount", Kind: KindInt64},
		},
	},
	{
		Tag:         TagRegister,
		Name:        "Register",
		Layout:      LayoutBlob,
		Fields:      append(locationFields(), Field{Name: "PID", Kind: KindInt32}, Field{Name: "LastActiveTime", Kind: KindInt64}, Field{Name: "CheckinTime", Kind: KindInt64}),
		PrimaryKeys: []string{"LocationUID"},
	},
	{
		Tag:         TagDeregister,
		Name:        "Deregister",
		Layout:      LayoutBlob,
		Fields:      locationFields(),
		PrimaryKeys: []string{"LocationUID"},
	},
	{
		Tag:    TagRequestReadFrom,
		Name:   "RequestReadFrom",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "SourceID", Kind: KindUint32},
			{Name: "FromTime", Kind: KindInt64},
		},
		PrimaryKeys: []string{"SourceID"},
	},
	{
		Tag:    TagRequestReadFromPublic,
		Name:   "RequestReadFromPublic",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "SourceID", Kind: KindUint32},
			{Name: "FromTime", Kind: KindInt64},
		},
		PrimaryKeys: []string{"SourceID"},
	},
	{
		Tag:    TagRequestWriteTo,
		Name:   "RequestWriteTo",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "TriggerTime", Kind: KindInt64},
			{Name: "DestID", Kind: KindUint32},
		},
		PrimaryKeys: []string{"DestID"},
	},
	{
		Tag:         TagLocation,
		Name:        "Location",
		Layout:      LayoutBlob,
		Fields:      locationFields(),
		PrimaryKeys: []string{"LocationUID"},
		Profile:     true,
	},
	{
		Tag:    TagTradingDay,
		Name:   "TradingDay",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "Timestamp", Kind: KindInt64},
		},
	},
	{
		Tag:    TagChannel,
		Name:   "Channel",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "SourceID", Kind: KindUint32},
			{Name: "DestID", Kind: KindUint32},
		},
		PrimaryKeys: []string{"SourceID", "DestID"},
		Profile:     true,
	},
	{
		Tag:    TagCacheReset,
		Name:   "CacheReset",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "MsgType", Kind: KindInt32},
		},
		PrimaryKeys: []string{"MsgType"},
	},
	{
		Tag:    TagConfig,
		Name:   "Config",
		Layout: LayoutBlob,
		Fields: []Field{
			{Name: "LocationUID", Kind: KindUint32},
			{Name: "Mode", Kind: KindInt32},
			{Name: "Category", Kind: KindInt32},
			{Name: "Group", Kind: KindString},
			{Name: "Name", Kind: KindString},
			{Name: "Value", Kind: KindString},
		},
		PrimaryKeys: []string{"LocationUID"},
		Profile:     true,
	},
	{
		Tag:    TagAsset,
		Name:   "Asset",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "UpdateTime", Kind: KindInt64},
			{Name: "HolderUID", Kind: KindUint32},
			{Name: "LedgerCategory", Kind: KindInt32},
			{Name: "AccountID", Kind: KindBytes, Len: 32},
			{Name: "Avail", Kind: KindFloat64},
			{Name: "Margin", Kind: KindFloat64},
			{Name: "MarketValue", Kind: KindFloat64},
		},
		PrimaryKeys: []string{"HolderUID", "LedgerCategory"},
		State:       true,
	},
	{
		Tag:    TagPosition,
		Name:   "Position",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "UpdateTime", Kind: KindInt64},
			{Name: "HolderUID", Kind: KindUint32},
			{Name: "InstrumentID", Kind: KindBytes, Len: 32},
			{Name: "ExchangeID", Kind: KindBytes, Len: 16},
			{Name: "Direction", Kind: KindInt32},
			{Name: "Volume", Kind: KindInt64},
			{Name: "YesterdayVolume", Kind: KindInt64},
			{Name: "AvgOpenPrice", Kind: KindFloat64},
		},
		PrimaryKeys: []string{"HolderUID", "InstrumentID", "ExchangeID", "Direction"},
		State:       true,
	},
	{
		Tag:    TagOrderStat,
		Name:   "OrderStat",
		Layout: LayoutFixed,
		Fields: []Field{
			{Name: "OrderID", Kind: KindUint64},
			{Name: "MDTime", Kind: KindInt64},
			{Name: "InsertTime", Kind: KindInt64},
			{Name: "AckTime", Kind: KindInt64},
		},
		PrimaryKeys: []string{"OrderID"},
		State:       true,
	},
}
