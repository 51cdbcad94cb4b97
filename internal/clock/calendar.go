package clock

import "time"

const defaultRolloverHour = 17

// Calendar maps wall time onto trading days. A day rolls over at
// RolloverHour local time and weekends carry to the next Monday.
type Calendar struct {
	RolloverHour int
	Zone         *time.Location
}

// DefaultCalendar rolls over at 17:00 local time.
func DefaultCalendar() Calendar {
	return Calendar{RolloverHour: defaultRolloverHour, Zone: time.Local}
}

// TradingDay returns midnight of the trading day containing now, in unix
// nanoseconds of the calendar zone.
func (c Calendar) TradingDay(now int64) int64 {
	zone := c.Zone
	if zone == nil {
		zone = time.Local
	}
	t := time.Unix(0, now).In(zone)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, zone)
	if c.RolloverHour > 0 && t.Hour() >= c.RolloverHour {
		day = day.AddDate(0, 0, 1)
	}
	switch day.Weekday() {
	case time.Saturday:
		day = day.AddDate(0, 0, 2)
	case time.Sunday:
		day = day.AddDate(0, 0, 1)
	}
	return day.UnixNano()
}
