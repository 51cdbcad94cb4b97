package bus

import "github.com/yongdono/kungfu/internal/schema"

// Filter selects the events a subscription sees.
type Filter interface {
	Match(e *Event) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(e *Event) bool

func (f FilterFunc) Match(e *Event) bool {
	return f(e)
}

// Any matches every event.
func Any() Filter {
	return FilterFunc(func(*Event) bool { return true })
}

// Is matches events whose tag is one of tags.
func Is(tags ...schema.Tag) Filter {
	if len(tags) == 1 {
		tag := tags[0]
		return FilterFunc(func(e *Event) bool { return e.MsgType == tag })
	}
	set := make(map[schema.Tag]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return FilterFunc(func(e *Event) bool {
		_, ok := set[e.MsgType]
		return ok
	})
}

// From matches events written by source.
func From(source uint32) Filter {
	return FilterFunc(func(e *Event) bool { return e.Source == source })
}

// To matches events addressed to dest.
func To(dest uint32) Filter {
	return FilterFunc(func(e *Event) bool { return e.Dest == dest })
}

// IsMarker matches zero-payload lifecycle markers.
func IsMarker() Filter {
	return FilterFunc(func(e *Event) bool { return schema.IsMarker(e.MsgType) })
}

// All matches when every filter matches.
func All(filters ...Filter) Filter {
	return FilterFunc(func(e *Event) bool {
		for _, f := range filters {
			if !f.Match(e) {
				return false
			}
		}
		return true
	})
}

// Not inverts f.
func Not(f Filter) Filter {
	return FilterFunc(func(e *Event) bool { return !f.Match(e) })
}

// SkipUntil drops events until one tagged tag is seen. The gating event
// itself is dropped; everything after it passes. Each call returns an
// independent gate.
func SkipUntil(tag schema.Tag) Filter {
	open := false
	return FilterFunc(func(e *Event) bool {
		if open {
			return true
		}
		if e.MsgType == tag {
			open = true
		}
		return false
	})
}
