package master

import (
	"sort"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// Phase tracks the lifecycle of a registered location.
type Phase uint8

const (
	PhaseUnregistered Phase = iota
	PhaseRegistering
	PhaseLive
	PhaseDeregistered
)

func (p Phase) String() string {
	switch p {
	case PhaseUnregistered:
		return "unregistered"
	case PhaseRegistering:
		return "registering"
	case PhaseLive:
		return "live"
	case PhaseDeregistered:
		return "deregistered"
	default:
		return "unknown"
	}
}

// App holds the master's view of one participant.
type App struct {
	Location *location.Location
	Command  *location.Location
	Register schema.Register
	Phase    Phase
	// LastGenTime is the newest frame the master read from the app.
	LastGenTime int64

	writer *journal.Writer
	// announced is set once the public channel has seen the Register echo.
	announced bool
}

// Apps moves participants through their phases. A Deregistered app starts
// a new lifecycle on its next Register.
type Apps struct {
	apps map[uint32]*App
}

// NewApps creates an empty phase table.
func NewApps() *Apps {
	return &Apps{apps: make(map[uint32]*App)}
}

// Get returns the app with uid in any phase.
func (s *Apps) Get(uid uint32) (*App, bool) {
	a, ok := s.apps[uid]
	return a, ok
}

// Phase returns the phase of uid, Unregistered when unknown.
func (s *Apps) Phase(uid uint32) Phase {
	if a, ok := s.apps[uid]; ok {
		return a.Phase
	}
	return PhaseUnregistered
}

// Live reports whether uid is in the Live phase.
func (s *Apps) Live(uid uint32) bool {
	return s.Phase(uid) == PhaseLive
}

// Begin moves loc to Registering. It fails with ErrDuplicateRegistration
// while the location is Registering or Live.
func (s *Apps) Begin(loc *location.Location, reg schema.Register) (*App, error) {
	switch s.Phase(loc.UID) {
	case PhaseRegistering, PhaseLive:
		return nil, exception.ErrDuplicateRegistration
	}
	a := &App{
		Location: loc,
		Command:  location.MasterCommand(loc.UID),
		Register: reg,
		Phase:    PhaseRegistering,
	}
	s.apps[loc.UID] = a
	return a, nil
}

// Activate moves a Registering app to Live.
func (s *Apps) Activate(uid uint32) error {
	a, ok := s.apps[uid]
	if !ok {
		return exception.ErrNotRegistered
	}
	if a.Phase != PhaseRegistering {
		return exception.ErrInvalidTransition
	}
	a.Phase = PhaseLive
	return nil
}

// Abort drops a Registering app whose bootstrap failed.
func (s *Apps) Abort(uid uint32) {
	if a, ok := s.apps[uid]; ok && a.Phase == PhaseRegistering {
		delete(s.apps, uid)
	}
}

// Retire moves a Live app to Deregistered.
func (s *Apps) Retire(uid uint32) (*App, error) {
	a, ok := s.apps[uid]
	if !ok {
		return nil, exception.ErrNotRegistered
	}
	if a.Phase != PhaseLive {
		return a, exception.ErrInvalidTransition
	}
	a.Phase = PhaseDeregistered
	return a, nil
}

// LiveUIDs returns every Live uid in ascending order.
func (s *Apps) LiveUIDs() []uint32 {
	out := make([]uint32, 0, len(s.apps))
	for uid, a := range s.apps {
		if a.Phase == PhaseLive {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LiveCount returns the number of Live apps.
func (s *Apps) LiveCount() int {
	n := 0
	for _, a := range s.apps {
		if a.Phase == PhaseLive {
			n++
		}
	}
	return n
}
