package location

import (
	"fmt"
	"strings"

	"github.com/yanun0323/errors"
)

// PublicUID is the destination uid of the broadcast channel.
const PublicUID uint32 = 0

// Mode is the run mode a location belongs to.
type Mode int32

const (
	ModeLive Mode = iota
	ModeData
	ModeReplay
	ModeBacktest
)

var modeNames = [...]string{"live", "data", "replay", "backtest"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int32(m))
	}
	return modeNames[m]
}

// ParseMode resolves a mode name.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, errors.Errorf("unknown mode: %s", s)
}

// Category is the role a location plays.
type Category int32

const (
	CategoryMD Category = iota
	CategoryTD
	CategoryStrategy
	CategorySystem
)

var categoryNames = [...]string{"md", "td", "strategy", "system"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int32(c))
	}
	return categoryNames[c]
}

// ParseCategory resolves a category name.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, errors.Errorf("unknown category: %s", s)
}

// Location addresses a process and every journal segment it writes.
// A Location is immutable once created.
type Location struct {
	Mode     Mode
	Category Category
	Group    string
	Name     string
	UName    string
	UID      uint32
}

// New derives uname and uid from the address tuple.
func New(mode Mode, category Category, group, name string) *Location {
	uname := Join(mode, category, group, name)
	return &Location{
		Mode:     mode,
		Category: category,
		Group:    group,
		Name:     name,
		UName:    uname,
		UID:      HashString(uname),
	}
}

// Join formats the uname of an address tuple.
func Join(mode Mode, category Category, group, name string) string {
	return category.String() + "/" + group + "/" + name + "/" + mode.String()
}

// Parse builds a location from a "category/group/name/mode" uname.
func Parse(uname string) (*Location, error) {
	parts := strings.Split(uname, "/")
	if len(parts) != 4 {
		return nil, errors.Errorf("invalid uname: %s", uname)
	}
	category, err := ParseCategory(parts[0])
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(parts[3])
	if err != nil {
		return nil, err
	}
	if parts[1] == "" || parts[2] == "" {
		return nil, errors.Errorf("invalid uname: %s", uname)
	}
	return New(mode, category, parts[1], parts[2]), nil
}

func (l *Location) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.UName
}

// Master is the home location of the master process.
func Master() *Location {
	return New(ModeLive, CategorySystem, "master", "master")
}

// MasterCommand is the location the master writes instructions for app from.
func MasterCommand(app uint32) *Location {
	return New(ModeLive, CategorySystem, "master", fmt.Sprintf("%08x", app))
}
