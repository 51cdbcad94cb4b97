package location

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const journalSuffix = ".journal"

// Locator maps locations onto the filesystem under a single root.
type Locator struct {
	root string
}

// NewLocator creates a locator rooted at root.
func NewLocator(root string) *Locator {
	return &Locator{root: root}
}

// Root returns the configured root directory.
func (l *Locator) Root() string {
	return l.root
}

// JournalDir is the directory holding every segment written by loc.
func (l *Locator) JournalDir(loc *Location) string {
	return filepath.Join(l.root, "journal", loc.Mode.String(), loc.Category.String(), loc.Group, loc.Name)
}

// JournalPath is the segment file for the (loc, dest) pair.
func (l *Locator) JournalPath(loc *Location, dest uint32) string {
	return filepath.Join(l.JournalDir(loc), fmt.Sprintf("%08x%s", dest, journalSuffix))
}

// StatePath is the state snapshot file for loc.
func (l *Locator) StatePath(loc *Location) string {
	return filepath.Join(l.root, "state", loc.Mode.String(), loc.Category.String(), loc.Group, loc.Name+".json")
}

// SocketPath is the unix socket the master listens on for notices.
func (l *Locator) SocketPath() string {
	return filepath.Join(l.root, "master.sock")
}

// ListDests returns the destination uids loc has segments for.
func (l *Locator) ListDests(loc *Location) ([]uint32, error) {
	entries, err := os.ReadDir(l.JournalDir(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	dests := make([]uint32, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, journalSuffix) {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, journalSuffix), 16, 32)
		if err != nil {
			continue
		}
		dests = append(dests, uint32(v))
	}
	return dests, nil
}
