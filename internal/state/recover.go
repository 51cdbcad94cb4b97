package state

import (
	"context"
	"os"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
)

// RecoverConfig controls snapshot plus journal recovery of one app.
type RecoverConfig struct {
	Root     string
	Location *location.Location
	// SnapshotPath is optional; a missing file starts from an empty cache.
	SnapshotPath string
}

// RecoverResult contains the recovered cache and the last journal time it covers.
type RecoverResult struct {
	Cache       *Cache
	LastGenTime int64
}

// Recover loads the snapshot of an app and replays the state frames the app
// wrote after it.
func Recover(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	cache := NewCache()
	var lastGen int64

	if cfg.SnapshotPath != "" {
		snap, err := ReadSnapshot(cfg.SnapshotPath)
		switch {
		case err == nil:
			if err := cache.ApplySnapshot(snap); err != nil {
				return RecoverResult{}, err
			}
			lastGen = snap.LastGenTime
		case !os.IsNotExist(err):
			return RecoverResult{}, err
		}
	}

	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Root:      cfg.Root,
		Locations: []*location.Location{cfg.Location},
		FromTime:  lastGen + 1,
	})
	if err != nil {
		return RecoverResult{}, err
	}
	err = pb.Run(ctx, func(f journal.Frame) error {
		if f.GenTime > lastGen {
			lastGen = f.GenTime
		}
		if !schema.IsState(f.MsgType) {
			return nil
		}
		data, err := f.Data()
		if err != nil {
			return err
		}
		cache.Put(Entry{Data: data, Source: f.Source, Dest: f.Dest, UpdateTime: f.GenTime})
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return RecoverResult{Cache: cache, LastGenTime: lastGen}, nil
}
