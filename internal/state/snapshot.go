package state

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
)

// Snapshot captures a cache at a point in journal time.
type Snapshot struct {
	Location    uint32          `json:"location"`
	LastGenTime int64           `json:"lastGenTime"`
	Entries     []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one cached record in its wire encoding.
type SnapshotEntry struct {
	Tag        schema.Tag `json:"tag"`
	Source     uint32     `json:"source"`
	Dest       uint32     `json:"dest"`
	UpdateTime int64      `json:"updateTime"`
	Payload    []byte     `json:"payload"`
}

// Snapshot encodes the cache of app.
func (c *Cache) Snapshot(app uint32, lastGenTime int64) (Snapshot, error) {
	snap := Snapshot{Location: app, LastGenTime: lastGenTime, Entries: make([]SnapshotEntry, 0, c.Len())}
	var err error
	c.Range(func(_ uint64, e Entry) bool {
		var buf []byte
		buf, err = codec.Encode(nil, e.Data)
		if err != nil {
			return false
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Tag:        e.Data.Tag(),
			Source:     e.Source,
			Dest:       e.Dest,
			UpdateTime: e.UpdateTime,
			Payload:    buf,
		})
		return true
	})
	return snap, err
}

// ApplySnapshot puts every snapshot entry into the cache.
func (c *Cache) ApplySnapshot(snap Snapshot) error {
	for _, se := range snap.Entries {
		data, err := codec.Decode(se.Tag, se.Payload)
		if err != nil {
			return errors.Wrap(err, "decode snapshot entry").With("tag", se.Tag)
		}
		c.Put(Entry{Data: data, Source: se.Source, Dest: se.Dest, UpdateTime: se.UpdateTime})
	}
	return nil
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
