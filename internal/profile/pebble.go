package profile

import (
	"github.com/cockroachdb/pebble"
	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// PebbleOptions configures the embedded backend.
type PebbleOptions struct {
	DataDir string
	// Sync forces a WAL fsync on every write.
	Sync bool
	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

type pebbleStore struct {
	db        *pebble.DB
	writeSync *pebble.WriteOptions
}

// OpenPebble opens or creates a pebble-backed Store.
func OpenPebble(opts PebbleOptions) (Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("profile: pebble DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, errors.Wrap(err, "open pebble").With("dir", opts.DataDir)
	}
	ws := pebble.NoSync
	if opts.Sync {
		ws = pebble.Sync
	}
	return &pebbleStore{db: db, writeSync: ws}, nil
}

func (s *pebbleStore) Set(p schema.Payload) error {
	uid, buf, err := encodeRecord(p)
	if err != nil {
		return err
	}
	return s.db.Set(encodeKey(p.Tag(), uid), buf, s.writeSync)
}

func (s *pebbleStore) Get(tag schema.Tag, uid uint64) (schema.Payload, error) {
	val, closer, err := s.db.Get(encodeKey(tag, uid))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, exception.ErrRecordNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return codec.Decode(tag, val)
}

func (s *pebbleStore) GetAll(tag schema.Tag) ([]schema.Payload, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: tagPrefix(tag),
		UpperBound: tagPrefix(tag + 1),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []schema.Payload
	for iter.First(); iter.Valid(); iter.Next() {
		p, err := codec.Decode(tag, iter.Value())
		if err != nil {
			return nil, errors.Wrap(err, "decode profile record").With("tag", tag)
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

func (s *pebbleStore) Remove(tag schema.Tag, uid uint64) error {
	return s.db.Delete(encodeKey(tag, uid), s.writeSync)
}

func (s *pebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
