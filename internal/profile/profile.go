// Package profile persists the records a master replays to every app at
// registration: known locations and per-location configs.
package profile

import (
	"encoding/binary"
	"strings"

	"github.com/yanun0323/errors"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

// Store keeps profile records keyed by (tag, record uid).
type Store interface {
	// Set inserts or replaces the record with the same primary key.
	Set(p schema.Payload) error
	// Get returns ErrRecordNotFound when no record matches.
	Get(tag schema.Tag, uid uint64) (schema.Payload, error)
	// GetAll returns every record of tag ordered by uid.
	GetAll(tag schema.Tag) ([]schema.Payload, error)
	Remove(tag schema.Tag, uid uint64) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendPebble   Backend = "pebble"
	BackendPostgres Backend = "postgres"
)

// Config selects and configures the backend.
type Config struct {
	Backend  Backend
	DataDir  string
	Sync     bool
	Postgres PostgresOption
}

// Open creates the configured Store.
func Open(cfg Config) (Store, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendPebble, "":
		return OpenPebble(PebbleOptions{DataDir: cfg.DataDir, Sync: cfg.Sync})
	case BackendPostgres:
		return OpenPostgres(cfg.Postgres)
	default:
		return nil, errors.Wrapf(exception.ErrUnknownBackend, "backend %q", cfg.Backend)
	}
}

func checkProfile(p schema.Payload) error {
	if p == nil || !schema.IsProfile(p.Tag()) {
		return errors.Wrap(exception.ErrRecordType, "not a profile record")
	}
	return nil
}

func encodeKey(tag schema.Tag, uid uint64) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key, uint32(tag))
	binary.BigEndian.PutUint64(key[4:], uid)
	return key
}

func tagPrefix(tag schema.Tag) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(tag))
	return key
}

func encodeRecord(p schema.Payload) (uint64, []byte, error) {
	if err := checkProfile(p); err != nil {
		return 0, nil, err
	}
	buf, err := codec.Encode(nil, p)
	if err != nil {
		return 0, nil, err
	}
	return codec.UID(p), buf, nil
}
