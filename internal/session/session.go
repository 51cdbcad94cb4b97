// Package session indexes the participation windows of every location.
package session

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/pkg/exception"
)

const sessionBucketName = "sessions"

// Session is one open/close window of a location.
type Session struct {
	LocationUID    uint32 `json:"location_uid"`
	UName          string `json:"uname"`
	OpenTime       int64  `json:"open_time"`
	CloseTime      int64  `json:"close_time"`
	LastActiveTime int64  `json:"last_active_time"`
	FrameCount     uint64 `json:"frame_count"`
}

// Closed reports whether the window has ended.
func (s Session) Closed() bool {
	return s.CloseTime > 0
}

// Builder tracks live sessions in memory and persists them to bbolt.
// Update only touches memory; Flush and the open/close calls write through.
type Builder struct {
	db   *bolt.DB
	live map[uint32]*Session
}

// Open opens or creates the session index at path.
func Open(path string) (*Builder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir session path").With("path", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open session index").With("path", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create session bucket")
	}
	return &Builder{db: db, live: make(map[uint32]*Session)}, nil
}

// Close flushes live sessions and closes the index.
func (b *Builder) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	err := b.Flush()
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenSession starts a window for loc at t. A still-open window of the same
// location is closed at t first.
func (b *Builder) OpenSession(loc *location.Location, t int64) (Session, error) {
	if prev, ok := b.live[loc.UID]; ok {
		if err := b.CloseSession(prev.LocationUID, t); err != nil {
			return Session{}, err
		}
	}
	s := &Session{
		LocationUID:    loc.UID,
		UName:          loc.UName,
		OpenTime:       t,
		LastActiveTime: t,
	}
	if err := b.put(s); err != nil {
		return Session{}, err
	}
	b.live[loc.UID] = s
	return *s, nil
}

// CloseSession ends the live window of uid at t.
func (b *Builder) CloseSession(uid uint32, t int64) error {
	s, ok := b.live[uid]
	if !ok {
		return exception.ErrSessionNotFound
	}
	s.CloseTime = t
	if t > s.LastActiveTime {
		s.LastActiveTime = t
	}
	delete(b.live, uid)
	return b.put(s)
}

// Update records activity of source at genTime.
func (b *Builder) Update(source uint32, genTime int64) {
	s, ok := b.live[source]
	if !ok {
		return
	}
	if genTime > s.LastActiveTime {
		s.LastActiveTime = genTime
	}
	s.FrameCount++
}

// Live returns the open window of uid.
func (b *Builder) Live(uid uint32) (Session, bool) {
	s, ok := b.live[uid]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// FindLastActiveTime returns the latest activity of uid across all of its
// windows, zero when it never had one.
func (b *Builder) FindLastActiveTime(uid uint32) (int64, error) {
	if s, ok := b.live[uid]; ok {
		return s.LastActiveTime, nil
	}
	sessions, err := b.Sessions(uid)
	if err != nil {
		return 0, err
	}
	var last int64
	for _, s := range sessions {
		if s.LastActiveTime > last {
			last = s.LastActiveTime
		}
	}
	return last, nil
}

// Sessions returns the persisted windows of uid ordered by open time.
func (b *Builder) Sessions(uid uint32) ([]Session, error) {
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uid)

	var out []Session
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(sessionBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var s Session
			if err := sonic.ConfigStd.Unmarshal(v, &s); err != nil {
				return errors.Wrap(err, "decode session").With("uid", uid)
			}
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

// CloseAll ends every live window at t.
func (b *Builder) CloseAll(t int64) error {
	uids := make([]uint32, 0, len(b.live))
	for uid := range b.live {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	for _, uid := range uids {
		if err := b.CloseSession(uid, t); err != nil {
			return err
		}
	}
	return nil
}

// Flush persists the activity of every live window.
func (b *Builder) Flush() error {
	if len(b.live) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		for _, s := range b.live {
			data, err := sonic.ConfigStd.Marshal(s)
			if err != nil {
				return err
			}
			if err := bucket.Put(sessionKey(s.LocationUID, s.OpenTime), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Builder) put(s *Session) error {
	data, err := sonic.ConfigStd.Marshal(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucketName)).Put(sessionKey(s.LocationUID, s.OpenTime), data)
	})
}

func sessionKey(uid uint32, openTime int64) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key, uid)
	binary.BigEndian.PutUint64(key[4:], uint64(openTime))
	return key
}
