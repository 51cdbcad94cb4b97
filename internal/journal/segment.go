package journal

import (
	"os"

	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"

	"github.com/yongdono/kungfu/pkg/exception"
)

var osPageSize = int64(os.Getpagesize())

// region is one mmap of a file range. view is the requested range inside mem.
type region struct {
	mem  []byte
	view []byte
}

func mapRegion(f *os.File, off int64, length int, writable bool) (region, error) {
	base := off &^ (osPageSize - 1)
	skip := int(off - base)
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	mem, err := unix.Mmap(int(f.Fd()), base, skip+length, prot, unix.MAP_SHARED)
	if err != nil {
		return region{}, errors.Wrap(err, "mmap").With("offset", off)
	}
	return region{mem: mem, view: mem[skip : skip+length]}, nil
}

func (r *region) unmap() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem, r.view = nil, nil
	return err
}

// lockExclusive takes the single-writer lock without blocking.
func lockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if err == unix.EWOULDBLOCK {
		return exception.ErrSegmentUnavailable
	}
	return errors.Wrap(err, "flock")
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// writerAlive probes the writer lock of the segment at path.
func writerAlive(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return err == unix.EWOULDBLOCK
	}
	_ = unlock(f)
	return false
}
