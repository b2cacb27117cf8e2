// Package datapool implements the contiguous byte backing the segment
// array is carved out of: either an anonymous heap allocation or a
// memory-mapped file.
package datapool

import (
	stdErrors "errors"
	"os"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"go.uber.org/multierr"

	apperrors "github.com/ignitedb/ignite/pkg/errors"
)

// Pool is a single contiguous byte region of a fixed size, created once
// and never resized.
type Pool struct {
	data []byte
	mm   mmap.MMap // nil for heap-backed pools
	file *os.File  // nil for heap-backed pools
	lock *flock.Flock
}

// Create allocates a zero-initialised heap byte region of exactly size
// bytes. If prefault is true, every page is touched so the allocation
// becomes resident before returning.
func Create(size uint64, prefault bool) *Pool {
	data := make([]byte, size)
	if prefault {
		touchPages(data)
	}
	return &Pool{data: data}
}

// touchPages writes a zero to the first byte of every 4KiB page, forcing
// the OS to back it with a physical page immediately rather than on first
// fault.
func touchPages(data []byte) {
	const pageSize = 4096
	for i := 0; i < len(data); i += pageSize {
		data[i] = 0
	}
}

// CreateFile maps a file of exactly size bytes at path, creating it if it
// does not exist. An existing file is reopened and mapped with its
// contents kept if its size equals size; any other size is an error. It
// acquires an exclusive
// flock on a sibling .lock file first, so a second process pointed at the
// same path fails fast instead of corrupting the pool — enforcing a
// single-owner contract across process restarts.
func CreateFile(path string, size uint64) (*Pool, error) {
	lock := flock.New(path + ".lock")
	locked, err := acquireLock(lock)
	if err != nil {
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to acquire datapool lock").
			WithDetail("path", path)
	}
	if !locked {
		return nil, apperrors.NewStorageError(nil, apperrors.ErrorCodeIO, "datapool is already owned by another process").
			WithDetail("path", path)
	}

	existing, statErr := os.Stat(path)
	var file *os.File
	if statErr == nil {
		file, err = openExisting(path, existing, size)
	} else if os.IsNotExist(statErr) {
		file, err = createNew(path, size)
	} else {
		err = statErr
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	region, err := mmap.MapRegion(file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to mmap datapool file").
			WithDetail("path", path)
	}

	return &Pool{data: []byte(region), mm: region, file: file, lock: lock}, nil
}

// errLockHeld marks a TryLock attempt that simply found the lock taken,
// as opposed to a genuine filesystem error — only the latter should abort
// the retry loop early.
var errLockHeld = apperrors.NewStorageError(nil, apperrors.ErrorCodeIO, "lock file is held")

// acquireLock retries a failing TryLock a few times with backoff: a lock
// held by a process that is itself mid-exit typically clears within a few
// hundred milliseconds, and a short retry window avoids a spurious
// "already owned" failure on a fast restart.
func acquireLock(lock *flock.Flock) (bool, error) {
	var locked bool
	err := retry.Do(
		func() error {
			ok, err := lock.TryLock()
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if !ok {
				return errLockHeld
			}
			locked = true
			return nil
		},
		retry.Attempts(5),
		retry.Delay(20*time.Millisecond),
		retry.MaxDelay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil && !locked {
		if stdErrors.Is(err, errLockHeld) {
			return false, nil
		}
		return false, err
	}
	return locked, nil
}

func createNew(path string, size uint64) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to create datapool file").
			WithDetail("path", path)
	}
	if err := file.Truncate(int64(size)); err != nil {
		_ = file.Close()
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to size datapool file").
			WithDetail("path", path)
	}
	return file, nil
}

// openExisting reopens a datapool file left over from a prior run at the
// same path. Its size must already match size; a mismatch is an error and
// the file is left as it is.
func openExisting(path string, info os.FileInfo, size uint64) (*os.File, error) {
	if uint64(info.Size()) != size {
		return nil, apperrors.NewStorageError(nil, apperrors.ErrorCodeSegmentCorrupted, "existing datapool file size does not match configured heap_size").
			WithDetail("path", path).
			WithDetail("expected", size).
			WithDetail("actual", info.Size())
	}
	return os.OpenFile(path, os.O_RDWR, 0644)
}

// AsSlice borrows the full region for reading.
func (p *Pool) AsSlice() []byte { return p.data }

// AsMutSlice borrows the full region for reading and writing.
func (p *Pool) AsMutSlice() []byte { return p.data }

// Flush persists the pool's contents: a no-op for heap-backed pools,
// msync for file-backed ones.
func (p *Pool) Flush() error {
	if p.mm == nil {
		return nil
	}
	if err := p.mm.Flush(); err != nil {
		return apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to flush datapool")
	}
	return nil
}

// Close releases the pool's OS resources (mmap, file handle, lock). Safe
// to call on a heap-backed pool as a no-op.
func (p *Pool) Close() error {
	if p.mm == nil {
		return nil
	}

	var combined error
	if err := p.mm.Unmap(); err != nil {
		combined = multierr.Append(combined, err)
	}
	if err := p.file.Close(); err != nil {
		combined = multierr.Append(combined, err)
	}
	if p.lock != nil {
		if err := p.lock.Unlock(); err != nil {
			combined = multierr.Append(combined, err)
		}
	}

	if combined != nil {
		return apperrors.NewStorageError(combined, apperrors.ErrorCodeIO, "failed to cleanly close datapool")
	}
	return nil
}
