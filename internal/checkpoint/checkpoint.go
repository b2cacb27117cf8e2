// Package checkpoint snapshots the datapool to a side directory for
// best-effort warm-restart recovery. It is not a WAL and gives no
// cross-version guarantee: the persisted form is data only, segment
// headers are rebuilt in memory on startup.
package checkpoint

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"

	apperrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/ignitedb/ignite/pkg/seginfo"
)

// Manager writes and recovers checkpoint generations under dir, named
// with pkg/seginfo's prefix_NNNNN_timestamp.seg segment-file convention,
// repurposed here for checkpoint generations instead of per-segment log
// files.
type Manager struct {
	dir         string
	prefix      string
	compression bool

	nextID uint64
}

// New builds a Manager rooted at dir (created if absent).
func New(dir, prefix string, compression bool) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to create checkpoint directory").
			WithDetail("dir", dir)
	}

	lastID, _, err := seginfo.GetLastSegmentInfo(dir, ".", prefix)
	if err != nil {
		lastID = 0
	}

	return &Manager{dir: dir, prefix: prefix, compression: compression, nextID: lastID}, nil
}

// Write snapshots data into a new checkpoint generation, atomically: the
// new generation is written to a temp file and renamed into place, so a
// crash mid-checkpoint never leaves a torn file for Recover to pick up.
func (m *Manager) Write(data []byte) (string, error) {
	m.nextID++
	name := seginfo.GenerateName(m.nextID, m.prefix)
	path := filepath.Join(m.dir, name)

	payload := data
	if m.compression {
		encoded, err := compress(data)
		if err != nil {
			return "", err
		}
		payload = encoded
	}

	if err := atomic.WriteFile(path, bytes.NewReader(payload)); err != nil {
		return "", apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to write checkpoint generation").
			WithDetail("path", path)
	}

	return path, nil
}

// Recover finds the most recent checkpoint generation under dir and
// returns its (decompressed) contents, or (nil, false, nil) if none
// exists yet — the normal cold-start case.
func (m *Manager) Recover() ([]byte, bool, error) {
	path, err := seginfo.GetLastSegmentName(m.dir, ".", m.prefix)
	if err != nil {
		return nil, false, apperrors.NewStorageError(err, apperrors.ErrorCodeRecoveryFailed, "failed to locate latest checkpoint generation")
	}
	if path == "" {
		return nil, false, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, apperrors.NewStorageError(err, apperrors.ErrorCodeRecoveryFailed, "failed to read checkpoint generation").
			WithDetail("path", path)
	}

	if !m.compression {
		return raw, true, nil
	}

	decoded, err := decompress(raw)
	if err != nil {
		return nil, false, apperrors.NewStorageError(err, apperrors.ErrorCodeRecoveryFailed, "failed to decompress checkpoint generation").
			WithDetail("path", path)
	}

	return decoded, true, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, apperrors.NewStorageError(err, apperrors.ErrorCodeIO, "failed to initialise zstd encoder")
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
