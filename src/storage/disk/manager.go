// Package disk implements the synchronous, single-file page store consumed
// by the buffer pool manager. It is the only component in this repository
// that performs actual I/O; everything above it works with in-memory byte
// buffers.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/vaultpage/vaultpage/src/pkg/common"
)

// PageSize is the fixed size, in bytes, of every page this store reads and
// writes. It matches page.Size, the payload size of every buffer pool frame.
const PageSize = 4096

// Manager reads and writes fixed-size pages from a single flat file. It is
// built on afero.Fs so tests can run against an in-memory filesystem while
// production code runs against the OS filesystem with the same code path.
type Manager struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

// New returns a Manager that stores pages in a single file at path,
// creating it if it does not already exist.
func New(fs afero.Fs, path string) (*Manager, error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("disk: open data file: %w", err)
	}
	defer f.Close()

	return &Manager{fs: fs, path: path}, nil
}

// ReadPage fills buf (which must be exactly PageSize bytes) with the
// on-disk contents of pageID. Reading a page that was never written
// returns a zero-filled buffer, matching a freshly extended file.
func (m *Manager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("disk: buffer must be %d bytes, got %d", PageSize, len(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.fs.OpenFile(m.path, os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("disk: open data file: %w", err)
	}
	defer f.Close()

	offset := int64(pageID) * PageSize

	n, err := f.ReadAt(buf, offset)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// The file ends inside or before this page: never written, or
			// written short by a prior crash. Either way it's sparse-file
			// territory, not a disk failure — zero the unread remainder.
			clear(buf[n:])
			return nil
		}

		return fmt.Errorf("disk: read page %d: %w", pageID, err)
	}

	return nil
}

// WritePage durably persists buf (exactly PageSize bytes) at pageID's
// offset. Failures here are fatal to the caller per the buffer pool's
// error taxonomy: a dirty page that cannot be written must not be
// discarded.
func (m *Manager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("disk: buffer must be %d bytes, got %d", PageSize, len(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.fs.OpenFile(m.path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("disk: open data file: %w", err)
	}
	defer f.Close()

	offset := int64(pageID) * PageSize

	if _, err := f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("disk: write page %d: %w", pageID, err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("disk: sync page %d: %w", pageID, err)
	}

	return nil
}
