// Package page defines the fixed-size payload the buffer pool caches: a
// byte buffer, a dirty bit, and the reader/writer latch that guards the
// buffer's contents (separate from the buffer pool's own latch, per the
// concurrency model in bufferpool.Manager).
package page

import (
	"sync"
)

// Size is the fixed payload size of a page, matching disk.PageSize.
const Size = 4096

// Page is one frame's in-memory payload. The zero value is a valid,
// non-dirty, all-zero page.
type Page struct {
	latch sync.RWMutex

	dirty bool
	data  [Size]byte
}

// New returns a zeroed page.
func New() *Page {
	return &Page{}
}

func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }

// GetData returns the page's payload. Callers holding neither the read
// nor write latch see a data race if another goroutine mutates the page
// concurrently. The buffer pool's NewPage and FetchPage hand pages out
// without taking this latch; ReadPageGuard and WritePageGuard take it.
func (p *Page) GetData() []byte {
	return p.data[:]
}

// SetData overwrites the payload with src, which must be at most Size
// bytes; the remainder is left untouched.
func (p *Page) SetData(src []byte) {
	copy(p.data[:], src)
}

// Reset zeroes the payload and clears the dirty bit. Called when a frame
// is reused for a different page, so a fresh NewPage never observes a
// stale non-zero buffer (testable property #5).
func (p *Page) Reset() {
	clear(p.data[:])
	p.dirty = false
}

// IsDirty reports whether the payload differs from its on-disk copy.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirtiness sets the dirty bit. UnpinPage ORs into it rather than
// overwriting, so a page already known dirty never loses that fact.
func (p *Page) SetDirtiness(val bool) {
	p.dirty = val
}
