package bufferpool

import (
	"github.com/vaultpage/vaultpage/src/pkg/common"
	"github.com/vaultpage/vaultpage/src/storage/page"
)

// unpinner is the slice of Manager a guard needs. Guards hold a
// non-owning back-pointer to it; the Manager always outlives its guards.
type unpinner interface {
	UnpinPage(pageID common.PageID, isDirty bool, accessType common.AccessType) bool
}

// BasicPageGuard holds one pin on a page and unpins it on Drop. Go has no
// destructors or move constructors, so lifetime is explicit: Drop releases
// the pin, and Take transfers ownership to a new guard, leaving the
// receiver empty so its own eventual Drop is a no-op.
type BasicPageGuard struct {
	bpm     unpinner
	pageID  common.PageID
	page    *page.Page
	dirty   bool
	dropped bool
}

func newBasicPageGuard(bpm unpinner, pageID common.PageID, pg *page.Page) *BasicPageGuard {
	return &BasicPageGuard{bpm: bpm, pageID: pageID, page: pg}
}

// PageID reports the id of the resident page held by this guard.
func (g *BasicPageGuard) PageID() common.PageID {
	return g.pageID
}

// GetData returns the page's payload. The caller is responsible for holding
// whatever latch discipline the concurrent access requires; BasicPageGuard
// itself takes no page latch (that is what Read/WritePageGuard add).
func (g *BasicPageGuard) GetData() []byte {
	return g.page.GetData()
}

// SetDirty records dirty intent to be applied on Drop. It does not touch
// the frame's dirty bit immediately; UnpinPage does that at Drop time.
func (g *BasicPageGuard) SetDirty(dirty bool) {
	g.dirty = dirty
}

// Drop unpins the page with the guard's accumulated dirty intent. Calling
// Drop more than once, or on a moved-from guard, is a no-op — this fixes
// the source behavior where drop deleted the page instead of unpinning it.
func (g *BasicPageGuard) Drop() {
	if g.dropped {
		return
	}

	g.dropped = true
	g.bpm.UnpinPage(g.pageID, g.dirty, common.AccessUnknown)
}

// Take transfers this guard's pin to a newly returned guard and empties the
// receiver (its Drop becomes a no-op), the Go equivalent of a C++ move
// constructor.
func (g *BasicPageGuard) Take() *BasicPageGuard {
	moved := &BasicPageGuard{
		bpm:    g.bpm,
		pageID: g.pageID,
		page:   g.page,
		dirty:  g.dirty,
	}

	g.dropped = true
	g.bpm = nil
	g.page = nil

	return moved
}

// ReadPageGuard wraps a BasicPageGuard and additionally holds the page's
// reader latch for its lifetime.
type ReadPageGuard struct {
	basic *BasicPageGuard
	page  *page.Page
	held  bool
}

func newReadPageGuard(basic *BasicPageGuard) *ReadPageGuard {
	basic.page.RLock()
	return &ReadPageGuard{basic: basic, page: basic.page, held: true}
}

func (g *ReadPageGuard) PageID() common.PageID { return g.basic.PageID() }
func (g *ReadPageGuard) GetData() []byte       { return g.basic.GetData() }

// Drop releases the reader latch, then unpins. Order matters: the latch
// must be released before the pin so a writer blocked on Fetch cannot
// observe a dropped pin while still shut out by a latch nobody will ever
// release.
func (g *ReadPageGuard) Drop() {
	if g.held {
		g.held = false
		g.page.RUnlock()
	}

	g.basic.Drop()
}

// Take transfers ownership to a newly returned guard, per BasicPageGuard's
// move contract.
func (g *ReadPageGuard) Take() *ReadPageGuard {
	moved := &ReadPageGuard{basic: g.basic.Take(), page: g.page, held: g.held}
	g.held = false

	return moved
}

// WritePageGuard wraps a BasicPageGuard, holds the page's writer latch for
// its lifetime, and implies dirty intent: any write guard that reached the
// caller may have mutated the page, so Drop always marks it dirty.
type WritePageGuard struct {
	basic *BasicPageGuard
	page  *page.Page
	held  bool
}

func newWritePageGuard(basic *BasicPageGuard) *WritePageGuard {
	basic.page.Lock()
	basic.SetDirty(true)

	return &WritePageGuard{basic: basic, page: basic.page, held: true}
}

func (g *WritePageGuard) PageID() common.PageID { return g.basic.PageID() }
func (g *WritePageGuard) GetData() []byte       { return g.basic.GetData() }

// Drop releases the writer latch, then unpins with dirty intent.
func (g *WritePageGuard) Drop() {
	if g.held {
		g.held = false
		g.page.Unlock()
	}

	g.basic.Drop()
}

// Take transfers ownership to a newly returned guard, per BasicPageGuard's
// move contract.
func (g *WritePageGuard) Take() *WritePageGuard {
	moved := &WritePageGuard{basic: g.basic.Take(), page: g.page, held: g.held}
	g.held = false

	return moved
}
