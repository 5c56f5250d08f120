// Package bufferpool implements the in-memory cache that mediates between
// fixed-size on-disk pages and higher-level access methods: a fixed array of
// frames, a page table, an LRU-K eviction policy, and scoped page guards.
package bufferpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vaultpage/vaultpage/src/pkg/assert"
	"github.com/vaultpage/vaultpage/src/pkg/common"
	"github.com/vaultpage/vaultpage/src/pkg/optional"
	"github.com/vaultpage/vaultpage/src/storage/page"
)

// ErrPoolExhausted is returned by New/Fetch when no frame is free and no
// frame is evictable. It is a logical, non-fatal outcome per §7's
// PoolExhausted row, distinct from a DiskFailure.
var ErrPoolExhausted = errors.New("bufferpool: pool exhausted")

// DiskManager is the subset of disk I/O the pool consumes. It never sees a
// frame or a guard, only page ids and raw buffers.
type DiskManager interface {
	ReadPage(pageID common.PageID, buf []byte) error
	WritePage(pageID common.PageID, buf []byte) error
}

// frame is one slot of the pool's fixed-size array.
type frame struct {
	page     *page.Page
	pageID   common.PageID
	pinCount int
}

// Manager is the Buffer Pool Manager. It owns poolSize frames, a page table,
// a free list, and a Replacer, and orchestrates them behind a single latch
// per §5's concurrency model: the BPM latch is held for the duration of
// every public operation, including the disk I/O phases of a miss.
type Manager struct {
	mu sync.Mutex

	log *zap.SugaredLogger

	disk     DiskManager
	replacer Replacer

	frames   []frame
	freeList []common.FrameID
	pageTbl  map[common.PageID]common.FrameID

	nextPageID atomic.Uint64

	// lastEvicted is genuinely optional: it holds none until the pool has
	// evicted its first frame, and is consulted only by operator-facing
	// diagnostics (the demo entrypoint), never by pool logic itself.
	lastEvicted optional.Optional[common.PageID]
}

// LastEvictedPage reports the page id most recently evicted from the pool,
// if any eviction has happened yet.
func (m *Manager) LastEvictedPage() optional.Optional[common.PageID] {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastEvicted
}

// NewManager builds a pool of poolSize frames, backed by disk for misses and
// replacer for eviction choices. k is the LRU-K history depth.
func NewManager(poolSize int, k int, disk DiskManager, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	frames := make([]frame, poolSize)
	free := make([]common.FrameID, poolSize)

	for i := range frames {
		frames[i].page = page.New()
		frames[i].pageID = common.InvalidPageID
		free[i] = common.FrameID(i)
	}

	return &Manager{
		log:      log,
		disk:     disk,
		replacer: NewLRUKReplacer(poolSize, k),
		frames:   frames,
		freeList: free,
		pageTbl:  make(map[common.PageID]common.FrameID),
	}
}

// newManagerWithReplacer builds a pool identical to NewManager but with a
// caller-supplied Replacer, letting tests substitute MockReplacer to assert
// the exact sequence of calls a BPM operation makes.
func newManagerWithReplacer(poolSize int, disk DiskManager, replacer Replacer, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	frames := make([]frame, poolSize)
	free := make([]common.FrameID, poolSize)

	for i := range frames {
		frames[i].page = page.New()
		frames[i].pageID = common.InvalidPageID
		free[i] = common.FrameID(i)
	}

	return &Manager{
		log:      log,
		disk:     disk,
		replacer: replacer,
		frames:   frames,
		freeList: free,
		pageTbl:  make(map[common.PageID]common.FrameID),
	}
}

// AllocatePage returns a strictly increasing, never-reused page identifier
// (testable property #7).
func (m *Manager) AllocatePage() common.PageID {
	return common.PageID(m.nextPageID.Add(1) - 1)
}

// DeallocatePage is bookkeeping-only in the baseline implementation: ids are
// never reused within a process lifetime (see DESIGN.md's resolution of the
// "remember freed ids" Open Question), so there is nothing to release.
func (m *Manager) DeallocatePage(_ common.PageID) {}

// acquireFrame returns a frame ready to receive a new resident page: it
// prefers the free list, then falls back to evicting via the replacer. If
// the evicted frame is dirty its bytes are written back before its old
// page-table entry is erased. Callers must hold mu.
//
// The returned error is ErrPoolExhausted when nothing can be evicted, or a
// wrapped DiskFailure if the victim's flush fails; either way frameID is
// common.InvalidFrameID.
func (m *Manager) acquireFrame() (common.FrameID, error) {
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]

		return id, nil
	}

	victim, ok := m.replacer.Evict()
	if !ok {
		return common.InvalidFrameID, ErrPoolExhausted
	}

	f := &m.frames[victim]
	assert.Assert(f.pinCount == 0, "evicted frame %d must be unpinned", victim)

	if f.page.IsDirty() {
		if err := m.disk.WritePage(f.pageID, f.page.GetData()); err != nil {
			// A dirty frame must not be discarded (invariant #5): the
			// frame keeps its old page, bytes and page-table entry and
			// stays off the free list. Evict already dropped it from the
			// replacer, so it is registered again as evictable (with a
			// fresh access history) and a retried operation can pick it.
			if err := m.replacer.RecordAccess(victim, common.AccessUnknown); err != nil {
				panic(fmt.Errorf("bufferpool: %w", err))
			}

			if err := m.replacer.SetEvictable(victim, true); err != nil {
				panic(fmt.Errorf("bufferpool: %w", err))
			}

			return common.InvalidFrameID, fmt.Errorf("bufferpool: flush frame %d during eviction: %w", victim, err)
		}

		f.page.SetDirtiness(false)
	}

	m.log.Debugw("evicted frame", "frame_id", victim, "page_id", f.pageID)

	// Erase the old mapping before the frame is repurposed; inserting the
	// new page id happens in the caller once it knows what it is.
	delete(m.pageTbl, f.pageID)
	m.lastEvicted.Emplace(f.pageID)
	f.pageID = common.InvalidPageID

	return victim, nil
}

// NewPage allocates a fresh page id, obtains a frame for it (free list, else
// evict), zeroes its buffer, pins it, and marks it non-evictable. err is
// ErrPoolExhausted if no frame is free or evictable, or a wrapped
// DiskFailure if the victim's flush failed; either way pageID is
// common.InvalidPageID and page is nil.
func (m *Manager) NewPage() (common.PageID, *page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, err := m.acquireFrame()
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			m.log.Debugw("pool exhausted on NewPage")
		}

		return common.InvalidPageID, nil, err
	}

	pageID := m.AllocatePage()

	f := &m.frames[frameID]
	f.page.Reset()
	// Reset already clears the dirty bit; restated because a fresh
	// acquisition must never surface a stale dirty flag (fixes the source
	// bug where is_dirty was left unset on a newly pinned frame).
	f.page.SetDirtiness(false)
	f.pageID = pageID
	f.pinCount = 1

	m.pageTbl[pageID] = frameID

	if err := m.replacer.SetEvictable(frameID, false); err != nil {
		panic(fmt.Errorf("bufferpool: %w", err))
	}

	if err := m.replacer.RecordAccess(frameID, common.AccessUnknown); err != nil {
		panic(fmt.Errorf("bufferpool: %w", err))
	}

	return pageID, f.page, nil
}

// FetchPage returns the frame holding pageID, reading it from disk on a
// miss. accessType is forwarded to the replacer for policy purposes. err is
// ErrPoolExhausted on a miss with no frame available, or a wrapped
// DiskFailure if the disk read itself failed.
func (m *Manager) FetchPage(pageID common.PageID, accessType common.AccessType) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frameID, ok := m.pageTbl[pageID]; ok {
		f := &m.frames[frameID]
		f.pinCount++

		if err := m.replacer.SetEvictable(frameID, false); err != nil {
			panic(fmt.Errorf("bufferpool: %w", err))
		}

		if err := m.replacer.RecordAccess(frameID, accessType); err != nil {
			panic(fmt.Errorf("bufferpool: %w", err))
		}

		return f.page, nil
	}

	frameID, err := m.acquireFrame()
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			m.log.Debugw("pool exhausted on FetchPage", "page_id", pageID)
		}

		return nil, err
	}

	f := &m.frames[frameID]
	f.page.Reset()
	f.pageID = pageID
	f.pinCount = 1

	m.pageTbl[pageID] = frameID

	if err := m.disk.ReadPage(pageID, f.page.GetData()); err != nil {
		// The frame was already claimed from the free list/replacer but
		// never made it into a consistent resident state; undo the
		// bookkeeping so a retry doesn't see a half-populated entry.
		delete(m.pageTbl, pageID)
		f.pageID = common.InvalidPageID
		f.pinCount = 0
		m.freeList = append(m.freeList, frameID)

		return nil, fmt.Errorf("bufferpool: read page %d: %w", pageID, err)
	}

	if err := m.replacer.SetEvictable(frameID, false); err != nil {
		panic(fmt.Errorf("bufferpool: %w", err))
	}

	if err := m.replacer.RecordAccess(frameID, accessType); err != nil {
		panic(fmt.Errorf("bufferpool: %w", err))
	}

	return f.page, nil
}

// UnpinPage decrements pageID's pin count, ORing isDirty into the frame's
// dirty bit. It returns false without changing state if the page is not
// resident or already unpinned. It never touches disk and so never fails.
func (m *Manager) UnpinPage(pageID common.PageID, isDirty bool, _ common.AccessType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTbl[pageID]
	if !ok {
		return false
	}

	f := &m.frames[frameID]
	if f.pinCount == 0 {
		return false
	}

	if isDirty {
		f.page.SetDirtiness(true)
	}

	f.pinCount--
	assert.Assert(f.pinCount >= 0, "pin count for frame %d went negative", frameID)

	if f.pinCount == 0 {
		if err := m.replacer.SetEvictable(frameID, true); err != nil {
			panic(fmt.Errorf("bufferpool: %w", err))
		}
	}

	return true
}

// FlushPage writes pageID's frame to disk and clears its dirty bit,
// regardless of pin count. ok is false with a nil error if the page is not
// resident; a non-nil error reports a DiskFailure from the write itself, in
// which case the frame's dirty bit is left set.
func (m *Manager) FlushPage(pageID common.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushLocked(pageID)
}

func (m *Manager) flushLocked(pageID common.PageID) (bool, error) {
	frameID, ok := m.pageTbl[pageID]
	if !ok {
		return false, nil
	}

	f := &m.frames[frameID]
	if err := m.disk.WritePage(pageID, f.page.GetData()); err != nil {
		return false, fmt.Errorf("bufferpool: flush page %d: %w", pageID, err)
	}

	f.page.SetDirtiness(false)

	return true, nil
}

// FlushAllPages flushes every resident page. The BPM latch is acquired once
// for the whole call and released symmetrically on every path (fixes the
// source bug where the equivalent loop never released its latch). It keeps
// flushing the remaining pages after a failure and joins every DiskFailure
// it saw into the returned error, so one bad page never masks the rest.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for pageID := range m.pageTbl {
		if _, err := m.flushLocked(pageID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DeletePage removes pageID from the pool. A pinned page cannot be deleted.
// Deleting a non-resident page is a no-op returning true.
func (m *Manager) DeletePage(pageID common.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTbl[pageID]
	if !ok {
		return true
	}

	f := &m.frames[frameID]
	if f.pinCount > 0 {
		return false
	}

	if err := m.replacer.Remove(frameID); err != nil {
		panic(fmt.Errorf("bufferpool: %w", err))
	}

	delete(m.pageTbl, pageID)
	f.page.Reset()
	f.pageID = common.InvalidPageID
	f.pinCount = 0

	m.freeList = append(m.freeList, frameID)

	m.DeallocatePage(pageID)

	return true
}

// NewPageGuarded is NewPage wrapped in a BasicPageGuard.
func (m *Manager) NewPageGuarded() (common.PageID, *BasicPageGuard, error) {
	pageID, pg, err := m.NewPage()
	if err != nil {
		return common.InvalidPageID, nil, err
	}

	return pageID, newBasicPageGuard(m, pageID, pg), nil
}

// FetchPageBasic is FetchPage wrapped in a BasicPageGuard.
func (m *Manager) FetchPageBasic(pageID common.PageID, accessType common.AccessType) (*BasicPageGuard, error) {
	pg, err := m.FetchPage(pageID, accessType)
	if err != nil {
		return nil, err
	}

	return newBasicPageGuard(m, pageID, pg), nil
}

// FetchPageRead is FetchPage wrapped in a ReadPageGuard: the page's read
// latch is held for the guard's lifetime.
func (m *Manager) FetchPageRead(pageID common.PageID, accessType common.AccessType) (*ReadPageGuard, error) {
	basic, err := m.FetchPageBasic(pageID, accessType)
	if err != nil {
		return nil, err
	}

	return newReadPageGuard(basic), nil
}

// FetchPageWrite is FetchPage wrapped in a WritePageGuard: the page's write
// latch is held for the guard's lifetime and dirtiness is implied on drop.
func (m *Manager) FetchPageWrite(pageID common.PageID, accessType common.AccessType) (*WritePageGuard, error) {
	basic, err := m.FetchPageBasic(pageID, accessType)
	if err != nil {
		return nil, err
	}

	return newWritePageGuard(basic), nil
}
