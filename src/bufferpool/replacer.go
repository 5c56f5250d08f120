package bufferpool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vaultpage/vaultpage/src/pkg/common"
)

// Replacer decides which unpinned frame to evict when the pool is full.
type Replacer interface {
	// RecordAccess notes that frameID was touched at the current logical
	// timestamp and advances the clock. accessType is informational; the
	// baseline LRU-K policy ignores it.
	RecordAccess(frameID common.FrameID, accessType common.AccessType) error

	// SetEvictable toggles whether frameID is a candidate for Evict. It is
	// a no-op if the flag is already set to the requested value.
	SetEvictable(frameID common.FrameID, evictable bool) error

	// Remove forcibly drops frameID's tracked history. It only succeeds on
	// an evictable frame; an unknown frame id is a no-op.
	Remove(frameID common.FrameID) error

	// Evict selects and removes the highest-priority victim among
	// evictable frames. ok is false iff no frame is evictable.
	Evict() (frameID common.FrameID, ok bool)

	// Size reports the number of currently evictable frames.
	Size() int
}

// lruKNode tracks one frame's access history for the LRU-K policy.
type lruKNode struct {
	// history holds at most k timestamps, oldest first. Once it reaches
	// k entries the oldest is dropped on the next access (tail-K), since
	// only history[0] is ever read once the node is "warm".
	history   []uint64
	evictable bool
}

// LRUKReplacer implements the LRU-K replacement policy of O'Neil, Weikum,
// and O'Neil: it evicts the frame whose K-th most recent access is
// farthest in the past, using classical LRU (oldest single access) as a
// tiebreaker and as the rule for frames with fewer than K accesses, whose
// backward k-distance is treated as infinite.
type LRUKReplacer struct {
	mu sync.Mutex

	capacity         common.FrameID
	k                int
	currentTimestamp uint64

	nodes          map[common.FrameID]*lruKNode
	evictableCount int
}

var _ Replacer = &LRUKReplacer{}

// NewLRUKReplacer returns a replacer sized for numFrames frames, each
// tracked with up to k historical accesses.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	return &LRUKReplacer{
		capacity: common.FrameID(numFrames),
		k:        k,
		nodes:    make(map[common.FrameID]*lruKNode),
	}
}

func (r *LRUKReplacer) checkBounds(frameID common.FrameID) error {
	// Must be >=, not >: frameID == capacity is already out of range.
	if frameID >= r.capacity {
		return fmt.Errorf("bufferpool: frame id %d out of range [0, %d)", frameID, r.capacity)
	}

	return nil
}

func (r *LRUKReplacer) RecordAccess(frameID common.FrameID, _ common.AccessType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBounds(frameID); err != nil {
		return err
	}

	node, ok := r.nodes[frameID]
	if !ok {
		node = &lruKNode{}
		r.nodes[frameID] = node
	}

	node.history = append(node.history, r.currentTimestamp)
	if len(node.history) > r.k {
		node.history = node.history[len(node.history)-r.k:]
	}

	r.currentTimestamp++

	return nil
}

func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBounds(frameID); err != nil {
		return err
	}

	node, ok := r.nodes[frameID]
	if !ok {
		// Only RecordAccess creates a node for an unknown frame id;
		// SetEvictable on one is a no-op, since there is nothing to track
		// evictability for yet.
		return nil
	}

	if node.evictable == evictable {
		return nil
	}

	node.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}

	return nil
}

func (r *LRUKReplacer) Remove(frameID common.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBounds(frameID); err != nil {
		return err
	}

	node, ok := r.nodes[frameID]
	if !ok {
		return nil
	}

	if !node.evictable {
		return fmt.Errorf("bufferpool: frame %d is pinned, cannot remove from replacer", frameID)
	}

	delete(r.nodes, frameID)
	r.evictableCount--

	return nil
}

// kDistance reports whether node has fewer than k accesses (infinite
// distance) and, if not, its backward k-distance at the current
// timestamp. It also returns the oldest timestamp still in history, used
// as the classical-LRU tiebreaker.
func (r *LRUKReplacer) kDistance(node *lruKNode) (isInfinite bool, distance uint64, oldest uint64) {
	// Every node in r.nodes was created by RecordAccess, which appends
	// before returning, so history is never empty here.
	oldest = node.history[0]
	if len(node.history) < r.k {
		return true, 0, oldest
	}

	return false, r.currentTimestamp - node.history[0], oldest
}

func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found       bool
		victim      common.FrameID
		victimInf   bool
		victimDist  uint64
		victimOldst uint64
	)

	// Iterate in frame-id order for a deterministic winner among exact
	// ties, rather than depending on Go's randomized map order.
	ids := make([]common.FrameID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		node := r.nodes[id]
		if !node.evictable {
			continue
		}

		isInf, dist, oldest := r.kDistance(node)

		if !found {
			found, victim, victimInf, victimDist, victimOldst = true, id, isInf, dist, oldest
			continue
		}

		switch {
		case isInf != victimInf:
			// Infinite k-distance dominates any finite one.
			if isInf {
				victim, victimInf, victimDist, victimOldst = id, isInf, dist, oldest
			}
		case isInf && victimInf:
			if oldest < victimOldst {
				victim, victimOldst = id, oldest
			}
		default: // both finite
			if dist > victimDist || (dist == victimDist && oldest < victimOldst) {
				victim, victimDist, victimOldst = id, dist, oldest
			}
		}
	}

	if !found {
		return common.InvalidFrameID, false
	}

	delete(r.nodes, victim)
	r.evictableCount--

	return victim, true
}

func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.evictableCount
}
