package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpage/vaultpage/src/pkg/common"
)

func TestLRUKReplacer_InfiniteDominatesFinite(t *testing.T) {
	// S6 from the scenario table: Record(A), Record(B), Record(C),
	// Record(A), Record(B); k=2, timestamps 0..4, clock now at 5. A has
	// k-distance 5 and B 4, C is ∞ and must be evicted first regardless of
	// A/B's finite distances.
	r := NewLRUKReplacer(3, 2)

	a, b, c := common.FrameID(0), common.FrameID(1), common.FrameID(2)

	require.NoError(t, r.RecordAccess(a, common.AccessUnknown))
	require.NoError(t, r.RecordAccess(b, common.AccessUnknown))
	require.NoError(t, r.RecordAccess(c, common.AccessUnknown))
	require.NoError(t, r.RecordAccess(a, common.AccessUnknown))
	require.NoError(t, r.RecordAccess(b, common.AccessUnknown))

	require.NoError(t, r.SetEvictable(a, true))
	require.NoError(t, r.SetEvictable(b, true))
	require.NoError(t, r.SetEvictable(c, true))

	require.Equal(t, 3, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, c, victim)
	assert.Equal(t, 2, r.Size())

	// Next: A's second-most-recent access (t=0) is older than B's (t=1),
	// so A has the larger k-distance (5 vs 4) and is evicted.
	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, a, victim)
}

func TestLRUKReplacer_NonEvictableFrameIsNeverChosen(t *testing.T) {
	r := NewLRUKReplacer(2, 2)

	pinned, free := common.FrameID(0), common.FrameID(1)

	require.NoError(t, r.RecordAccess(pinned, common.AccessUnknown))
	require.NoError(t, r.RecordAccess(free, common.AccessUnknown))
	require.NoError(t, r.SetEvictable(free, true))
	// pinned stays non-evictable.

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, free, victim)

	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestLRUKReplacer_SetEvictableIsIdempotent(t *testing.T) {
	r := NewLRUKReplacer(1, 2)
	f := common.FrameID(0)

	require.NoError(t, r.RecordAccess(f, common.AccessUnknown))
	require.NoError(t, r.SetEvictable(f, true))
	require.Equal(t, 1, r.Size())

	require.NoError(t, r.SetEvictable(f, true))
	assert.Equal(t, 1, r.Size(), "toggling to the same value must not change the count")

	require.NoError(t, r.SetEvictable(f, false))
	assert.Equal(t, 0, r.Size())
}

func TestLRUKReplacer_RemoveRequiresEvictable(t *testing.T) {
	r := NewLRUKReplacer(1, 2)
	f := common.FrameID(0)

	require.NoError(t, r.RecordAccess(f, common.AccessUnknown))
	assert.Error(t, r.Remove(f), "removing a pinned (non-evictable) frame must fail")

	require.NoError(t, r.SetEvictable(f, true))
	assert.NoError(t, r.Remove(f))
	assert.Equal(t, 0, r.Size())
}

func TestLRUKReplacer_RemoveUnknownFrameIsNoOp(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	assert.NoError(t, r.Remove(common.FrameID(3)))
}

func TestLRUKReplacer_OutOfRangeFrameIsRejected(t *testing.T) {
	r := NewLRUKReplacer(2, 2)

	assert.Error(t, r.RecordAccess(common.FrameID(2), common.AccessUnknown), "id == capacity must be rejected")
	assert.Error(t, r.SetEvictable(common.FrameID(5), true))
	assert.Error(t, r.Remove(common.FrameID(5)))
}

func TestLRUKReplacer_EvictOnEmptyReturnsFalse(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	_, ok := r.Evict()
	assert.False(t, ok)
}

func TestLRUKReplacer_HistoryIsBoundedToK(t *testing.T) {
	r := NewLRUKReplacer(1, 2)
	f := common.FrameID(0)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.RecordAccess(f, common.AccessUnknown))
	}

	require.NoError(t, r.SetEvictable(f, true))
	assert.Len(t, r.nodes[f].history, 2)
}
