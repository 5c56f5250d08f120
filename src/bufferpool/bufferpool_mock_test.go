package bufferpool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaultpage/vaultpage/src/pkg/common"
)

// TestFetchPageMissFlushesDirtyVictimBeforeRead uses mocked collaborators
// to pin down the exact call sequence a miss-with-eviction takes: the
// victim's dirty bytes must reach WritePage before ReadPage is issued for
// the new page, and every expected replacer call must be made.
func TestFetchPageMissFlushesDirtyVictimBeforeRead(t *testing.T) {
	disk := &MockDiskManager{}
	replacer := &MockReplacer{}

	m := newManagerWithReplacer(1, disk, replacer, nil)

	replacer.On("SetEvictable", common.FrameID(0), false).Return(nil)
	replacer.On("SetEvictable", common.FrameID(0), true).Return(nil)
	replacer.On("RecordAccess", common.FrameID(0), common.AccessUnknown).Return(nil)
	disk.On("ReadPage", common.PageID(0), mock.Anything).Return(nil).Once()

	p0, err := m.FetchPage(common.PageID(0), common.AccessUnknown)
	require.NoError(t, err)
	require.NotNil(t, p0)

	require.True(t, m.UnpinPage(common.PageID(0), true, common.AccessUnknown))

	writtenFor := common.InvalidPageID
	writtenBeforeRead := common.InvalidPageID

	replacer.On("Evict").Return(common.FrameID(0), true).Once()
	disk.On("WritePage", common.PageID(0), mock.Anything).Run(func(args mock.Arguments) {
		writtenFor = args.Get(0).(common.PageID)
	}).Return(nil).Once()
	disk.On("ReadPage", common.PageID(1), mock.Anything).Run(func(mock.Arguments) {
		writtenBeforeRead = writtenFor
	}).Return(nil).Once()

	p1, err := m.FetchPage(common.PageID(1), common.AccessUnknown)
	require.NoError(t, err)
	require.NotNil(t, p1)

	require.Equal(t, common.PageID(0), writtenBeforeRead, "the dirty victim must be flushed before the new page is read")

	// The old mapping must be gone and the new one installed.
	_, stillMapped := m.pageTbl[common.PageID(0)]
	require.False(t, stillMapped)

	frameID, mapped := m.pageTbl[common.PageID(1)]
	require.True(t, mapped)
	require.Equal(t, common.FrameID(0), frameID)

	disk.AssertExpectations(t)
	replacer.AssertExpectations(t)
}

func TestDeletePageRemovesFromReplacerAndFreesFrame(t *testing.T) {
	disk := &MockDiskManager{}
	replacer := &MockReplacer{}

	m := newManagerWithReplacer(1, disk, replacer, nil)

	replacer.On("SetEvictable", common.FrameID(0), false).Return(nil)
	replacer.On("SetEvictable", common.FrameID(0), true).Return(nil)
	replacer.On("RecordAccess", common.FrameID(0), common.AccessUnknown).Return(nil)
	disk.On("ReadPage", common.PageID(5), mock.Anything).Return(nil).Once()

	_, err := m.FetchPage(common.PageID(5), common.AccessUnknown)
	require.NoError(t, err)

	require.True(t, m.UnpinPage(common.PageID(5), false, common.AccessUnknown))

	replacer.On("Remove", common.FrameID(0)).Return(nil).Once()

	require.True(t, m.DeletePage(common.PageID(5)))
	require.Len(t, m.freeList, 1)

	disk.AssertExpectations(t)
	replacer.AssertExpectations(t)
}

// TestFetchPageMissDiskFailureRollsBackFrame pins down the recovery path:
// when the disk read itself fails, the frame must not linger half-claimed
// so a retry of the same page id can succeed.
func TestFetchPageMissDiskFailureRollsBackFrame(t *testing.T) {
	disk := &MockDiskManager{}
	replacer := &MockReplacer{}

	m := newManagerWithReplacer(1, disk, replacer, nil)

	disk.On("ReadPage", common.PageID(9), mock.Anything).Return(errors.New("disk: simulated read failure")).Once()

	_, err := m.FetchPage(common.PageID(9), common.AccessUnknown)
	require.Error(t, err)

	_, mapped := m.pageTbl[common.PageID(9)]
	require.False(t, mapped, "a failed fetch must not leave a resident page-table entry behind")
	require.Len(t, m.freeList, 1, "the claimed frame must be returned to the free list")

	replacer.On("SetEvictable", common.FrameID(0), false).Return(nil)
	replacer.On("RecordAccess", common.FrameID(0), common.AccessUnknown).Return(nil)
	disk.On("ReadPage", common.PageID(9), mock.Anything).Return(nil).Once()

	_, err = m.FetchPage(common.PageID(9), common.AccessUnknown)
	require.NoError(t, err, "a retry after a disk failure must succeed against the rolled-back frame")

	disk.AssertExpectations(t)
	replacer.AssertExpectations(t)
}
