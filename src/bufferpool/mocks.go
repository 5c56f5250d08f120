package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/vaultpage/vaultpage/src/pkg/common"
)

// MockDiskManager is a testify mock of DiskManager for exercising eviction
// and miss paths without a real filesystem.
type MockDiskManager struct {
	mock.Mock
}

func (m *MockDiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

func (m *MockDiskManager) WritePage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

// MockReplacer is a testify mock of Replacer for asserting the exact
// sequence of RecordAccess/SetEvictable/Remove/Evict calls a BPM operation
// makes, independent of LRUKReplacer's own policy.
type MockReplacer struct {
	mock.Mock
}

func (m *MockReplacer) RecordAccess(frameID common.FrameID, accessType common.AccessType) error {
	args := m.Called(frameID, accessType)
	return args.Error(0)
}

func (m *MockReplacer) SetEvictable(frameID common.FrameID, evictable bool) error {
	args := m.Called(frameID, evictable)
	return args.Error(0)
}

func (m *MockReplacer) Remove(frameID common.FrameID) error {
	args := m.Called(frameID)
	return args.Error(0)
}

func (m *MockReplacer) Evict() (common.FrameID, bool) {
	args := m.Called()
	return args.Get(0).(common.FrameID), args.Bool(1)
}

func (m *MockReplacer) Size() int {
	args := m.Called()
	return args.Int(0)
}
