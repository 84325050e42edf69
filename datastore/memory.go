package datastore

import (
	"sort"
	"sync"
)

// The main purpose of the memory datastore is testing, but it is also
// the default for ephemeral nodes that do not need to survive a
// restart.
type MemoryDataStore struct {
	mu sync.Mutex

	checkpoints map[string][]byte
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		checkpoints: make(map[string][]byte),
	}
}

func (self *MemoryDataStore) GetCheckpoint(run_id string) ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	blob, pres := self.checkpoints[run_id]
	if !pres {
		return nil, NotFoundError
	}

	result := make([]byte, len(blob))
	copy(result, blob)
	return result, nil
}

func (self *MemoryDataStore) SetCheckpoint(run_id string, blob []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)
	self.checkpoints[run_id] = stored
	return nil
}

func (self *MemoryDataStore) DeleteCheckpoint(run_id string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.checkpoints, run_id)
	return nil
}

func (self *MemoryDataStore) ListCheckpoints() ([]string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]string, 0, len(self.checkpoints))
	for run_id := range self.checkpoints {
		result = append(result, run_id)
	}
	sort.Strings(result)
	return result, nil
}

// Clear is for tests simulating a fresh node against retained
// storage.
func (self *MemoryDataStore) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.checkpoints = make(map[string][]byte)
}

func (self *MemoryDataStore) Close() {}
