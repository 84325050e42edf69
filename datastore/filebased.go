package datastore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	errors "github.com/pkg/errors"
)

const checkpoint_extension = ".cp"

// Checkpoints are stored one file per run id. A write goes to a
// temporary file first and is renamed into place, so a crash mid
// write never leaves a half checkpoint - the rename is the commit
// point of the host transaction.
type FileBaseDataStore struct {
	mu sync.Mutex

	location string
}

func NewFileBaseDataStore(location string) *FileBaseDataStore {
	return &FileBaseDataStore{location: location}
}

func (self *FileBaseDataStore) filename(run_id string) (string, error) {
	// Run ids are uuids but we never trust a path component.
	if strings.ContainsAny(run_id, "/\\.") || run_id == "" {
		return "", errors.Errorf("invalid run id %q", run_id)
	}
	return filepath.Join(self.location, run_id+checkpoint_extension), nil
}

func (self *FileBaseDataStore) GetCheckpoint(run_id string) ([]byte, error) {
	filename, err := self.filename(run_id)
	if err != nil {
		return nil, err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, NotFoundError
	}
	return data, err
}

func (self *FileBaseDataStore) SetCheckpoint(run_id string, blob []byte) error {
	filename, err := self.filename(run_id)
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	err = os.MkdirAll(self.location, 0700)
	if err != nil {
		return errors.Wrap(err, "creating datastore directory")
	}

	tmp := filename + ".tmp"
	err = os.WriteFile(tmp, blob, 0600)
	if err != nil {
		return errors.Wrap(err, "writing checkpoint")
	}

	return os.Rename(tmp, filename)
}

func (self *FileBaseDataStore) DeleteCheckpoint(run_id string) error {
	filename, err := self.filename(run_id)
	if err != nil {
		return err
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	err = os.Remove(filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (self *FileBaseDataStore) ListCheckpoints() ([]string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	entries, err := os.ReadDir(self.location)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, checkpoint_extension) {
			result = append(result,
				strings.TrimSuffix(name, checkpoint_extension))
		}
	}
	return result, nil
}

func (self *FileBaseDataStore) Close() {}
