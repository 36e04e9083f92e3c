package sessionlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrExists is returned by [Store.Create] when a record is already present.
var ErrExists = errors.New("lock record already exists")

// ErrNotExist is returned by [Store.Read] when no record is present.
var ErrNotExist = errors.New("lock record does not exist")

// Store persists the single lock record. Create must be atomic create-if-
// absent: two concurrent Create calls may both observe an empty store, but at
// most one may succeed — the loser receives [ErrExists]. No read-modify-write
// is permitted on the record.
type Store interface {
	// Create atomically writes data as the lock record iff none exists.
	// Returns ErrExists when a record is already present. Any other error
	// must not leave a partially written record behind.
	Create(data []byte) error

	// Read returns the current record, or ErrNotExist when absent.
	Read() ([]byte, error)

	// Remove deletes the record. Removing an absent record is not an error.
	Remove() error
}

// FileStore keeps the lock record in a single well-known file. External
// tooling may read the file directly to report who owns the microphone.
type FileStore struct {
	path string
}

// Compile-time interface assertion.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at path. The parent directory is
// created on first Create if missing.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path backing this store.
func (s *FileStore) Path() string { return s.path }

// Create writes data to a temporary file in the same directory and then hard-
// links it into place. link(2) fails with EEXIST when the record is already
// present, which gives the required atomic create-if-absent without any
// read-then-write window. A failed write never leaves a partial record: the
// record path only ever appears fully written.
func (s *FileStore) Create(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sessionlock: create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".lock-*")
	if err != nil {
		return fmt.Errorf("sessionlock: create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionlock: write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sessionlock: close temp record: %w", err)
	}

	if err := os.Link(tmpName, s.path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("sessionlock: link record into place: %w", err)
	}
	return nil
}

// Read returns the record contents, or ErrNotExist when the file is absent.
func (s *FileStore) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("sessionlock: read record: %w", err)
	}
	return data, nil
}

// Remove deletes the record file. An already-absent file is not an error.
func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sessionlock: remove record: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests. It is safe for concurrent use.
type MemStore struct {
	mu   sync.Mutex
	data []byte

	// CreateErr, if non-nil, is returned by every Create call in place of
	// the normal behaviour. Used to simulate I/O failures.
	CreateErr error

	// ReadErr, if non-nil, is returned by every Read call.
	ReadErr error
}

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// Create stores data iff no record exists.
func (s *MemStore) Create(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if s.data != nil {
		return ErrExists
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data = cp
	return nil
}

// Read returns the stored record, or ErrNotExist when absent.
func (s *MemStore) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	if s.data == nil {
		return nil, ErrNotExist
	}
	cp := make([]byte, len(s.data))
	copy(cp, s.data)
	return cp, nil
}

// Remove deletes the stored record.
func (s *MemStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
