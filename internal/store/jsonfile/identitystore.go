package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/hay-kot/perch/internal/core/messaging"
)

// IdentityFile is the root JSON structure stored on disk for identities.
type IdentityFile struct {
	Identities map[string]messaging.Identity `json:"identities"`
}

// IdentityStore implements messaging.IdentityStore using a JSON file for
// persistence.
type IdentityStore struct {
	path string
	mu   sync.RWMutex
}

// NewIdentityStore creates a new JSON file identity store at the given path.
func NewIdentityStore(path string) *IdentityStore {
	return &IdentityStore{path: path}
}

// Get returns an identity by name. Returns messaging.ErrIdentityNotFound if
// not found.
func (s *IdentityStore) Get(ctx context.Context, name string) (messaging.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		ident messaging.Identity
		found bool
	)

	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		ident, found = file.Identities[name]
		return nil
	})
	if err != nil {
		return messaging.Identity{}, err
	}

	if !found {
		return messaging.Identity{}, messaging.ErrIdentityNotFound
	}

	return ident, nil
}

// Save creates or replaces an identity.
func (s *IdentityStore) Save(ctx context.Context, ident messaging.Identity) error {
	if ident.Name == "" {
		return fmt.Errorf("identity name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		file.Identities[ident.Name] = ident
		return s.save(file)
	})
}

// Delete removes an identity by name. Returns messaging.ErrIdentityNotFound
// if not found.
func (s *IdentityStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notFound bool

	err := withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		if _, ok := file.Identities[name]; !ok {
			notFound = true
			return nil
		}

		delete(file.Identities, name)
		return s.save(file)
	})
	if err != nil {
		return err
	}

	if notFound {
		return messaging.ErrIdentityNotFound
	}

	return nil
}

// List returns all identities sorted by name.
func (s *IdentityStore) List(ctx context.Context) ([]messaging.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idents []messaging.Identity

	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		for _, ident := range file.Identities {
			idents = append(idents, ident)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(idents, func(i, j int) bool {
		return idents[i].Name < idents[j].Name
	})

	return idents, nil
}

// load reads the identity file from disk.
// Returns an empty IdentityFile if the file doesn't exist.
func (s *IdentityStore) load() (IdentityFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return IdentityFile{Identities: make(map[string]messaging.Identity)}, nil
		}
		return IdentityFile{}, err
	}

	if len(data) == 0 {
		return IdentityFile{Identities: make(map[string]messaging.Identity)}, nil
	}

	var file IdentityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return IdentityFile{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	if file.Identities == nil {
		file.Identities = make(map[string]messaging.Identity)
	}

	return file, nil
}

// save writes the identity file to disk atomically.
func (s *IdentityStore) save(file IdentityFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	return writeAtomic(s.path, data)
}
