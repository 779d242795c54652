// Package completion persists which markers a user has completed and
// reconciles the local copy with the account copy.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zyedidia/generic/mapset"

	"github.com/joeblew999/plat-wikimap/internal/markers"
)

// Store holds one user's completed marker keys for one map.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, keys []string) error
	Add(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

// Event is one outgoing completion notification.
type Event struct {
	Session   string    `json:"session"`
	Map       string    `json:"map"`
	Marker    string    `json:"marker"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

// FileStore is the local store: a JSON array of keys on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns the store for user and mapID under dataDir.
func NewFileStore(dataDir, user, mapID string) *FileStore {
	return &FileStore{
		path: filepath.Join(dataDir, "completion", markers.GenerateID(user), markers.GenerateID(mapID)+".json"),
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored keys, sorted. A missing file is an empty set.
func (s *FileStore) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.read()
	if err != nil {
		return nil, err
	}
	return sorted(set), nil
}

// Save replaces the stored keys.
func (s *FileStore) Save(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := mapset.New[string]()
	for _, k := range keys {
		set.Put(k)
	}
	return s.write(set)
}

// Add stores key.
func (s *FileStore) Add(ctx context.Context, key string) error {
	return s.update(func(set mapset.Set[string]) { set.Put(key) })
}

// Remove drops key.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	return s.update(func(set mapset.Set[string]) { set.Remove(key) })
}

func (s *FileStore) update(fn func(mapset.Set[string])) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.read()
	if err != nil {
		return err
	}
	fn(set)
	return s.write(set)
}

func (s *FileStore) read() (mapset.Set[string], error) {
	set := mapset.New[string]()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return set, fmt.Errorf("reading completion file: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return set, fmt.Errorf("parsing %s: %w", filepath.Base(s.path), err)
	}
	for _, k := range keys {
		set.Put(k)
	}
	return set, nil
}

func (s *FileStore) write(set mapset.Set[string]) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sorted(set), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func sorted(set mapset.Set[string]) []string {
	out := make([]string, 0, set.Size())
	set.Each(func(k string) {
		out = append(out, k)
	})
	sort.Strings(out)
	return out
}
