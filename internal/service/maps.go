package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joeblew999/plat-wikimap/internal/markers"
)

// ErrMapNotFound is returned for an unknown map ID.
var ErrMapNotFound = errors.New("map not found")

// MapFile describes a map definition on disk.
type MapFile struct {
	ID     string `json:"id" doc:"Map identifier"`
	Name   string `json:"name" doc:"Display name"`
	File   string `json:"file" doc:"Definition file name"`
	Format string `json:"format" doc:"Definition format" enum:"json,yaml"`
	Size   string `json:"size" doc:"Human-readable file size"`
}

type mapSource struct {
	file MapFile
	data []byte
}

// MapService serves map definition files from <dataDir>/maps.
type MapService struct {
	mapsDir string
	mu      sync.RWMutex
	cache   map[string]mapSource
}

// NewMapService creates a new map service.
func NewMapService(dataDir string) *MapService {
	return &MapService{
		mapsDir: filepath.Join(dataDir, "maps"),
		cache:   make(map[string]mapSource),
	}
}

// MapsDir returns the path to the maps directory.
func (s *MapService) MapsDir() string {
	return s.mapsDir
}

// Reload rescans the maps directory. Files that fail to parse are skipped
// and reported in the returned error.
func (s *MapService) Reload() error {
	entries, err := os.ReadDir(s.mapsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cache := make(map[string]mapSource)
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format := formatOf(entry.Name())
		if format == "" {
			continue
		}
		path := filepath.Join(s.mapsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def, err := markers.DecodeFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := cache[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: map id %q already defined", entry.Name(), def.ID))
			continue
		}
		cache[def.ID] = mapSource{
			file: MapFile{
				ID:     def.ID,
				Name:   def.Name,
				File:   entry.Name(),
				Format: format,
				Size:   formatSize(int64(len(data))),
			},
			data: data,
		}
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return errors.Join(errs...)
}

// List returns the loaded maps sorted by ID.
func (s *MapService) List() []MapFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]MapFile, 0, len(s.cache))
	for _, src := range s.cache {
		files = append(files, src.file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files
}

// Get decodes a fresh copy of the map definition, so each session owns its
// own.
func (s *MapService) Get(id string) (*markers.MapDef, error) {
	s.mu.RLock()
	src, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMapNotFound, id)
	}
	def, err := markers.Decode(src.data, src.file.Format)
	if err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = id
	}
	return def, nil
}

// Add registers an in-memory definition under def.ID.
func (s *MapService) Add(def *markers.MapDef, data []byte, format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[def.ID] = mapSource{
		file: MapFile{ID: def.ID, Name: def.Name, Format: format, Size: formatSize(int64(len(data)))},
		data: data,
	}
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
