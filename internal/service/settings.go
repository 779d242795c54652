package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-wikimap/internal/logger"
)

// SettingsService persists per-user, per-map visibility flags.
type SettingsService struct {
	dataDir string
	// user -> map -> setting key -> flag
	settings map[string]map[string]map[string]bool
	mu       sync.RWMutex
}

// NewSettingsService creates a new settings service.
func NewSettingsService(dataDir string) *SettingsService {
	s := &SettingsService{
		dataDir:  dataDir,
		settings: make(map[string]map[string]map[string]bool),
	}
	s.loadFromDisk()
	return s
}

// For returns the settings handle for one user and map.
func (s *SettingsService) For(user, mapID string) *Settings {
	return &Settings{svc: s, user: user, mapID: mapID}
}

func (s *SettingsService) get(user, mapID, key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[user][mapID][key]
	return v, ok
}

func (s *SettingsService) set(user, mapID, key string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps, ok := s.settings[user]
	if !ok {
		maps = make(map[string]map[string]bool)
		s.settings[user] = maps
	}
	flags, ok := maps[mapID]
	if !ok {
		flags = make(map[string]bool)
		maps[mapID] = flags
	}
	if v, ok := flags[key]; ok && v == on {
		return nil
	}
	flags[key] = on
	return s.saveToDisk()
}

// configFile returns the path to the settings file.
func (s *SettingsService) configFile() string {
	return filepath.Join(s.dataDir, "settings.json")
}

// loadFromDisk loads settings from disk.
func (s *SettingsService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var settings map[string]map[string]map[string]bool
	if err := json.Unmarshal(data, &settings); err != nil {
		logger.Log.WithError(err).Warn("ignoring unreadable settings file")
		return
	}
	s.settings = settings
}

// saveToDisk persists settings to disk.
func (s *SettingsService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

// Settings is one user's flags for one map. It satisfies markers.Settings.
type Settings struct {
	svc   *SettingsService
	user  string
	mapID string
}

// Visible returns the stored flag for key, or def when unset.
func (s *Settings) Visible(key string, def bool) bool {
	if v, ok := s.svc.get(s.user, s.mapID, key); ok {
		return v
	}
	return def
}

// SetVisible stores the flag for key. Write failures are logged.
func (s *Settings) SetVisible(key string, on bool) {
	if err := s.svc.set(s.user, s.mapID, key, on); err != nil {
		logger.Log.WithError(err).WithField("key", key).Error("saving settings")
	}
}
