package categorize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Memory is the learned mapping from normalized transaction description to
// user-confirmed category. Entries are only ever added; an existing key is
// never overwritten, so an early confirmed mapping survives later ambiguous
// bulk corrections. The map is persisted as a flat JSON object after each
// mutated correction batch.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
	logger  *slog.Logger
}

// LoadMemory reads the memory map from path. A missing or corrupt file is
// not fatal: it is logged and an empty map is used, matching the accepted
// cold-start behavior.
func LoadMemory(path string, logger *slog.Logger) *Memory {
	m := &Memory{
		entries: make(map[string]string),
		path:    path,
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read memory map, starting empty", "path", path, "error", err)
		}
		return m
	}

	if err := json.Unmarshal(data, &m.entries); err != nil {
		logger.Warn("failed to parse memory map, starting empty", "path", path, "error", err)
		m.entries = make(map[string]string)
		return m
	}

	// Keys written by older versions may not be normalized yet.
	normalized := make(map[string]string, len(m.entries))
	for key, category := range m.entries {
		normalized[normalizeDescription(key)] = category
	}
	m.entries = normalized

	logger.Info("memory map loaded", "path", path, "entries", len(m.entries))
	return m
}

// Lookup returns the remembered category for a description, normalizing
// (trim + lowercase) before the lookup.
func (m *Memory) Lookup(description string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	category, ok := m.entries[normalizeDescription(description)]
	return category, ok
}

// RecordCorrections inserts every absent description->category pair and then
// persists the whole map atomically. Existing keys are left untouched
// (first-write-wins). Returns the number of inserted entries; a save error
// is returned to the caller while the in-memory map keeps the new entries.
func (m *Memory) RecordCorrections(corrections map[string]string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for description, category := range corrections {
		key := normalizeDescription(description)
		category = strings.TrimSpace(category)
		if key == "" || category == "" {
			continue
		}
		if _, exists := m.entries[key]; exists {
			continue
		}
		m.entries[key] = category
		added++
	}

	if added == 0 {
		return 0, nil
	}

	if err := m.save(); err != nil {
		m.logger.Error("failed to persist memory map, changes will be lost on restart", "path", m.path, "error", err)
		return added, fmt.Errorf("failed to persist memory map: %w", err)
	}

	m.logger.Info("memory map updated", "added", added, "entries", len(m.entries))
	return added, nil
}

// save writes the map to a temp file in the target directory and renames it
// into place, so a failed write never leaves a truncated store behind.
// Callers must hold the write lock.
func (m *Memory) save() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Len returns the number of remembered descriptions
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Snapshot returns a copy of the current entries
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func normalizeDescription(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}
