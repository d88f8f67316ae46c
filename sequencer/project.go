package sequencer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const saveLayout = "2006-01-02_15-04-05"

// SaveInfo represents a saved pattern file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Store keeps timestamped pattern saves in one directory
type Store struct {
	Dir string
	now func() time.Time
}

// PatternsDir returns ~/.config/multinome/patterns
func PatternsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "multinome", "patterns"), nil
}

// DefaultStore returns the store under the user's config directory
func DefaultStore() (*Store, error) {
	dir, err := PatternsDir()
	if err != nil {
		return nil, err
	}
	return NewStore(dir), nil
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// List returns timestamped saves, newest first
func (st *Store) List() ([]SaveInfo, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseSaveName(entry.Name())
		if ok {
			saves = append(saves, info)
		}
	}

	// Sort by timestamp, newest first
	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// parseSaveName reads 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
func parseSaveName(filename string) (SaveInfo, bool) {
	if !strings.HasSuffix(filename, ".json") {
		return SaveInfo{}, false
	}
	base := strings.TrimSuffix(filename, ".json")
	if len(base) < len(saveLayout) {
		return SaveInfo{}, false
	}
	ts, err := time.Parse(saveLayout, base[:len(saveLayout)])
	if err != nil {
		return SaveInfo{}, false
	}

	name := ""
	if len(base) > len(saveLayout)+1 && base[len(saveLayout)] == '_' {
		name = base[len(saveLayout)+1:]
	}
	return SaveInfo{Filename: filename, Name: name, Timestamp: ts}, true
}

// Save writes the manager's pattern with a timestamped filename and returns it
func (st *Store) Save(m *Manager, name string) (string, error) {
	if err := os.MkdirAll(st.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating pattern directory")
	}

	filename := st.now().Format(saveLayout)
	if name = sanitizeFilename(name); name != "" {
		filename += "_" + name
	}
	filename += ".json"

	f, err := os.Create(filepath.Join(st.Dir, filename))
	if err != nil {
		return "", errors.Wrap(err, "creating pattern file")
	}
	if err := WritePattern(f, m.Pattern()); err != nil {
		f.Close()
		return "", errors.Wrap(err, "writing pattern")
	}
	return filename, f.Close()
}

// Load applies a specific save (or the most recent if filename is empty)
func (st *Store) Load(m *Manager, filename string) (string, error) {
	if filename == "" {
		saves, err := st.List()
		if err != nil {
			return "", err
		}
		if len(saves) == 0 {
			return "", errors.Errorf("no saves found in %s", st.Dir)
		}
		filename = saves[0].Filename
	}

	p, err := ReadPatternFile(filepath.Join(st.Dir, filename))
	if err != nil {
		return "", err
	}
	m.ApplyPattern(p)
	return filename, nil
}

// Delete removes a save file
func (st *Store) Delete(filename string) error {
	return os.Remove(filepath.Join(st.Dir, filename))
}

// Rename changes the name part of a save, keeping its timestamp
func (st *Store) Rename(oldFilename, newName string) (string, error) {
	info, ok := parseSaveName(oldFilename)
	if !ok {
		return "", errors.Errorf("invalid save filename %q", oldFilename)
	}

	newFilename := info.Timestamp.Format(saveLayout)
	if safe := sanitizeFilename(newName); safe != "" {
		newFilename += "_" + safe
	}
	newFilename += ".json"

	err := os.Rename(filepath.Join(st.Dir, oldFilename), filepath.Join(st.Dir, newFilename))
	return newFilename, err
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}
