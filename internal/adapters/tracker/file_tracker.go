package tracker

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var _ ports.CursorStore = (*FileStateStore)(nil)

// FileStateStore keeps sync cursors and import progress in a local JSON file.
// Mutations stay in memory until Save, except SaveCursor which persists
// immediately.
type FileStateStore struct {
	filepath string
	mu       sync.RWMutex
	state    stateData
}

type stateData struct {
	Watermark    int64                            `json:"watermark"`
	ProcessedIDs map[string]bool                  `json:"processed_ids"`
	Cursors      map[int64]models.WatermarkCursor `json:"cursors"`
}

// NewFileStateStore initializes a state store from a file path.
func NewFileStateStore(path string) (*FileStateStore, error) {
	store := &FileStateStore{
		filepath: path,
		state: stateData{
			ProcessedIDs: make(map[string]bool),
			Cursors:      make(map[int64]models.WatermarkCursor),
		},
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load state file: %w", err)
	}

	return store, nil
}

func (s *FileStateStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filepath), 0755); err != nil {
		return err
	}

	f, err := os.Open(s.filepath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&s.state); err != nil {
		if err == io.EOF {
			return nil // Empty file is fine
		}
		return err
	}

	if s.state.ProcessedIDs == nil {
		s.state.ProcessedIDs = make(map[string]bool)
	}
	if s.state.Cursors == nil {
		s.state.Cursors = make(map[int64]models.WatermarkCursor)
	}

	return nil
}

// LoadCursor returns the user's last saved cursor, or the zero cursor.
func (s *FileStateStore) LoadCursor(userID int64) models.WatermarkCursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Cursors[userID]
}

// SaveCursor records the cursor and writes the file.
func (s *FileStateStore) SaveCursor(userID int64, cursor models.WatermarkCursor) error {
	s.mu.Lock()
	s.state.Cursors[userID] = cursor
	s.mu.Unlock()
	return s.Save()
}

// GetWatermark returns the import high-water mark in unix seconds.
func (s *FileStateStore) GetWatermark() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Watermark
}

func (s *FileStateStore) IsProcessed(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ProcessedIDs[key]
}

func (s *FileStateStore) MarkProcessed(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ProcessedIDs[key] = true
	return nil
}

// UpdateWatermark moves the import watermark forward; older values are ignored.
func (s *FileStateStore) UpdateWatermark(timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timestamp > s.state.Watermark {
		s.state.Watermark = timestamp
	}
	return nil
}

// Save persists the current state to storage.
func (s *FileStateStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Atomic write: write to temp file then rename
	tmp, err := os.CreateTemp(filepath.Dir(s.filepath), filepath.Base(s.filepath)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.state); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.filepath)
}
