package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"snake-market/internal/model"
)

// fileRecord is the on-disk layout of one entry in snake_scores.json.
type fileRecord struct {
	UserID        string `json:"UserId"`
	LastKnownName string `json:"LastKnownName"`
	TotalScore    int64  `json:"TotalScore"`
	LastPlayed    string `json:"LastPlayed"`
}

// Timestamps written by older releases may lack a zone offset.
var fileTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// FileStore keeps the ledger in a single JSON object keyed by player id.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads every record. A missing or empty file is an empty ledger.
// Malformed JSON is reported as ErrCorruptStore.
func (s *FileStore) Load(_ context.Context) ([]model.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read score file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	records := make([]model.ScoreRecord, 0, len(raw))
	for key, r := range raw {
		id := r.UserID
		if id == "" {
			id = key
		}
		total := r.TotalScore
		if total < 0 {
			total = 0
		}
		records = append(records, model.ScoreRecord{
			UserID:        id,
			LastKnownName: r.LastKnownName,
			TotalScore:    total,
			LastPlayed:    parseFileTime(r.LastPlayed),
		})
	}
	sortRecords(records)
	return records, nil
}

// Save rewrites the file atomically: the JSON goes to a temp file in the same
// directory which is then renamed over the target.
func (s *FileStore) Save(_ context.Context, records []model.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string]fileRecord, len(records))
	for _, r := range records {
		raw[r.UserID] = fileRecord{
			UserID:        r.UserID,
			LastKnownName: r.LastKnownName,
			TotalScore:    r.TotalScore,
			LastPlayed:    r.LastPlayed.Format(time.RFC3339Nano),
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create score directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp score file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write scores: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp score file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace score file: %w", err)
	}
	return nil
}

func parseFileTime(v string) time.Time {
	for _, layout := range fileTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
