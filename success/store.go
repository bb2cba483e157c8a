package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// SuccessRecord represents a run that produced an archive
type SuccessRecord struct {
	JobID       string    `json:"job_id"`
	Timestamp   time.Time `json:"timestamp"`
	FPS         int       `json:"fps"`
	VideoSize   int64     `json:"video_size"`
	ArchiveSize int64     `json:"archive_size"`
	FileCount   int       `json:"file_count"` // files packed into the archive
	PipelineMS  int64     `json:"pipeline_ms"`
	DurationMS  int64     `json:"duration_ms"`
}

// Store persists success records keyed by job id
type Store struct {
	mu sync.RWMutex // guards db against Close
	db *pebble.DB
}

// Open opens (or creates) the success store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open success store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the success store
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// StoreSuccess stores a success record
func (s *Store) StoreSuccess(record SuccessRecord) error {
	if s == nil {
		return fmt.Errorf("success store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("success store not initialized")
	}
	if record.JobID == "" {
		return fmt.Errorf("success record without job id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return s.db.Set([]byte(record.JobID), data, pebble.Sync)
}

// GetSuccess retrieves a success record by job id; nil when there is none
func (s *Store) GetSuccess(jobID string) (*SuccessRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("success store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := s.db.Get([]byte(jobID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // Not found is not an error
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// ListSuccessRecords returns success records, newest first. limit <= 0 returns all of them.
func (s *Store) ListSuccessRecords(limit int) ([]SuccessRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("success store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	records := []SuccessRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CleanupOldRecords removes success records older than maxAge and returns how many were removed
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("success store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range keysToDelete {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the success database
func (s *Store) CheckHealth() error {
	if s == nil {
		return fmt.Errorf("success database not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("success database not initialized")
	}

	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
