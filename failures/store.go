package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// FailureRecord represents a run that ended in Failed
type FailureRecord struct {
	JobID      string    `json:"job_id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"` // state the run was in when it failed
	Error      string    `json:"error"`
	Stderr     string    `json:"stderr,omitempty"`
	ExitCode   int       `json:"exit_code"`
	FPS        int       `json:"fps"`
	VideoSize  int64     `json:"video_size"`
	DurationMS int64     `json:"duration_ms"`
}

// Store persists failure records keyed by job id
type Store struct {
	mu sync.RWMutex // guards db against Close
	db *pebble.DB
}

// Open opens (or creates) the failure store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the failure store
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

// StoreFailure stores a failure record, stamping it with the current time if unset
func (s *Store) StoreFailure(record FailureRecord) error {
	if s == nil {
		return fmt.Errorf("failure store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	if record.JobID == "" {
		return fmt.Errorf("failure record without job id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return s.db.Set([]byte(record.JobID), data, pebble.Sync)
}

// GetFailure retrieves a failure record by job id; nil when there is none
func (s *Store) GetFailure(jobID string) (*FailureRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := s.db.Get([]byte(jobID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func (s *Store) DeleteFailure(jobID string) error {
	if s == nil {
		return fmt.Errorf("failure store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return s.db.Delete([]byte(jobID), pebble.Sync)
}

// ListFailures returns failure records, newest first. limit <= 0 returns all of them.
func (s *Store) ListFailures(limit int) ([]FailureRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	records := []FailureRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CleanupOldRecords removes failure records older than maxAge and returns how many were removed
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("failure store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, fmt.Errorf("failure store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
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

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old failure record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit failure cleanup: %w", err)
	}
	return len(keysToDelete), nil
}
