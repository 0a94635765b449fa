package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studio/internal/domain"
)

// Snapshot persists the full contents of the job store and restores it at
// startup. Save receives every record in insertion order (oldest first) after
// each committed mutation.
type Snapshot interface {
	Load() ([]domain.Job, error)
	Save(jobs []domain.Job) error
}

// snapshotRecord is the on-disk schema for a single job. Field names follow
// the persisted layout consumed by the browser client.
type snapshotRecord struct {
	ID             string     `json:"id"`
	Prompt         string     `json:"prompt"`
	Status         string     `json:"status"`
	URL            string     `json:"url,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

// FileSnapshot serializes the store to a single JSON file on the local
// filesystem. It is the only durable state the service keeps.
type FileSnapshot struct {
	path string
}

// NewFileSnapshot initializes a FileSnapshot rooted at path and ensures the
// parent directory exists.
func NewFileSnapshot(path string) (*FileSnapshot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure snapshot directory: %w", err)
	}
	return &FileSnapshot{path: path}, nil
}

// Path returns the configured snapshot file location.
func (s *FileSnapshot) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads and decodes the snapshot file. A missing file yields an empty
// store; a decode failure is returned to the caller, which treats it as
// empty as well.
func (s *FileSnapshot) Load() ([]domain.Job, error) {
	if s == nil {
		return nil, errors.New("store: no snapshot configured")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	var records []snapshotRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	jobs := make([]domain.Job, 0, len(records))
	for _, rec := range records {
		job := domain.Job{
			ID:          rec.ID,
			Prompt:      rec.Prompt,
			Status:      domain.JobStatus(rec.Status),
			ResultURL:   rec.URL,
			ErrorDetail: rec.Error,
			CreatedAt:   rec.StartTime,
		}
		if rec.CompletionTime != nil {
			job.CompletedAt = *rec.CompletionTime
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Save writes the full set of records atomically: the snapshot is built in a
// temporary file and renamed over the previous one, so a crash mid-write
// leaves the old state intact.
func (s *FileSnapshot) Save(jobs []domain.Job) error {
	if s == nil {
		return errors.New("store: no snapshot configured")
	}
	records := make([]snapshotRecord, 0, len(jobs))
	for _, job := range jobs {
		rec := snapshotRecord{
			ID:        job.ID,
			Prompt:    job.Prompt,
			Status:    string(job.Status),
			URL:       job.ResultURL,
			Error:     job.ErrorDetail,
			StartTime: job.CreatedAt,
		}
		if !job.CompletedAt.IsZero() {
			completed := job.CompletedAt
			rec.CompletionTime = &completed
		}
		records = append(records, rec)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: replace snapshot: %w", err)
	}
	return nil
}
