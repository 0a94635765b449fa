package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// Store holds every generation attempt the user has made, in insertion order.
// Each committed mutation re-persists the full contents through the attached
// Snapshot so state survives restarts. Both HTTP handlers and the polling
// engine mutate the store, hence the mutex.
type Store struct {
	mu     sync.Mutex
	jobs   []*domain.Job
	index  map[string]*domain.Job
	snap   Snapshot
	logger zerolog.Logger
}

// New constructs a Store restored from the given snapshot. Corrupt or missing
// persisted state is logged and treated as an empty store, never a fatal
// error.
func New(snap Snapshot, logger zerolog.Logger) *Store {
	s := &Store{
		index:  make(map[string]*domain.Job),
		snap:   snap,
		logger: logger,
	}
	if snap == nil {
		return s
	}
	jobs, err := snap.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("store: snapshot unreadable, starting empty")
		return s
	}
	for i := range jobs {
		job := jobs[i]
		if _, exists := s.index[job.ID]; exists {
			logger.Warn().Str("job_id", job.ID).Msg("store: duplicate id in snapshot, dropping")
			continue
		}
		s.jobs = append(s.jobs, &job)
		s.index[job.ID] = &job
	}
	return s
}

// Append adds a new pending record for the given id and prompt. The record
// always starts pending with no result or error payload.
func (s *Store) Append(id, prompt string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[id]; exists {
		return domain.Job{}, domain.ErrDuplicateJob
	}
	job := &domain.Job{
		ID:        id,
		Prompt:    prompt,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.jobs = append(s.jobs, job)
	s.index[id] = job
	s.persist()
	return *job, nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.index[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *job, nil
}

// Complete transitions a pending record to complete with the given result
// reference. A record that is already terminal is left untouched and
// ErrTerminalJob is returned, so stray late responses never overwrite a
// recorded outcome.
func (s *Store) Complete(id, resultURL string) error {
	return s.transition(id, domain.JobStatusComplete, resultURL, "")
}

// Fail transitions a pending record to error with the given detail message.
// Terminal records are left untouched, as with Complete.
func (s *Store) Fail(id, detail string) error {
	return s.transition(id, domain.JobStatusError, "", detail)
}

func (s *Store) transition(id string, status domain.JobStatus, resultURL, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.index[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Terminal() {
		return domain.ErrTerminalJob
	}
	job.Status = status
	job.ResultURL = resultURL
	job.ErrorDetail = detail
	job.CompletedAt = time.Now().UTC()
	if job.CompletedAt.Before(job.CreatedAt) {
		job.CompletedAt = job.CreatedAt
	}
	s.persist()
	return nil
}

// Remove deletes the record for id. Removing an unknown id is a no-op: the
// user may delete a job while a poll for it is still in flight.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, job := range s.jobs {
		if job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			break
		}
	}
	s.persist()
}

// List returns copies of all records, most recently created first.
func (s *Store) List() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		out = append(out, *s.jobs[i])
	}
	return out
}

// Pending returns the ids of all records still awaiting a terminal status, in
// insertion order. This is the polling working set, derived rather than
// stored.
func (s *Store) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusPending {
			ids = append(ids, job.ID)
		}
	}
	return ids
}

// persist re-snapshots the full store. Callers must hold s.mu. A failed save
// is logged and the in-memory state stays authoritative.
func (s *Store) persist() {
	if s.snap == nil {
		return
	}
	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	if err := s.snap.Save(jobs); err != nil {
		s.logger.Error().Err(err).Msg("store: snapshot save failed")
	}
}
