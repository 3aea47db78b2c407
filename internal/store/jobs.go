package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"holograph/internal/types"
)

// EnqueueJob creates a pending job and returns its id.
func (s *Store) EnqueueJob(kind string, payload []string) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("%w: job kind required", types.ErrInvalidArgument)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT INTO jobs (id, kind, payload, status) VALUES (?, ?, ?, ?)",
		id, kind, string(payloadJSON), types.JobPending,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// ClaimJob atomically moves the oldest pending job of the given kind to
// running and returns it. Returns (nil, nil) when the queue is empty. The
// conditional UPDATE is the claim: two workers racing for the same row see
// exactly one RowsAffected of 1.
func (s *Store) ClaimJob(kind string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		var id string
		err := s.db.QueryRow(
			"SELECT id FROM jobs WHERE status = ? AND kind = ? ORDER BY created_at ASC, id ASC LIMIT 1",
			types.JobPending, kind,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res, err := s.db.Exec(
			"UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
			types.JobRunning, time.Now().UTC(), id, types.JobPending,
		)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost the race for this row; try the next pending job.
			continue
		}
		return s.getJobLocked(id)
	}
}

// CompleteJob marks a running job done.
func (s *Store) CompleteJob(id string) error {
	return s.finishJob(id, types.JobDone, "")
}

// FailJob marks a running job failed with its error text.
func (s *Store) FailJob(id string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return s.finishJob(id, types.JobFailed, msg)
}

func (s *Store) finishJob(id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		status, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(id)
}

func (s *Store) getJobLocked(id string) (*types.Job, error) {
	var j types.Job
	var payloadJSON string
	var started, finished sql.NullTime

	err := s.db.QueryRow(
		"SELECT id, kind, payload, status, error, created_at, started_at, finished_at FROM jobs WHERE id = ?", id,
	).Scan(&j.ID, &j.Kind, &payloadJSON, &j.Status, &j.Error, &j.CreatedAt, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(payloadJSON), &j.Payload)
	if started.Valid {
		j.StartedAt = started.Time
	}
	if finished.Valid {
		j.FinishedAt = finished.Time
	}
	return &j, nil
}

// PendingJobCount reports how many jobs of the kind are waiting.
func (s *Store) PendingJobCount(kind string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM jobs WHERE status = ? AND kind = ?", types.JobPending, kind,
	).Scan(&n)
	return n, err
}
