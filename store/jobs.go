package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job represents a row in the jobs table: one unit of background work.
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	RunAt     time.Time       `json:"run_at"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// EnqueueJob adds a queued job runnable at runAt. The payload is marshalled
// to JSON.
func (s *Store) EnqueueJob(ctx context.Context, kind string, payload interface{}, runAt time.Time) (Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	j := Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: body,
		Status:  JobQueued,
		RunAt:   runAt.UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, payload, status, run_at) VALUES (?, ?, ?, ?, ?)
	`, j.ID, j.Kind, string(j.Payload), j.Status, j.RunAt)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

// ClaimJob atomically takes the oldest runnable queued job, marks it running,
// and increments its attempt counter. Returns (nil, nil) when the queue is
// empty.
func (s *Store) ClaimJob(ctx context.Context, now time.Time) (*Job, error) {
	var j *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, kind, payload, status, attempts, run_at, last_error, created_at, updated_at
			FROM jobs WHERE status = ? AND run_at <= ?
			ORDER BY run_at, created_at LIMIT 1
		`, JobQueued, now.UTC())

		claimed, err := scanJob(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, JobRunning, claimed.ID); err != nil {
			return err
		}
		claimed.Status = JobRunning
		claimed.Attempts++
		j = claimed
		return nil
	})
	return j, err
}

// CompleteJob marks a job done. Completed rows are kept as an audit trail.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		JobDone, id)
	return err
}

// RetryJob re-queues a job to run at runAt, recording the error that forced
// the retry.
func (s *Store) RetryJob(ctx context.Context, id, errMsg string, runAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, run_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, JobQueued, nullString(errMsg), runAt.UTC(), id)
	return err
}

// FailJob marks a job permanently failed.
func (s *Store) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, JobFailed, nullString(errMsg), id)
	return err
}

// PendingJobs counts jobs waiting to run.
func (s *Store) PendingJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE status = ?", JobQueued).Scan(&count)
	return count, err
}

func scanJob(row *sql.Row) (*Job, error) {
	j := &Job{}
	var payload string
	var lastError sql.NullString
	var runAt sql.NullTime
	err := row.Scan(&j.ID, &j.Kind, &payload, &j.Status, &j.Attempts, &runAt,
		&lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	j.LastError = lastError.String
	if runAt.Valid {
		j.RunAt = runAt.Time
	}
	return j, nil
}
