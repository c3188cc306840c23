package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Ingestion lifecycle states. Both status and finding_status move
// pending -> processing -> done | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Ingestion represents a row in the ingestions table.
type Ingestion struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	SourceType    string `json:"source_type"`
	Filename      string `json:"filename,omitempty"`
	Status        string `json:"status"`
	FindingStatus string `json:"finding_status"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// CreateIngestion inserts a new pending ingestion.
func (s *Store) CreateIngestion(ctx context.Context, projectID, sourceType, filename string) (Ingestion, error) {
	ing := Ingestion{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		SourceType:    sourceType,
		Filename:      filename,
		Status:        StatusPending,
		FindingStatus: StatusPending,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ingestions (id, project_id, source_type, filename)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at
	`, ing.ID, ing.ProjectID, ing.SourceType, nullString(ing.Filename)).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		return Ingestion{}, err
	}
	return ing, nil
}

// GetIngestion retrieves an ingestion by ID.
func (s *Store) GetIngestion(ctx context.Context, id string) (*Ingestion, error) {
	return s.scanIngestion(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, source_type, filename, status, finding_status, error, created_at, updated_at
		FROM ingestions WHERE id = ?
	`, id))
}

// GetIngestionScoped retrieves an ingestion only if it belongs to the given
// project which in turn belongs to the given organization. Returns
// sql.ErrNoRows when any link in the chain is broken.
func (s *Store) GetIngestionScoped(ctx context.Context, ingestionID, projectID, orgID string) (*Ingestion, error) {
	return s.scanIngestion(s.db.QueryRowContext(ctx, `
		SELECT i.id, i.project_id, i.source_type, i.filename, i.status, i.finding_status, i.error, i.created_at, i.updated_at
		FROM ingestions i
		JOIN projects p ON p.id = i.project_id
		WHERE i.id = ? AND i.project_id = ? AND p.org_id = ?
	`, ingestionID, projectID, orgID))
}

// ListIngestions returns all ingestions for a project, newest first.
func (s *Store) ListIngestions(ctx context.Context, projectID string) ([]Ingestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, source_type, filename, status, finding_status, error, created_at, updated_at
		FROM ingestions WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ingestions []Ingestion
	for rows.Next() {
		var ing Ingestion
		var filename, errDetail sql.NullString
		if err := rows.Scan(&ing.ID, &ing.ProjectID, &ing.SourceType, &filename,
			&ing.Status, &ing.FindingStatus, &errDetail, &ing.CreatedAt, &ing.UpdatedAt); err != nil {
			return nil, err
		}
		ing.Filename = filename.String
		ing.Error = errDetail.String
		ingestions = append(ingestions, ing)
	}
	return ingestions, rows.Err()
}

// TransitionIngestionStatus moves status to the target value only when the
// current value is one of from. Reports whether the transition happened,
// so concurrent workers cannot re-enter an ingestion already taken.
func (s *Store) TransitionIngestionStatus(ctx context.Context, id, to string, from ...string) (bool, error) {
	return s.transition(ctx, "status", id, to, from)
}

// TransitionFindingStatus is TransitionIngestionStatus for finding_status.
func (s *Store) TransitionFindingStatus(ctx context.Context, id, to string, from ...string) (bool, error) {
	return s.transition(ctx, "finding_status", id, to, from)
}

func (s *Store) transition(ctx context.Context, column, id, to string, from []string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	query := "UPDATE ingestions SET " + column + " = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND " +
		column + " IN (?" + repeatPlaceholders(len(from)-1) + ")"

	args := make([]interface{}, 0, len(from)+2)
	args = append(args, to, id)
	for _, f := range from {
		args = append(args, f)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetIngestionStatus updates status unconditionally.
func (s *Store) SetIngestionStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ingestions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// SetFindingStatus updates finding_status unconditionally.
func (s *Store) SetFindingStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ingestions SET finding_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// SetIngestionFailed marks the ingestion failed and records the error detail.
func (s *Store) SetIngestionFailed(ctx context.Context, id, errDetail string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ingestions SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StatusFailed, nullString(errDetail), id)
	return err
}

// DeleteIngestion removes an ingestion and cascades to events, findings,
// and analyses.
func (s *Store) DeleteIngestion(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM log_events WHERE ingestion_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM findings WHERE ingestion_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM ai_analyses WHERE ingestion_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM ingestions WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) scanIngestion(row *sql.Row) (*Ingestion, error) {
	ing := &Ingestion{}
	var filename, errDetail sql.NullString
	err := row.Scan(&ing.ID, &ing.ProjectID, &ing.SourceType, &filename,
		&ing.Status, &ing.FindingStatus, &errDetail, &ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ing.Filename = filename.String
	ing.Error = errDetail.String
	return ing, nil
}
