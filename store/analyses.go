package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Analysis scope types.
const (
	ScopeGroup   = "group"
	ScopeFinding = "finding"
)

// Analysis represents a row in the ai_analyses table: one generated insight
// for a (ingestion, scope) pair.
type Analysis struct {
	ID          string `json:"id"`
	IngestionID string `json:"ingestion_id"`
	ScopeType   string `json:"scope_type"`
	ScopeID     string `json:"scope_id"`
	Result      string `json:"result"`
	CreatedAt   string `json:"created_at"`
}

// ReplaceAnalysis stores an insight for the scope, overwriting any previous
// one for the same (ingestion, scope_type, scope_id).
func (s *Store) ReplaceAnalysis(ctx context.Context, ingestionID, scopeType, scopeID, result string) (Analysis, error) {
	a := Analysis{
		ID:          uuid.NewString(),
		IngestionID: ingestionID,
		ScopeType:   scopeType,
		ScopeID:     scopeID,
		Result:      result,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_analyses (id, ingestion_id, scope_type, scope_id, result)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ingestion_id, scope_type, scope_id) DO UPDATE SET
			result = excluded.result,
			created_at = CURRENT_TIMESTAMP
		RETURNING id, created_at
	`, a.ID, a.IngestionID, a.ScopeType, a.ScopeID, a.Result).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// FindAnalysis retrieves the stored insight for a scope, or nil when none
// has been generated yet.
func (s *Store) FindAnalysis(ctx context.Context, ingestionID, scopeType, scopeID string) (*Analysis, error) {
	a := &Analysis{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ingestion_id, scope_type, scope_id, result, created_at
		FROM ai_analyses WHERE ingestion_id = ? AND scope_type = ? AND scope_id = ?
	`, ingestionID, scopeType, scopeID).Scan(&a.ID, &a.IngestionID, &a.ScopeType, &a.ScopeID, &a.Result, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
