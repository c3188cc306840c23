package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// FingerprintCount pairs a fingerprint with its event count inside one
// finding summary.
type FingerprintCount struct {
	Fingerprint string `json:"fingerprint"`
	Count       int64  `json:"count"`
}

// Finding represents a row in the findings table.
type Finding struct {
	ID                  string             `json:"id"`
	IngestionID         string             `json:"ingestion_id"`
	RuleID              string             `json:"rule_id"`
	Title               string             `json:"title"`
	Severity            string             `json:"severity"`
	Confidence          float64            `json:"confidence"`
	TotalOccurrences    int64              `json:"total_occurrences"`
	MatchedFingerprints []FingerprintCount `json:"matched_fingerprints"`
	EvidenceEventIDs    []string           `json:"evidence_event_ids"`
	CreatedAt           string             `json:"created_at,omitempty"`
}

// ReplaceFindings atomically swaps the ingestion's findings for the given
// list. The slice order is preserved on read via the position column, so
// the analysis engine's severity/volume sort survives storage.
func (s *Store) ReplaceFindings(ctx context.Context, ingestionID string, findings []Finding) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM findings WHERE ingestion_id = ?", ingestionID); err != nil {
			return err
		}

		if len(findings) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (id, ingestion_id, position, rule_id, title, severity,
				confidence, total_occurrences, matched_fingerprints, evidence_event_ids)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, f := range findings {
			fps, err := json.Marshal(f.MatchedFingerprints)
			if err != nil {
				return err
			}
			evidence, err := json.Marshal(f.EvidenceEventIDs)
			if err != nil {
				return err
			}
			id := f.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx,
				id, ingestionID, i, f.RuleID, f.Title, f.Severity,
				f.Confidence, f.TotalOccurrences, string(fps), string(evidence)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFindings returns the ingestion's findings in stored order.
func (s *Store) ListFindings(ctx context.Context, ingestionID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingestion_id, rule_id, title, severity, confidence,
			total_occurrences, matched_fingerprints, evidence_event_ids, created_at
		FROM findings WHERE ingestion_id = ? ORDER BY position
	`, ingestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// GetFinding retrieves one finding, scoped to its ingestion.
func (s *Store) GetFinding(ctx context.Context, ingestionID, findingID string) (*Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingestion_id, rule_id, title, severity, confidence,
			total_occurrences, matched_fingerprints, evidence_event_ids, created_at
		FROM findings WHERE ingestion_id = ? AND id = ?
	`, ingestionID, findingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	f, err := scanFinding(rows)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFinding(rows *sql.Rows) (Finding, error) {
	var f Finding
	var fps, evidence sql.NullString
	if err := rows.Scan(&f.ID, &f.IngestionID, &f.RuleID, &f.Title, &f.Severity,
		&f.Confidence, &f.TotalOccurrences, &fps, &evidence, &f.CreatedAt); err != nil {
		return Finding{}, err
	}
	if fps.Valid {
		if err := json.Unmarshal([]byte(fps.String), &f.MatchedFingerprints); err != nil {
			return Finding{}, err
		}
	}
	if evidence.Valid {
		if err := json.Unmarshal([]byte(evidence.String), &f.EvidenceEventIDs); err != nil {
			return Finding{}, err
		}
	}
	return f, nil
}
