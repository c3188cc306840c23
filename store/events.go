package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ServiceUnknown is the filter value that matches events with no service.
const ServiceUnknown = "unknown"

// LogEvent represents a row in the log_events table: one parsed log record.
type LogEvent struct {
	ID              string          `json:"id"`
	IngestionID     string          `json:"ingestion_id"`
	Seq             int64           `json:"seq"`
	TS              *time.Time      `json:"ts"`
	TSRaw           string          `json:"ts_raw,omitempty"`
	Service         string          `json:"service,omitempty"`
	Level           string          `json:"level,omitempty"`
	Message         string          `json:"message"`
	Raw             string          `json:"raw"`
	Attrs           json.RawMessage `json:"attrs,omitempty"`
	ParseKind       string          `json:"parse_kind,omitempty"`
	ParseConfidence float64         `json:"parse_confidence"`
	Fingerprint     string          `json:"fingerprint"`
	CreatedAt       string          `json:"created_at,omitempty"`
}

// EventFilter narrows ListEvents output. Zero values mean no filter.
type EventFilter struct {
	Cursor      int64 // return rows with seq strictly greater
	Limit       int
	Levels      []string // upper-cased level names
	Service     string   // ServiceUnknown matches events with no service
	Fingerprint string
	TSFrom      *time.Time
	TSTo        *time.Time
	Query       string // substring match over message
}

const eventColumns = "id, ingestion_id, seq, ts, ts_raw, service, level, message, raw, attrs, parse_kind, parse_confidence, fingerprint, created_at"

// InsertEvents inserts a batch of events in one transaction, assigning IDs
// to rows that lack one. An error rolls back the whole batch.
func (s *Store) InsertEvents(ctx context.Context, events []LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO log_events (id, ingestion_id, seq, ts, ts_raw, service, level,
				message, raw, attrs, parse_kind, parse_confidence, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range events {
			ev := &events[i]
			if ev.ID == "" {
				ev.ID = uuid.NewString()
			}
			var attrs interface{}
			if len(ev.Attrs) > 0 {
				attrs = string(ev.Attrs)
			}
			if _, err := stmt.ExecContext(ctx,
				ev.ID, ev.IngestionID, ev.Seq, nullTime(ev.TS), nullString(ev.TSRaw),
				nullString(ev.Service), nullString(ev.Level), ev.Message, ev.Raw,
				attrs, nullString(ev.ParseKind), ev.ParseConfidence, ev.Fingerprint); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEvents returns events for an ingestion ordered by seq ascending,
// starting strictly after the cursor, narrowed by the filter.
func (s *Store) ListEvents(ctx context.Context, ingestionID string, f EventFilter) ([]LogEvent, error) {
	query := "SELECT " + eventColumns + " FROM log_events WHERE ingestion_id = ? AND seq > ?"
	args := []interface{}{ingestionID, f.Cursor}

	if len(f.Levels) > 0 {
		query += " AND level IN (?" + repeatPlaceholders(len(f.Levels)-1) + ")"
		for _, l := range f.Levels {
			args = append(args, l)
		}
	}
	switch {
	case f.Service == ServiceUnknown:
		query += " AND (service IS NULL OR service = '')"
	case f.Service != "":
		query += " AND service = ?"
		args = append(args, f.Service)
	}
	if f.Fingerprint != "" {
		query += " AND fingerprint = ?"
		args = append(args, f.Fingerprint)
	}
	if f.TSFrom != nil {
		query += " AND ts >= ?"
		args = append(args, f.TSFrom.UTC())
	}
	if f.TSTo != nil {
		query += " AND ts <= ?"
		args = append(args, f.TSTo.UTC())
	}
	if f.Query != "" {
		query += " AND message LIKE ?"
		args = append(args, "%"+f.Query+"%")
	}
	query += " ORDER BY seq ASC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// RecentEventsByLevel returns the newest events (seq descending) whose
// level is in the given set.
func (s *Store) RecentEventsByLevel(ctx context.Context, ingestionID string, levels []string, limit int) ([]LogEvent, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	query := "SELECT " + eventColumns + " FROM log_events WHERE ingestion_id = ? AND level IN (?" +
		repeatPlaceholders(len(levels)-1) + ") ORDER BY seq DESC LIMIT ?"

	args := make([]interface{}, 0, len(levels)+2)
	args = append(args, ingestionID)
	for _, l := range levels {
		args = append(args, l)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsByIDs returns the named events ordered by seq ascending. Used to
// expand evidence id lists back into rows.
func (s *Store) EventsByIDs(ctx context.Context, ingestionID string, ids []string) ([]LogEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + eventColumns + " FROM log_events WHERE ingestion_id = ? AND id IN (?" +
		repeatPlaceholders(len(ids)-1) + ") ORDER BY seq ASC"

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, ingestionID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// --- Aggregates ---

// IngestionStats holds the overview aggregates for one ingestion.
type IngestionStats struct {
	TotalEvents       int64            `json:"total_events"`
	TotalEventsWithTS int64            `json:"total_events_with_ts"`
	MinTS             *time.Time       `json:"min_ts"`
	MaxTS             *time.Time       `json:"max_ts"`
	LevelCounts       map[string]int64 `json:"levels"`
	ServiceCounts     map[string]int64 `json:"services_top"`
}

// IngestionStats computes event totals, the timestamp range, the level
// histogram (missing levels bucketed as UNKNOWN), and the top-10 service
// histogram (missing services bucketed as unknown).
func (s *Store) IngestionStats(ctx context.Context, ingestionID string) (*IngestionStats, error) {
	st := &IngestionStats{
		LevelCounts:   map[string]int64{},
		ServiceCounts: map[string]int64{},
	}

	var minTS, maxTS sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(ts), MIN(ts), MAX(ts) FROM log_events WHERE ingestion_id = ?
	`, ingestionID).Scan(&st.TotalEvents, &st.TotalEventsWithTS, &minTS, &maxTS)
	if err != nil {
		return nil, err
	}
	if minTS.Valid {
		st.MinTS = parseDBTime(minTS.String)
	}
	if maxTS.Valid {
		st.MaxTS = parseDBTime(maxTS.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(level, 'UNKNOWN'), COUNT(*) FROM log_events
		WHERE ingestion_id = ? GROUP BY level
	`, ingestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		st.LevelCounts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(service, 'unknown'), COUNT(*) FROM log_events
		WHERE ingestion_id = ? GROUP BY service ORDER BY COUNT(*) DESC LIMIT 10
	`, ingestionID)
	if err != nil {
		return nil, err
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var service string
		var count int64
		if err := svcRows.Scan(&service, &count); err != nil {
			return nil, err
		}
		st.ServiceCounts[service] = count
	}
	return st, svcRows.Err()
}

// FingerprintGroup is one fingerprint bucket with its size and latest event.
type FingerprintGroup struct {
	Fingerprint string    `json:"fingerprint"`
	Count       int64     `json:"count"`
	Latest      *LogEvent `json:"latest"`
}

// TopFingerprints returns fingerprint groups ordered by event count
// descending (ties broken by fingerprint ascending), each with its
// latest-by-seq event. Window functions give both in a single scan.
func (s *Store) TopFingerprints(ctx context.Context, ingestionID string, offset, limit int) ([]FingerprintGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cnt, `+eventColumns+`
		FROM (
			SELECT `+eventColumns+`,
				COUNT(*) OVER (PARTITION BY fingerprint) AS cnt,
				ROW_NUMBER() OVER (PARTITION BY fingerprint ORDER BY seq DESC) AS rn
			FROM log_events
			WHERE ingestion_id = ?
		)
		WHERE rn = 1
		ORDER BY cnt DESC, fingerprint ASC
		LIMIT ? OFFSET ?
	`, ingestionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []FingerprintGroup
	for rows.Next() {
		var g FingerprintGroup
		var ev LogEvent
		var ts sql.NullTime
		var tsRaw, service, level, attrs, parseKind sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&g.Count, &ev.ID, &ev.IngestionID, &ev.Seq, &ts, &tsRaw,
			&service, &level, &ev.Message, &ev.Raw, &attrs, &parseKind, &conf,
			&ev.Fingerprint, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.TS = timePtr(ts)
		ev.TSRaw = tsRaw.String
		ev.Service = service.String
		ev.Level = level.String
		ev.ParseKind = parseKind.String
		ev.ParseConfidence = conf.Float64
		if attrs.Valid {
			ev.Attrs = json.RawMessage(attrs.String)
		}
		g.Fingerprint = ev.Fingerprint
		g.Latest = &ev
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupOverview holds the per-fingerprint aggregate view.
type GroupOverview struct {
	Fingerprint   string           `json:"fingerprint"`
	Count         int64            `json:"count"`
	FirstSeen     *time.Time       `json:"first_seen"`
	LastSeen      *time.Time       `json:"last_seen"`
	LevelCounts   map[string]int64 `json:"levels"`
	ServiceCounts map[string]int64 `json:"services"`
	Sample        *LogEvent        `json:"sample"`
	Latest        *LogEvent        `json:"latest"`
}

// GroupOverview aggregates one fingerprint group. Returns (nil, nil) when
// the ingestion has no events with that fingerprint.
//
// Sample is an earliest-vs-latest compromise row ordered by
// (ts DESC NULLS LAST, seq ASC); Latest orders by (ts DESC NULLS LAST,
// seq DESC).
func (s *Store) GroupOverview(ctx context.Context, ingestionID, fingerprint string) (*GroupOverview, error) {
	g := &GroupOverview{
		Fingerprint:   fingerprint,
		LevelCounts:   map[string]int64{},
		ServiceCounts: map[string]int64{},
	}

	var minTS, maxTS sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(ts), MAX(ts) FROM log_events
		WHERE ingestion_id = ? AND fingerprint = ?
	`, ingestionID, fingerprint).Scan(&g.Count, &minTS, &maxTS)
	if err != nil {
		return nil, err
	}
	if g.Count == 0 {
		return nil, nil
	}
	if minTS.Valid {
		g.FirstSeen = parseDBTime(minTS.String)
	}
	if maxTS.Valid {
		g.LastSeen = parseDBTime(maxTS.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(level, 'UNKNOWN'), COUNT(*) FROM log_events
		WHERE ingestion_id = ? AND fingerprint = ? GROUP BY level
	`, ingestionID, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		g.LevelCounts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(service, 'unknown'), COUNT(*) FROM log_events
		WHERE ingestion_id = ? AND fingerprint = ? GROUP BY service
	`, ingestionID, fingerprint)
	if err != nil {
		return nil, err
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var service string
		var count int64
		if err := svcRows.Scan(&service, &count); err != nil {
			return nil, err
		}
		g.ServiceCounts[service] = count
	}
	if err := svcRows.Err(); err != nil {
		return nil, err
	}

	if g.Sample, err = s.groupPick(ctx, ingestionID, fingerprint, "seq ASC"); err != nil {
		return nil, err
	}
	if g.Latest, err = s.groupPick(ctx, ingestionID, fingerprint, "seq DESC"); err != nil {
		return nil, err
	}
	return g, nil
}

// groupPick fetches a single representative event. seqOrder is a trusted
// internal fragment, never caller input.
func (s *Store) groupPick(ctx context.Context, ingestionID, fingerprint, seqOrder string) (*LogEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM log_events
		WHERE ingestion_id = ? AND fingerprint = ?
		ORDER BY ts DESC NULLS LAST, `+seqOrder+`
		LIMIT 1
	`, ingestionID, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// EvidenceEventIDs picks representative event ids for a fingerprint group:
// the first head rows and last tail rows by seq, deduplicated, head first.
func (s *Store) EvidenceEventIDs(ctx context.Context, ingestionID, fingerprint string, head, tail int) ([]string, error) {
	headIDs, err := s.groupEventIDs(ctx, ingestionID, fingerprint, "ASC", head)
	if err != nil {
		return nil, err
	}
	tailIDs, err := s.groupEventIDs(ctx, ingestionID, fingerprint, "DESC", tail)
	if err != nil {
		return nil, err
	}
	// Tail came back newest-first; flip to seq order.
	for i, j := 0, len(tailIDs)-1; i < j; i, j = i+1, j-1 {
		tailIDs[i], tailIDs[j] = tailIDs[j], tailIDs[i]
	}

	seen := make(map[string]bool, len(headIDs)+len(tailIDs))
	ids := make([]string, 0, len(headIDs)+len(tailIDs))
	for _, id := range append(headIDs, tailIDs...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) groupEventIDs(ctx context.Context, ingestionID, fingerprint, order string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM log_events WHERE ingestion_id = ? AND fingerprint = ?
		ORDER BY seq `+order+` LIMIT ?
	`, ingestionID, fingerprint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- scan helpers ---

func collectEvents(rows *sql.Rows) ([]LogEvent, error) {
	var events []LogEvent
	for rows.Next() {
		var ev LogEvent
		var ts sql.NullTime
		var tsRaw, service, level, attrs, parseKind sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&ev.ID, &ev.IngestionID, &ev.Seq, &ts, &tsRaw, &service,
			&level, &ev.Message, &ev.Raw, &attrs, &parseKind, &conf,
			&ev.Fingerprint, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.TS = timePtr(ts)
		ev.TSRaw = tsRaw.String
		ev.Service = service.String
		ev.Level = level.String
		ev.ParseKind = parseKind.String
		ev.ParseConfidence = conf.Float64
		if attrs.Valid {
			ev.Attrs = json.RawMessage(attrs.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
