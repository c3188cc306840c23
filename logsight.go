// Package logsight ingests free-form log dumps, parses them into a
// structured event stream, groups semantically equal events by a content
// fingerprint, and applies a rule catalogue to surface likely incidents.
//
// The Engine wires the pipeline together: raw text lands in the blob store,
// a background job parses it into events, and a second job derives findings
// from the event stream. Queries read directly from the event and finding
// stores.
package logsight

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/logsight/blob"
	"github.com/brunobiangulo/logsight/findings"
	"github.com/brunobiangulo/logsight/fingerprint"
	"github.com/brunobiangulo/logsight/insight"
	"github.com/brunobiangulo/logsight/llm"
	"github.com/brunobiangulo/logsight/logparse"
	"github.com/brunobiangulo/logsight/metrics"
	"github.com/brunobiangulo/logsight/queue"
	"github.com/brunobiangulo/logsight/store"
)

// Background job kinds.
const (
	JobProcessIngestion = "process_ingestion"
	JobAnalyzeFindings  = "analyze_findings"
)

// Engine is the main entry point for the log analysis pipeline.
type Engine interface {
	// CreateIngestion registers a new pending ingestion under a project.
	CreateIngestion(ctx context.Context, projectID, sourceType, filename string) (store.Ingestion, error)

	// SubmitText stores the raw payload for an ingestion and enqueues
	// processing. Re-submitting an ingestion that is already processing or
	// done is refused with ErrAlreadyProcessed.
	SubmitText(ctx context.Context, ingestionID, text string) error

	// ProcessIngestion parses the stored payload into events. Normally run
	// by a background worker; exposed for synchronous use in tools and
	// tests.
	ProcessIngestion(ctx context.Context, ingestionID string) error

	// AnalyzeFindings recomputes the ingestion's findings from its events,
	// replacing the previous set.
	AnalyzeFindings(ctx context.Context, ingestionID string) error

	// Overview assembles the ingestion dashboard: stats, top fingerprint
	// groups and the findings list.
	Overview(ctx context.Context, ingestionID string) (*Overview, error)

	// GenerateInsight produces and stores an LLM explanation for a
	// fingerprint group or a finding. The ingestion must be done.
	GenerateInsight(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error)

	// FindInsight returns a previously generated insight, or "" when none
	// exists for the scope.
	FindInsight(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error)

	// DeleteIngestion removes the ingestion, its events, findings,
	// analyses and stored payload.
	DeleteIngestion(ctx context.Context, ingestionID string) error

	// RunWorkers runs the background worker pool until ctx is cancelled.
	RunWorkers(ctx context.Context)

	// Store returns the underlying store for query access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Overview is the aggregate dashboard view of one ingestion.
type Overview struct {
	Ingestion *store.Ingestion         `json:"ingestion"`
	Stats     *store.IngestionStats    `json:"stats"`
	TopGroups []store.FingerprintGroup `json:"top_groups"`
	Findings  []store.Finding          `json:"findings"`
}

// overviewTopGroups is how many fingerprint groups the dashboard shows.
const overviewTopGroups = 10

// jobPayload is the body of both job kinds: the ingestion to work on.
type jobPayload struct {
	IngestionID string `json:"ingestion_id"`
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	blobs    *blob.Store
	notifier queue.Notifier
	worker   *queue.Worker
	analyzer *findings.Engine
	insights *insight.Engine
}

// New creates a logsight engine with the given configuration.
func New(cfg Config) (Engine, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	blobs, err := blob.NewStore(cfg.StorageDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	notifier, err := queue.NewNotifier(cfg.BrokerURL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	e := &engine{
		cfg:      cfg,
		store:    s,
		blobs:    blobs,
		notifier: notifier,
		analyzer: findings.New(s),
	}

	// Insights are optional: without a chat provider the pipeline still
	// runs, only GenerateInsight is unavailable.
	if cfg.Chat.Provider != "" && cfg.Chat.APIKey != "" {
		chat, err := llm.NewProvider(cfg.Chat)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		e.insights = insight.New(s, chat)
	}

	e.worker = queue.New(s, notifier, queue.Config{
		Workers:     cfg.Workers,
		MaxAttempts: cfg.JobMaxAttempts,
	})
	e.worker.Handle(JobProcessIngestion, e.handleProcessJob)
	e.worker.Handle(JobAnalyzeFindings, e.handleAnalyzeJob)

	return e, nil
}

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) RunWorkers(ctx context.Context) { e.worker.Run(ctx) }

func (e *engine) Close() error {
	if err := e.notifier.Close(); err != nil {
		slog.Warn("closing notifier", "error", err)
	}
	return e.store.Close()
}

// --- Submission ---

var validSourceTypes = map[string]bool{"paste": true, "upload": true, "bundle": true}

func (e *engine) CreateIngestion(ctx context.Context, projectID, sourceType, filename string) (store.Ingestion, error) {
	if !validSourceTypes[sourceType] {
		return store.Ingestion{}, fmt.Errorf("%w: unknown source_type %q", ErrValidation, sourceType)
	}
	return e.store.CreateIngestion(ctx, projectID, sourceType, filename)
}

func (e *engine) SubmitText(ctx context.Context, ingestionID, text string) error {
	ing, err := e.getIngestion(ctx, ingestionID)
	if err != nil {
		return err
	}
	if ing.Status == store.StatusProcessing || ing.Status == store.StatusDone {
		return fmt.Errorf("%w: ingestion %s is %s", ErrAlreadyProcessed, ingestionID, ing.Status)
	}

	if _, err := e.blobs.Put(ingestionID, text); err != nil {
		return fmt.Errorf("storing payload: %w", err)
	}
	if _, err := e.worker.Enqueue(ctx, JobProcessIngestion, jobPayload{IngestionID: ingestionID}); err != nil {
		return err
	}

	slog.Info("ingest: payload accepted",
		"ingestion_id", ingestionID,
		"bytes", len(text))
	return nil
}

// --- Pipeline jobs ---

func (e *engine) handleProcessJob(ctx context.Context, payload json.RawMessage) error {
	var p jobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	err := e.ProcessIngestion(ctx, p.IngestionID)
	// An ingestion another worker already took (or that finished on an
	// earlier attempt) is not a job failure.
	if errors.Is(err, ErrAlreadyProcessed) {
		slog.Warn("ingest: skipping, already processed", "ingestion_id", p.IngestionID)
		return nil
	}
	return err
}

func (e *engine) handleAnalyzeJob(ctx context.Context, payload json.RawMessage) error {
	var p jobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return e.AnalyzeFindings(ctx, p.IngestionID)
}

// ProcessIngestion drives status pending -> processing -> done, writing
// events in one transaction along the way. Any failure moves the ingestion
// to failed with the error recorded, and is returned so the job layer can
// retry; a retry restarts from the failed state.
func (e *engine) ProcessIngestion(ctx context.Context, ingestionID string) error {
	ok, err := e.store.TransitionIngestionStatus(ctx, ingestionID, store.StatusProcessing,
		store.StatusPending, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("claiming ingestion: %w", err)
	}
	if !ok {
		if _, err := e.getIngestion(ctx, ingestionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, ingestionID)
	}

	start := time.Now()
	text, err := e.blobs.Get(ingestionID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrBlobMissing, ingestionID)
		}
		return e.failIngestion(ctx, ingestionID, err)
	}

	records := logparse.Parse(text)
	events := make([]store.LogEvent, len(records))
	for i, rec := range records {
		ev := store.LogEvent{
			IngestionID:     ingestionID,
			Seq:             int64(i + 1),
			TS:              rec.TS,
			TSRaw:           rec.TSRaw,
			Service:         rec.Service,
			Level:           rec.Level,
			Message:         rec.Message,
			Raw:             rec.Raw,
			ParseKind:       rec.Kind,
			ParseConfidence: rec.Confidence,
			Fingerprint:     fingerprint.New(rec.Signature),
		}
		if rec.Attrs != nil {
			attrs, err := json.Marshal(rec.Attrs)
			if err != nil {
				return e.failIngestion(ctx, ingestionID, fmt.Errorf("encoding attrs: %w", err))
			}
			ev.Attrs = attrs
		}
		events[i] = ev
	}

	if err := e.store.InsertEvents(ctx, events); err != nil {
		return e.failIngestion(ctx, ingestionID, fmt.Errorf("inserting events: %w", err))
	}
	metrics.EventsIngested.Add(float64(len(events)))

	if _, err := e.store.TransitionIngestionStatus(ctx, ingestionID, store.StatusDone,
		store.StatusProcessing); err != nil {
		return e.failIngestion(ctx, ingestionID, fmt.Errorf("finishing ingestion: %w", err))
	}

	slog.Info("ingest: events written",
		"ingestion_id", ingestionID,
		"events", len(events),
		"elapsed", time.Since(start).Round(time.Millisecond))

	// Findings read the event stream, so analysis is enqueued only after
	// the done transition makes every event visible.
	if _, err := e.worker.Enqueue(ctx, JobAnalyzeFindings, jobPayload{IngestionID: ingestionID}); err != nil {
		slog.Error("ingest: enqueueing analysis", "ingestion_id", ingestionID, "error", err)
	}
	return nil
}

// failIngestion records a terminal failure and passes the cause through.
func (e *engine) failIngestion(ctx context.Context, ingestionID string, cause error) error {
	if err := e.store.SetIngestionFailed(ctx, ingestionID, cause.Error()); err != nil {
		slog.Error("ingest: recording failure", "ingestion_id", ingestionID, "error", err)
	}
	slog.Error("ingest: failed", "ingestion_id", ingestionID, "error", cause)
	return cause
}

// AnalyzeFindings drives finding_status through processing to done. Re-runs
// are allowed from any settled state and replace the previous findings
// atomically; a failed run leaves the prior findings untouched.
func (e *engine) AnalyzeFindings(ctx context.Context, ingestionID string) error {
	ok, err := e.store.TransitionFindingStatus(ctx, ingestionID, store.StatusProcessing,
		store.StatusPending, store.StatusDone, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("claiming analysis: %w", err)
	}
	if !ok {
		if _, err := e.getIngestion(ctx, ingestionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: analysis for %s already running", ErrAlreadyProcessed, ingestionID)
	}

	if _, err := e.analyzer.Analyze(ctx, ingestionID); err != nil {
		if serr := e.store.SetFindingStatus(ctx, ingestionID, store.StatusFailed); serr != nil {
			slog.Error("findings: recording failure", "ingestion_id", ingestionID, "error", serr)
		}
		return fmt.Errorf("analyzing findings: %w", err)
	}

	return e.store.SetFindingStatus(ctx, ingestionID, store.StatusDone)
}

// --- Queries ---

func (e *engine) Overview(ctx context.Context, ingestionID string) (*Overview, error) {
	ing, err := e.getIngestion(ctx, ingestionID)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.IngestionStats(ctx, ingestionID)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	groups, err := e.store.TopFingerprints(ctx, ingestionID, 0, overviewTopGroups)
	if err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}
	list, err := e.store.ListFindings(ctx, ingestionID)
	if err != nil {
		return nil, fmt.Errorf("loading findings: %w", err)
	}
	return &Overview{Ingestion: ing, Stats: stats, TopGroups: groups, Findings: list}, nil
}

// --- Insights ---

func (e *engine) GenerateInsight(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error) {
	if e.insights == nil {
		return "", ErrLLMUnavailable
	}
	ing, err := e.getIngestion(ctx, ingestionID)
	if err != nil {
		return "", err
	}
	if ing.Status != store.StatusDone {
		return "", fmt.Errorf("%w: status is %s", ErrNotReady, ing.Status)
	}
	if scopeType != store.ScopeGroup && scopeType != store.ScopeFinding {
		return "", fmt.Errorf("%w: unknown scope_type %q", ErrInvalidScope, scopeType)
	}

	result, err := e.insights.Generate(ctx, ingestionID, scopeType, scopeID)
	if errors.Is(err, insight.ErrScopeNotFound) {
		return "", fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	return result, err
}

func (e *engine) FindInsight(ctx context.Context, ingestionID, scopeType, scopeID string) (string, error) {
	a, err := e.store.FindAnalysis(ctx, ingestionID, scopeType, scopeID)
	if err != nil || a == nil {
		return "", err
	}
	return a.Result, nil
}

// --- Deletion ---

func (e *engine) DeleteIngestion(ctx context.Context, ingestionID string) error {
	if _, err := e.getIngestion(ctx, ingestionID); err != nil {
		return err
	}
	if err := e.store.DeleteIngestion(ctx, ingestionID); err != nil {
		return fmt.Errorf("deleting ingestion: %w", err)
	}
	if err := e.blobs.Delete(ingestionID); err != nil {
		// Rows are gone; an orphaned payload file is only wasted disk.
		slog.Warn("delete: removing payload", "ingestion_id", ingestionID, "error", err)
	}
	slog.Info("delete: ingestion removed", "ingestion_id", ingestionID)
	return nil
}

// getIngestion maps a missing row onto the package sentinel.
func (e *engine) getIngestion(ctx context.Context, ingestionID string) (*store.Ingestion, error) {
	ing, err := e.store.GetIngestion(ctx, ingestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrIngestionNotFound, ingestionID)
		}
		return nil, err
	}
	return ing, nil
}
