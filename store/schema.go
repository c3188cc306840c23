package store

// schemaSQL is the DDL for all tables. Timestamps that participate in
// ordering or range filters (log_events.ts, jobs.run_at) are always written
// by the driver in UTC so text comparison matches time order.
const schemaSQL = `
-- Accounts and tenancy
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS organizations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS org_members (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role TEXT NOT NULL DEFAULT 'member',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(org_id, user_id)
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(org_id, name)
);

-- One ingestion per submitted log blob
CREATE TABLE IF NOT EXISTS ingestions (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    source_type TEXT NOT NULL,
    filename TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    finding_status TEXT NOT NULL DEFAULT 'pending',
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Parsed log events, one row per record, seq assigned 1-based per ingestion
CREATE TABLE IF NOT EXISTS log_events (
    id TEXT PRIMARY KEY,
    ingestion_id TEXT NOT NULL REFERENCES ingestions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    ts DATETIME,
    ts_raw TEXT,
    service TEXT,
    level TEXT,
    message TEXT NOT NULL,
    raw TEXT NOT NULL,
    attrs JSON,
    parse_kind TEXT,
    parse_confidence REAL,
    fingerprint TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(ingestion_id, seq)
);

-- Rule engine output, replaced wholesale on each analysis run
CREATE TABLE IF NOT EXISTS findings (
    id TEXT PRIMARY KEY,
    ingestion_id TEXT NOT NULL REFERENCES ingestions(id) ON DELETE CASCADE,
    position INTEGER NOT NULL DEFAULT 0,
    rule_id TEXT NOT NULL,
    title TEXT NOT NULL,
    severity TEXT NOT NULL,
    confidence REAL NOT NULL,
    total_occurrences INTEGER NOT NULL DEFAULT 0,
    matched_fingerprints JSON,
    evidence_event_ids JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- LLM insight output keyed by scope, replace-on-regenerate
CREATE TABLE IF NOT EXISTS ai_analyses (
    id TEXT PRIMARY KEY,
    ingestion_id TEXT NOT NULL REFERENCES ingestions(id) ON DELETE CASCADE,
    scope_type TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    result TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(ingestion_id, scope_type, scope_id)
);

-- Durable background job queue
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    payload JSON NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    attempts INTEGER NOT NULL DEFAULT 0,
    run_at DATETIME NOT NULL,
    last_error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_org_members_user ON org_members(user_id);
CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(org_id);
CREATE INDEX IF NOT EXISTS idx_ingestions_project ON ingestions(project_id);
CREATE INDEX IF NOT EXISTS idx_log_events_ingestion_seq ON log_events(ingestion_id, seq);
CREATE INDEX IF NOT EXISTS idx_log_events_ingestion_ts ON log_events(ingestion_id, ts);
CREATE INDEX IF NOT EXISTS idx_log_events_ingestion_fp ON log_events(ingestion_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_findings_ingestion ON findings(ingestion_id);
CREATE INDEX IF NOT EXISTS idx_ai_analyses_ingestion ON ai_analyses(ingestion_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_run ON jobs(status, run_at);
`
