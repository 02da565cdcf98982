// Package store is the relational Store Adapter: CRUD over the Endpoint,
// Behavior, Chaos Config, and Drift Alert entity families, backed by an
// embedded SQLite file via the pure-Go modernc.org/sqlite driver. No CGO,
// no external database process required to run the platform locally.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS endpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	method TEXT NOT NULL,
	path_pattern TEXT NOT NULL,
	target_url TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(method, path_pattern)
);

CREATE TABLE IF NOT EXISTS behaviors (
	endpoint_id INTEGER PRIMARY KEY REFERENCES endpoints(id),
	latency_mean REAL NOT NULL DEFAULT 400,
	latency_std REAL NOT NULL DEFAULT 0,
	error_rate REAL NOT NULL DEFAULT 0,
	status_code_distribution TEXT NOT NULL DEFAULT '{}',
	response_schema TEXT,
	request_schema TEXT
);

CREATE TABLE IF NOT EXISTS chaos_configs (
	endpoint_id INTEGER PRIMARY KEY REFERENCES endpoints(id),
	chaos_level INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS drift_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint_id INTEGER NOT NULL REFERENCES endpoints(id),
	drift_score REAL NOT NULL,
	drift_summary TEXT NOT NULL,
	drift_details TEXT NOT NULL,
	detected_at DATETIME NOT NULL,
	is_resolved INTEGER NOT NULL DEFAULT 0,
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_drift_alerts_endpoint_unresolved
	ON drift_alerts(endpoint_id, is_resolved);
`

// Endpoint is a learned (method, path_pattern) pair.
type Endpoint struct {
	ID          int64
	Method      string
	PathPattern string
	TargetURL   string
	CreatedAt   time.Time
}

// Behavior is the learned statistical + structural model of one Endpoint.
type Behavior struct {
	EndpointID             int64
	LatencyMean            float64
	LatencyStd             float64
	ErrorRate              float64
	StatusCodeDistribution map[string]float64
	ResponseSchema         json.RawMessage
	RequestSchema          json.RawMessage
}

// ChaosConfig is the per-endpoint deliberate-degradation setting.
type ChaosConfig struct {
	EndpointID int64
	ChaosLevel int
	Active     bool
}

// DriftAlert is one contract-drift detection; an open alert is refreshed in
// place by UpsertDriftAlert and closed by ResolveDriftAlert.
type DriftAlert struct {
	ID           int64
	EndpointID   int64
	DriftScore   float64
	DriftSummary string
	DriftDetails json.RawMessage
	DetectedAt   time.Time
	IsResolved   bool
	ResolvedAt   *time.Time
}

// Store wraps the SQLite connection. All methods are safe for concurrent
// use -- the pool is capped at one connection, so database/sql serializes
// every statement over it.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and migrates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // avoid SQLITE_BUSY: single writer, serialized access

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the SQLite connection is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreateEndpoint finds the Endpoint for (method, pathPattern), creating
// it (with a default Behavior and Chaos Config) if this is the first time
// this pattern has been observed. A unique-constraint race is retried once:
// the loser's insert fails, and the retry's SELECT returns the winner's row.
func (s *Store) GetOrCreateEndpoint(ctx context.Context, method, pathPattern, targetURL string) (*Endpoint, error) {
	ep, err := s.findEndpoint(ctx, method, pathPattern)
	if err == nil {
		return ep, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	ep, insertErr := s.insertEndpoint(ctx, method, pathPattern, targetURL)
	if insertErr == nil {
		return ep, nil
	}

	// Someone else won the race -- re-read.
	ep, err = s.findEndpoint(ctx, method, pathPattern)
	if err != nil {
		return nil, fmt.Errorf("store: get-or-create retry: %w", err)
	}
	return ep, nil
}

func (s *Store) findEndpoint(ctx context.Context, method, pathPattern string) (*Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, method, path_pattern, target_url, created_at FROM endpoints WHERE method = ? AND path_pattern = ?`,
		method, pathPattern)
	var ep Endpoint
	if err := row.Scan(&ep.ID, &ep.Method, &ep.PathPattern, &ep.TargetURL, &ep.CreatedAt); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (s *Store) insertEndpoint(ctx context.Context, method, pathPattern, targetURL string) (*Endpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := timeNow()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO endpoints (method, path_pattern, target_url, created_at) VALUES (?, ?, ?, ?)`,
		method, pathPattern, targetURL, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO behaviors (endpoint_id) VALUES (?)`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chaos_configs (endpoint_id) VALUES (?)`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit endpoint insert: %w", err)
	}

	return &Endpoint{ID: id, Method: method, PathPattern: pathPattern, TargetURL: targetURL, CreatedAt: now}, nil
}

// ListEndpoints returns every known Endpoint, oldest first.
func (s *Store) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method, path_pattern, target_url, created_at FROM endpoints ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.ID, &ep.Method, &ep.PathPattern, &ep.TargetURL, &ep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// GetEndpoint fetches one Endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, id int64) (*Endpoint, error) {
	var ep Endpoint
	row := s.db.QueryRowContext(ctx,
		`SELECT id, method, path_pattern, target_url, created_at FROM endpoints WHERE id = ?`, id)
	if err := row.Scan(&ep.ID, &ep.Method, &ep.PathPattern, &ep.TargetURL, &ep.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: get endpoint %d: %w", id, err)
	}
	return &ep, nil
}

// timeNow is a seam so tests could substitute a clock if ever needed; it
// is never stubbed today, but keeps time.Now() out of SQL call sites.
func timeNow() time.Time { return time.Now().UTC() }
