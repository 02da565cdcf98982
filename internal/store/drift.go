package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertDriftAlert records a contract-drift detection. At most one
// unresolved alert is kept per endpoint: if one is already open, it is
// refreshed in place (score, summary, details, detected_at) rather than
// creating a second concurrent alert for the same endpoint.
func (s *Store) UpsertDriftAlert(ctx context.Context, endpointID int64, score float64, summary string, details []byte) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM drift_alerts WHERE endpoint_id = ? AND is_resolved = 0`, endpointID)
	var existingID int64
	err := row.Scan(&existingID)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE drift_alerts SET drift_score = ?, drift_summary = ?, drift_details = ?, detected_at = ? WHERE id = ?`,
			score, summary, string(details), timeNow(), existingID)
		if err != nil {
			return fmt.Errorf("store: refresh drift alert: %w", err)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO drift_alerts (endpoint_id, drift_score, drift_summary, drift_details, detected_at, is_resolved)
			 VALUES (?, ?, ?, ?, ?, 0)`,
			endpointID, score, summary, string(details), timeNow())
		if err != nil {
			return fmt.Errorf("store: insert drift alert: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("store: check existing drift alert: %w", err)
	}
}

// HasUnresolvedDrift reports whether endpointID currently has an open drift
// alert. Cheap enough to call on the request hot path: the unresolved index
// makes this a single-row index lookup.
func (s *Store) HasUnresolvedDrift(ctx context.Context, endpointID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM drift_alerts WHERE endpoint_id = ? AND is_resolved = 0 LIMIT 1`, endpointID)
	var one int
	err := row.Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("store: check unresolved drift: %w", err)
	}
}

// ListDriftAlerts returns drift alerts, optionally filtered to unresolved
// ones only.
func (s *Store) ListDriftAlerts(ctx context.Context, unresolvedOnly bool) ([]DriftAlert, error) {
	query := `SELECT id, endpoint_id, drift_score, drift_summary, drift_details, detected_at, is_resolved, resolved_at FROM drift_alerts`
	if unresolvedOnly {
		query += ` WHERE is_resolved = 0`
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list drift alerts: %w", err)
	}
	defer rows.Close()

	var out []DriftAlert
	for rows.Next() {
		var a DriftAlert
		var details string
		var isResolved int
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.EndpointID, &a.DriftScore, &a.DriftSummary, &details, &a.DetectedAt, &isResolved, &resolvedAt); err != nil {
			return nil, err
		}
		a.DriftDetails = []byte(details)
		a.IsResolved = isResolved != 0
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveDriftAlert marks a drift alert resolved.
func (s *Store) ResolveDriftAlert(ctx context.Context, alertID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drift_alerts SET is_resolved = 1, resolved_at = ? WHERE id = ?`, timeNow(), alertID)
	if err != nil {
		return fmt.Errorf("store: resolve drift alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: no drift alert %d: %w", alertID, sql.ErrNoRows)
	}
	return nil
}
