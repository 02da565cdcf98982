package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetBehavior loads the learned Behavior for an endpoint.
func (s *Store) GetBehavior(ctx context.Context, endpointID int64) (*Behavior, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT endpoint_id, latency_mean, latency_std, error_rate, status_code_distribution, response_schema, request_schema
		 FROM behaviors WHERE endpoint_id = ?`, endpointID)

	var b Behavior
	var dist string
	var respSchema, reqSchema sql.NullString
	if err := row.Scan(&b.EndpointID, &b.LatencyMean, &b.LatencyStd, &b.ErrorRate, &dist, &respSchema, &reqSchema); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: no behavior row for endpoint %d: %w", endpointID, err)
		}
		return nil, err
	}

	b.StatusCodeDistribution = map[string]float64{}
	if dist != "" {
		if err := json.Unmarshal([]byte(dist), &b.StatusCodeDistribution); err != nil {
			return nil, fmt.Errorf("store: unmarshal status distribution: %w", err)
		}
	}
	if respSchema.Valid {
		b.ResponseSchema = json.RawMessage(respSchema.String)
	}
	if reqSchema.Valid {
		b.RequestSchema = json.RawMessage(reqSchema.String)
	}
	return &b, nil
}

// UpdateBehavior persists the full learned Behavior row. Called by the
// learning worker after folding one observation's EWMA updates in.
func (s *Store) UpdateBehavior(ctx context.Context, b Behavior) error {
	dist, err := json.Marshal(b.StatusCodeDistribution)
	if err != nil {
		return fmt.Errorf("store: marshal status distribution: %w", err)
	}

	var respSchema, reqSchema any
	if len(b.ResponseSchema) > 0 {
		respSchema = string(b.ResponseSchema)
	}
	if len(b.RequestSchema) > 0 {
		reqSchema = string(b.RequestSchema)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE behaviors SET latency_mean = ?, latency_std = ?, error_rate = ?, status_code_distribution = ?,
		 response_schema = COALESCE(?, response_schema), request_schema = COALESCE(?, request_schema)
		 WHERE endpoint_id = ?`,
		b.LatencyMean, b.LatencyStd, b.ErrorRate, string(dist), respSchema, reqSchema, b.EndpointID)
	if err != nil {
		return fmt.Errorf("store: update behavior: %w", err)
	}
	return nil
}
