package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetChaosConfig loads the per-endpoint chaos setting.
func (s *Store) GetChaosConfig(ctx context.Context, endpointID int64) (*ChaosConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT endpoint_id, chaos_level, active FROM chaos_configs WHERE endpoint_id = ?`, endpointID)
	var c ChaosConfig
	var active int
	if err := row.Scan(&c.EndpointID, &c.ChaosLevel, &active); err != nil {
		return nil, err
	}
	c.Active = active != 0
	return &c, nil
}

// SetChaosConfig sets the chaos level and active flag for one endpoint.
func (s *Store) SetChaosConfig(ctx context.Context, endpointID int64, chaosLevel int, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chaos_configs SET chaos_level = ?, active = ? WHERE endpoint_id = ?`,
		chaosLevel, activeInt, endpointID)
	if err != nil {
		return fmt.Errorf("store: set chaos config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: no chaos config row for endpoint %d: %w", endpointID, sql.ErrNoRows)
	}
	return nil
}

// SetGlobalChaosLevel applies chaosLevel to every known endpoint's chaos
// config in one statement, for the bulk "set global chaos" control op.
func (s *Store) SetGlobalChaosLevel(ctx context.Context, chaosLevel int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE chaos_configs SET chaos_level = ?, active = 1`, chaosLevel)
	if err != nil {
		return 0, fmt.Errorf("store: set global chaos level: %w", err)
	}
	return res.RowsAffected()
}
