package queue

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(orBackground(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// diagnoseTimeout bounds Diagnose so a wedged database cannot stall preflight.
const diagnoseTimeout = 5 * time.Second

// Diagnose inspects the open database: schema version, expected tables,
// integrity, and job counts. A non-nil error means the database could not be
// queried at all; a readable but damaged database is reported through
// Diagnosis.Healthy.
func (s *Store) Diagnose(ctx context.Context) (Diagnosis, error) {
	ctx, cancel := context.WithTimeout(orBackground(ctx), diagnoseTimeout)
	defer cancel()

	diag := Diagnosis{Path: s.path}
	version, err := s.userVersion(ctx)
	if err != nil {
		return diag, err
	}
	diag.SchemaVersion = version

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return diag, fmt.Errorf("list tables: %w", err)
	}
	var present []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return diag, fmt.Errorf("scan table name: %w", err)
		}
		present = append(present, name)
	}
	rows.Close()
	for _, table := range schemaTables {
		if !slices.Contains(present, table) {
			diag.MissingTables = append(diag.MissingTables, table)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return diag, fmt.Errorf("integrity check: %w", err)
	}
	diag.Integrity = strings.ToLower(strings.TrimSpace(integrity))

	if len(diag.MissingTables) == 0 {
		if diag.Jobs, err = s.Stats(ctx); err != nil {
			return diag, err
		}
	}
	return diag, nil
}
