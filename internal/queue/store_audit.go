package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendAudit records voice command outcomes for a job attempt.
func (s *Store) AppendAudit(ctx context.Context, entries ...AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO audit_entries (job_id, attempt, kind, trigger_text, trigger_start_ms, trigger_end_ms,
                scope_start_ms, scope_end_ms, outcome, note, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare audit insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx,
				e.JobID, e.Attempt, e.Kind, nullableString(e.TriggerText), e.TriggerStartMS, e.TriggerEndMS,
				e.ScopeStartMS, e.ScopeEndMS, e.Outcome, nullableString(e.Note), now,
			); err != nil {
				return fmt.Errorf("insert audit entry: %w", err)
			}
		}
		return nil
	})
}

// AuditEntries returns the audit log of a job in attempt and timeline order.
func (s *Store) AuditEntries(ctx context.Context, jobID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(orBackground(ctx),
		`SELECT `+auditColumns+` FROM audit_entries WHERE job_id = ? ORDER BY attempt, trigger_start_ms, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
