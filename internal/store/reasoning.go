package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/patient"
)

// SaveReasoning stores result as JSON for patientID, replacing any earlier run.
func (s *Store) SaveReasoning(ctx context.Context, patientID string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO reasoning_results (patient_id, result, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (patient_id) DO UPDATE SET
			result = excluded.result,
			created_at = excluded.created_at`),
		patientID, string(raw), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save reasoning %s: %w", patientID, err)
	}
	return nil
}

// GetReasoning decodes the stored reasoning result of patientID into out.
func (s *Store) GetReasoning(ctx context.Context, patientID string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT result FROM reasoning_results WHERE patient_id = ?`), patientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reasoning for %s: %w", patientID, patient.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get reasoning %s: %w", patientID, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode reasoning %s: %w", patientID, err)
	}
	return nil
}
