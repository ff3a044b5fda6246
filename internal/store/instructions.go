package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultInstructionsKey is the row used for fields with no list of their own.
const DefaultInstructionsKey = "default"

// GetInstructions returns the learned instructions for fieldKey, falling back
// to the default list. A field with neither has no instructions.
func (s *Store) GetInstructions(ctx context.Context, fieldKey string) ([]string, error) {
	list, ok, err := s.instructions(ctx, fieldKey)
	if err != nil || ok || fieldKey == DefaultInstructionsKey {
		return list, err
	}
	list, _, err = s.instructions(ctx, DefaultInstructionsKey)
	return list, err
}

func (s *Store) instructions(ctx context.Context, key string) ([]string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT instructions FROM refinement_instructions WHERE field_key = ?`), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get instructions %s: %w", key, err)
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, false, fmt.Errorf("decode instructions %s: %w", key, err)
	}
	return list, true, nil
}

// SaveInstructions replaces the learned list for fieldKey.
func (s *Store) SaveInstructions(ctx context.Context, fieldKey string, list []string) error {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal instructions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO refinement_instructions (field_key, instructions, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (field_key) DO UPDATE SET
			instructions = excluded.instructions,
			updated_at = excluded.updated_at`),
		fieldKey, string(raw), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save instructions %s: %w", fieldKey, err)
	}
	return nil
}
