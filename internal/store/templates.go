package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/template"
)

const templateColumns = `template_key, template_name, fields, deleted, created_at`

// GetTemplate returns the non-deleted template with key.
func (s *Store) GetTemplate(ctx context.Context, key string) (*template.Template, error) {
	return s.getTemplate(ctx, s.db, key)
}

func (s *Store) getTemplate(ctx context.Context, q queryer, key string) (*template.Template, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+templateColumns+` FROM templates WHERE template_key = ? AND deleted = 0`), key)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", key, template.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", key, err)
	}
	return t, nil
}

// LatestTemplate returns the live template for key. When key names a retired
// version, the newest live version of the same base key is returned instead.
func (s *Store) LatestTemplate(ctx context.Context, key string) (*template.Template, error) {
	return s.latestTemplate(ctx, s.db, key)
}

func (s *Store) latestTemplate(ctx context.Context, q queryer, key string) (*template.Template, error) {
	t, err := s.getTemplate(ctx, q, key)
	if !errors.Is(err, template.ErrNotFound) {
		return t, err
	}

	base, _ := template.BaseKey(key)
	pattern := likeEscaper.Replace(base) + `\_%`
	rows, err := q.QueryContext(ctx, s.rebind(`SELECT `+templateColumns+` FROM templates WHERE deleted = 0 AND template_key LIKE ? ESCAPE '\'`), pattern)
	if err != nil {
		return nil, fmt.Errorf("find versions of %s: %w", key, err)
	}
	defer rows.Close()

	var latest *template.Template
	latestN := -1
	for rows.Next() {
		v, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		b, n := template.BaseKey(v.Key)
		if b == base && n > latestN {
			latest, latestN = v, n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find versions of %s: %w", key, err)
	}
	if latest == nil {
		return nil, fmt.Errorf("template %s: %w", key, template.ErrNotFound)
	}
	return latest, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetFields returns the ordered fields of the template with key.
func (s *Store) GetFields(ctx context.Context, key string) ([]template.Field, error) {
	t, err := s.GetTemplate(ctx, key)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

// SaveTemplate inserts t or overwrites the row with the same key.
func (s *Store) SaveTemplate(ctx context.Context, t *template.Template) error {
	return s.saveTemplate(ctx, s.db, t)
}

func (s *Store) saveTemplate(ctx context.Context, q queryer, t *template.Template) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	created := s.stamp()
	if !t.CreatedAt.IsZero() {
		created = formatTime(t.CreatedAt)
	}

	_, err = q.ExecContext(ctx, s.rebind(`
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (template_key) DO UPDATE SET
			template_name = excluded.template_name,
			fields = excluded.fields,
			deleted = excluded.deleted`),
		t.Key, t.Name, string(fields), boolInt(t.Deleted), created,
	)
	if err != nil {
		return fmt.Errorf("save template %s: %w", t.Key, err)
	}
	return nil
}

// UpdateTemplate stores t as a new version of the live template for t.Key
// when its content differs and soft-deletes the version it replaces. A
// retired t.Key resolves to the newest live version of its base key. It
// returns the key now holding the content: the live key when nothing
// changed, t.Key when the key was never used.
func (s *Store) UpdateTemplate(ctx context.Context, t *template.Template) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := s.latestTemplate(ctx, tx, t.Key)
	if errors.Is(err, template.ErrNotFound) {
		used, err := s.templateExists(ctx, tx, t.Key)
		if err != nil {
			return "", err
		}
		if used {
			// retired with no live successor; history rows are never rewritten
			return "", fmt.Errorf("template %s has no live version: %w", t.Key, template.ErrNotFound)
		}
		fresh := *t
		fresh.Deleted = false
		if err := s.saveTemplate(ctx, tx, &fresh); err != nil {
			return "", err
		}
		return t.Key, tx.Commit()
	}
	if err != nil {
		return "", err
	}
	if template.ContentEqual(current, t) {
		return current.Key, nil
	}

	next, err := template.NextVersionKey(ctx, current.Key, func(ctx context.Context, key string) (bool, error) {
		return s.templateExists(ctx, tx, key)
	})
	if err != nil {
		return "", err
	}

	version := *t
	version.Key = next
	version.Deleted = false
	version.CreatedAt = s.now()
	if err := s.saveTemplate(ctx, tx, &version); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE templates SET deleted = 1 WHERE template_key = ?`), current.Key); err != nil {
		return "", fmt.Errorf("retire template %s: %w", current.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit template version: %w", err)
	}
	return next, nil
}

// TemplateExists reports whether key is in use. Soft-deleted versions keep
// their key reserved.
func (s *Store) TemplateExists(ctx context.Context, key string) (bool, error) {
	return s.templateExists(ctx, s.db, key)
}

func (s *Store) templateExists(ctx context.Context, q queryer, key string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM templates WHERE template_key = ?`), key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check template %s: %w", key, err)
	}
	return n > 0, nil
}

// ListTemplates returns every non-deleted template ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE deleted = 0 ORDER BY template_name, template_key`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SoftDeleteTemplate marks the template with key deleted.
func (s *Store) SoftDeleteTemplate(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE templates SET deleted = 1 WHERE template_key = ? AND deleted = 0`), key)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", key, template.ErrNotFound)
	}
	return nil
}

// ResetTemplates soft-deletes every template and restores defaults as the
// only live ones.
func (s *Store) ResetTemplates(ctx context.Context, defaults []template.Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE templates SET deleted = 1`); err != nil {
		return fmt.Errorf("retire templates: %w", err)
	}
	for i := range defaults {
		t := defaults[i]
		t.Deleted = false
		if err := s.saveTemplate(ctx, tx, &t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*template.Template, error) {
	var (
		t       template.Template
		fields  string
		deleted int
		created string
	)
	if err := row.Scan(&t.Key, &t.Name, &fields, &deleted, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", t.Key, err)
	}
	t.Deleted = deleted != 0
	t.CreatedAt = parseTime(created)
	return &t, nil
}
