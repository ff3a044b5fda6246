package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/patient"
)

const patientColumns = `id, name, dob, gender, encounter_date, template_key, template_data, generated_data, jobs_list, all_jobs_completed, updated_at`

// GetPatient loads the encounter record with id.
func (s *Store) GetPatient(ctx context.Context, id string) (*patient.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+patientColumns+` FROM patients WHERE id = ?`), id)
	rec, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, patient.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return rec, nil
}

// SavePatient upserts rec. The all_jobs_completed column is recomputed from
// the jobs list and UpdatedAt is set to now.
func (s *Store) SavePatient(ctx context.Context, rec *patient.Record) error {
	rec.SetJobs(rec.Jobs)
	rec.UpdatedAt = s.now().UTC()

	dataJSON, err := marshalFieldMap(rec.TemplateData)
	if err != nil {
		return fmt.Errorf("marshal template data: %w", err)
	}
	generatedJSON, err := marshalFieldMap(rec.Generated)
	if err != nil {
		return fmt.Errorf("marshal generated data: %w", err)
	}
	jobs, err := marshalJobs(rec.Jobs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			dob = excluded.dob,
			gender = excluded.gender,
			encounter_date = excluded.encounter_date,
			template_key = excluded.template_key,
			template_data = excluded.template_data,
			generated_data = excluded.generated_data,
			jobs_list = excluded.jobs_list,
			all_jobs_completed = excluded.all_jobs_completed,
			updated_at = excluded.updated_at`),
		rec.ID, rec.Name, rec.DOB, rec.Gender, rec.EncounterDate, rec.TemplateKey,
		dataJSON, generatedJSON, jobs, boolInt(rec.AllJobsCompleted), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save patient %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateJobs replaces the jobs list of patient id and recomputes
// all_jobs_completed in the same write.
func (s *Store) UpdateJobs(ctx context.Context, id string, jobs []patient.Job) error {
	var rec patient.Record
	rec.SetJobs(jobs)

	encoded, err := marshalJobs(rec.Jobs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE patients SET jobs_list = ?, all_jobs_completed = ?, updated_at = ? WHERE id = ?`),
		encoded, boolInt(rec.AllJobsCompleted), s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("update jobs of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patient %s: %w", id, patient.ErrNotFound)
	}
	return nil
}

// ListPatientsUpdatedSince returns records changed at or after since, oldest first.
func (s *Store) ListPatientsUpdatedSince(ctx context.Context, since time.Time) ([]patient.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+patientColumns+` FROM patients WHERE updated_at >= ? ORDER BY updated_at, id`), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []patient.Record
	for rows.Next() {
		rec, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func marshalFieldMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalJobs(jobs []patient.Job) (string, error) {
	if jobs == nil {
		jobs = []patient.Job{}
	}
	b, err := json.Marshal(jobs)
	if err != nil {
		return "", fmt.Errorf("marshal jobs: %w", err)
	}
	return string(b), nil
}

func scanPatient(row scanner) (*patient.Record, error) {
	var (
		rec       patient.Record
		data      string
		generated string
		jobs      string
		completed int
		updated   string
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.DOB, &rec.Gender, &rec.EncounterDate, &rec.TemplateKey,
		&data, &generated, &jobs, &completed, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.TemplateData); err != nil {
		return nil, fmt.Errorf("decode template data of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(generated), &rec.Generated); err != nil {
		return nil, fmt.Errorf("decode generated data of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(jobs), &rec.Jobs); err != nil {
		return nil, fmt.Errorf("decode jobs of %s: %w", rec.ID, err)
	}
	rec.AllJobsCompleted = completed != 0
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}
