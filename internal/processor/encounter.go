package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

// ErrInvalidRequest marks requests missing data the pipeline needs.
var ErrInvalidRequest = errors.New("invalid request")

// EncounterRequest is a transcript to process for one patient. Demographic
// fields and TemplateKey, when set, override what the record holds; a
// record is created when the patient is new.
type EncounterRequest struct {
	PatientID     string `json:"-"`
	Text          string `json:"text"`
	TemplateKey   string `json:"template_key,omitempty"`
	Name          string `json:"name,omitempty"`
	DOB           string `json:"dob,omitempty"`
	Gender        string `json:"gender,omitempty"`
	EncounterDate string `json:"encounter_date,omitempty"`
}

// ProcessEncounter runs req.Text through the template of the patient record,
// writes the regenerated fields over the record, rebuilds the jobs list when
// the plan changes and saves. Persistent fields keep their stored value.
func (p *Processor) ProcessEncounter(ctx context.Context, req EncounterRequest) (*patient.Record, *Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil, fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	}

	rec, err := p.store.GetPatient(ctx, req.PatientID)
	switch {
	case errors.Is(err, patient.ErrNotFound):
		rec = &patient.Record{ID: req.PatientID}
	case err != nil:
		return nil, nil, err
	}
	applyRequest(rec, req)
	if rec.TemplateKey == "" {
		return nil, nil, fmt.Errorf("%w: no template selected for patient %s", ErrInvalidRequest, rec.ID)
	}

	tmpl, err := p.store.LatestTemplate(ctx, rec.TemplateKey)
	if err != nil {
		return nil, nil, err
	}
	rec.TemplateKey = tmpl.Key

	res, err := p.Process(ctx, req.Text, tmpl.Fields, rec.Context(p.now()))
	if err != nil {
		p.logger.Error("encounter processing failed",
			"patient_id", rec.ID,
			"template_key", tmpl.Key,
			"error", err,
		)
		return nil, nil, err
	}

	if rec.TemplateData == nil {
		rec.TemplateData = make(map[string]string, len(res.Fields))
	}
	if rec.Generated == nil {
		rec.Generated = make(map[string]string, len(res.Fields))
	}
	for k, v := range res.Fields {
		rec.TemplateData[k] = v
		rec.Generated[k] = v
	}
	if plan, ok := res.Fields[template.PlanFieldKey]; ok {
		rec.ReplacePlan(plan)
	}

	if err := p.store.SavePatient(ctx, rec); err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(res.Fields))
	for _, f := range tmpl.Fields {
		if _, ok := res.Fields[f.Key]; ok {
			keys = append(keys, f.Key)
		}
	}
	p.publish(hermes.SubjectEncounterProcessed, hermes.EncounterProcessedEvent{
		EventID:     hermes.NewEventID(),
		PatientID:   rec.ID,
		TemplateKey: tmpl.Key,
		Fields:      keys,
		DurationMs:  int64(res.Duration * 1000),
		ProcessedAt: p.now().UTC(),
	})
	return rec, res, nil
}

func applyRequest(rec *patient.Record, req EncounterRequest) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&rec.TemplateKey, req.TemplateKey)
	set(&rec.Name, req.Name)
	set(&rec.DOB, req.DOB)
	set(&rec.Gender, req.Gender)
	set(&rec.EncounterDate, req.EncounterDate)
}

// SaveFieldEdit stores a clinician's edit of one field and hands the
// before/after pair to instruction learning. Editing the plan rebuilds the
// jobs list.
func (p *Processor) SaveFieldEdit(ctx context.Context, patientID, fieldKey, content string) (*patient.Record, error) {
	rec, err := p.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if rec.TemplateData == nil {
		rec.TemplateData = map[string]string{}
	}

	// learning diffs against the machine output, not an earlier edit
	initial, ok := rec.Generated[fieldKey]
	if !ok {
		initial = rec.TemplateData[fieldKey]
	}
	rec.TemplateData[fieldKey] = content
	if fieldKey == template.PlanFieldKey {
		rec.ReplacePlan(content)
	}
	if err := p.store.SavePatient(ctx, rec); err != nil {
		return nil, err
	}

	if initial == content {
		return rec, nil
	}
	evt := hermes.FieldEditedEvent{
		EventID:     hermes.NewEventID(),
		PatientID:   rec.ID,
		TemplateKey: rec.TemplateKey,
		FieldKey:    fieldKey,
		Initial:     initial,
		Modified:    content,
		EditedAt:    p.now().UTC(),
	}

	if p.publisher != nil {
		err := p.publisher.Publish(hermes.SubjectFieldEdited, evt)
		if err == nil {
			return rec, nil
		}
		p.logger.Warn("publish field edit failed, learning in process", "field_key", fieldKey, "error", err)
	}

	p.learning.Add(1)
	go func() {
		defer p.learning.Done()
		p.learn(context.WithoutCancel(ctx), evt)
	}()
	return rec, nil
}

// SetJobCompleted flips one job of the patient's jobs list.
func (p *Processor) SetJobCompleted(ctx context.Context, patientID string, jobID int, completed bool) (*patient.Record, error) {
	rec, err := p.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := rec.ToggleJob(jobID, completed); err != nil {
		return nil, err
	}
	if err := p.store.UpdateJobs(ctx, rec.ID, rec.Jobs); err != nil {
		return nil, err
	}
	return rec, nil
}

// HandleFieldEdited is the NATS handler for scribe.field.edited.
func (p *Processor) HandleFieldEdited(subject string, data []byte) {
	var evt hermes.FieldEditedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Warn("failed to parse field edited event", "subject", subject, "error", err)
		return
	}
	if evt.FieldKey == "" {
		p.logger.Warn("field edited event without field key", "event_id", evt.EventID)
		return
	}
	p.learn(context.Background(), evt)
}

// learn updates the field's instruction list from one edit. It is best
// effort: failures are logged and never reach the clinician.
func (p *Processor) learn(ctx context.Context, evt hermes.FieldEditedEvent) {
	existing, err := p.store.GetInstructions(ctx, evt.FieldKey)
	if err != nil {
		p.logger.Error("failed to load instructions", "field_key", evt.FieldKey, "error", err)
		return
	}

	updated := p.learner.Suggest(ctx, evt.Initial, evt.Modified, existing)
	if slices.Equal(existing, updated) {
		return
	}
	if err := p.store.SaveInstructions(ctx, evt.FieldKey, updated); err != nil {
		p.logger.Error("failed to save instructions", "field_key", evt.FieldKey, "error", err)
		return
	}
	p.logger.Info("refinement instructions learned",
		"field_key", evt.FieldKey,
		"patient_id", evt.PatientID,
		"count", len(updated),
	)
}

func (p *Processor) publish(subject string, v any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(subject, v); err != nil {
		p.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
