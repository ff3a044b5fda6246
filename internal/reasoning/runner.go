// Package reasoning runs the nightly clinical reasoning pass over recently
// updated encounters and produces follow-up suggestions.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
)

// ErrAlreadyRunning is returned by Run while another run is in progress.
var ErrAlreadyRunning = errors.New("reasoning run already in progress")

// Result is the reasoning produced for one encounter.
type Result struct {
	Summary        string   `json:"summary" jsonschema:"description=One paragraph summary of the encounter"`
	Differentials  []string `json:"differentials"`
	Investigations []string `json:"investigations"`
	Considerations []string `json:"considerations"`
}

type Store interface {
	ListPatientsUpdatedSince(ctx context.Context, since time.Time) ([]patient.Record, error)
	SaveReasoning(ctx context.Context, patientID string, result any) error
}

// Summary reports what one run did.
type Summary struct {
	Encounters int     `json:"encounters"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Duration   float64 `json:"duration"`
}

// Runner executes reasoning runs, one at a time.
type Runner struct {
	llm     llm.Client
	config  *config.Manager
	store   Store
	logger  *slog.Logger
	running atomic.Bool
}

func NewRunner(client llm.Client, cfg *config.Manager, store Store, logger *slog.Logger) *Runner {
	return &Runner{llm: client, config: cfg, store: store, logger: logger}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run reasons over every encounter updated since the given time with at most
// batch.concurrency model calls in flight. A second caller gets
// ErrAlreadyRunning instead of queueing. Failures of single encounters are
// counted, not returned.
func (r *Runner) Run(ctx context.Context, since time.Time) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	start := time.Now()
	records, err := r.store.ListPatientsUpdatedSince(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("list encounters: %w", err)
	}

	limit := int64(r.config.Config().Batch.Concurrency)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		failed    atomic.Int32
	)
	for _, rec := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if err := r.reason(ctx, rec); err != nil {
				failed.Add(1)
				metrics.ReasoningRuns.WithLabelValues("failed").Inc()
				r.logger.Error("encounter reasoning failed", "patient_id", rec.ID, "error", err)
				return
			}
			succeeded.Add(1)
			metrics.ReasoningRuns.WithLabelValues("succeeded").Inc()
		}()
	}
	wg.Wait()

	sum := Summary{
		Encounters: len(records),
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
		Duration:   time.Since(start).Seconds(),
	}
	r.logger.Info("reasoning run complete",
		"encounters", sum.Encounters,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
	)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (r *Runner) reason(ctx context.Context, rec patient.Record) error {
	note := NoteText(&rec)
	if note == "" {
		return fmt.Errorf("encounter has no content")
	}

	res, err := llm.Structured[Result](ctx, r.llm, llm.ChatRequest{
		Model: r.config.Config().LLM.Reasoning(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: r.config.Prompts().Reasoning},
			{Role: llm.RoleUser, Content: note},
		},
	})
	if err != nil {
		return err
	}
	return r.store.SaveReasoning(ctx, rec.ID, res)
}

// NoteText renders a record's fields as "field_key:" blocks in key order,
// preceded by the patient context. It is empty when no field has content.
func NoteText(rec *patient.Record) string {
	var fields []string
	for _, k := range rec.SortedFieldKeys() {
		if v := strings.TrimSpace(rec.TemplateData[k]); v != "" {
			fields = append(fields, k+":\n"+v)
		}
	}
	if len(fields) == 0 {
		return ""
	}
	if pc := rec.Context(time.Now()).SystemMessage(); pc != "" {
		fields = append([]string{pc}, fields...)
	}
	return strings.Join(fields, "\n\n")
}
