// Package processor runs encounters through the two-wave extraction
// pipeline and feeds clinician edits back into instruction learning.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/scribe/internal/extractor"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

type FieldExtractor interface {
	Extract(ctx context.Context, text string, field template.Field, pc patient.Context) (extractor.Result, error)
}

type FieldRefiner interface {
	Refine(ctx context.Context, raw string, field template.Field, learned []string) (string, error)
}

type InstructionLearner interface {
	Suggest(ctx context.Context, initial, modified string, existing []string) []string
}

// Store is the persistence the processor needs.
type Store interface {
	LatestTemplate(ctx context.Context, key string) (*template.Template, error)
	GetPatient(ctx context.Context, id string) (*patient.Record, error)
	SavePatient(ctx context.Context, rec *patient.Record) error
	UpdateJobs(ctx context.Context, id string, jobs []patient.Job) error
	GetInstructions(ctx context.Context, fieldKey string) ([]string, error)
	SaveInstructions(ctx context.Context, fieldKey string, list []string) error
}

// Publisher emits events; *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, v any) error
}

// Processor orchestrates extraction, refinement and learning.
type Processor struct {
	store     Store
	extractor FieldExtractor
	refiner   FieldRefiner
	learner   InstructionLearner
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	// background learning started when no publisher is configured
	learning sync.WaitGroup
}

// New builds a Processor. publisher may be nil, in which case field edits
// are learned from in-process.
func New(s Store, ext FieldExtractor, ref FieldRefiner, learner InstructionLearner, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		store:     s,
		extractor: ext,
		refiner:   ref,
		learner:   learner,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Result is the output of one pipeline run: refined content per regenerated
// field and the wall-clock seconds both waves took.
type Result struct {
	Fields   map[string]string `json:"fields"`
	Duration float64           `json:"duration"`
}

// Process extracts every non-persistent field from text in parallel, then
// refines each extraction in parallel. Any failure in a wave fails the run
// once all of that wave's calls have returned; sibling calls are not
// cancelled. Persistent fields never appear in the result.
func (p *Processor) Process(ctx context.Context, text string, fields []template.Field, pc patient.Context) (*Result, error) {
	start := time.Now()
	targets := template.NonPersistent(fields)

	raws := make([]extractor.Result, len(targets))
	var extract errgroup.Group
	for i, f := range targets {
		extract.Go(func() error {
			r, err := p.extractor.Extract(ctx, text, f, pc)
			if err != nil {
				metrics.FieldFailures.WithLabelValues("extract").Inc()
				return err
			}
			raws[i] = r
			return nil
		})
	}
	if err := extract.Wait(); err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	refined := make([]string, len(targets))
	var refine errgroup.Group
	for i, f := range targets {
		refine.Go(func() error {
			out, err := p.refiner.Refine(ctx, raws[i].Content, f, p.instructionsFor(ctx, f.Key))
			if err != nil {
				metrics.FieldFailures.WithLabelValues("refine").Inc()
				return err
			}
			refined[i] = out
			return nil
		})
	}
	if err := refine.Wait(); err != nil {
		return nil, fmt.Errorf("refinement: %w", err)
	}

	res := &Result{Fields: make(map[string]string, len(targets))}
	for i, f := range targets {
		res.Fields[f.Key] = refined[i]
	}
	elapsed := time.Since(start)
	res.Duration = elapsed.Seconds()
	metrics.ExtractionDuration.Observe(res.Duration)

	p.logger.Info("fields processed",
		"fields", len(targets),
		"skipped_persistent", len(fields)-len(targets),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// instructionsFor loads learned instructions for a field. A lookup failure
// only costs the refinement its extra guidance.
func (p *Processor) instructionsFor(ctx context.Context, fieldKey string) []string {
	if p.store == nil {
		return nil
	}
	list, err := p.store.GetInstructions(ctx, fieldKey)
	if err != nil {
		p.logger.Warn("failed to load instructions", "field_key", fieldKey, "error", err)
		return nil
	}
	return list
}

// Wait blocks until in-process learning started by SaveFieldEdit finishes.
func (p *Processor) Wait() {
	p.learning.Wait()
}
