package template

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/format"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

// generatedNote is the structured reply of the generator call.
type generatedNote struct {
	TemplateName string             `json:"template_name" jsonschema:"description=Short name for this kind of note"`
	Sections     []generatedSection `json:"sections"`
}

type generatedSection struct {
	FieldName    string `json:"field_name" jsonschema:"description=Section heading as written in the note"`
	FormatStyle  string `json:"format_style" jsonschema:"enum=bullets,enum=numbered,enum=narrative,enum=heading_with_bullets,enum=lab_values"`
	BulletChar   string `json:"bullet_char" jsonschema:"description=Bullet character used by the section or empty"`
	StyleExample string `json:"style_example" jsonschema:"description=Verbatim excerpt of the section"`
	Required     bool   `json:"required"`
	Persistent   bool   `json:"persistent" jsonschema:"description=True when the section is copied unchanged between encounters"`
}

// Generator infers a Template from a freeform example note.
type Generator struct {
	client llm.Client
	config *config.Manager
	exists KeyChecker
	logger *slog.Logger
	now    func() time.Time
}

func NewGenerator(client llm.Client, cfg *config.Manager, exists KeyChecker, logger *slog.Logger) *Generator {
	return &Generator{
		client: client,
		config: cfg,
		exists: exists,
		logger: logger,
		now:    time.Now,
	}
}

// FromNote segments note into fields with one structured model call. name,
// when set, overrides the name the model proposes. The returned template
// always ends with the plan field and carries a key not yet in use.
func (g *Generator) FromNote(ctx context.Context, note, name string) (*Template, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("generate template: example note is empty")
	}

	prompts := g.config.Prompts()
	out, err := llm.Structured[generatedNote](ctx, g.client, llm.ChatRequest{
		Model: g.config.Config().LLM.Primary(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.Generator},
			{Role: llm.RoleUser, Content: note},
		},
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("generate template: %w", err)
	}

	if name = strings.TrimSpace(name); name == "" {
		name = strings.TrimSpace(out.TemplateName)
	}
	if name == "" {
		name = "Generated Note"
	}

	tmpl := &Template{Name: name, CreatedAt: g.now().UTC()}
	plan := PlanField(prompts)
	seen := map[string]bool{PlanFieldKey: true}

	for _, s := range out.Sections {
		fieldName := strings.TrimSpace(s.FieldName)
		if fieldName == "" {
			continue
		}
		if isPlan(fieldName) {
			if ex := format.NumberedFromText(s.StyleExample); ex != "" {
				plan.StyleExample = ex
			}
			continue
		}

		key := KeyFromName(fieldName)
		if key == "" {
			continue
		}
		for i := 2; seen[key]; i++ {
			key = KeyFromName(fieldName) + "_" + strconv.Itoa(i)
		}
		seen[key] = true

		schema := schemaFor(s.FormatStyle, s.BulletChar)
		tmpl.Fields = append(tmpl.Fields, Field{
			Key:          key,
			Name:         fieldName,
			Required:     s.Required,
			Persistent:   s.Persistent,
			SystemPrompt: fmt.Sprintf(prompts.FieldSystem, fieldName, describe(schema)),
			FormatSchema: schema,
			StyleExample: strings.TrimSpace(s.StyleExample),
		})
	}
	tmpl.Fields = append(tmpl.Fields, plan)

	key, err := UniqueKey(ctx, name, g.exists, g.now())
	if err != nil {
		return nil, fmt.Errorf("generate template key: %w", err)
	}
	tmpl.Key = key

	g.logger.Info("template generated",
		"template_key", tmpl.Key,
		"fields", len(tmpl.Fields),
	)
	return tmpl, nil
}

// PlanField is the mandatory numbered plan section of every generated template.
func PlanField(prompts *config.Prompts) Field {
	return Field{
		Key:          PlanFieldKey,
		Name:         "Plan",
		Required:     true,
		SystemPrompt: prompts.PlanSystem,
		FormatSchema: &format.Schema{Type: format.StyleNumbered},
	}
}

func isPlan(name string) bool {
	n := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), ":")))
	return n == PlanFieldKey
}

func schemaFor(style, bullet string) *format.Schema {
	s := &format.Schema{Type: format.Style(strings.ToLower(strings.TrimSpace(style)))}
	switch s.Type {
	case "bullets", "":
		s.Type = format.StyleBullet
	case format.StyleNumbered, format.StyleNarrative, format.StyleHeadingWithBullets, format.StyleLabValues:
	default:
		s.Type = format.StyleBullet
	}
	if s.Type != format.StyleNumbered && s.Type != format.StyleNarrative {
		s.BulletChar = strings.TrimSpace(bullet)
	}
	return s
}

func describe(s *format.Schema) string {
	switch s.Type {
	case format.StyleNumbered:
		return "a numbered list"
	case format.StyleNarrative:
		return "a single narrative paragraph"
	case format.StyleHeadingWithBullets:
		return "short headings each followed by bullet points"
	case format.StyleLabValues:
		return "one laboratory value with its unit per point"
	default:
		return "bullet points"
	}
}
