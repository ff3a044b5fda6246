package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPrompt is returned when a named refinement rule is not defined.
var ErrUnknownPrompt = errors.New("unknown prompt")

// Prompts is the prompt table shared by the extraction pipeline. Exact
// wording is deployment configuration, so every entry can be overridden
// from a YAML file.
type Prompts struct {
	// ExtractionSuffix is appended to each field's system prompt.
	ExtractionSuffix string `yaml:"extraction_suffix"`
	// Refinement is the default system prompt for the refinement pass.
	Refinement string `yaml:"refinement"`
	// RefinementRules are named prompts a field can select instead of Refinement.
	RefinementRules map[string]string `yaml:"refinement_rules"`
	// FieldSystem is the system prompt given to generated fields; %s is the
	// field name, second %s the format description.
	FieldSystem string `yaml:"field_system"`
	// PlanSystem is the system prompt of the mandatory plan field.
	PlanSystem string `yaml:"plan_system"`
	// Generator segments an example note into sections.
	Generator string `yaml:"generator"`
	// Learner decides on a single change to the learned instruction list.
	Learner string `yaml:"learner"`
	// Reasoning is used by the batch clinical reasoning job.
	Reasoning string `yaml:"reasoning"`
	// Suggestions asks for follow-up suggestions on an encounter.
	Suggestions string `yaml:"suggestions"`
}

// DefaultPrompts returns the built-in prompt table.
func DefaultPrompts() *Prompts {
	return &Prompts{
		ExtractionSuffix: "Return a JSON object with a key_points array. Each entry is one discrete point taken from the source text. Do not invent facts that are not present.",
		Refinement:       "You refine sections of a clinical note. Keep every clinical fact. Remove filler, repetition and conversational phrasing. Use concise clinical language and standard abbreviations.",
		RefinementRules: map[string]string{
			"brief":     "You refine sections of a clinical note. Be as brief as possible: short fragments, no full sentences, keep every clinical fact.",
			"patient":   "You rewrite sections of a clinical note for the patient to read. Use plain language, no abbreviations, keep every clinical fact.",
			"no_change": "Return the content as key points without rewording it.",
		},
		FieldSystem: "Extract the %s section of a clinical note from the consultation. Present it as %s.",
		PlanSystem:  "Extract the management plan from the consultation. Each point is one concrete action, test, referral or follow up.",
		Generator:   "You analyse an example clinical note and split it into its sections. For each section give the heading as field_name, the format style it uses, the bullet character if bullets are used, a verbatim excerpt of the section as style_example, whether the section is required, and whether its content persists unchanged between encounters.",
		Learner:     "You maintain a short list of instructions describing how a clinician wants a section of their notes written. Compare the machine text with the clinician's edited text. Call exactly one tool: replace or modify an existing instruction, add a new one, or keep the list unchanged if the edit reveals no lasting preference. Instructions are short, general and never mention specific patients.",
		Reasoning:   "You are a senior clinician reviewing an encounter note. Give a one paragraph summary, a list of differential diagnoses, suggested investigations and other clinical considerations.",
		Suggestions: "Suggest short follow-up questions or checks the clinician may have missed in this encounter.",
	}
}

// RefinementPrompt returns the named refinement rule.
func (p *Prompts) RefinementPrompt(rule string) (string, error) {
	prompt, ok := p.RefinementRules[rule]
	if !ok || prompt == "" {
		return "", fmt.Errorf("refinement rule %q: %w", rule, ErrUnknownPrompt)
	}
	return prompt, nil
}

// LoadPrompts overlays the YAML file at path onto the defaults. Missing
// entries keep their default; refinement rules are merged by name.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read prompts: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	setIf(&p.ExtractionSuffix, override.ExtractionSuffix)
	setIf(&p.Refinement, override.Refinement)
	setIf(&p.FieldSystem, override.FieldSystem)
	setIf(&p.PlanSystem, override.PlanSystem)
	setIf(&p.Generator, override.Generator)
	setIf(&p.Learner, override.Learner)
	setIf(&p.Reasoning, override.Reasoning)
	setIf(&p.Suggestions, override.Suggestions)
	for name, prompt := range override.RefinementRules {
		p.RefinementRules[name] = prompt
	}
	return p, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
