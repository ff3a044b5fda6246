package refinement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
)

// Tool names offered to the model.
const (
	OpReplace = "replace_instruction"
	OpModify  = "modify_instruction"
	OpAdd     = "add_instruction"
	OpKeep    = "keep_unchanged"
)

type replaceArgs struct {
	Index          int    `json:"index" jsonschema:"description=Zero-based index of the instruction to replace"`
	NewInstruction string `json:"new_instruction"`
}

type modifyArgs struct {
	Index               int    `json:"index" jsonschema:"description=Zero-based index of the instruction to modify"`
	ModifiedInstruction string `json:"modified_instruction"`
}

type addArgs struct {
	NewInstruction string `json:"new_instruction"`
}

type keepArgs struct{}

// Learner turns clinician edits into at most one change to a field's
// instruction list. It never fails: on any error the list comes back as given.
type Learner struct {
	llm    llm.Client
	config *config.Manager
	logger *slog.Logger
}

func NewLearner(client llm.Client, cfg *config.Manager, logger *slog.Logger) *Learner {
	return &Learner{llm: client, config: cfg, logger: logger}
}

// Suggest compares the machine text initial with the clinician's modified
// text and returns the updated instruction list. No model call is made when
// modified is blank, nothing changed, or the change ratio is under the
// configured threshold.
func (l *Learner) Suggest(ctx context.Context, initial, modified string, existing []string) []string {
	if strings.TrimSpace(modified) == "" || initial == modified {
		metrics.InstructionUpdates.WithLabelValues("skipped").Inc()
		return existing
	}

	threshold := l.config.Config().Learning.ChangeThreshold
	ratio := ChangeRatio(initial, modified)
	if ratio < threshold {
		l.logger.Debug("edit below learning threshold", "ratio", ratio, "threshold", threshold)
		metrics.InstructionUpdates.WithLabelValues("skipped").Inc()
		return existing
	}

	resp, err := l.llm.Chat(ctx, llm.ChatRequest{
		Model: l.config.Config().LLM.Secondary(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: l.config.Prompts().Learner},
			{Role: llm.RoleUser, Content: learnerPrompt(initial, modified, existing)},
		},
		Options: map[string]any{"temperature": 0},
		Tools:   tools(len(existing)),
	})
	if err != nil {
		l.logger.Error("instruction learning failed", "error", err)
		metrics.InstructionUpdates.WithLabelValues("error").Inc()
		return DedupeInstructions(existing)
	}

	if len(resp.ToolCalls) == 0 {
		metrics.InstructionUpdates.WithLabelValues(OpKeep).Inc()
		return DedupeInstructions(existing)
	}
	if len(resp.ToolCalls) > 1 {
		l.logger.Warn("model returned several tool calls, using the first",
			"tool_calls", len(resp.ToolCalls),
			"used", resp.ToolCalls[0].Name,
		)
	}

	call := resp.ToolCalls[0]
	updated, err := apply(call, existing)
	if err != nil {
		l.logger.Warn("ignoring instruction update", "tool", call.Name, "error", err)
		metrics.InstructionUpdates.WithLabelValues("error").Inc()
		return DedupeInstructions(existing)
	}

	metrics.InstructionUpdates.WithLabelValues(call.Name).Inc()
	l.logger.Info("instructions updated", "operation", call.Name, "count", len(updated))
	return updated
}

// apply runs one tool call against a copy of existing. The result is always
// deduplicated and capped.
func apply(call llm.ToolCall, existing []string) ([]string, error) {
	list := append([]string(nil), existing...)

	switch call.Name {
	case OpReplace:
		var a replaceArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, err
		}
		if err := checkIndex(a.Index, len(list)); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.NewInstruction) == "" {
			return nil, fmt.Errorf("empty instruction")
		}
		list[a.Index] = strings.TrimSpace(a.NewInstruction)

	case OpModify:
		var a modifyArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, err
		}
		if err := checkIndex(a.Index, len(list)); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.ModifiedInstruction) == "" {
			return nil, fmt.Errorf("empty instruction")
		}
		list[a.Index] = strings.TrimSpace(a.ModifiedInstruction)

	case OpAdd:
		var a addArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, err
		}
		if len(list) >= MaxInstructions {
			return nil, fmt.Errorf("instruction list is full")
		}
		if strings.TrimSpace(a.NewInstruction) == "" {
			return nil, fmt.Errorf("empty instruction")
		}
		list = append(list, strings.TrimSpace(a.NewInstruction))

	case OpKeep:

	default:
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	return DedupeInstructions(list), nil
}

func decodeArgs(call llm.ToolCall, out any) error {
	if len(call.Arguments) == 0 {
		return fmt.Errorf("%s: missing arguments", call.Name)
	}
	if err := json.Unmarshal(call.Arguments, out); err != nil {
		return fmt.Errorf("%s arguments: %w", call.Name, err)
	}
	return nil
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("index %d out of range [0,%d)", i, n)
	}
	return nil
}

// tools lists the operations on offer; add is withheld once the list is full.
func tools(n int) []llm.Tool {
	out := []llm.Tool{
		llm.NewFunctionTool(OpReplace, "Replace the instruction at index with a new instruction.", llm.SchemaFor(&replaceArgs{})),
		llm.NewFunctionTool(OpModify, "Reword the instruction at index.", llm.SchemaFor(&modifyArgs{})),
	}
	if n < MaxInstructions {
		out = append(out, llm.NewFunctionTool(OpAdd, "Append a new instruction.", llm.SchemaFor(&addArgs{})))
	}
	return append(out, llm.NewFunctionTool(OpKeep, "Keep the instruction list as it is.", llm.SchemaFor(&keepArgs{})))
}

func learnerPrompt(initial, modified string, existing []string) string {
	var sb strings.Builder
	sb.WriteString("Current instructions:\n")
	if len(existing) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, ins := range existing {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(": ")
		sb.WriteString(ins)
		sb.WriteString("\n")
	}
	sb.WriteString("\nMachine text:\n")
	sb.WriteString(initial)
	sb.WriteString("\n\nClinician's edited text:\n")
	sb.WriteString(modified)
	return sb.String()
}
