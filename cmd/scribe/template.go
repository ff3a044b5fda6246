package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/template"
)

var (
	generateName string
	generateSave bool
)

func init() {
	templateGenerateCmd.Flags().StringVar(&generateName, "name", "", "template name (defaults to the one suggested by the model)")
	templateGenerateCmd.Flags().BoolVar(&generateSave, "save", false, "store the generated template")
	templateCmd.AddCommand(templateGenerateCmd)
	templateCmd.AddCommand(templateResetCmd)
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage note templates",
}

var templateGenerateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Generate a template from an example note",
	Long: `Generate a template from an example note read from a file or stdin.
The template is printed as JSON and stored only with --save.

Examples:
  scribe template generate note.txt --name "Clinic Letter"
  cat note.txt | scribe template generate - --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var note []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			note, err = io.ReadAll(os.Stdin)
		} else {
			note, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read note: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		gen := template.NewGenerator(a.llm, a.config, a.store.TemplateExists, slog.Default())
		t, err := gen.FromNote(ctx, string(note), generateName)
		if err != nil {
			return err
		}
		if generateSave {
			if err := a.store.SaveTemplate(ctx, t); err != nil {
				return err
			}
			slog.Info("template saved", "template_key", t.Key)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var templateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Soft-delete every template and reinstall the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		defaults := template.DefaultTemplates(a.config.Prompts())
		if err := a.store.ResetTemplates(ctx, defaults); err != nil {
			return err
		}
		slog.Info("templates reset", "count", len(defaults))
		return nil
	},
}
