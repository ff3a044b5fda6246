package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Clinical documentation assistant",
	Long: `scribe turns encounter transcripts into structured clinical notes.

Running scribe without a subcommand starts the HTTP API.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scribe.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(templateCmd)
}

// app holds the shared dependencies every command needs.
type app struct {
	config *config.Manager
	store  *store.Store
	llm    llm.Client
}

func newApp(ctx context.Context) (*app, error) {
	mgr, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Config()
	setupLogging(cfg.Log.Level)

	db, err := store.New(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("database connected", "driver", cfg.Database.Driver)

	client, err := llm.New(cfg.LLM, slog.Default())
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("llm client ready",
		"backend", cfg.LLM.Backend,
		"primary_model", cfg.LLM.PrimaryModel,
		"secondary_model", cfg.LLM.SecondaryModel,
	)

	return &app{config: mgr, store: db, llm: client}, nil
}

// seedTemplates installs the default templates into an empty database.
func (a *app) seedTemplates(ctx context.Context) error {
	existing, err := a.store.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, t := range template.DefaultTemplates(a.config.Prompts()) {
		if err := a.store.SaveTemplate(ctx, &t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.Key, err)
		}
	}
	slog.Info("default templates installed")
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
