package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/extractor"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/reasoning"
	"github.com/MikeSquared-Agency/scribe/internal/refinement"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	if err := a.seedTemplates(ctx); err != nil {
		slog.Error("failed to seed templates", "error", err)
		return err
	}

	cfg := a.config.Config()
	logger := slog.Default()

	// NATS is optional; without it field edits are learned in process.
	var publisher processor.Publisher
	var hermesClient *hermes.Client
	if cfg.Nats.URL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.Nats.URL, cfg.Nats.Token, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			return err
		}
		defer hermesClient.Close()
		publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.Nats.URL)
	} else {
		slog.Warn("nats not configured, learning runs in process")
	}

	proc := processor.New(
		a.store,
		extractor.New(a.llm, a.config, logger),
		refinement.NewRefiner(a.llm, a.config, logger),
		refinement.NewLearner(a.llm, a.config, logger),
		publisher,
		logger,
	)
	defer proc.Wait()

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectFieldEdited, proc.HandleFieldEdited); err != nil {
			slog.Error("failed to subscribe to field edits", "error", err)
			return err
		}
	}

	srv := api.NewServer(cfg.Server.Port, cfg.Server.APIToken, api.Deps{
		Encounters:   proc,
		Templates:    a.store,
		Generator:    template.NewGenerator(a.llm, a.config, a.store.TemplateExists, logger),
		Instructions: a.store,
		Reasoner:     reasoning.NewRunner(a.llm, a.config, a.store, logger),
		Suggester:    reasoning.NewSuggester(a.llm, a.config, logger),
		Results:      a.store,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	slog.Info("scribe ready", "port", cfg.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				slog.Error("HTTP server error", "error", err)
			}
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := a.config.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				} else {
					slog.Info("config reloaded")
				}
				continue
			}

			slog.Info("shutting down", "signal", sig.String())
			shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("HTTP shutdown", "error", err)
			}
			slog.Info("scribe stopped")
			return nil
		}
	}
}
