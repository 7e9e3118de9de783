package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/handlers"
	"github.com/ternarybob/addressbot/internal/launcher"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/orchestrator"
	"github.com/ternarybob/addressbot/internal/results"
	"github.com/ternarybob/addressbot/internal/server"
	"github.com/ternarybob/addressbot/internal/services/events"
	"github.com/ternarybob/addressbot/internal/services/metadata"
	"github.com/ternarybob/addressbot/internal/staging"
	"github.com/ternarybob/addressbot/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

type runOptions struct {
	PlanPath     string
	MetadataPath string
	ReportPDF    string
}

// runCommand executes one plan through the four phases and persists the report
func runCommand(ctx context.Context, config *common.Config, logger arbor.ILogger, opts runOptions) error {
	if opts.PlanPath == "" {
		return errors.New("-plan is required")
	}

	plan, err := metadata.LoadPlan(opts.PlanPath)
	if err != nil {
		return err
	}
	add, edit, err := plan.Items()
	if err != nil {
		return fmt.Errorf("invalid plan %s: %w", opts.PlanPath, err)
	}

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()

	eventService := events.NewService(logger)
	defer eventService.Close()
	if err := events.SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		return err
	}

	stager, err := staging.NewStager(config.Worker.StagingDir, logger)
	if err != nil {
		return err
	}
	binary, err := launcher.ResolveWorkerBinary(config.Worker.Binary)
	if err != nil {
		return err
	}
	if _, err := os.Stat(binary); err != nil {
		return fmt.Errorf("worker binary not found: %w", err)
	}

	core := orchestrator.NewCore(
		config,
		launcher.NewExecLauncher(binary, logger),
		stager,
		storageManager.ResultStorage(),
		events.NewObserver(eventService, logger),
		logger,
	)

	if opts.MetadataPath != "" {
		if _, err := core.LoadTree(ctx, metadata.NewFileSource(opts.MetadataPath, logger)); err != nil {
			return err
		}
	}

	core.InitializeAdd(add)
	core.InitializeEdit(edit)
	logger.Info().
		Int("add", len(add)).
		Int("edit", len(edit)).
		Int("disabled_nodes", len(core.DisableNodes())).
		Msg("Plan loaded")

	if err := core.CreateAllPools(config.Batch.Capacity); err != nil {
		return err
	}

	var srv *server.Server
	if config.Server.Enabled {
		runHandler := handlers.NewRunHandler(core, storageManager.ResultStorage(), logger)
		ws := handlers.NewWebSocketHandler(eventService, runHandler.Status, config.Server.Throttle, logger)
		srv = server.New(config.Server, logger, handlers.NewAPIHandler(logger), runHandler, ws)
		common.SafeGo(logger, "http-server", func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		})
	}

	if err := core.Start(ctx, orchestrator.Callbacks{
		OnPoolConsumed: func(phase models.Phase) {
			logger.Info().Str("phase", string(phase)).Msg("Pool consumed")
		},
	}); err != nil {
		return err
	}

	report, err := core.Wait(context.Background())
	if err != nil {
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}

	fmt.Fprintln(os.Stdout, results.RenderMarkdown(report))

	if opts.ReportPDF != "" {
		if err := writePDF(opts.ReportPDF, report, logger); err != nil {
			return err
		}
	}

	if report.Cancelled {
		return fmt.Errorf("run %s cancelled", report.ID)
	}
	return nil
}

func writePDF(path string, report *models.RunReport, logger arbor.ILogger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := results.NewPrinter(logger).WritePDF(f, report); err != nil {
		return err
	}
	logger.Info().Str("path", path).Str("run_id", report.ID).Msg("PDF report written")
	return nil
}
