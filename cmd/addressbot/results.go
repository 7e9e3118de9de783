package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/results"
	"github.com/ternarybob/addressbot/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// resultsCommand lists stored runs, or prints one run as markdown when runID is set
func resultsCommand(ctx context.Context, config *common.Config, logger arbor.ILogger, runID, pdfPath string) error {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()
	store := storageManager.ResultStorage()

	if runID == "" {
		runs, err := store.ListRuns(ctx, 20)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, renderRunTable(runs))
		return nil
	}

	report, err := store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	fmt.Fprintln(os.Stdout, results.RenderMarkdown(report))

	if pdfPath != "" {
		return writePDF(pdfPath, report, logger)
	}
	return nil
}

// renderRunTable lists runs one per row, in the order given
func renderRunTable(runs []*models.RunReport) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STARTED", "ELAPSED", "TOTAL", "SUCCEEDED", "FAILED", "CANCELLED")
	for _, run := range runs {
		t.Row(
			run.ID,
			run.StartedAt.Format(time.DateTime),
			run.Elapsed().Round(time.Second).String(),
			strconv.Itoa(run.Summary.Total),
			strconv.Itoa(run.Summary.Succeeded),
			strconv.Itoa(run.Summary.Failed),
			strconv.FormatBool(run.Cancelled),
		)
	}
	return t.String()
}
