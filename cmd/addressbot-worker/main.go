// Command addressbot-worker drives one group of work items through the browser.
//
// It is started by the orchestrator as
//
//	addressbot-worker <context JSON> <staged group path> <debug dir>
//
// and reports progress as JSON lines on stdout. Control messages arrive on stdin.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/worker"
	"github.com/ternarybob/addressbot/internal/worker/browser"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <context JSON> <staged group path> <debug dir>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	var wctx models.WorkerContext
	if err := json.Unmarshal([]byte(os.Args[1]), &wctx); err != nil {
		fmt.Fprintf(os.Stderr, "invalid worker context: %v\n", err)
		os.Exit(2)
	}
	stagingPath, debugDir := os.Args[2], os.Args[3]

	// stdout is the progress channel: logs and crash files go under the debug dir
	logger := common.SetupWorkerLogger(debugDir, wctx.LogLevel)
	common.InstallCrashHandler(filepath.Join(debugDir, "log"))
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("run_id", wctx.RunID).
		Str("phase", string(wctx.Phase)).
		Str("staging", stagingPath).
		Int("pid", os.Getpid()).
		Msg("Worker starting")

	runner := worker.NewRunner(wctx, debugDir, browser.NewFactory(logger), os.Stdout, logger)
	if err := runner.Run(ctx, stagingPath, os.Stdin); err != nil {
		logger.Error().Err(err).Msg("Worker failed")
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Str("run_id", wctx.RunID).Msg("Worker finished")
}
