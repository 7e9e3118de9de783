package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	// Double-check after acquiring write lock
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       "15:04:05",
			OutputType:       models.OutputFormatLogfmt,
			DisableTimestamp: false,
		})
	}
	return globalLogger
}

// SetupLogger initializes the orchestrator logger from configuration.
// File output goes to <executable dir>/logs/addressbot.log.
func SetupLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := arbor.NewLogger()

	hasFileOutput := false
	hasStdoutOutput := false
	for _, output := range config.Logging.Output {
		if output == "file" {
			hasFileOutput = true
		}
		if output == "stdout" || output == "console" {
			hasStdoutOutput = true
		}
	}

	if hasFileOutput {
		execPath, err := os.Executable()
		if err != nil {
			fmt.Printf("Warning: Failed to get executable path: %v\n", err)
		} else {
			logsDir := filepath.Join(filepath.Dir(execPath), "logs")
			logger = withFileWriter(logger, logsDir, "addressbot.log")
		}
	}

	if hasStdoutOutput {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       "15:04:05",
			OutputType:       models.OutputFormatLogfmt,
			DisableTimestamp: false,
		})
	}

	logger = logger.WithLevelFromString(config.Logging.Level)
	globalLogger = logger

	return logger
}

// SetupWorkerLogger builds the logger used inside a worker process.
// Stdout carries progress messages, so the worker only ever writes to a file under debugDir/log.
func SetupWorkerLogger(debugDir string, level string) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := withFileWriter(arbor.NewLogger(), filepath.Join(debugDir, "log"), "worker.log")
	if level == "" {
		level = "info"
	}
	logger = logger.WithLevelFromString(level)
	globalLogger = logger

	return logger
}

func withFileWriter(logger arbor.ILogger, dir string, name string) arbor.ILogger {
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
		return logger
	}
	return logger.WithFileWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeFile,
		FileName:         filepath.Join(dir, name),
		TimeFormat:       "15:04:05",
		MaxSize:          100 * 1024 * 1024, // 100 MB
		MaxBackups:       3,
		OutputType:       models.OutputFormatLogfmt,
		DisableTimestamp: false,
	})
}
