package interfaces

import (
	"context"

	"github.com/ternarybob/addressbot/internal/models"
)

// ProcessHandle is the registry's view of a running worker
type ProcessHandle interface {
	PID() int
	// Interrupt asks the worker to stop. It does not wait for the exit.
	Interrupt() error
	// Send delivers a control message to the worker
	Send(msg models.ControlMessage) error
}

// WorkerProcess is a launched worker
type WorkerProcess interface {
	ProcessHandle
	// Messages yields raw progress lines and is closed once the worker's output ends
	Messages() <-chan []byte
	// Wait blocks until the worker has exited and returns its exit error, if any
	Wait() error
}

// LaunchSpec is everything a worker is started with
type LaunchSpec struct {
	Context     models.WorkerContext
	StagingPath string // staged group file, consumed by the worker
	DebugDir    string // root for worker logs and screenshots
}

// WorkerLauncher starts worker processes
type WorkerLauncher interface {
	Launch(ctx context.Context, spec LaunchSpec) (WorkerProcess, error)
}

// GroupStager persists a group where a worker can load it
type GroupStager interface {
	Stage(group []models.WorkItem) (string, error)
	// Discard removes a staged file that no worker will consume
	Discard(path string) error
}

// ProgressObserver receives orchestrator notifications
type ProgressObserver interface {
	OnProgress(event models.ProgressEvent)
	OnPoolConsumed(event models.PoolConsumedEvent)
	OnProcessStarted(event models.ProcessEvent)
	OnProcessExited(event models.ProcessEvent)
	OnRunFinished(report *models.RunReport)
}
