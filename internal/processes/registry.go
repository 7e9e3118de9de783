// Package processes tracks the worker processes of one orchestrator run.
package processes

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

// ErrDuplicatePID is returned when registering a pid that is already running
var ErrDuplicatePID = errors.New("pid already registered")

// State is the lifecycle state of a registry entry
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
)

// ProcessInfo is a read-only view of a registry entry
type ProcessInfo struct {
	PID       int          `json:"pid"`
	Phase     models.Phase `json:"phase"`
	State     State        `json:"state"`
	Labels    []string     `json:"labels"`
	StartedAt time.Time    `json:"startedAt"`
	ExitedAt  time.Time    `json:"exitedAt,omitempty"`
	ExitError string       `json:"exitError,omitempty"`
}

type entry struct {
	info   ProcessInfo
	handle interfaces.ProcessHandle // nil once exited
}

// Registry maps pids to worker handles. Exited workers keep their entry so every pid
// seen during the run stays listed; only Running entries have a handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
	order   []int
	logger  arbor.ILogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		entries: make(map[int]*entry),
		logger:  logger,
	}
}

// Register stores a running worker. A pid may be reused once its previous holder has exited.
func (r *Registry) Register(pid int, phase models.Phase, labels []string, handle interfaces.ProcessHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[pid]; ok {
		if existing.info.State == StateRunning {
			return fmt.Errorf("%w: %d", ErrDuplicatePID, pid)
		}
	} else {
		r.order = append(r.order, pid)
	}

	r.entries[pid] = &entry{
		info: ProcessInfo{
			PID:       pid,
			Phase:     phase,
			State:     StateRunning,
			Labels:    labels,
			StartedAt: time.Now(),
		},
		handle: handle,
	}

	r.logger.Debug().
		Int("pid", pid).
		Str("phase", string(phase)).
		Int("items", len(labels)).
		Msg("Worker registered")
	return nil
}

// Lookup returns the handle of a running worker
func (r *Registry) Lookup(pid int) (interfaces.ProcessHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[pid]
	if !ok || e.info.State != StateRunning {
		return nil, false
	}
	return e.handle, true
}

// MarkExited tombstones the entry: the pid stays known but has no handle
func (r *Registry) MarkExited(pid int, exitErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[pid]
	if !ok {
		r.logger.Warn().Int("pid", pid).Msg("Exit reported for unknown worker")
		return
	}
	e.info.State = StateExited
	e.info.ExitedAt = time.Now()
	if exitErr != nil {
		e.info.ExitError = exitErr.Error()
	}
	e.handle = nil
}

// CancelOne interrupts the worker at pid. Unknown or exited pids are a logged no-op.
func (r *Registry) CancelOne(pid int) bool {
	handle, ok := r.Lookup(pid)
	if !ok {
		r.logger.Info().Int("pid", pid).Msg("Cancel requested for a worker that is not running")
		return false
	}

	if err := handle.Interrupt(); err != nil {
		r.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to interrupt worker")
		return false
	}
	r.logger.Info().Int("pid", pid).Msg("Worker interrupted")
	return true
}

// CancelChild asks the worker at pid to cancel one of its sub-workers
func (r *Registry) CancelChild(pid, childID int) bool {
	handle, ok := r.Lookup(pid)
	if !ok {
		r.logger.Info().Int("pid", pid).Int("child_pid", childID).Msg("No process for pid")
		return false
	}

	if err := handle.Send(models.ControlMessage{Type: models.ControlOne, ChildID: childID}); err != nil {
		r.logger.Warn().Err(err).Int("pid", pid).Int("child_pid", childID).Msg("Failed to send cancel to worker")
		return false
	}
	r.logger.Info().Int("pid", pid).Int("child_pid", childID).Msg("Sub-worker cancel sent")
	return true
}

// CancelAll tells every running worker to cancel everything it owns. A worker that
// cannot be messaged is interrupted instead. Returns the number of workers signalled.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	handles := make(map[int]interfaces.ProcessHandle)
	for pid, e := range r.entries {
		if e.info.State == StateRunning && e.handle != nil {
			handles[pid] = e.handle
		}
	}
	r.mu.RUnlock()

	signalled := 0
	for pid, handle := range handles {
		r.logger.Info().Int("pid", pid).Msg("Cancelling worker")
		if err := handle.Send(models.ControlMessage{Type: models.ControlAll}); err != nil {
			r.logger.Warn().Err(err).Int("pid", pid).Msg("Control message failed, interrupting worker")
			if err := handle.Interrupt(); err != nil {
				r.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to interrupt worker")
				continue
			}
		}
		signalled++
	}
	return signalled
}

// PIDs returns every pid seen during the run, in registration order
func (r *Registry) PIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// Running returns the pids of workers that have not exited, sorted
func (r *Registry) Running() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []int
	for pid, e := range r.entries {
		if e.info.State == StateRunning {
			out = append(out, pid)
		}
	}
	sort.Ints(out)
	return out
}

// Exited returns the number of tombstoned entries
func (r *Registry) Exited() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.info.State == StateExited {
			n++
		}
	}
	return n
}

// Len returns the number of known pids
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns every entry in registration order
func (r *Registry) Snapshot() []ProcessInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProcessInfo, 0, len(r.order))
	for _, pid := range r.order {
		info := r.entries[pid].info
		info.Labels = append([]string(nil), info.Labels...)
		out = append(out, info)
	}
	return out
}

// Reset forgets every entry. Running workers are not signalled.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[int]*entry)
	r.order = nil
}
