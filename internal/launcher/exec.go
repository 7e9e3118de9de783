// Package launcher starts worker processes and wires their stdio to the orchestrator.
//
// A worker is invoked as
//
//	<binary> [prefix args...] <context JSON> <staged group path> <debug dir>
//
// Its stdout carries one JSON progress report per line. Its stdin receives one JSON
// control message per line.
package launcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

// WorkerBinaryName is the worker executable looked up next to the orchestrator
const WorkerBinaryName = "addressbot-worker"

const maxLineSize = 1024 * 1024

// ExecLauncher launches workers as child processes
type ExecLauncher struct {
	binary     string
	prefixArgs []string
	env        []string
	waitDelay  time.Duration
	logger     arbor.ILogger
}

// Option configures an ExecLauncher
type Option func(*ExecLauncher)

// WithPrefixArgs inserts arguments before the worker contract arguments
func WithPrefixArgs(args ...string) Option {
	return func(l *ExecLauncher) { l.prefixArgs = append(l.prefixArgs, args...) }
}

// WithEnv adds environment variables to the worker environment
func WithEnv(env ...string) Option {
	return func(l *ExecLauncher) { l.env = append(l.env, env...) }
}

// WithWaitDelay bounds how long Wait blocks on output after the launch context is cancelled
func WithWaitDelay(d time.Duration) Option {
	return func(l *ExecLauncher) { l.waitDelay = d }
}

// NewExecLauncher creates a launcher for the given worker binary
func NewExecLauncher(binary string, logger arbor.ILogger, opts ...Option) *ExecLauncher {
	l := &ExecLauncher{
		binary:    binary,
		waitDelay: 10 * time.Second,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ResolveWorkerBinary returns configured, or the worker binary next to the running executable
func ResolveWorkerBinary(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	name := WorkerBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(exePath), name), nil
}

// Launch starts one worker. Cancelling ctx interrupts the worker.
func (l *ExecLauncher) Launch(ctx context.Context, spec interfaces.LaunchSpec) (interfaces.WorkerProcess, error) {
	ctxJSON, err := json.Marshal(spec.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode worker context: %w", err)
	}

	args := append(append([]string{}, l.prefixArgs...), string(ctxJSON), spec.StagingPath, spec.DebugDir)
	cmd := exec.CommandContext(ctx, l.binary, args...)
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = l.waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %s: %w", l.binary, err)
	}

	p := &process{
		cmd:        cmd,
		stdin:      stdin,
		messages:   make(chan []byte, 64),
		stdoutDone: make(chan struct{}),
		stderrDone: make(chan struct{}),
		logger:     l.logger,
	}

	common.SafeGo(l.logger, fmt.Sprintf("worker-stdout:%d", p.PID()), func() { p.readStdout(stdout) })
	common.SafeGo(l.logger, fmt.Sprintf("worker-stderr:%d", p.PID()), func() { p.readStderr(stderr) })

	l.logger.Info().
		Int("pid", p.PID()).
		Str("phase", string(spec.Context.Phase)).
		Str("staging", spec.StagingPath).
		Msg("Worker started")

	return p, nil
}

type process struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	sendMu     sync.Mutex
	messages   chan []byte
	stdoutDone chan struct{}
	stderrDone chan struct{}
	waitOnce   sync.Once
	waitErr    error
	logger     arbor.ILogger
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Messages() <-chan []byte {
	return p.messages
}

func (p *process) Interrupt() error {
	return interrupt(p.cmd.Process)
}

func (p *process) Send(msg models.ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send control message to worker %d: %w", p.PID(), err)
	}
	return nil
}

// Wait drains the worker's output, then reaps it. Safe to call more than once.
func (p *process) Wait() error {
	p.waitOnce.Do(func() {
		<-p.stdoutDone
		<-p.stderrDone
		p.waitErr = p.cmd.Wait()

		p.sendMu.Lock()
		p.stdin.Close()
		p.sendMu.Unlock()
	})
	return p.waitErr
}

func (p *process) readStdout(r io.Reader) {
	defer close(p.stdoutDone)
	defer close(p.messages)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		p.messages <- msg
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn().Err(err).Int("pid", p.PID()).Msg("Worker output stream ended with error")
		// Keep the pipe drained so the worker does not block on a full stdout
		io.Copy(io.Discard, r)
	}
}

func (p *process) readStderr(r io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.logger.Warn().Int("pid", p.PID()).Str("stderr", scanner.Text()).Msg("Worker stderr")
	}
	io.Copy(io.Discard, r)
}

func interrupt(proc *os.Process) error {
	if proc == nil {
		return errors.New("worker not started")
	}
	// os.Interrupt is not implemented on Windows
	if runtime.GOOS == "windows" {
		return proc.Kill()
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	return nil
}
