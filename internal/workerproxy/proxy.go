// Package workerproxy implements the WorkerProxy of SPEC_FULL.md §4.3:
// the supervisor-side handle for one Worker OS process — its command
// channel, its process handle, and start/quit/execute/is_alive.
package workerproxy

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/codesprinters/twillmanager/internal/ipc"
	"github.com/codesprinters/twillmanager/internal/logger"
)

// Proxy is the supervisor-side handle for one Worker process.
type Proxy struct {
	WatchID    int64
	binaryPath string
	onEvent    func(ipc.Event)

	mu      sync.Mutex
	started bool
	exited  bool
	cmd     *exec.Cmd
	writer  *ipc.CommandWriter
	done    chan struct{}
}

// New builds a Proxy for the given watch id. onEvent is invoked (from a
// background goroutine) for every Start/End event the worker emits; the
// Supervisor binds this at add time to forward onto its manager channel,
// per the cross-process-callback design note in SPEC_FULL.md §9.
func New(watchID int64, binaryPath string, onEvent func(ipc.Event)) *Proxy {
	return &Proxy{WatchID: watchID, binaryPath: binaryPath, onEvent: onEvent}
}

// Start spawns the worker's OS process and wires its command/event
// streams. It is an error to call Start twice.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker for watch %d already started", p.WatchID)
	}

	childStdinR, childStdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create command pipe: %w", err)
	}
	childStdoutR, childStdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create event pipe: %w", err)
	}

	binary := p.binaryPath
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve worker binary: %w", err)
		}
	}

	cmd := exec.Command(binary, "-worker-mode", "-watch-id", strconv.FormatInt(p.WatchID, 10))
	cmd.Stdin = childStdinR
	cmd.Stdout = childStdoutW
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = childStdinR.Close()
		_ = childStdinW.Close()
		_ = childStdoutR.Close()
		_ = childStdoutW.Close()
		return fmt.Errorf("failed to start worker process: %w", err)
	}

	// These fds now belong to the child; close our copies.
	_ = childStdinR.Close()
	_ = childStdoutW.Close()

	conn := ipc.NewPipePair(childStdoutR, childStdinW)
	cmdStream, eventStream, _, err := ipc.ParentSession(conn)
	if err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to establish IPC session with worker: %w", err)
	}

	p.cmd = cmd
	p.writer = ipc.NewCommandWriter(cmdStream)
	p.started = true
	p.done = make(chan struct{})

	go p.reapOnExit()
	go p.readEvents(ipc.NewEventReader(eventStream))

	logger.Info().Int64("watch_id", p.WatchID).Int("pid", cmd.Process.Pid).Msg("worker process started")
	return nil
}

func (p *Proxy) reapOnExit() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	close(p.done)
	p.mu.Unlock()
	if err != nil {
		logger.Warn().Int64("watch_id", p.WatchID).Err(err).Msg("worker process exited")
	} else {
		logger.Info().Int64("watch_id", p.WatchID).Msg("worker process exited cleanly")
	}
}

func (p *Proxy) readEvents(reader *ipc.EventReader) {
	for {
		ev, err := reader.Recv()
		if err != nil {
			return
		}
		if p.onEvent != nil {
			p.onEvent(ev)
		}
	}
}

// Quit enqueues the Quit command. A check already in progress in the
// worker is never interrupted; it runs to completion before the loop exits.
func (p *Proxy) Quit() error {
	return p.sendCommand(ipc.Command{Kind: ipc.CommandQuit})
}

// Execute enqueues the Execute command, preempting the worker's tick wait.
func (p *Proxy) Execute() error {
	return p.sendCommand(ipc.Command{Kind: ipc.CommandExecute})
}

func (p *Proxy) sendCommand(cmd ipc.Command) error {
	p.mu.Lock()
	writer := p.writer
	started := p.started
	p.mu.Unlock()

	if !started {
		return fmt.Errorf("worker for watch %d not started", p.WatchID)
	}
	return writer.Send(cmd)
}

// IsAlive reports whether the process handle exists and has not exited.
func (p *Proxy) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.exited
}

// Wait blocks until the worker process has been reaped. Used by Remove
// to join the process handle before returning, per SPEC_FULL.md §4.4.
func (p *Proxy) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}
