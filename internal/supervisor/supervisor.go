// Package supervisor implements the Supervisor (WorkerSet) of
// SPEC_FULL.md §4.4: the registry of WorkerProxy handles, the
// building-flag map, and the background manager loop that multiplexes
// twill start/end events and sweeps for dead workers every poll timeout.
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/codesprinters/twillmanager/internal/ipc"
	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/workerproxy"
)

// Proxy is the subset of workerproxy.Proxy's behavior the Supervisor
// depends on. Defined as an interface so tests can substitute a fake
// without spawning real OS processes.
type Proxy interface {
	Start() error
	Quit() error
	Execute() error
	IsAlive() bool
	Wait()
}

// SpawnFunc constructs a not-yet-started Proxy for a watch id, binding
// onEvent as the worker's twill start/end callback.
type SpawnFunc func(id int64, onEvent func(ipc.Event)) Proxy

type managerMsg struct {
	kind    string // "start", "end", "quit"
	watchID int64
}

// Supervisor is the registry and control surface over all worker proxies.
type Supervisor struct {
	mu       sync.Mutex
	workers  map[int64]Proxy
	building map[int64]bool

	spawn       SpawnFunc
	pollTimeout time.Duration
	managerCh   chan managerMsg
	done        chan struct{}
}

// New builds a Supervisor that spawns workers as re-exec'd copies of
// binaryPath (empty means the running executable), polling for dead
// workers every pollTimeout.
func New(binaryPath string, pollTimeout time.Duration) *Supervisor {
	spawn := func(id int64, onEvent func(ipc.Event)) Proxy {
		return workerproxy.New(id, binaryPath, onEvent)
	}
	return newWithSpawn(spawn, pollTimeout)
}

func newWithSpawn(spawn SpawnFunc, pollTimeout time.Duration) *Supervisor {
	s := &Supervisor{
		workers:     make(map[int64]Proxy),
		building:    make(map[int64]bool),
		spawn:       spawn,
		pollTimeout: pollTimeout,
		managerCh:   make(chan managerMsg, 256),
		done:        make(chan struct{}),
	}
	go s.managerLoop()
	return s
}

// Add idempotently starts a worker for id. A second Add is a no-op.
func (s *Supervisor) Add(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(id)
}

func (s *Supervisor) addLocked(id int64) error {
	if _, ok := s.workers[id]; ok {
		return nil
	}

	proxy := s.spawn(id, func(ev ipc.Event) {
		switch ev.Kind {
		case ipc.EventStart:
			s.managerCh <- managerMsg{kind: "start", watchID: id}
		case ipc.EventEnd:
			s.managerCh <- managerMsg{kind: "end", watchID: id}
		}
	})

	s.building[id] = false
	if err := proxy.Start(); err != nil {
		delete(s.building, id)
		return fmt.Errorf("failed to start worker for watch %d: %w", id, err)
	}
	s.workers[id] = proxy
	return nil
}

// Remove is idempotent: removing an absent id is a no-op. It sends quit,
// deletes both registry entries, then joins the process handle.
func (s *Supervisor) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Supervisor) removeLocked(id int64) error {
	proxy, ok := s.workers[id]
	if !ok {
		return nil
	}
	if err := proxy.Quit(); err != nil {
		logger.Warn().Int64("watch_id", id).Err(err).Msg("failed to signal quit to worker")
	}
	delete(s.workers, id)
	delete(s.building, id)
	proxy.Wait()
	return nil
}

// Restart is remove(id); add(id).
func (s *Supervisor) Restart(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeLocked(id); err != nil {
		return err
	}
	return s.addLocked(id)
}

// CheckNow restarts the worker (recovering it if dead, or starting it
// for the first time if id was never registered) and tells it to
// execute immediately.
func (s *Supervisor) CheckNow(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeLocked(id); err != nil {
		return err
	}
	if err := s.addLocked(id); err != nil {
		return err
	}
	s.building[id] = true
	return s.workers[id].Execute()
}

// IsAlive reports whether the registered worker's process is alive.
func (s *Supervisor) IsAlive(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.workers[id]
	return ok && p.IsAlive()
}

// IsBuilding reports whether the worker is currently between its twill
// start and end events.
func (s *Supervisor) IsBuilding(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.building[id]
}

// Get returns the registered proxy, if any.
func (s *Supervisor) Get(id int64) (Proxy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.workers[id]
	return p, ok
}

// WorkerStatusDict reports the {alive, building} pair for id.
func (s *Supervisor) WorkerStatusDict(id int64) (alive bool, building bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.workers[id]
	return ok && p.IsAlive(), s.building[id]
}

// WorkerIDs returns the ids of every currently registered worker, for
// callers that need to aggregate status across the whole set (the health
// endpoint in particular).
func (s *Supervisor) WorkerIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	return ids
}

// Finish stops the manager loop and waits for it to exit. Existing
// proxies are not forcibly removed; callers that want a clean shutdown
// call Remove on each id first.
func (s *Supervisor) Finish() {
	s.managerCh <- managerMsg{kind: "quit"}
	<-s.done
}

// managerLoop is the single background goroutine that multiplexes
// twill start/end events into the building map and, on a pollTimeout
// silence, sweeps the registry for dead workers and restarts them.
func (s *Supervisor) managerLoop() {
	defer close(s.done)

	for {
		select {
		case msg := <-s.managerCh:
			switch msg.kind {
			case "quit":
				return
			case "start":
				s.mu.Lock()
				s.building[msg.watchID] = true
				s.mu.Unlock()
			case "end":
				s.mu.Lock()
				s.building[msg.watchID] = false
				s.mu.Unlock()
			default:
				logger.Warn().Str("command", msg.kind).Msg("unknown command to manager loop")
			}
		case <-time.After(s.pollTimeout):
			s.sweep()
		}
	}
}

// sweep restarts every registered worker whose process is no longer alive.
func (s *Supervisor) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []int64
	for id, p := range s.workers {
		if !p.IsAlive() {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		logger.Warn().Int64("watch_id", id).Msg("restarting dead worker")
		if err := s.removeLocked(id); err != nil {
			logger.Error().Int64("watch_id", id).Err(err).Msg("failed to remove dead worker")
			continue
		}
		if err := s.addLocked(id); err != nil {
			logger.Error().Int64("watch_id", id).Err(err).Msg("failed to restart worker")
		}
	}
}
