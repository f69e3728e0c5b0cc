package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprinters/twillmanager/internal/ipc"
)

// fakeProxy is a Proxy stand-in that never spawns a real OS process.
type fakeProxy struct {
	mu        sync.Mutex
	alive     bool
	startErr  error
	quitCalls int
	execCalls int
	onEvent   func(ipc.Event)
}

func (f *fakeProxy) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.alive = true
	f.mu.Unlock()
	return nil
}

func (f *fakeProxy) Quit() error {
	f.mu.Lock()
	f.quitCalls++
	f.alive = false
	f.mu.Unlock()
	return nil
}

func (f *fakeProxy) Execute() error {
	f.mu.Lock()
	f.execCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeProxy) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeProxy) Wait() {}

func newTestSupervisor(proxies map[int64]*fakeProxy) *Supervisor {
	spawn := func(id int64, onEvent func(ipc.Event)) Proxy {
		p, ok := proxies[id]
		if !ok {
			p = &fakeProxy{}
			proxies[id] = p
		}
		p.onEvent = onEvent
		return p
	}
	return newWithSpawn(spawn, time.Hour)
}

func TestAddIsIdempotent(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.Add(1))
	require.NoError(t, s.Add(1))

	assert.True(t, s.IsAlive(1))
	assert.Equal(t, 1, len(proxies))
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	s := newTestSupervisor(map[int64]*fakeProxy{})
	defer s.Finish()

	assert.NoError(t, s.Remove(99))
}

func TestRemoveSignalsQuitAndClearsState(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.Add(1))
	require.NoError(t, s.Remove(1))

	assert.Equal(t, 1, proxies[1].quitCalls)
	assert.False(t, s.IsAlive(1))
	_, ok := s.Get(1)
	assert.False(t, ok)
}

func TestRestartReplacesProxy(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.Add(1))
	old := proxies[1]
	delete(proxies, 1)

	require.NoError(t, s.Restart(1))

	assert.Equal(t, 1, old.quitCalls)
	assert.True(t, s.IsAlive(1))
}

func TestCheckNowRestartsThenExecutes(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.CheckNow(1))

	assert.True(t, s.IsAlive(1))
	assert.True(t, s.IsBuilding(1))
	assert.Equal(t, 1, proxies[1].execCalls)
}

func TestCheckNowOnUnregisteredIDStartsIt(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	_, registered := s.Get(1)
	require.False(t, registered)
	require.NoError(t, s.CheckNow(1))

	_, ok := s.Get(1)
	assert.True(t, ok)
}

func TestManagerLoopTracksStartEndEvents(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.Add(1))

	proxies[1].onEvent(ipc.Event{Kind: ipc.EventStart, WatchID: 1})
	assert.Eventually(t, func() bool { return s.IsBuilding(1) }, time.Second, time.Millisecond)

	proxies[1].onEvent(ipc.Event{Kind: ipc.EventEnd, WatchID: 1})
	assert.Eventually(t, func() bool { return !s.IsBuilding(1) }, time.Second, time.Millisecond)
}

func TestWorkerStatusDict(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	s := newTestSupervisor(proxies)
	defer s.Finish()

	require.NoError(t, s.Add(1))
	alive, building := s.WorkerStatusDict(1)
	assert.True(t, alive)
	assert.False(t, building)
}

func TestSweepRestartsDeadWorkers(t *testing.T) {
	proxies := map[int64]*fakeProxy{}
	spawn := func(id int64, onEvent func(ipc.Event)) Proxy {
		p, ok := proxies[id]
		if !ok {
			p = &fakeProxy{}
			proxies[id] = p
		}
		p.onEvent = onEvent
		return p
	}
	s := newWithSpawn(spawn, 10*time.Millisecond)
	defer s.Finish()

	require.NoError(t, s.Add(1))
	proxies[1].mu.Lock()
	proxies[1].alive = false
	proxies[1].mu.Unlock()

	assert.Eventually(t, func() bool {
		return s.IsAlive(1)
	}, time.Second, 5*time.Millisecond)
}

func TestFinishStopsManagerLoop(t *testing.T) {
	s := newTestSupervisor(map[int64]*fakeProxy{})
	s.Finish()
}
