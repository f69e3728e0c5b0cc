package workerproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAliveBeforeStart(t *testing.T) {
	p := New(1, "/bin/true", nil)
	assert.False(t, p.IsAlive())
}

func TestCommandsFailBeforeStart(t *testing.T) {
	p := New(1, "/bin/true", nil)
	assert.Error(t, p.Quit())
	assert.Error(t, p.Execute())
}

func TestWaitReturnsImmediatelyWhenNeverStarted(t *testing.T) {
	p := New(1, "/bin/true", nil)
	p.Wait() // must not block
}
