package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T) *Loop {
	loop, err := NewLoop()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { loop.Close() })
	return loop
}

// runLoop starts Run on its own goroutine and returns a channel that closes
// when Run returns.
func runLoop(loop *Loop) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()
	return done
}

func waitLoop(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopStopFromDeferredCall(t *testing.T) {
	loop := newTestLoop(t)
	done := runLoop(loop)

	// Stopping from a callback running on the loop goroutine must not
	// block waiting for the loop to exit.
	loop.Call(func() { loop.Stop() })
	waitLoop(t, done)
}

func TestLoopStopFromNotifierCallback(t *testing.T) {
	loop := newTestLoop(t)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})

	fired := false
	n, err := loop.NewNotifier(fds[0], Read, func() {
		var buf [1]byte
		unix.Read(fds[0], buf[:])
		fired = true
		loop.Stop()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	n.SetEnabled(true)

	done := runLoop(loop)
	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatal(err)
	}
	waitLoop(t, done)
	assert.True(t, fired)
}

func TestLoopStopIdempotent(t *testing.T) {
	loop := newTestLoop(t)
	done := runLoop(loop)

	// Concurrent stop requests, as when a frame limit races a signal
	// handler, must all be safe.
	loop.Stop()
	assert.NotPanics(t, func() { loop.Stop() })
	waitLoop(t, done)
	assert.NotPanics(t, func() { loop.Stop() })
}

func TestLoopCallOrder(t *testing.T) {
	loop := newTestLoop(t)

	var got []int
	loop.Call(func() { got = append(got, 1) })
	loop.Call(func() { got = append(got, 2) })
	loop.Call(func() {
		got = append(got, 3)
		loop.Stop()
	})

	done := runLoop(loop)
	waitLoop(t, done)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoopRepeatedWakes(t *testing.T) {
	loop := newTestLoop(t)

	// Far more wakeups than the eventfd could absorb if each write were
	// a large counter increment.
	const rounds = 300
	count := 0
	var step func()
	step = func() {
		count++
		if count == rounds {
			loop.Stop()
			return
		}
		loop.Call(step)
	}
	loop.Call(step)

	done := runLoop(loop)
	waitLoop(t, done)
	assert.Equal(t, rounds, count)
}
