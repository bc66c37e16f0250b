package event

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Loop multiplexes readiness notifications for any number of file
// descriptors onto one goroutine. It is the explicit replacement for
// ambient signal/slot dispatch: every callback is invoked from Run, in the
// order the kernel reports readiness.
type Loop struct {
	epfd   int
	wakefd int

	mu        sync.Mutex
	notifiers map[int]*Notifier
	deferred  []func()

	stopOnce sync.Once
	quit     chan struct{}
}

// NewLoop creates a loop with its epoll instance and wakeup descriptor.
func NewLoop() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "create epoll instance")
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "create wakeup eventfd")
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "register wakeup descriptor")
	}

	return &Loop{
		epfd:      epfd,
		wakefd:    wakefd,
		notifiers: make(map[int]*Notifier),
		quit:      make(chan struct{}),
	}, nil
}

// Run dispatches events until Stop is called. It blocks the calling
// goroutine; all notifier callbacks and deferred calls execute here.
func (l *Loop) Run() {
	events := make([]unix.EpollEvent, 16)
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Error("epoll_wait: %v", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakefd {
				l.drainWakeup()
				continue
			}
			l.dispatch(fd)
		}

		l.runDeferred()
	}
}

// Stop makes Run return once the current batch of events has been
// dispatched. It may be called from any goroutine, including notifier
// callbacks and deferred calls running on the loop itself, and calling it
// more than once is a no-op.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		l.wake()
	})
}

// Close releases the loop's descriptors. Run must have returned.
func (l *Loop) Close() error {
	unix.Close(l.wakefd)
	return unix.Close(l.epfd)
}

// Call schedules fn to run on the loop goroutine after the current batch of
// events has been dispatched.
func (l *Loop) Call(fn func()) {
	l.mu.Lock()
	l.deferred = append(l.deferred, fn)
	l.mu.Unlock()
	l.wake()
}

func (l *Loop) dispatch(fd int) {
	l.mu.Lock()
	n := l.notifiers[fd]
	l.mu.Unlock()

	// The notifier may have been disabled or closed after the kernel
	// reported readiness but before dispatch.
	if n == nil || !n.enabled() {
		return
	}
	n.fn()
}

func (l *Loop) runDeferred() {
	l.mu.Lock()
	fns := l.deferred
	l.deferred = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (l *Loop) wake() {
	// The eventfd write adds to the kernel counter, so keep the increment
	// at one to stay far from the overflow threshold.
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	unix.Write(l.wakefd, buf[:])
}

func (l *Loop) drainWakeup() {
	var buf [8]byte
	unix.Read(l.wakefd, buf[:])
}
