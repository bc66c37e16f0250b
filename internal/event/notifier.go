package event

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Notifier watches one file descriptor for readiness in one direction and
// invokes its callback from the loop goroutine. Notifiers start disabled;
// they are armed with SetEnabled once there is work to wait for.
type Notifier struct {
	loop *Loop
	fd   int
	dir  Direction
	fn   func()

	armed atomic.Bool
}

// NewNotifier registers a disabled notifier for fd with the loop. The
// callback runs on the loop goroutine whenever the descriptor is ready and
// the notifier is enabled.
func (l *Loop) NewNotifier(fd int, dir Direction, fn func()) (*Notifier, error) {
	if fn == nil {
		return nil, errors.New("notifier requires a callback")
	}

	n := &Notifier{loop: l, fd: fd, dir: dir, fn: fn}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.notifiers[fd]; exists {
		return nil, errors.Errorf("fd %d already has a notifier", fd)
	}
	l.notifiers[fd] = n

	return n, nil
}

// SetEnabled arms or disarms the readiness watch. Safe to call from any
// goroutine; enabling an enabled notifier is a no-op.
func (n *Notifier) SetEnabled(enable bool) error {
	if n.armed.Swap(enable) == enable {
		return nil
	}

	if enable {
		var events uint32 = unix.EPOLLIN
		if n.dir == Write {
			events = unix.EPOLLOUT
		}
		ev := unix.EpollEvent{Events: events, Fd: int32(n.fd)}
		if err := unix.EpollCtl(n.loop.epfd, unix.EPOLL_CTL_ADD, n.fd, &ev); err != nil {
			n.armed.Store(false)
			return errors.Wrapf(err, "arm %s watch on fd %d", n.dir, n.fd)
		}
		return nil
	}

	if err := unix.EpollCtl(n.loop.epfd, unix.EPOLL_CTL_DEL, n.fd, nil); err != nil {
		return errors.Wrapf(err, "disarm watch on fd %d", n.fd)
	}
	return nil
}

// Close disables the notifier and removes it from the loop.
func (n *Notifier) Close() error {
	err := n.SetEnabled(false)

	n.loop.mu.Lock()
	delete(n.loop.notifiers, n.fd)
	n.loop.mu.Unlock()

	return err
}

func (n *Notifier) enabled() bool {
	return n.armed.Load()
}
