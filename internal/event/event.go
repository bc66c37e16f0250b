// Package event provides a single-threaded dispatch loop for file descriptor
// readiness events. Callbacks registered through a Notifier always run on the
// loop goroutine, one at a time, so callers can treat the loop as a single
// logical thread.
package event

import (
	"github.com/camstack/camstack/internal/logging"
)

var log = logging.DefaultLogger.WithTag("event")

// Direction selects the readiness condition a Notifier watches for.
type Direction int

const (
	// Read fires when the descriptor becomes readable.
	Read Direction = iota
	// Write fires when the descriptor becomes writable.
	Write
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}
