// Package hostloop runs host-side work on a single goroutine.
//
// Breakpoint synchronization and broker state are mutated only from the
// loop. Transport readers and other goroutines hand work over with Post
// (fire and forget) or Do (wait for completion).
package hostloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// ErrStopped is returned when work is submitted to a loop that has exited
var ErrStopped = errors.New("host loop stopped")

type Work = func()

// Loop executes work items one at a time, in submission order. Posting
// never blocks; the queue is unbounded.
type Loop struct {
	log logr.Logger

	mu      sync.Mutex
	queue   []Work
	stopped bool
	running bool

	wake chan struct{}
	done chan struct{}
}

func New(log logr.Logger) *Loop {
	return &Loop{
		log:  log.WithName("hostloop"),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run processes work until ctx is done. Items still queued at that point
// are dropped. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return fmt.Errorf("host loop already started")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		if dropped > 0 {
			l.log.V(1).Info("Dropped queued work", "count", dropped)
		}
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			work, ok := l.next()
			if !ok {
				break
			}
			l.execute(work)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Post queues work. It returns false when the loop has stopped.
func (l *Loop) Post(work Work) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, work)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do queues work and waits until it has run. Do must not be called from
// the loop goroutine.
func (l *Loop) Do(ctx context.Context, work Work) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		work()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (Work, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	work := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return work, true
}

func (l *Loop) execute(work Work) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error(fmt.Errorf("%v", r), "Host loop work panicked")
		}
	}()
	work()
}
