// Package queue is the in-memory event queue between the webhook endpoint
// and the dispatch loop.
package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	ring "github.com/eapache/queue"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrClosed is returned by Push after Close, and by Pop once the queue
	// is closed and drained.
	ErrClosed = errors.New("queue: closed")
	// ErrEmpty is returned by Pop when the timeout expires with nothing queued.
	ErrEmpty = errors.New("queue: empty")
)

// Event is a raw webhook payload waiting for dispatch.
type Event struct {
	ID         string    // ULID, assigned by Push when empty
	Source     string    // parser hint from the ingestion route, may be empty
	Body       string    // payload text as received
	ReceivedAt time.Time // set by Push when zero
}

// Queue is an unbounded FIFO with many producers and one consumer.
// Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  *ring.Queue
	ready  chan struct{}
	closed bool

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items:   ring.New(),
		ready:   make(chan struct{}, 1),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Push appends ev. It returns the event as stored, with ID and ReceivedAt
// filled in.
func (q *Queue) Push(ev Event) (Event, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = q.newID(ev.ReceivedAt)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ev, ErrClosed
	}
	q.items.Add(ev)
	q.mu.Unlock()

	// Wake the consumer without ever waiting on it.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return ev, nil
}

// TryPop removes the oldest event without waiting.
func (q *Queue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return Event{}, false
	}
	return q.items.Remove().(Event), true
}

// Pop removes the oldest event, waiting up to timeout for one to arrive.
// A non-positive timeout waits until an event arrives, ctx is done, or the
// queue is closed.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Event, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		if ev, ok := q.TryPop(); ok {
			return ev, nil
		}
		if q.isClosed() {
			return Event{}, ErrClosed
		}

		select {
		case <-q.ready:
		case <-expired:
			return Event{}, ErrEmpty
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close stops accepting events. Queued events can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) newID(t time.Time) string {
	q.entropyMu.Lock()
	defer q.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), q.entropy).String()
}
