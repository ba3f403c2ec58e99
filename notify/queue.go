// Package notify implements the bounded asynchronous notification queue
// (SPEC_FULL.md §4.8): a FIFO of NOTIFY payloads fed by the protocol state
// machine's NotificationResponse ('A') handling and drained by the caller
// via blocking, timed, or non-blocking Get.
package notify

import (
	"sync"
	"time"

	"github.com/ha1tch/pgwire/pgerr"
)

// Notification is one decoded NOTIFY payload.
type Notification struct {
	ProcessID uint32
	Channel   string
	Payload   string
}

// Queue is a bounded FIFO safe for one producer (the state machine, driven
// from whichever transport adapter currently owns the socket) and one
// consumer (the caller). A size of 0 means unbounded.
//
// Per SPEC_FULL.md §4.8's Open Question (a) resolution: both transport
// adapters guarantee there is only ever one reader of the socket at a time
// (the COPY-OUT pump and the frame dispatcher are the same loop), so Put is
// always called from that single dispatch path. No locking beyond the
// queue's own mutex/condition-variable pair is required.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []Notification
	size     int
	closed   bool
}

// NewQueue constructs a Queue. size<=0 means unbounded; Put on a bounded,
// full queue drops the oldest notification, matching a best-effort pub/sub
// FIFO rather than blocking the producer (the producer is the protocol
// dispatch loop and must never stall on a slow consumer).
func NewQueue(size int) *Queue {
	q := &Queue{size: size}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a notification. Implements the NotificationSink interface
// the state machine (C5) depends on.
func (q *Queue) Put(processID uint32, channel, payload string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.size > 0 && len(q.items) >= q.size {
		q.items = q.items[1:]
	}
	q.items = append(q.items, Notification{ProcessID: processID, Channel: channel, Payload: payload})
	q.notEmpty.Signal()
}

// Get blocks until a notification is available or the queue is closed.
func (q *Queue) Get() (Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	return q.popLocked()
}

// GetTimeout blocks until a notification is available, the timeout elapses
// (returning errQueueEmpty, an InvalidOperationError — see SPEC_FULL.md
// §4.8), or the queue closes.
func (q *Queue) GetTimeout(timeout time.Duration) (Notification, error) {
	deadline := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		close(deadline)
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		select {
		case <-deadline:
			return Notification{}, errQueueEmpty
		default:
		}
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return Notification{}, errQueueEmpty
	}
	return q.popLocked()
}

// GetNoWait returns immediately: ok is false if nothing is queued.
func (q *Queue) GetNoWait() (n Notification, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Notification{}, false
	}
	n, _ = q.popLocked()
	return n, true
}

// Close unblocks any pending Get/GetTimeout callers; subsequent Put calls
// are silently dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}

// Len reports the number of currently queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) popLocked() (Notification, error) {
	if len(q.items) == 0 {
		return Notification{}, errQueueClosed
	}
	n := q.items[0]
	q.items = q.items[1:]
	return n, nil
}

var errQueueEmpty = pgerr.InvalidOperation("notification queue empty: timed out waiting for NOTIFY")
var errQueueClosed = pgerr.InvalidOperation("notification queue closed")
