package transport

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/ha1tch/pgwire/pgerr"
)

// Async is the cooperative-async transport adapter (SPEC_FULL.md §4.9/§5).
// Go has no native coroutines, so "suspend on read/write" is modelled as an
// ordinary blocking net.Conn call made cancellable via context: a read or
// write in flight races a ctx.Done() in a second goroutine, and on
// cancellation the connection is closed immediately — "no in-band cancel"
// means there is nothing gentler to do (SPEC_FULL.md §5's Cancellation
// rule). The single-task invariant that frees the sync adapter's mutex is
// enforced here with a single atomic flag instead: exactly one Execute may
// be in flight at a time, checked with a CAS rather than a lock, matching
// "no locks in the hot path" per §5.
type Async struct {
	conn    net.Conn
	busy    atomic.Bool
	readBuf []byte
}

// NewAsync wraps an already-dialed net.Conn.
func NewAsync(conn net.Conn) *Async {
	return &Async{conn: conn, readBuf: make([]byte, 16*1024)}
}

// Enter marks the connection busy for the duration of one execute. It
// returns an error (InvalidOperationError, never blocking) if another
// execute is already in flight.
func (a *Async) Enter() error {
	if !a.busy.CompareAndSwap(false, true) {
		return pgerr.InvalidOperation("concurrent execute on the same connection")
	}
	return nil
}

// Leave clears the busy flag; always call it (deferred) after Enter succeeds.
func (a *Async) Leave() { a.busy.Store(false) }

// ReadChunk suspends the caller's goroutine until data arrives, ctx is
// cancelled, or the connection closes. On cancellation the connection is
// closed per SPEC_FULL.md §5: partial state must never be exposed, and
// the protocol offers no in-band cancel.
func (a *Async) ReadChunk(ctx context.Context) ([]byte, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := a.conn.Read(a.readBuf)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		a.conn.Close()
		return nil, ctx.Err()
	case r := <-done:
		if r.n > 0 {
			chunk := make([]byte, r.n)
			copy(chunk, a.readBuf[:r.n])
			if r.err != nil {
				return chunk, nil
			}
			return chunk, r.err
		}
		return nil, r.err
	}
}

// Write suspends until the write completes, ctx is cancelled, or the
// connection closes; a cancelled write closes the connection for the same
// reason a cancelled read does.
func (a *Async) Write(ctx context.Context, data []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := a.conn.Write(data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		a.conn.Close()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Close closes the underlying connection.
func (a *Async) Close() error { return a.conn.Close() }
