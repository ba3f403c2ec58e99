// Package transport provides the blocking-socket binding (C9, sync
// flavour) of SPEC_FULL.md §4.9: a mutex-guarded net.Conn wrapper that
// feeds raw bytes to the wire.Framer and writes raw bytes back out,
// leaving all protocol-level decisions to protocol.Machine and the
// execution façade above it.
package transport

import (
	"net"
	"sync"
	"time"
)

// Sync is the blocking-socket transport adapter. A single mutex serializes
// writes and Close; ReadChunk holds it only to copy its fields and reads
// without it. The mutex does not guard the protocol state machine or the
// statement cache.
//
// Grounded on tds/conn.go's Conn: a net.Conn plus a sync.Mutex, read/write
// deadlines applied per operation, buffered reads via bufio-sized chunks.
type Sync struct {
	mu   sync.Mutex
	conn net.Conn

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	readBuf []byte
}

// NewSync wraps an already-dialed net.Conn (including one already upgraded
// to TLS, since the SSL handshake mechanics are out of scope per
// SPEC_FULL.md §1/§6).
func NewSync(conn net.Conn) *Sync {
	return &Sync{conn: conn, readBuf: make([]byte, 16*1024)}
}

// ReadChunk reads whatever is currently available (at least one byte,
// unless the deadline expires or the connection closes) into a fresh
// slice, for feeding to a wire.Framer. This mirrors sync_protocol.py's
// read(): one recv_into call per iteration, no framing awareness at all.
func (s *Sync) ReadChunk() ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	timeout := s.ReadTimeout
	s.mu.Unlock()

	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Read(s.readBuf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.readBuf[:n])
		if err != nil {
			return chunk, nil
		}
		return chunk, err
	}
	return nil, err
}

// Write sends data to the server, taking the transport mutex so that a
// concurrent background-reader dispatch (for idle-time notification
// delivery) never interleaves writes with a foreground execute's writes.
func (s *Sync) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	_, err := s.conn.Write(data)
	return err
}

// Close closes the underlying connection.
func (s *Sync) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// LocalAddr/RemoteAddr mirror tds/conn.go's accessors.
func (s *Sync) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *Sync) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
