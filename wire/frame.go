// Package wire implements PostgreSQL v3.0 wire-protocol framing (the
// incremental (type, length, payload) parser) and frontend message
// serialisation.
package wire

import (
	"encoding/binary"

	"github.com/ha1tch/pgwire/pgerr"
)

// StandardBufSize is the framer's default scratch buffer. Messages that fit
// within it are parsed without any extra allocation; larger messages get a
// one-shot buffer sized exactly to the frame, which is released once the
// frame has been consumed and the framer is idle again.
const StandardBufSize = 0x4000 // 16 KiB

// Frame is one parsed backend message: an identifier byte plus its payload
// (the bytes after the 4-byte length word). Payload aliases the framer's
// internal buffer and is only valid until the next call to Next.
type Frame struct {
	Type    byte
	Payload []byte
}

// Framer incrementally parses frames out of a byte stream that may arrive in
// arbitrarily small or large chunks. Feed appends newly-read bytes; Next
// extracts complete frames, reporting false when more data is required.
//
// Framer holds no reference to a connection or transport: it is handed bytes
// and hands back frames, so it has no ownership cycle with the state machine
// that drives it (see SPEC_FULL.md §9).
type Framer struct {
	buf      []byte
	filled   int
	consumed int
}

// NewFramer returns a Framer with its standard-size scratch buffer
// allocated.
func NewFramer() *Framer {
	return &Framer{buf: make([]byte, StandardBufSize)}
}

// Feed appends newly read bytes to the framer's buffer, growing it if a
// frame currently being assembled needs more room than the standard buffer
// provides.
func (f *Framer) Feed(p []byte) {
	f.ensureCapacity(f.filled + len(p))
	copy(f.buf[f.filled:], p)
	f.filled += len(p)
}

// Next extracts the next complete frame, if one is available. A false
// return (with nil error) means: feed more bytes and call Next again.
func (f *Framer) Next() (*Frame, bool, error) {
	avail := f.filled - f.consumed
	if avail < 5 {
		f.compact()
		return nil, false, nil
	}

	header := f.buf[f.consumed : f.consumed+5]
	msgType := header[0]
	length := int32(binary.BigEndian.Uint32(header[1:5]))
	if length < 4 {
		return nil, false, pgerr.Protocol("negative or undersized frame length %d for message %q", length, msgType)
	}
	msgLen := int(length) - 4

	if avail < 5+msgLen {
		f.ensureCapacity(f.consumed + 5 + msgLen)
		f.compact()
		return nil, false, nil
	}

	payload := f.buf[f.consumed+5 : f.consumed+5+msgLen]
	f.consumed += 5 + msgLen
	frame := &Frame{Type: msgType, Payload: payload}

	if f.consumed == f.filled {
		f.consumed, f.filled = 0, 0
		if cap(f.buf) > StandardBufSize {
			// Release the one-shot oversized buffer now that the framer is
			// idle; restore the standard buffer (SPEC_FULL.md §4.1).
			f.buf = make([]byte, StandardBufSize)
		}
	}

	return frame, true, nil
}

// ensureCapacity grows buf, preserving already-buffered bytes, so that at
// least need bytes fit starting at index 0.
func (f *Framer) ensureCapacity(need int) {
	if cap(f.buf) >= need {
		return
	}
	grown := make([]byte, need)
	copy(grown, f.buf[:f.filled])
	f.buf = grown
}

// compact slides any unconsumed trailing bytes to the start of the buffer.
func (f *Framer) compact() {
	if f.consumed == 0 {
		return
	}
	n := copy(f.buf, f.buf[f.consumed:f.filled])
	f.filled = n
	f.consumed = 0
}

// Pending reports whether the framer currently holds partial, unconsumed
// bytes (used by diagnostics/tests, never by the dispatch loop itself).
func (f *Framer) Pending() int {
	return f.filled - f.consumed
}
