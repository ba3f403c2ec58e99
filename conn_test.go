package pgwire

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/ha1tch/pgwire/config"
	"github.com/ha1tch/pgwire/protocol"
	"github.com/ha1tch/pgwire/wire"
)

func rawFrame(msgType byte, payload []byte) []byte {
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, msgType)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(4+len(payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, payload...)
	return buf
}

func cstr(s string) []byte { return append([]byte(s), 0) }

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// serverAuthOK reads (and discards) one startup message, then sends the
// frames that bring a connection to StateReadyForQuery with no
// authentication challenge.
func serverAuthOK(t *testing.T, server net.Conn) {
	t.Helper()
	// StartupMessage has no type byte: a 4-byte length that counts itself,
	// then the body.
	lenBuf := make([]byte, 4)
	if _, err := readFull(server, lenBuf); err != nil {
		t.Fatalf("reading startup message length: %v", err)
	}
	if _, err := readFull(server, make([]byte, binary.BigEndian.Uint32(lenBuf)-4)); err != nil {
		t.Fatalf("reading startup message body: %v", err)
	}

	server.Write(rawFrame('R', be32(0))) // AuthenticationOk
	server.Write(rawFrame('S', append(cstr("server_version"), cstr("16.0")...)))
	server.Write(rawFrame('K', append(be32(4242), be32(99)...)))
	server.Write(rawFrame('Z', []byte{'I'}))
}

// readOneMessage drains exactly one length-prefixed frontend message from
// server, returning its raw payload (without the 5-byte header).
func readOneMessage(t *testing.T, server net.Conn) []byte {
	t.Helper()
	header := make([]byte, 5)
	if _, err := readFull(server, header); err != nil {
		t.Fatalf("reading frontend message header: %v", err)
	}
	length := binary.BigEndian.Uint32(header[1:5])
	payload := make([]byte, length-4)
	if len(payload) > 0 {
		if _, err := readFull(server, payload); err != nil {
			t.Fatalf("reading frontend message payload: %v", err)
		}
	}
	return payload
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readMessageTypes drains exactly n frontend messages from server and
// returns their message-type bytes in order, discarding payloads.
func readMessageTypes(t *testing.T, server net.Conn, n int) []byte {
	t.Helper()
	types := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		header := make([]byte, 5)
		if _, err := readFull(server, header); err != nil {
			t.Fatalf("reading frontend message header: %v", err)
		}
		types = append(types, header[0])
		length := binary.BigEndian.Uint32(header[1:5])
		if length > 4 {
			payload := make([]byte, length-4)
			if _, err := readFull(server, payload); err != nil {
				t.Fatalf("reading frontend message payload: %v", err)
			}
		}
	}
	return types
}

func dialFakeServer(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestConnectPerformsStartupAndReachesReadyForQuery(t *testing.T) {
	client, server := dialFakeServer(t)

	done := make(chan *Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		opts := config.New(config.WithUser("alice"), config.WithDatabase("app"))
		c, err := Connect(client, opts)
		if err != nil {
			errCh <- err
			return
		}
		done <- c
	}()

	serverAuthOK(t, server)

	select {
	case err := <-errCh:
		t.Fatalf("Connect error = %v", err)
	case c := <-done:
		if c.State() != protocol.StateReadyForQuery {
			t.Errorf("State() = %v, want StateReadyForQuery", c.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not complete in time")
	}
}

func TestExecuteSimpleQueryReturnsResultSet(t *testing.T) {
	client, server := dialFakeServer(t)

	connCh := make(chan *Conn, 1)
	go func() {
		opts := config.New(config.WithUser("alice"), config.WithDatabase("app"))
		c, err := Connect(client, opts)
		if err != nil {
			t.Errorf("Connect error = %v", err)
			return
		}
		connCh <- c
	}()
	serverAuthOK(t, server)

	var conn *Conn
	select {
	case conn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not complete in time")
	}

	type execResult struct {
		rs  *protocol.ResultSet
		err error
	}
	resultCh := make(chan execResult, 1)
	go func() {
		rs, err := conn.Execute("SELECT 1", nil, wire.FormatText, nil)
		resultCh <- execResult{rs: rs, err: err}
	}()

	readOneMessage(t, server) // Query message

	rowDesc := make([]byte, 2)
	binary.BigEndian.PutUint16(rowDesc, 1)
	rowDesc = append(rowDesc, cstr("?column?")...)
	field := make([]byte, 18)
	binary.BigEndian.PutUint32(field[6:10], 23) // int4 OID
	rowDesc = append(rowDesc, field...)
	server.Write(rawFrame('T', rowDesc))

	dataRow := make([]byte, 2)
	binary.BigEndian.PutUint16(dataRow, 1)
	dataRow = append(dataRow, be32(1)...)
	dataRow = append(dataRow, []byte("1")...)
	server.Write(rawFrame('D', dataRow))

	server.Write(rawFrame('C', cstr("SELECT 1")))
	server.Write(rawFrame('Z', []byte{'I'}))

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Execute error = %v", res.err)
		}
		if len(res.rs.Results) != 1 || len(res.rs.Results[0].Rows) != 1 {
			t.Fatalf("ResultSet = %+v, want one result with one row", res.rs)
		}
		if got := res.rs.Results[0].Rows[0][0].(int32); got != 1 {
			t.Errorf("decoded value = %v, want 1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not complete in time")
	}
}

// TestExecuteNoParamsBinaryFormatUsesExtendedProtocol pins SPEC_FULL.md
// §4.4: the simple-query path additionally requires a TEXT result format,
// so a no-param query asking for BINARY results (scenario 2 of §8) must
// still go through Parse/Bind/Describe/Execute/Sync rather than a bare
// simple Query message, which can only ever return TEXT.
func TestExecuteNoParamsBinaryFormatUsesExtendedProtocol(t *testing.T) {
	client, server := dialFakeServer(t)

	connCh := make(chan *Conn, 1)
	go func() {
		opts := config.New(config.WithUser("alice"), config.WithDatabase("app"))
		c, err := Connect(client, opts)
		if err != nil {
			t.Errorf("Connect error = %v", err)
			return
		}
		connCh <- c
	}()
	serverAuthOK(t, server)

	var conn *Conn
	select {
	case conn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not complete in time")
	}

	type execResult struct {
		rs  *protocol.ResultSet
		err error
	}
	resultCh := make(chan execResult, 1)
	go func() {
		rs, err := conn.Execute("SELECT 12", nil, wire.FormatBinary, nil)
		resultCh <- execResult{rs: rs, err: err}
	}()

	gotTypes := readMessageTypes(t, server, 5)
	wantTypes := []byte{'P', 'B', 'D', 'E', 'S'}
	if string(gotTypes) != string(wantTypes) {
		t.Fatalf("frontend message sequence = %q, want %q (extended protocol)", gotTypes, wantTypes)
	}

	server.Write(rawFrame('1', nil)) // ParseComplete
	server.Write(rawFrame('2', nil)) // BindComplete

	rowDesc := make([]byte, 2)
	binary.BigEndian.PutUint16(rowDesc, 1)
	rowDesc = append(rowDesc, cstr("?column?")...)
	field := make([]byte, 18)
	binary.BigEndian.PutUint32(field[6:10], 23) // int4 OID
	binary.BigEndian.PutUint16(field[16:18], 1) // binary format
	rowDesc = append(rowDesc, field...)
	server.Write(rawFrame('T', rowDesc))

	dataRow := make([]byte, 2)
	binary.BigEndian.PutUint16(dataRow, 1)
	dataRow = append(dataRow, be32(4)...)
	dataRow = append(dataRow, be32(12)...)
	server.Write(rawFrame('D', dataRow))

	server.Write(rawFrame('C', cstr("SELECT 1")))
	server.Write(rawFrame('Z', []byte{'I'}))

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Execute error = %v", res.err)
		}
		if len(res.rs.Results) != 1 || len(res.rs.Results[0].Rows) != 1 {
			t.Fatalf("ResultSet = %+v, want one result with one row", res.rs)
		}
		if got := res.rs.Results[0].Rows[0][0].(int32); got != 12 {
			t.Errorf("decoded value = %v, want 12 (binary-decoded)", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not complete in time")
	}
}
