package wire

import (
	"bytes"
	"encoding/binary"
)

// Param is one bound parameter ready for the wire: the OID the server
// should interpret it as, its encoded bytes (nil for SQL NULL), and the
// format those bytes are in.
type Param struct {
	OID    uint32
	Value  []byte
	IsNull bool
	Format ParamFormat
}

// ParamFormat mirrors wire Format 0/1 for a single parameter or result
// column.
type ParamFormat int16

const (
	FormatText   ParamFormat = 0
	FormatBinary ParamFormat = 1
)

// StartupParams carries the name/value pairs sent in a StartupMessage.
// The named fields go out in declaration order; Options entries follow in
// map iteration order, which is not fixed.
type StartupParams struct {
	User            string
	Database        string
	ApplicationName string
	TimeZone        string
	Options         map[string]string // additional caller-provided GUCs
}

// Startup builds the StartupMessage: a length-prefixed frame with no
// identifier byte, protocol version 196608 (3.0), followed by
// "name\0value\0" pairs and a trailing NUL. client_encoding=UTF8 and
// DateStyle=ISO are always sent (SPEC_FULL.md §4.4).
func Startup(p StartupParams) []byte {
	var body bytes.Buffer

	writePair := func(name, value string) {
		body.WriteString(name)
		body.WriteByte(0)
		body.WriteString(value)
		body.WriteByte(0)
	}

	if p.User != "" {
		writePair("user", p.User)
	}
	if p.Database != "" {
		writePair("database", p.Database)
	}
	if p.ApplicationName != "" {
		writePair("application_name", p.ApplicationName)
	}
	if p.TimeZone != "" {
		writePair("timezone", p.TimeZone)
	}
	writePair("DateStyle", "ISO")
	writePair("client_encoding", "UTF8")
	for name, value := range p.Options {
		writePair(name, value)
	}
	body.WriteByte(0)

	var msg bytes.Buffer
	length := int32(4 + 4 + body.Len())
	binary.Write(&msg, binary.BigEndian, length)
	binary.Write(&msg, binary.BigEndian, int32(196608))
	msg.Write(body.Bytes())
	return msg.Bytes()
}

// sslRequestCode is the magic int32 PostgreSQL expects in lieu of a protocol
// version when the client wants to negotiate SSL before the real startup.
const sslRequestCode = 0x04D2162F

// SSLRequest builds the 8-byte SSLRequest frame (length=8, code, no
// identifier byte). The server replies with a single unframed byte 'S' or
// 'N'.
func SSLRequest() []byte {
	var msg bytes.Buffer
	binary.Write(&msg, binary.BigEndian, int32(8))
	binary.Write(&msg, binary.BigEndian, int32(sslRequestCode))
	return msg.Bytes()
}

// Terminate builds the Terminate message: 'X' + length 4, no payload.
func Terminate() []byte {
	return []byte{'X', 0, 0, 0, 4}
}

// simpleMessage frames a one-byte-identifier message with the given
// payload, computing the length word itself.
func simpleMessage(id byte, payload []byte) []byte {
	var msg bytes.Buffer
	msg.WriteByte(id)
	binary.Write(&msg, binary.BigEndian, int32(4+len(payload)))
	msg.Write(payload)
	return msg.Bytes()
}

// Query builds the simple-query 'Q' message: a single roundtrip with
// text-only parameters already embedded in sql.
func Query(sql string) []byte {
	payload := append([]byte(sql), 0)
	return simpleMessage('Q', payload)
}

// PasswordMessage builds the 'p' message carrying a cleartext or
// MD5-hashed password response to an Authentication request.
func PasswordMessage(password []byte) []byte {
	payload := append(append([]byte{}, password...), 0)
	return simpleMessage('p', payload)
}

// SASLInitialResponse builds the 'p' message used to start a SASL exchange:
// mechanism name, then either -1 (no initial response) or a length-prefixed
// response.
func SASLInitialResponse(mechanism string, initialResponse []byte) []byte {
	var payload bytes.Buffer
	payload.WriteString(mechanism)
	payload.WriteByte(0)
	if initialResponse == nil {
		binary.Write(&payload, binary.BigEndian, int32(-1))
	} else {
		binary.Write(&payload, binary.BigEndian, int32(len(initialResponse)))
		payload.Write(initialResponse)
	}
	return simpleMessage('p', payload.Bytes())
}

// SASLResponse builds the 'p' message carrying a subsequent SASL response
// (client-final-message etc.), raw with no mechanism/length wrapper beyond
// the frame itself.
func SASLResponse(response []byte) []byte {
	return simpleMessage('p', response)
}

// ExtendedQuery is the Parse+Bind+Describe+Execute+Sync sequence. stmtName
// is "" for an unnamed/anonymous statement, or the server-side prepared
// name once the statement cache has promoted it (in which case parse may be
// false to skip re-Parsing an already-registered statement).
type ExtendedQuery struct {
	StmtName     string // server-side prepared-statement name ("" = unnamed)
	SQL          string // required when Parse is true
	Parse        bool   // emit a Parse message
	ParamOIDs    []uint32
	Params       []Param
	ResultFormat ParamFormat
}

// Build serialises the extended-query message sequence described by q.
func Build(q ExtendedQuery) []byte {
	var out bytes.Buffer

	if q.Parse {
		out.Write(parseMessage(q.StmtName, q.SQL, q.ParamOIDs))
	}
	out.Write(bindMessage(q.StmtName, q.Params, q.ResultFormat))
	out.Write(describePortal(""))
	out.Write(executePortal("", 0))
	out.Write(syncMessage())
	return out.Bytes()
}

func parseMessage(stmtName, sql string, paramOIDs []uint32) []byte {
	var payload bytes.Buffer
	payload.WriteString(stmtName)
	payload.WriteByte(0)
	payload.WriteString(sql)
	payload.WriteByte(0)
	binary.Write(&payload, binary.BigEndian, uint16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		binary.Write(&payload, binary.BigEndian, oid)
	}
	return simpleMessage('P', payload.Bytes())
}

func bindMessage(stmtName string, params []Param, resultFormat ParamFormat) []byte {
	var payload bytes.Buffer
	payload.WriteByte(0) // unnamed portal
	payload.WriteString(stmtName)
	payload.WriteByte(0)

	binary.Write(&payload, binary.BigEndian, uint16(len(params)))
	for _, p := range params {
		binary.Write(&payload, binary.BigEndian, int16(p.Format))
	}

	binary.Write(&payload, binary.BigEndian, uint16(len(params)))
	for _, p := range params {
		if p.IsNull {
			binary.Write(&payload, binary.BigEndian, int32(-1))
			continue
		}
		binary.Write(&payload, binary.BigEndian, int32(len(p.Value)))
		payload.Write(p.Value)
	}

	binary.Write(&payload, binary.BigEndian, uint16(1))
	binary.Write(&payload, binary.BigEndian, int16(resultFormat))

	return simpleMessage('B', payload.Bytes())
}

func describePortal(portal string) []byte {
	var payload bytes.Buffer
	payload.WriteByte('P')
	payload.WriteString(portal)
	payload.WriteByte(0)
	return simpleMessage('D', payload.Bytes())
}

func executePortal(portal string, maxRows int32) []byte {
	var payload bytes.Buffer
	payload.WriteString(portal)
	payload.WriteByte(0)
	binary.Write(&payload, binary.BigEndian, maxRows)
	return simpleMessage('E', payload.Bytes())
}

func syncMessage() []byte {
	return simpleMessage('S', nil)
}

// DescribeStatement builds a standalone Describe(statement) message for a
// named prepared statement. The execution façade does not send it; the
// extended-query batch carries its own Describe.
func DescribeStatement(stmtName string) []byte {
	var payload bytes.Buffer
	payload.WriteByte('S')
	payload.WriteString(stmtName)
	payload.WriteByte(0)
	return simpleMessage('D', payload.Bytes())
}

// ClosePreparedStatement builds the Close('S', name) message used to
// DEALLOCATE a promoted statement that the cache is evicting or
// invalidating.
func ClosePreparedStatement(stmtName string) []byte {
	var payload bytes.Buffer
	payload.WriteByte('S')
	payload.WriteString(stmtName)
	payload.WriteByte(0)
	return simpleMessage('C', payload.Bytes())
}

// CopyData wraps one chunk of COPY-IN payload.
func CopyData(chunk []byte) []byte {
	return simpleMessage('d', chunk)
}

// CopyDone signals clean end-of-data on a COPY-IN stream.
func CopyDone() []byte {
	return []byte{'c', 0, 0, 0, 4}
}

// CopyFail aborts a COPY-IN stream with a human-readable reason.
func CopyFail(reason string) []byte {
	payload := append([]byte(reason), 0)
	return simpleMessage('f', payload)
}
