package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestStartupIncludesMandatoryAndOptionalParams(t *testing.T) {
	msg := Startup(StartupParams{
		User:            "alice",
		Database:        "orders",
		ApplicationName: "billingd",
		Options:         map[string]string{"search_path": "public"},
	})

	length := int32(binary.BigEndian.Uint32(msg[0:4]))
	if int(length) != len(msg) {
		t.Fatalf("declared length %d, want %d", length, len(msg))
	}
	version := int32(binary.BigEndian.Uint32(msg[4:8]))
	if version != 196608 {
		t.Fatalf("protocol version = %d, want 196608", version)
	}

	body := msg[8:]
	for _, want := range []string{"user\x00alice\x00", "database\x00orders\x00", "application_name\x00billingd\x00", "DateStyle\x00ISO\x00", "client_encoding\x00UTF8\x00", "search_path\x00public\x00"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("startup body missing %q", want)
		}
	}
	if body[len(body)-1] != 0 {
		t.Errorf("startup body does not end with the trailing NUL")
	}
}

func TestStartupOmitsUnsetTimeZone(t *testing.T) {
	msg := Startup(StartupParams{User: "bob"})
	if bytes.Contains(msg, []byte("timezone\x00")) {
		t.Errorf("startup body included a timezone pair when TimeZone was unset")
	}
}

func TestSSLRequestFrame(t *testing.T) {
	msg := SSLRequest()
	if len(msg) != 8 {
		t.Fatalf("len = %d, want 8", len(msg))
	}
	length := int32(binary.BigEndian.Uint32(msg[0:4]))
	if length != 8 {
		t.Errorf("declared length = %d, want 8", length)
	}
	code := int32(binary.BigEndian.Uint32(msg[4:8]))
	if code != sslRequestCode {
		t.Errorf("code = %#x, want %#x", code, sslRequestCode)
	}
}

func TestTerminateFrame(t *testing.T) {
	want := []byte{'X', 0, 0, 0, 4}
	if got := Terminate(); !bytes.Equal(got, want) {
		t.Errorf("Terminate() = %v, want %v", got, want)
	}
}

func TestQueryNulTerminatesSQL(t *testing.T) {
	msg := Query("SELECT 1")
	if msg[0] != 'Q' {
		t.Fatalf("type = %q, want 'Q'", msg[0])
	}
	payload := msg[5:]
	if string(payload) != "SELECT 1\x00" {
		t.Errorf("payload = %q, want NUL-terminated SQL", payload)
	}
}

func TestPasswordMessage(t *testing.T) {
	msg := PasswordMessage([]byte("md5abc123"))
	if msg[0] != 'p' {
		t.Fatalf("type = %q, want 'p'", msg[0])
	}
	if string(msg[5:]) != "md5abc123\x00" {
		t.Errorf("payload = %q, want NUL-terminated password", msg[5:])
	}
}

func TestSASLInitialResponseNoInitialData(t *testing.T) {
	msg := SASLInitialResponse("SCRAM-SHA-256", nil)
	payload := msg[5:]
	if !bytes.HasPrefix(payload, []byte("SCRAM-SHA-256\x00")) {
		t.Fatalf("payload = %q, want it to start with the mechanism name", payload)
	}
	lengthField := int32(binary.BigEndian.Uint32(payload[len("SCRAM-SHA-256\x00"):]))
	if lengthField != -1 {
		t.Errorf("length field = %d, want -1 for no initial response", lengthField)
	}
}

func TestSASLInitialResponseWithData(t *testing.T) {
	data := []byte("n,,n=user,r=clientnonce")
	msg := SASLInitialResponse("SCRAM-SHA-256", data)
	payload := msg[5:]
	offset := len("SCRAM-SHA-256\x00")
	lengthField := int32(binary.BigEndian.Uint32(payload[offset : offset+4]))
	if int(lengthField) != len(data) {
		t.Fatalf("length field = %d, want %d", lengthField, len(data))
	}
	if !bytes.Equal(payload[offset+4:], data) {
		t.Errorf("trailing bytes = %q, want %q", payload[offset+4:], data)
	}
}

func TestBuildExtendedQueryWithParse(t *testing.T) {
	q := ExtendedQuery{
		Parse:        true,
		SQL:          "SELECT $1::int",
		ParamOIDs:    []uint32{23},
		Params:       []Param{{OID: 23, Value: []byte("42"), Format: FormatText}},
		ResultFormat: FormatBinary,
	}
	out := Build(q)

	types := extractMessageTypes(t, out)
	want := []byte{'P', 'B', 'D', 'E', 'S'}
	if !bytes.Equal(types, want) {
		t.Fatalf("message sequence = %q, want %q", types, want)
	}
}

func TestBuildExtendedQuerySkipsParseWhenPromoted(t *testing.T) {
	q := ExtendedQuery{
		StmtName: "pgwire_1",
		Parse:    false,
		Params:   nil,
	}
	out := Build(q)

	types := extractMessageTypes(t, out)
	want := []byte{'B', 'D', 'E', 'S'}
	if !bytes.Equal(types, want) {
		t.Fatalf("message sequence = %q, want %q", types, want)
	}
}

func TestBindMessageEncodesNullParam(t *testing.T) {
	msg := bindMessage("", []Param{{IsNull: true, Format: FormatText}}, FormatText)
	payload := msg[5:]

	// portal name NUL, stmt name NUL, then 2-byte format count.
	pos := 2
	formatCount := binary.BigEndian.Uint16(payload[pos : pos+2])
	if formatCount != 1 {
		t.Fatalf("format count = %d, want 1", formatCount)
	}
	pos += 2 + 2 // skip the format code
	paramCount := binary.BigEndian.Uint16(payload[pos : pos+2])
	if paramCount != 1 {
		t.Fatalf("param count = %d, want 1", paramCount)
	}
	pos += 2
	length := int32(binary.BigEndian.Uint32(payload[pos : pos+4]))
	if length != -1 {
		t.Errorf("null param length = %d, want -1", length)
	}
}

func TestCopyMessages(t *testing.T) {
	data := CopyData([]byte("1,2,3\n"))
	if data[0] != 'd' {
		t.Errorf("CopyData type = %q, want 'd'", data[0])
	}
	if !bytes.Equal(data[5:], []byte("1,2,3\n")) {
		t.Errorf("CopyData payload = %q, want the chunk unchanged", data[5:])
	}

	if got := CopyDone(); !bytes.Equal(got, []byte{'c', 0, 0, 0, 4}) {
		t.Errorf("CopyDone() = %v, want the empty 'c' frame", got)
	}

	fail := CopyFail("bad row at line 3")
	if fail[0] != 'f' {
		t.Errorf("CopyFail type = %q, want 'f'", fail[0])
	}
	if string(fail[5:]) != "bad row at line 3\x00" {
		t.Errorf("CopyFail payload = %q, want NUL-terminated reason", fail[5:])
	}
}

func TestClosePreparedStatement(t *testing.T) {
	msg := ClosePreparedStatement("pgwire_7")
	if msg[0] != 'C' {
		t.Fatalf("type = %q, want 'C'", msg[0])
	}
	payload := msg[5:]
	if payload[0] != 'S' || string(payload[1:]) != "pgwire_7\x00" {
		t.Errorf("payload = %q, want 'S' + NUL-terminated name", payload)
	}
}

// extractMessageTypes walks a concatenated sequence of length-prefixed
// messages and returns their type bytes in order.
func extractMessageTypes(t *testing.T, buf []byte) []byte {
	t.Helper()
	var types []byte
	pos := 0
	for pos < len(buf) {
		if pos+5 > len(buf) {
			t.Fatalf("truncated message header at offset %d", pos)
		}
		msgType := buf[pos]
		length := int(binary.BigEndian.Uint32(buf[pos+1 : pos+5]))
		types = append(types, msgType)
		pos += 1 + length
	}
	return types
}
