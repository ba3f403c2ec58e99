package protocol

import (
	"encoding/binary"
	"strings"

	"github.com/ha1tch/pgwire/pgerr"
	"github.com/ha1tch/pgwire/types"
	"github.com/ha1tch/pgwire/wire"
)

// Outcome is what HandleFrame has to report back to whatever is driving the
// machine (the sync reader loop, the async task, or the startup handshake
// itself before a façade exists).
type Outcome struct {
	ReadyForQuery bool
	TxStatus      TransactionStatus
	ResultSet     *ResultSet // set only alongside ReadyForQuery, absent on error
	Err           error      // the latched error, delivered at Z (or immediately if fatal)
	Fatal         bool       // connection must close

	Auth *AuthEvent

	CopyStart *CopyMode
	CopyData  []byte
	CopyDone  bool

	ParameterChanged string // GUC name just updated, empty otherwise
	Notice           *pgerr.Error
}

// Machine is the PostgreSQL protocol state machine (SPEC_FULL.md §4.5). It
// is not safe for concurrent use — the C9 transport adapters are
// responsible for serializing access (a single mutex for sync, a
// single-task invariant for async).
type Machine struct {
	registry *types.Registry
	sink     NotificationSink

	state    State
	txStatus TransactionStatus

	params       map[string]string
	backendPID   uint32
	backendKey   uint32

	current      *Result
	results      []Result
	pendingErr   *pgerr.Error

	copy *CopyMode
}

// NewMachine constructs a Machine in StateClosed. Call SetState as the
// transport progresses through the handshake.
func NewMachine(registry *types.Registry, sink NotificationSink) *Machine {
	return &Machine{
		registry: registry,
		sink:     sink,
		state:    StateClosed,
		params:   make(map[string]string),
	}
}

func (m *Machine) State() State                       { return m.state }
func (m *Machine) TransactionStatus() TransactionStatus { return m.txStatus }
func (m *Machine) Parameter(name string) (string, bool) { v, ok := m.params[name]; return v, ok }
func (m *Machine) BackendPID() uint32                  { return m.backendPID }

// SetState lets the transport adapter drive the pre-authentication
// transitions (Connecting, SSLRequested, StartingUp) that happen before any
// backend frame has arrived.
func (m *Machine) SetState(s State) { m.state = s }

// BeginExecute transitions into Executing and resets the per-call
// accumulation. Called by the façade (C7) right before writing the query
// bytes.
func (m *Machine) BeginExecute() {
	m.state = StateExecuting
	m.results = nil
	m.current = nil
	m.pendingErr = nil
}

// HandleFrame processes one backend frame, dispatching on its identifier
// byte per SPEC_FULL.md §4.5.
func (m *Machine) HandleFrame(frame *wire.Frame) (*Outcome, error) {
	switch frame.Type {
	case 'R':
		return m.handleAuth(frame.Payload)
	case 'S':
		return m.handleParameterStatus(frame.Payload)
	case 'K':
		return m.handleBackendKeyData(frame.Payload)
	case 'T':
		return nil, m.handleRowDescription(frame.Payload)
	case 'D':
		return nil, m.handleDataRow(frame.Payload)
	case 'C':
		return nil, m.handleCommandComplete(frame.Payload)
	case 'I':
		m.appendResult(Result{})
		return nil, nil
	case '1', '2':
		if len(frame.Payload) != 0 {
			return nil, pgerr.Protocol("unexpected payload for message %q", frame.Type)
		}
		return nil, nil
	case 'n':
		if len(frame.Payload) != 0 {
			return nil, pgerr.Protocol("unexpected payload for message 'n'")
		}
		m.current = &Result{Fields: nil}
		return nil, nil
	case 'Z':
		return m.handleReadyForQuery(frame.Payload)
	case 'E':
		return m.handleError(frame.Payload)
	case 'N':
		return m.handleNotice(frame.Payload)
	case 'A':
		return nil, m.handleNotification(frame.Payload)
	case 'G':
		return m.handleCopyResponse(frame.Payload, CopyIn)
	case 'H':
		return m.handleCopyResponse(frame.Payload, CopyOut)
	case 'W':
		return m.handleCopyResponse(frame.Payload, CopyBoth)
	case 'd':
		out := make([]byte, len(frame.Payload))
		copy(out, frame.Payload)
		return &Outcome{CopyData: out}, nil
	case 'c':
		m.copy = nil
		return &Outcome{CopyDone: true}, nil
	default:
		return nil, pgerr.Protocol("unrecognized message type %q", frame.Type)
	}
}

func (m *Machine) appendResult(r Result) {
	m.results = append(m.results, r)
	m.current = nil
}

// ---- R: Authentication ----

func (m *Machine) handleAuth(buf []byte) (*Outcome, error) {
	if len(buf) < 4 {
		return nil, pgerr.Protocol("short Authentication message")
	}
	sub := binary.BigEndian.Uint32(buf[0:4])
	switch sub {
	case 0:
		return &Outcome{Auth: &AuthEvent{Kind: AuthOK}}, nil
	case 3:
		return &Outcome{Auth: &AuthEvent{Kind: AuthCleartext}}, nil
	case 5:
		if len(buf) != 8 {
			return nil, pgerr.Protocol("invalid AuthenticationMD5Password payload")
		}
		var salt [4]byte
		copy(salt[:], buf[4:8])
		return &Outcome{Auth: &AuthEvent{Kind: AuthMD5, MD5Salt: salt}}, nil
	case 10:
		mechanisms := parseNulSeparatedList(buf[4:])
		return &Outcome{Auth: &AuthEvent{Kind: AuthSASL, Mechanisms: mechanisms}}, nil
	case 11:
		return &Outcome{Auth: &AuthEvent{Kind: AuthSASLContinue, Data: append([]byte{}, buf[4:]...)}}, nil
	case 12:
		return &Outcome{Auth: &AuthEvent{Kind: AuthSASLFinal, Data: append([]byte{}, buf[4:]...)}}, nil
	default:
		return nil, pgerr.Protocol("unsupported authentication method %d", sub)
	}
}

func parseNulSeparatedList(buf []byte) []string {
	var out []string
	for _, part := range strings.Split(string(buf), "\x00") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---- S: ParameterStatus ----

func (m *Machine) handleParameterStatus(buf []byte) (*Outcome, error) {
	name, value, err := readCString2(buf)
	if err != nil {
		return nil, pgerr.Protocol("malformed ParameterStatus")
	}
	if name == "client_encoding" && value != "UTF8" {
		return nil, pgerr.Protocol("server client_encoding %q is not UTF8", value)
	}
	m.params[name] = value
	return &Outcome{ParameterChanged: name}, nil
}

func readCString2(buf []byte) (string, string, error) {
	i := indexByte(buf, 0)
	if i < 0 {
		return "", "", pgerr.Protocol("missing NUL terminator")
	}
	name := string(buf[:i])
	rest := buf[i+1:]
	j := indexByte(rest, 0)
	if j < 0 {
		return "", "", pgerr.Protocol("missing NUL terminator")
	}
	return name, string(rest[:j]), nil
}

func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}

// ---- K: BackendKeyData ----

func (m *Machine) handleBackendKeyData(buf []byte) (*Outcome, error) {
	if len(buf) != 8 {
		return nil, pgerr.Protocol("invalid BackendKeyData length")
	}
	m.backendPID = binary.BigEndian.Uint32(buf[0:4])
	m.backendKey = binary.BigEndian.Uint32(buf[4:8])
	return nil, nil
}

// ---- T: RowDescription ----

func (m *Machine) handleRowDescription(buf []byte) error {
	if len(buf) < 2 {
		return pgerr.Protocol("short RowDescription")
	}
	nfields := binary.BigEndian.Uint16(buf[0:2])
	pos := 2
	fields := make([]FieldDescription, 0, nfields)
	for i := uint16(0); i < nfields; i++ {
		nameEnd := indexByte(buf[pos:], 0)
		if nameEnd < 0 {
			return pgerr.Protocol("malformed RowDescription field name")
		}
		name := string(buf[pos : pos+nameEnd])
		pos += nameEnd + 1
		if pos+18 > len(buf) {
			return pgerr.Protocol("short RowDescription field")
		}
		f := FieldDescription{
			Name:         name,
			TableOID:     binary.BigEndian.Uint32(buf[pos : pos+4]),
			ColumnNumber: int16(binary.BigEndian.Uint16(buf[pos+4 : pos+6])),
			TypeOID:      binary.BigEndian.Uint32(buf[pos+6 : pos+10]),
			TypeSize:     int16(binary.BigEndian.Uint16(buf[pos+10 : pos+12])),
			TypeMod:      int32(binary.BigEndian.Uint32(buf[pos+12 : pos+16])),
			Format:       int16(binary.BigEndian.Uint16(buf[pos+16 : pos+18])),
		}
		pos += 18
		fields = append(fields, f)
	}
	m.current = &Result{Fields: fields}
	return nil
}

// ---- D: DataRow ----

func (m *Machine) handleDataRow(buf []byte) error {
	if m.current == nil {
		return pgerr.Protocol("DataRow with no preceding RowDescription")
	}
	if len(buf) < 2 {
		return pgerr.Protocol("short DataRow")
	}
	nfields := binary.BigEndian.Uint16(buf[0:2])
	pos := 2
	row := make([]interface{}, 0, nfields)
	for i := uint16(0); i < nfields; i++ {
		if pos+4 > len(buf) {
			return pgerr.Protocol("short DataRow column")
		}
		l := int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if l == -1 {
			row = append(row, nil)
			continue
		}
		if pos+int(l) > len(buf) {
			return pgerr.Protocol("short DataRow column value")
		}
		var field FieldDescription
		if int(i) < len(m.current.Fields) {
			field = m.current.Fields[i]
		}
		v, err := m.registry.Decode(field.TypeOID, types.Format(field.Format), buf[pos:pos+int(l)])
		if err != nil {
			return err
		}
		row = append(row, v)
		pos += int(l)
	}
	m.current.Rows = append(m.current.Rows, row)
	return nil
}

// ---- C: CommandComplete ----

func (m *Machine) handleCommandComplete(buf []byte) error {
	i := indexByte(buf, 0)
	tag := string(buf)
	if i >= 0 {
		tag = string(buf[:i])
	}
	r := Result{Tag: tag}
	if m.current != nil {
		r.Fields = m.current.Fields
		r.Rows = m.current.Rows
	}
	m.appendResult(r)
	return nil
}

// ---- Z: ReadyForQuery ----

func (m *Machine) handleReadyForQuery(buf []byte) (*Outcome, error) {
	if len(buf) != 1 {
		return nil, pgerr.Protocol("invalid ReadyForQuery length")
	}
	m.txStatus = TransactionStatus(buf[0])
	m.state = StateReadyForQuery
	m.copy = nil

	out := &Outcome{ReadyForQuery: true, TxStatus: m.txStatus}
	if m.pendingErr != nil {
		out.Err = m.pendingErr
		m.pendingErr = nil
	} else {
		out.ResultSet = &ResultSet{Results: m.results}
	}
	m.results = nil
	m.current = nil
	return out, nil
}

// ---- E/N: Error/Notice ----

func (m *Machine) handleError(buf []byte) (*Outcome, error) {
	fields, err := parseErrorFields(buf)
	if err != nil {
		return nil, err
	}
	e := pgerr.FromServer(fields)
	if e.Severity.IsFatal() {
		m.state = StateClosing
		return &Outcome{Err: e, Fatal: true}, nil
	}
	// Non-fatal: latch it. Frames up to the next Z are still processed for
	// side effects but the ResultSet is discarded (SPEC_FULL.md §4.5).
	m.pendingErr = e
	m.current = nil
	return nil, nil
}

func (m *Machine) handleNotice(buf []byte) (*Outcome, error) {
	fields, err := parseErrorFields(buf)
	if err != nil {
		return nil, err
	}
	return &Outcome{Notice: pgerr.FromServer(fields)}, nil
}

func parseErrorFields(buf []byte) (pgerr.Fields, error) {
	var f pgerr.Fields
	pos := 0
	for pos < len(buf) {
		code := buf[pos]
		if code == 0 {
			break
		}
		pos++
		end := indexByte(buf[pos:], 0)
		if end < 0 {
			return f, pgerr.Protocol("malformed ErrorResponse field")
		}
		value := string(buf[pos : pos+end])
		pos += end + 1
		switch code {
		case 'S':
			f.SeverityLocale = value
		case 'V':
			f.Severity = value
		case 'C':
			f.SQLState = value
		case 'M':
			f.Message = value
		case 'D':
			f.Detail = value
		case 'H':
			f.Hint = value
		case 'P':
			f.Position = value
		case 'p':
			f.InternalPosition = value
		case 'q':
			f.InternalQuery = value
		case 'W':
			f.Where = value
		case 's':
			f.SchemaName = value
		case 't':
			f.TableName = value
		case 'c':
			f.ColumnName = value
		case 'd':
			f.DataTypeName = value
		case 'n':
			f.ConstraintName = value
		case 'F':
			f.File = value
		case 'L':
			f.Line = value
		case 'R':
			f.Routine = value
		}
	}
	if f.Severity == "" || f.SeverityLocale == "" || f.SQLState == "" || f.Message == "" {
		return f, pgerr.Protocol("ErrorResponse missing a mandatory field")
	}
	return f, nil
}

// ---- A: NotificationResponse ----

func (m *Machine) handleNotification(buf []byte) error {
	if len(buf) < 4 {
		return pgerr.Protocol("short NotificationResponse")
	}
	pid := binary.BigEndian.Uint32(buf[0:4])
	channel, payload, err := readCString2(buf[4:])
	if err != nil {
		return pgerr.Protocol("malformed NotificationResponse")
	}
	if m.sink != nil {
		m.sink.Put(pid, channel, payload)
	}
	return nil
}

// ---- G/H/W: Copy{In,Out,Both}Response ----

func (m *Machine) handleCopyResponse(buf []byte, dir CopyDirection) (*Outcome, error) {
	if len(buf) < 3 {
		return nil, pgerr.Protocol("short Copy*Response")
	}
	nCols := binary.BigEndian.Uint16(buf[1:3])
	formats := make([]int16, 0, nCols)
	pos := 3
	for i := uint16(0); i < nCols; i++ {
		if pos+2 > len(buf) {
			return nil, pgerr.Protocol("short Copy*Response column formats")
		}
		formats = append(formats, int16(binary.BigEndian.Uint16(buf[pos:pos+2])))
		pos += 2
	}
	cm := &CopyMode{Direction: dir, ColumnFormats: formats}
	m.copy = cm
	return &Outcome{CopyStart: cm}, nil
}
