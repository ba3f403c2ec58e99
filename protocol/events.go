package protocol

// AuthKind classifies a decoded Authentication ('R') frame.
type AuthKind int

const (
	AuthOK AuthKind = iota
	AuthMD5
	AuthSASL
	AuthSASLContinue
	AuthSASLFinal
	AuthCleartext
)

// AuthEvent is produced when an Authentication frame arrives; the façade
// (or, during startup, the Conn driving the handshake directly) reacts to
// it by writing the appropriate response message.
type AuthEvent struct {
	Kind      AuthKind
	MD5Salt   [4]byte
	Mechanisms []string // AuthSASL
	Data      []byte    // AuthSASLContinue/AuthSASLFinal payload
}

// CopyMode describes an active COPY-IN/COPY-OUT/COPY-BOTH sub-protocol
// session, entered on a 'G'/'H'/'W' frame per SPEC_FULL.md §4.7.
type CopyMode struct {
	Direction     CopyDirection
	ColumnFormats []int16
}

type CopyDirection int

const (
	CopyNone CopyDirection = iota
	CopyIn
	CopyOut
	CopyBoth
)

// NotificationSink receives NotificationResponse ('A') frames as the state
// machine decodes them; the notification queue (C8) implements it.
type NotificationSink interface {
	Put(processID uint32, channel, payload string)
}
