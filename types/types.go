// Package types implements PostgreSQL scalar, array, range, and multirange
// value codecs in both TEXT and BINARY wire formats (SPEC_FULL.md §4.2/§4.3).
//
// Every codec is bit-exact with PostgreSQL's own send/recv functions. A
// Decoder turns a wire payload into a host Go value; an Encoder turns a host
// Go value into the (oid, bytes, format) triple the message builder needs
// for a bound parameter.
package types

import "github.com/ha1tch/pgwire/pgerr"

// Format mirrors wire.ParamFormat without importing the wire package, since
// codecs must not depend on message framing.
type Format int16

const (
	FormatText   Format = 0
	FormatBinary Format = 1
)

// Well-known OIDs this driver codes natively. Unlisted OIDs fall back to raw
// TEXT/bytes per SPEC_FULL.md §4.5 ('T' RowDescription handling).
const (
	OIDBool        = 16
	OIDBytea       = 17
	OIDChar        = 18
	OIDName        = 19
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDOID         = 26
	OIDTID         = 27
	OIDJSON        = 114
	OIDXML         = 142
	OIDJSONArray   = 199
	OIDPoint       = 600
	OIDCIDR        = 650
	OIDCIDRArray   = 651
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDInet        = 869
	OIDBoolArray   = 1000
	OIDByteaArray  = 1001
	OIDCharArray   = 1002
	OIDNameArray   = 1003
	OIDInt2Array   = 1005
	OIDInt4Array   = 1007
	OIDTextArray   = 1009
	OIDVarcharArray = 1015
	OIDInt8Array   = 1016
	OIDFloat4Array = 1021
	OIDFloat8Array = 1022
	OIDBPChar      = 1042
	OIDVarchar     = 1043
	OIDDate        = 1082
	OIDTime        = 1083
	OIDTimestamp   = 1114
	OIDTimestampArray = 1115
	OIDDateArray   = 1182
	OIDTimestampTz = 1184
	OIDInterval    = 1186
	OIDTimeTz      = 1266
	OIDNumericArray = 1231
	OIDBit         = 1560
	OIDNumeric     = 1700
	OIDUUID        = 2950
	OIDUUIDArray   = 2951
	OIDJSONB       = 3802
	OIDJSONBArray  = 3807
	OIDInt4Range   = 3904
	OIDNumRange    = 3906
	OIDTSRange     = 3908
	OIDTSTzRange   = 3910
	OIDDateRange   = 3912
	OIDInt8Range   = 3926
	OIDInt4MultiRange = 4451
	OIDNumMultiRange  = 4532
	OIDTSMultiRange   = 4533
	OIDTSTzMultiRange = 4534
	OIDDateMultiRange = 4535
	OIDInt8MultiRange = 4536
)

// Decoder parses one wire-format column/parameter value into a host value.
type Decoder func(buf []byte) (interface{}, error)

// Encoder turns a host value into its binary wire representation, the OID
// the server should bind it as, and the format it was encoded in.
type Encoder func(val interface{}) (oid uint32, data []byte, format Format, err error)

// codecEntry bundles the two result decoders registered for one OID.
type codecEntry struct {
	text   Decoder
	binary Decoder
}

// Registry maps (oid, format) to a result Decoder and dispatches parameter
// encoding by host Go type. It holds no connection state so it can be
// shared, read-only, across every Conn built with the same Options.
type Registry struct {
	byOID    map[uint32]codecEntry
	encoders []Encoder
}

// NewRegistry returns a Registry pre-populated with every codec this driver
// ships (SPEC_FULL.md §4.2/§4.3). Callers may still add custom codecs via
// RegisterDecoder/RegisterEncoder for extension types.
func NewRegistry() *Registry {
	r := &Registry{byOID: make(map[uint32]codecEntry, 64)}
	registerScalarCodecs(r)
	registerNumericCodec(r)
	registerByteaCodec(r)
	registerTextCodecs(r)
	registerUUIDCodec(r)
	registerDateTimeCodecs(r)
	registerNetworkCodecs(r)
	registerJSONCodecs(r)
	registerArrayCodecs(r)
	registerRangeCodecs(r)
	registerMultirangeCodecs(r)
	return r
}

// RegisterDecoder installs text/binary decoders for oid, overwriting any
// existing entry.
func (r *Registry) RegisterDecoder(oid uint32, text, binary Decoder) {
	r.byOID[oid] = codecEntry{text: text, binary: binary}
}

// RegisterEncoder adds a parameter encoder ahead of those already
// registered, so the most recently registered encoder is tried first; all
// of them are tried before the defaultEncode fallback.
func (r *Registry) RegisterEncoder(enc Encoder) {
	r.encoders = append([]Encoder{enc}, r.encoders...)
}

// Decode looks up the decoder registered for (oid, format) and applies it.
// An unknown oid decodes as the raw TEXT/bytes fallback described in
// SPEC_FULL.md §4.5, never as an error: a client must still be able to
// surface values of types it does not understand natively.
func (r *Registry) Decode(oid uint32, format Format, buf []byte) (interface{}, error) {
	if buf == nil {
		return nil, nil
	}
	entry, ok := r.byOID[oid]
	if !ok {
		return rawFallback(format, buf), nil
	}
	var dec Decoder
	if format == FormatBinary {
		dec = entry.binary
	} else {
		dec = entry.text
	}
	if dec == nil {
		return rawFallback(format, buf), nil
	}
	return dec(buf)
}

func rawFallback(format Format, buf []byte) interface{} {
	if format == FormatBinary {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}
	return string(buf)
}

// Encode dispatches val to the first matching encoder, falling back to the
// host-type switch in defaultEncode (text.go). Strings with no explicit PG type tag encode
// with OID 0 (unknown) so the server infers context, per SPEC_FULL.md §4.2
// "Parameter encoding policy".
func (r *Registry) Encode(val interface{}) (oid uint32, data []byte, format Format, err error) {
	if val == nil {
		return 0, nil, FormatBinary, nil
	}
	for _, enc := range r.encoders {
		oid, data, format, err = enc(val)
		if err == nil && oid != 0 {
			return oid, data, format, nil
		}
	}
	return defaultEncode(val)
}

// errUnsupportedParam is returned by Encode when no registered encoder and
// no fallback case in defaultEncode recognises the host value's Go type.
var errUnsupportedParam = pgerr.InvalidOperation("unsupported parameter type")

// errInvalid is a convenience constructor for malformed-wire-value errors
// raised deep inside a decoder, where the caller lacks enough context to
// name the offending column.
func errInvalid(typeName string, cause error) error {
	return pgerr.Wrap(cause, pgerr.CategoryProtocolError, "invalid %s value", typeName)
}
