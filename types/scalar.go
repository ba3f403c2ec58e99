package types

import (
	"encoding/binary"
	"math"
	"strconv"
)

// registerScalarCodecs wires bool, int2/int4/int8, oid, and float4/float8 —
// the fixed-width numeric family whose BINARY layouts are plain big-endian
// words (SPEC_FULL.md §4.2), grounded on pkg/tds/types.go's per-type
// encoding switch translated into per-OID decoder functions.
func registerScalarCodecs(r *Registry) {
	r.RegisterDecoder(OIDBool, decodeBoolText, decodeBoolBinary)
	r.RegisterDecoder(OIDInt2, decodeInt2Text, decodeInt2Binary)
	r.RegisterDecoder(OIDInt4, decodeInt4Text, decodeInt4Binary)
	r.RegisterDecoder(OIDInt8, decodeInt8Text, decodeInt8Binary)
	r.RegisterDecoder(OIDOID, decodeOIDText, decodeOIDBinary)
	r.RegisterDecoder(OIDFloat4, decodeFloat4Text, decodeFloat4Binary)
	r.RegisterDecoder(OIDFloat8, decodeFloat8Text, decodeFloat8Binary)

	r.RegisterEncoder(encodeScalar)
}

func decodeBoolText(buf []byte) (interface{}, error) {
	switch string(buf) {
	case "t":
		return true, nil
	case "f":
		return false, nil
	}
	return nil, errInvalid("bool", nil)
}

func decodeBoolBinary(buf []byte) (interface{}, error) {
	if len(buf) != 1 {
		return nil, errInvalid("bool", nil)
	}
	switch buf[0] {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return nil, errInvalid("bool", nil)
}

func decodeInt2Text(buf []byte) (interface{}, error) {
	v, err := strconv.ParseInt(string(buf), 10, 16)
	if err != nil {
		return nil, errInvalid("int2", err)
	}
	return int16(v), nil
}

func decodeInt2Binary(buf []byte) (interface{}, error) {
	if len(buf) != 2 {
		return nil, errInvalid("int2", nil)
	}
	return int16(binary.BigEndian.Uint16(buf)), nil
}

func decodeInt4Text(buf []byte) (interface{}, error) {
	v, err := strconv.ParseInt(string(buf), 10, 32)
	if err != nil {
		return nil, errInvalid("int4", err)
	}
	return int32(v), nil
}

func decodeInt4Binary(buf []byte) (interface{}, error) {
	if len(buf) != 4 {
		return nil, errInvalid("int4", nil)
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

func decodeInt8Text(buf []byte) (interface{}, error) {
	v, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return nil, errInvalid("int8", err)
	}
	return v, nil
}

func decodeInt8Binary(buf []byte) (interface{}, error) {
	if len(buf) != 8 {
		return nil, errInvalid("int8", nil)
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

func decodeOIDText(buf []byte) (interface{}, error) {
	v, err := strconv.ParseUint(string(buf), 10, 32)
	if err != nil {
		return nil, errInvalid("oid", err)
	}
	return uint32(v), nil
}

func decodeOIDBinary(buf []byte) (interface{}, error) {
	if len(buf) != 4 {
		return nil, errInvalid("oid", nil)
	}
	return binary.BigEndian.Uint32(buf), nil
}

func decodeFloat4Text(buf []byte) (interface{}, error) {
	v, err := strconv.ParseFloat(string(buf), 32)
	if err != nil {
		return nil, errInvalid("float4", err)
	}
	// Round-trip through float32 so the text decoder agrees bit-for-bit
	// with the binary decoder, per SPEC_FULL.md §4.2.
	return float32(v), nil
}

func decodeFloat4Binary(buf []byte) (interface{}, error) {
	if len(buf) != 4 {
		return nil, errInvalid("float4", nil)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
}

func decodeFloat8Text(buf []byte) (interface{}, error) {
	v, err := strconv.ParseFloat(string(buf), 64)
	if err != nil {
		return nil, errInvalid("float8", err)
	}
	return v, nil
}

func decodeFloat8Binary(buf []byte) (interface{}, error) {
	if len(buf) != 8 {
		return nil, errInvalid("float8", nil)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
}

// encodeScalar encodes the Go scalar kinds directly representable as PG
// fixed-width types, choosing the narrowest integer OID that fits per
// SPEC_FULL.md §4.2 "Parameter encoding policy".
func encodeScalar(val interface{}) (uint32, []byte, Format, error) {
	switch v := val.(type) {
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return OIDBool, []byte{b}, FormatBinary, nil
	case int16:
		return OIDInt2, be16(uint16(v)), FormatBinary, nil
	case int32:
		return OIDInt4, be32(uint32(v)), FormatBinary, nil
	case int:
		return encodeHostInt(int64(v))
	case int64:
		return encodeHostInt(v)
	case uint32:
		return OIDOID, be32(v), FormatBinary, nil
	case float32:
		return OIDFloat4, be32(math.Float32bits(v)), FormatBinary, nil
	case float64:
		return OIDFloat8, be64(math.Float64bits(v)), FormatBinary, nil
	}
	return 0, nil, FormatText, nil
}

// encodeHostInt picks int4 if the value fits, otherwise int8, mirroring
// pagio's int_to_pg narrowing rule.
func encodeHostInt(v int64) (uint32, []byte, Format, error) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return OIDInt4, be32(uint32(int32(v))), FormatBinary, nil
	}
	return OIDInt8, be64(uint64(v)), FormatBinary, nil
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
