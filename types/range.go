package types

import (
	"strings"
)

// rangeElemType maps a range OID to its element OID; discreteRangeOIDs
// below lists the range types whose bounds normalize() rewrites.
// Grounded on original_source/pagio/types/numeric.py's
// PGInt4Range/PGInt8Range/PGNumRange and range.py's DiscreteRange.
var rangeElemType = map[uint32]uint32{
	OIDInt4Range: OIDInt4,
	OIDInt8Range: OIDInt8,
	OIDNumRange:  OIDNumeric,
	OIDTSRange:   OIDTimestamp,
	OIDTSTzRange: OIDTimestampTz,
	OIDDateRange: OIDDate,
}

var discreteRangeOIDs = map[uint32]bool{
	OIDInt4Range: true,
	OIDInt8Range: true,
	OIDDateRange: true,
}

// Range flag bits, per SPEC_FULL.md §4.3.
const (
	rangeEmpty = 1 << iota
	rangeLowerInclusive
	rangeUpperInclusive
	rangeLowerInfinite
	rangeUpperInfinite
)

// Bound is one side of a Range. Infinite bounds carry no Value.
type Bound struct {
	Value     interface{}
	Infinite  bool
	Inclusive bool
}

// Range is a decoded PostgreSQL range value.
type Range struct {
	ElemOID uint32
	Empty   bool
	Lower   Bound
	Upper   Bound
}

func (r Range) String() string {
	if r.Empty {
		return "empty"
	}
	var buf strings.Builder
	if r.Lower.Inclusive {
		buf.WriteByte('[')
	} else {
		buf.WriteByte('(')
	}
	if !r.Lower.Infinite {
		buf.WriteString(elemToString(r.Lower.Value))
	}
	buf.WriteByte(',')
	if !r.Upper.Infinite {
		buf.WriteString(elemToString(r.Upper.Value))
	}
	if r.Upper.Inclusive {
		buf.WriteByte(']')
	} else {
		buf.WriteByte(')')
	}
	return buf.String()
}

func elemToString(v interface{}) string {
	if s, ok := v.(fmtStringer); ok {
		return s.String()
	}
	return toDisplayString(v)
}

// normalize rewrites a discrete range's bounds to the canonical `[lo,hi)`
// form, per SPEC_FULL.md §4.3 "Discrete range normalization": equality on
// discrete ranges is then purely structural.
func normalize(elemOID uint32, r Range) Range {
	if r.Empty || !discreteRangeOIDs[elemOID] {
		return r
	}
	if !r.Lower.Infinite && !r.Lower.Inclusive {
		r.Lower.Value = incrementDiscrete(elemOID, r.Lower.Value)
		r.Lower.Inclusive = true
	}
	if !r.Upper.Infinite && r.Upper.Inclusive {
		r.Upper.Value = incrementDiscrete(elemOID, r.Upper.Value)
		r.Upper.Inclusive = false
	}
	return r
}

func incrementDiscrete(elemOID uint32, v interface{}) interface{} {
	switch elemOID {
	case OIDInt4Range:
		return v.(int32) + 1
	case OIDInt8Range:
		return v.(int64) + 1
	case OIDDateRange:
		d := v.(Date)
		d.Date = d.Date.AddDays(1)
		return d
	}
	return v
}

// checkInvariant validates the "empty XOR (lower <= upper)" and the
// equal-bounds-with-any-exclusive-side collapses-to-empty rule from
// SPEC_FULL.md §4.3.
func checkInvariant(r Range) Range {
	if r.Empty || r.Lower.Infinite || r.Upper.Infinite {
		return r
	}
	cmp := compareRangeValues(r.Lower.Value, r.Upper.Value)
	if cmp > 0 {
		return Range{ElemOID: r.ElemOID, Empty: true}
	}
	if cmp == 0 && (!r.Lower.Inclusive || !r.Upper.Inclusive) {
		return Range{ElemOID: r.ElemOID, Empty: true}
	}
	return r
}

func registerRangeCodecs(r *Registry) {
	for rangeOID, elemOID := range rangeElemType {
		rangeOID, elemOID := rangeOID, elemOID
		r.RegisterDecoder(rangeOID,
			func(buf []byte) (interface{}, error) { return decodeRangeText(r, elemOID, rangeOID, buf) },
			func(buf []byte) (interface{}, error) { return decodeRangeBinary(r, elemOID, rangeOID, buf) },
		)
	}
	r.RegisterEncoder(func(val interface{}) (uint32, []byte, Format, error) {
		return encodeRange(r, val)
	})
}

func decodeRangeBinary(reg *Registry, elemOID, rangeOID uint32, buf []byte) (interface{}, error) {
	if len(buf) < 1 {
		return nil, errInvalid("range", nil)
	}
	flags := buf[0]
	if flags&rangeEmpty != 0 {
		return normalize(rangeOID, Range{ElemOID: elemOID, Empty: true}), nil
	}
	pos := 1
	rng := Range{ElemOID: elemOID}
	if flags&rangeLowerInfinite != 0 {
		rng.Lower = Bound{Infinite: true}
	} else {
		v, n, err := readLengthPrefixed(reg, elemOID, buf[pos:])
		if err != nil {
			return nil, err
		}
		rng.Lower = Bound{Value: v, Inclusive: flags&rangeLowerInclusive != 0}
		pos += n
	}
	if flags&rangeUpperInfinite != 0 {
		rng.Upper = Bound{Infinite: true}
	} else {
		v, _, err := readLengthPrefixed(reg, elemOID, buf[pos:])
		if err != nil {
			return nil, err
		}
		rng.Upper = Bound{Value: v, Inclusive: flags&rangeUpperInclusive != 0}
	}
	return checkInvariant(normalize(rangeOID, rng)), nil
}

func readLengthPrefixed(reg *Registry, elemOID uint32, buf []byte) (interface{}, int, error) {
	if len(buf) < 4 {
		return nil, 0, errInvalid("range", nil)
	}
	n := int(int32(be32ToU(buf[0:4])))
	if n < 0 || 4+n > len(buf) {
		return nil, 0, errInvalid("range", nil)
	}
	v, err := reg.Decode(elemOID, FormatBinary, buf[4:4+n])
	return v, 4 + n, err
}

func decodeRangeText(reg *Registry, elemOID, rangeOID uint32, buf []byte) (interface{}, error) {
	s := string(buf)
	if s == "empty" {
		return normalize(rangeOID, Range{ElemOID: elemOID, Empty: true}), nil
	}
	if len(s) < 3 {
		return nil, errInvalid("range", nil)
	}
	lowerInclusive := s[0] == '['
	upperInclusive := s[len(s)-1] == ']'
	inner := s[1 : len(s)-1]
	parts := splitRangeText(inner)
	if len(parts) != 2 {
		return nil, errInvalid("range", nil)
	}
	rng := Range{ElemOID: elemOID}
	if parts[0] == "" {
		rng.Lower = Bound{Infinite: true}
	} else {
		v, err := reg.Decode(elemOID, FormatText, []byte(unquoteRangeBound(parts[0])))
		if err != nil {
			return nil, err
		}
		rng.Lower = Bound{Value: v, Inclusive: lowerInclusive}
	}
	if parts[1] == "" {
		rng.Upper = Bound{Infinite: true}
	} else {
		v, err := reg.Decode(elemOID, FormatText, []byte(unquoteRangeBound(parts[1])))
		if err != nil {
			return nil, err
		}
		rng.Upper = Bound{Value: v, Inclusive: upperInclusive}
	}
	return checkInvariant(normalize(rangeOID, rng)), nil
}

func splitRangeText(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func unquoteRangeBound(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, "\\\"", "\"")
		inner = strings.ReplaceAll(inner, "\\\\", "\\")
		return inner
	}
	return s
}

func encodeRange(reg *Registry, val interface{}) (uint32, []byte, Format, error) {
	rng, ok := val.(Range)
	if !ok {
		return 0, nil, FormatText, nil
	}
	rangeOID := uint32(0)
	for ro, eo := range rangeElemType {
		if eo == rng.ElemOID {
			rangeOID = ro
			break
		}
	}
	if rangeOID == 0 {
		return 0, nil, FormatText, errUnsupportedParam
	}
	rng = normalize(rangeOID, rng)

	if rng.Empty {
		return rangeOID, []byte{rangeEmpty}, FormatBinary, nil
	}

	var flags byte
	if rng.Lower.Infinite {
		flags |= rangeLowerInfinite
	} else if rng.Lower.Inclusive {
		flags |= rangeLowerInclusive
	}
	if rng.Upper.Infinite {
		flags |= rangeUpperInfinite
	} else if rng.Upper.Inclusive {
		flags |= rangeUpperInclusive
	}

	buf := []byte{flags}
	if !rng.Lower.Infinite {
		_, data, _, err := reg.Encode(rng.Lower.Value)
		if err != nil {
			return 0, nil, FormatText, err
		}
		buf = append(buf, be32(uint32(len(data)))...)
		buf = append(buf, data...)
	}
	if !rng.Upper.Infinite {
		_, data, _, err := reg.Encode(rng.Upper.Value)
		if err != nil {
			return 0, nil, FormatText, err
		}
		buf = append(buf, be32(uint32(len(data)))...)
		buf = append(buf, data...)
	}
	return rangeOID, buf, FormatBinary, nil
}

// compareRangeValues orders the element types this driver supports in
// ranges: integers, Numeric, Date, Timestamp. Used both by checkInvariant
// and by Multirange's sort/merge.
func compareRangeValues(a, b interface{}) int {
	switch av := a.(type) {
	case int32:
		bv := b.(int32)
		return compareInt64(int64(av), int64(bv))
	case int64:
		bv := b.(int64)
		return compareInt64(av, bv)
	case Numeric:
		bv := b.(Numeric)
		return av.Decimal.Cmp(bv.Decimal)
	case Date:
		bv := b.(Date)
		return compareInt64(daysSinceEpoch(av.Date), daysSinceEpoch(bv.Date))
	case Timestamp:
		bv := b.(Timestamp)
		la := daysSinceEpoch(av.DateTime.Date)*86400000000 + usecsFromCivilTime(av.DateTime.Time)
		lb := daysSinceEpoch(bv.DateTime.Date)*86400000000 + usecsFromCivilTime(bv.DateTime.Time)
		return compareInt64(la, lb)
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toDisplayString(v interface{}) string {
	switch vv := v.(type) {
	case int32:
		return itoa64(int64(vv))
	case int64:
		return itoa64(vv)
	}
	return ""
}

func itoa64(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
