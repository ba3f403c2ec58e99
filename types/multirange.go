package types

import "sort"

// Multirange is a decoded PostgreSQL multirange value: PostgreSQL stores it
// pre-sorted and pre-merged on the wire, but the constructor side of this
// codec re-applies the same normalization when a caller builds one by hand
// (SPEC_FULL.md §4.3 "Multirange").
type Multirange struct {
	ElemOID uint32
	Ranges  []Range
}

var multirangeElemType = map[uint32]uint32{
	OIDInt4MultiRange: OIDInt4,
	OIDInt8MultiRange: OIDInt8,
	OIDNumMultiRange:  OIDNumeric,
	OIDTSMultiRange:   OIDTimestamp,
	OIDTSTzMultiRange: OIDTimestampTz,
	OIDDateMultiRange: OIDDate,
}

var multirangeToRangeOID = map[uint32]uint32{
	OIDInt4MultiRange: OIDInt4Range,
	OIDInt8MultiRange: OIDInt8Range,
	OIDNumMultiRange:  OIDNumRange,
	OIDTSMultiRange:   OIDTSRange,
	OIDTSTzMultiRange: OIDTSTzRange,
	OIDDateMultiRange: OIDDateRange,
}

func registerMultirangeCodecs(r *Registry) {
	for mrOID, elemOID := range multirangeElemType {
		mrOID, elemOID := mrOID, elemOID
		rangeOID := multirangeToRangeOID[mrOID]
		r.RegisterDecoder(mrOID,
			func(buf []byte) (interface{}, error) { return decodeMultirangeText(r, elemOID, rangeOID, mrOID, buf) },
			func(buf []byte) (interface{}, error) { return decodeMultirangeBinary(r, elemOID, rangeOID, mrOID, buf) },
		)
	}
	r.RegisterEncoder(func(val interface{}) (uint32, []byte, Format, error) {
		return encodeMultirange(r, val)
	})
}

func decodeMultirangeBinary(reg *Registry, elemOID, rangeOID, mrOID uint32, buf []byte) (interface{}, error) {
	if len(buf) < 4 {
		return nil, errInvalid("multirange", nil)
	}
	n := be32ToU(buf[0:4])
	pos := 4
	ranges := make([]Range, 0, n)
	for i := uint32(0); i < n; i++ {
		if pos+4 > len(buf) {
			return nil, errInvalid("multirange", nil)
		}
		rlen := int(be32ToU(buf[pos : pos+4]))
		pos += 4
		if pos+rlen > len(buf) {
			return nil, errInvalid("multirange", nil)
		}
		rv, err := decodeRangeBinary(reg, elemOID, rangeOID, buf[pos:pos+rlen])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rv.(Range))
		pos += rlen
	}
	return mergeMultirange(elemOID, ranges), nil
}

func decodeMultirangeText(reg *Registry, elemOID, rangeOID, mrOID uint32, buf []byte) (interface{}, error) {
	s := string(buf)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, errInvalid("multirange", nil)
	}
	inner := s[1 : len(s)-1]
	var ranges []Range
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '[', '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ']', ')':
			depth--
			if depth == 0 {
				rv, err := decodeRangeText(reg, elemOID, rangeOID, []byte(inner[start:i+1]))
				if err != nil {
					return nil, err
				}
				ranges = append(ranges, rv.(Range))
			}
		}
	}
	return mergeMultirange(elemOID, ranges), nil
}

// mergeMultirange sorts non-empty ranges by lower bound and merges
// overlapping/adjacent ones, per SPEC_FULL.md §4.3.
func mergeMultirange(elemOID uint32, ranges []Range) Multirange {
	var nonEmpty []Range
	for _, r := range ranges {
		if !r.Empty {
			nonEmpty = append(nonEmpty, r)
		}
	}
	sort.Slice(nonEmpty, func(i, j int) bool {
		return compareBounds(nonEmpty[i].Lower, true, nonEmpty[j].Lower, true) < 0
	})

	var merged []Range
	for _, r := range nonEmpty {
		if len(merged) == 0 {
			merged = append(merged, r)
			continue
		}
		last := &merged[len(merged)-1]
		if rangesTouch(elemOID, *last, r) {
			if compareBounds(last.Upper, false, r.Upper, false) < 0 {
				last.Upper = r.Upper
			}
		} else {
			merged = append(merged, r)
		}
	}
	return Multirange{ElemOID: elemOID, Ranges: merged}
}

// rangesTouch reports whether b's lower bound falls at-or-before a's upper
// bound, or (for a discrete element type) is the inclusive value right after
// an inclusive upper bound, so they overlap or are adjacent and should merge.
func rangesTouch(elemOID uint32, a, b Range) bool {
	if a.Upper.Infinite || b.Lower.Infinite {
		return true
	}
	cmp := compareRangeValues(a.Upper.Value, b.Lower.Value)
	if cmp > 0 {
		return true
	}
	if cmp < 0 {
		return a.Upper.Inclusive && b.Lower.Inclusive && adjacentDiscrete(elemOID, a.Upper.Value, b.Lower.Value)
	}
	// equal values: touching unless both bounds exclusive on that side.
	return a.Upper.Inclusive || b.Lower.Inclusive
}

func adjacentDiscrete(elemOID uint32, upper, lower interface{}) bool {
	switch elemOID {
	case OIDInt4:
		return lower.(int32) == upper.(int32)+1
	case OIDInt8:
		return lower.(int64) == upper.(int64)+1
	case OIDDate:
		u := upper.(Date)
		l := lower.(Date)
		return l.Date == u.Date.AddDays(1)
	}
	return false
}

// compareBounds orders two bounds by (value, rank) using the rank trick
// from original_source/pagio/types/range.py's RangeBound: a lower bound's
// rank favors the value itself when inclusive, an upper bound's rank favors
// it when inclusive from the other side, giving a total order where
// exclusive bounds sort as if infinitesimally past/before the value.
func compareBounds(bound Bound, isLower bool, other Bound, otherIsLower bool) int {
	if bound.Infinite || other.Infinite {
		boundSign := infiniteSign(bound.Infinite, isLower)
		otherSign := infiniteSign(other.Infinite, otherIsLower)
		if boundSign != otherSign {
			if boundSign < otherSign {
				return -1
			}
			return 1
		}
		// Equal signs with at least one infinite only happens when both
		// are infinite (an infinite bound vs. a finite one always differs
		// in sign), so both are -infinity or both +infinity: equal.
		return 0
	}

	cmp := compareRangeValues(bound.Value, other.Value)
	if cmp != 0 {
		return cmp
	}
	return boundRank(bound, isLower) - boundRank(other, otherIsLower)
}

// infiniteSign returns -1 for -infinity (an infinite lower bound), +1 for
// +infinity (an infinite upper bound), and 0 for a finite bound.
func infiniteSign(infinite, isLower bool) int {
	if !infinite {
		return 0
	}
	if isLower {
		return -1
	}
	return 1
}

func boundRank(b Bound, isLower bool) int {
	if isLower {
		if b.Inclusive {
			return 0
		}
		return 1
	}
	if b.Inclusive {
		return 0
	}
	return -1
}

func encodeMultirange(reg *Registry, val interface{}) (uint32, []byte, Format, error) {
	mr, ok := val.(Multirange)
	if !ok {
		return 0, nil, FormatText, nil
	}
	mrOID := uint32(0)
	for m, e := range multirangeElemType {
		if e == mr.ElemOID {
			mrOID = m
			break
		}
	}
	if mrOID == 0 {
		return 0, nil, FormatText, errUnsupportedParam
	}
	merged := mergeMultirange(mr.ElemOID, mr.Ranges)

	buf := be32(uint32(len(merged.Ranges)))
	for _, r := range merged.Ranges {
		_, data, _, err := encodeRange(reg, r)
		if err != nil {
			return 0, nil, FormatText, err
		}
		buf = append(buf, be32(uint32(len(data)))...)
		buf = append(buf, data...)
	}
	return mrOID, buf, FormatBinary, nil
}
