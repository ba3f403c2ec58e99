package types

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric wraps shopspring/decimal.Decimal with the three PG-specific
// sentinel values (NaN, +Infinity, -Infinity) that an arbitrary-precision
// fixed-point type has no room for, per SPEC_FULL.md §4.2's numeric row.
type Numeric struct {
	Decimal decimal.Decimal
	Special string // "", "NaN", "Infinity", "-Infinity"
}

func (n Numeric) String() string {
	if n.Special != "" {
		return n.Special
	}
	return n.Decimal.String()
}

// IsSpecial reports whether n holds NaN or an infinity rather than a finite
// decimal.
func (n Numeric) IsSpecial() bool { return n.Special != "" }

// registerNumericCodec wires PG numeric, grounded bit-exactly on
// original_source/pagio/types/numeric.py's bin_numeric_to_python /
// numeric_to_pg (the pg_digit base-10000 grouping, the weight/exponent
// arithmetic, and the 0x0000/0x4000/0xC000/0xD000/0xF000 sign-header
// sentinels).
func registerNumericCodec(r *Registry) {
	r.RegisterDecoder(OIDNumeric, decodeNumericText, decodeNumericBinary)
	r.RegisterEncoder(encodeNumeric)
}

const (
	numericSignPos = 0x0000
	numericSignNeg = 0x4000
	numericNaN     = 0xC000
	numericPInf    = 0xD000
	numericNInf    = 0xF000
)

func decodeNumericText(buf []byte) (interface{}, error) {
	s := string(buf)
	switch s {
	case "NaN":
		return Numeric{Special: "NaN"}, nil
	case "Infinity":
		return Numeric{Special: "Infinity"}, nil
	case "-Infinity":
		return Numeric{Special: "-Infinity"}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errInvalid("numeric", err)
	}
	return Numeric{Decimal: d}, nil
}

func decodeNumericBinary(buf []byte) (interface{}, error) {
	if len(buf) < 8 {
		return nil, errInvalid("numeric", nil)
	}
	ndigits := be16ToU(buf[0:2])
	weight := int16(be16ToU(buf[2:4]))
	sign := be16ToU(buf[4:6])

	switch sign {
	case numericNaN:
		return Numeric{Special: "NaN"}, nil
	case numericPInf:
		return Numeric{Special: "Infinity"}, nil
	case numericNInf:
		return Numeric{Special: "-Infinity"}, nil
	case numericSignPos, numericSignNeg:
	default:
		return nil, errInvalid("numeric", nil)
	}

	digitsBuf := buf[8:]
	if len(digitsBuf) < int(ndigits)*2 {
		return nil, errInvalid("numeric", nil)
	}
	coeff := new(big.Int)
	ten4 := big.NewInt(10000)
	for i := 0; i < int(ndigits); i++ {
		pgDigit := be16ToU(digitsBuf[i*2 : i*2+2])
		if pgDigit > 9999 {
			return nil, errInvalid("numeric", nil)
		}
		coeff.Mul(coeff, ten4)
		coeff.Add(coeff, big.NewInt(int64(pgDigit)))
	}
	exp := (int32(weight) + 1 - int32(ndigits)) * 4

	if sign == numericSignNeg {
		coeff.Neg(coeff)
	}
	return Numeric{Decimal: decimal.NewFromBigInt(coeff, exp)}, nil
}

func be16ToU(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// numericToPG implements pagio's numeric_to_pg: group the decimal's digit
// string into base-10000 pg_digits, aligned on the decimal point.
func numericToPG(d decimal.Decimal) (digits []uint16, weight int16, negative, overflow bool) {
	coeff := d.Coefficient()
	exp := d.Exponent()

	negative = coeff.Sign() < 0
	digitStr := new(big.Int).Abs(coeff).Text(10)
	if digitStr == "0" {
		return nil, 0, false, false
	}

	nDecimalDigits := len(digitStr)
	if int64(exp) < -0x3FFF {
		return nil, 0, negative, true
	}
	q := (nDecimalDigits + int(exp))
	quot := q / 4
	rem := q % 4
	if rem < 0 {
		quot--
		rem += 4
	}
	pgWeight := quot
	if rem != 0 {
		pgWeight++
	}
	pgWeight--
	if pgWeight > 0x7FFF {
		return nil, 0, negative, true
	}

	lead := 0
	if rem != 0 {
		lead = 4 - rem
	}

	padded := strings.Repeat("0", lead) + digitStr
	for len(padded)%4 != 0 {
		padded += "0"
	}

	digits = make([]uint16, 0, len(padded)/4)
	for i := 0; i < len(padded); i += 4 {
		v, _ := strconv.Atoi(padded[i : i+4])
		digits = append(digits, uint16(v))
	}
	return digits, int16(pgWeight), negative, false
}

func encodeNumeric(val interface{}) (uint32, []byte, Format, error) {
	var n Numeric
	switch v := val.(type) {
	case Numeric:
		n = v
	case decimal.Decimal:
		n = Numeric{Decimal: v}
	default:
		return 0, nil, FormatText, nil
	}

	if n.IsSpecial() {
		var buf [8]byte
		var sign uint16
		switch n.Special {
		case "NaN":
			sign = numericNaN
		case "Infinity":
			sign = numericPInf
		case "-Infinity":
			sign = numericNInf
		default:
			return 0, nil, FormatText, nil
		}
		putU16(buf[0:2], 0)
		putU16(buf[2:4], 0)
		putU16(buf[4:6], sign)
		putU16(buf[6:8], 0)
		return OIDNumeric, buf[:], FormatBinary, nil
	}

	// dscale: decimal places after the point, never negative.
	exp := n.Decimal.Exponent()
	dscale := uint16(0)
	if exp < 0 {
		dscale = uint16(-exp)
	}

	digits, weight, negative, overflow := numericToPG(n.Decimal)
	if overflow {
		// Outside PG's numeric range: fall back to TEXT, per
		// original_source/pagio's documented fallback.
		return OIDNumeric, []byte(n.Decimal.String()), FormatText, nil
	}

	var buf []byte
	header := make([]byte, 8)
	putU16(header[0:2], uint16(len(digits)))
	putI16(header[2:4], weight)
	sign := uint16(numericSignPos)
	if negative {
		sign = numericSignNeg
	}
	putU16(header[4:6], sign)
	putU16(header[6:8], dscale)
	buf = append(buf, header...)
	for _, d := range digits {
		b := make([]byte, 2)
		putU16(b, d)
		buf = append(buf, b...)
	}
	return OIDNumeric, buf, FormatBinary, nil
}

func putU16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putI16(b []byte, v int16)  { putU16(b, uint16(v)) }
