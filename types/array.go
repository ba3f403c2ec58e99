package types


// Array is the decoded form of a PostgreSQL array value: possibly
// multi-dimensional, with SQL NULL elements represented as nil entries in
// Values (row-major order), per SPEC_FULL.md §4.3.
type Array struct {
	ElemOID uint32
	Dims    []int32 // length of each dimension
	Lower   []int32 // lower bound of each dimension (usually all 1)
	Values  []interface{}
}

// arrayElemType associates an array OID with the element OID used to
// decode/encode it. Every builtin array type PostgreSQL ships uses ','
// as its text delimiter except box ('box[]' uses ';', out of scope here);
// the text parser accepts either delimiter for every array type.
var arrayElemType = map[uint32]uint32{
	OIDBoolArray:     OIDBool,
	OIDByteaArray:    OIDBytea,
	OIDCharArray:     OIDChar,
	OIDNameArray:     OIDName,
	OIDInt2Array:     OIDInt2,
	OIDInt4Array:     OIDInt4,
	OIDInt8Array:     OIDInt8,
	OIDTextArray:     OIDText,
	OIDVarcharArray:  OIDVarchar,
	OIDFloat4Array:   OIDFloat4,
	OIDFloat8Array:   OIDFloat8,
	OIDNumericArray:  OIDNumeric,
	OIDUUIDArray:     OIDUUID,
	OIDDateArray:     OIDDate,
	OIDTimestampArray: OIDTimestamp,
	OIDJSONBArray:    OIDJSONB,
	OIDCIDRArray:     OIDCIDR,
}

// registerArrayCodecs wires every array OID in arrayElemType. The TEXT
// grammar (nested braces, quoting, ',' or ';' delimiter) is grounded on
// original_source/pagio/types/array.py's ArrayConverter/parse_quoted/
// parse_unquoted; the BINARY layout (ndim/flags/elem_oid/dim headers) on
// its BinArrayConverter.
func registerArrayCodecs(r *Registry) {
	for arrayOID, elemOID := range arrayElemType {
		arrayOID, elemOID := arrayOID, elemOID
		r.RegisterDecoder(arrayOID,
			func(buf []byte) (interface{}, error) { return decodeArrayText(r, elemOID, arrayOID, buf) },
			func(buf []byte) (interface{}, error) { return decodeArrayBinary(r, elemOID, buf) },
		)
	}
	r.RegisterEncoder(func(val interface{}) (uint32, []byte, Format, error) {
		return encodeArray(r, val)
	})
}

// ---- BINARY ----

func decodeArrayBinary(r *Registry, expectOID uint32, buf []byte) (interface{}, error) {
	if len(buf) < 12 {
		return nil, errInvalid("array", nil)
	}
	ndim := be32ToU(buf[0:4])
	flags := int32(be32ToU(buf[4:8]))
	elemOID := be32ToU(buf[8:12])
	if elemOID != expectOID {
		return nil, errInvalid("array", nil)
	}
	if ndim > 6 {
		return nil, errInvalid("array", nil)
	}
	if flags&^1 != 0 {
		return nil, errInvalid("array", nil)
	}
	arr := Array{ElemOID: elemOID}
	if ndim == 0 {
		return arr, nil
	}
	pos := 12
	dims := make([]int32, ndim)
	lower := make([]int32, ndim)
	for i := 0; i < int(ndim); i++ {
		dims[i] = int32(be32ToU(buf[pos : pos+4]))
		lower[i] = int32(be32ToU(buf[pos+4 : pos+8]))
		pos += 8
	}
	arr.Dims = dims
	arr.Lower = lower

	total := int32(1)
	for _, d := range dims {
		total *= d
	}
	values := make([]interface{}, 0, total)
	for i := int32(0); i < total; i++ {
		if pos+4 > len(buf) {
			return nil, errInvalid("array", nil)
		}
		itemLen := int32(be32ToU(buf[pos : pos+4]))
		pos += 4
		if itemLen == -1 {
			values = append(values, nil)
			continue
		}
		if pos+int(itemLen) > len(buf) {
			return nil, errInvalid("array", nil)
		}
		v, err := r.Decode(elemOID, FormatBinary, buf[pos:pos+int(itemLen)])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		pos += int(itemLen)
	}
	arr.Values = values
	return arr, nil
}

// ---- TEXT ----

func decodeArrayText(r *Registry, elemOID, arrayOID uint32, buf []byte) (interface{}, error) {
	// Skip an optional leading dimension prefix, e.g. "[1:3]=".
	i := 0
	for i < len(buf) && buf[i] != '{' {
		i++
	}
	if i == len(buf) {
		return nil, errInvalid("array", nil)
	}
	nested, consumed, err := parseArrayText(r, elemOID, buf[i:])
	if err != nil {
		return nil, err
	}
	if i+consumed != len(buf) {
		return nil, errInvalid("array", nil)
	}
	return Array{ElemOID: elemOID, Values: flattenTo1D(nested), Dims: dimsOf(nested)}, nil
}

// parseArrayText parses one '{' ... '}' level, returning either a nested
// []interface{} (sub-arrays present) or a flat []interface{} of leaf values,
// plus the number of bytes consumed.
func parseArrayText(r *Registry, elemOID uint32, buf []byte) ([]interface{}, int, error) {
	if len(buf) == 0 || buf[0] != '{' {
		return nil, 0, errInvalid("array", nil)
	}
	var vals []interface{}
	i := 1
	for i < len(buf) {
		switch buf[i] {
		case '}':
			return vals, i + 1, nil
		case '{':
			sub, n, err := parseArrayText(r, elemOID, buf[i:])
			if err != nil {
				return nil, 0, err
			}
			vals = append(vals, sub)
			i += n
		case '"':
			v, n, err := parseQuotedElem(r, elemOID, buf[i:])
			if err != nil {
				return nil, 0, err
			}
			vals = append(vals, v)
			i += n
		default:
			v, n, err := parseUnquotedElem(r, elemOID, buf[i:])
			if err != nil {
				return nil, 0, err
			}
			vals = append(vals, v)
			i += n
		}
		if i >= len(buf) {
			break
		}
		switch buf[i] {
		case '}':
			return vals, i + 1, nil
		case ',', ';':
			i++
		default:
			return nil, 0, errInvalid("array", nil)
		}
	}
	return nil, 0, errInvalid("array", nil)
}

func parseQuotedElem(r *Registry, elemOID uint32, buf []byte) (interface{}, int, error) {
	var out []byte
	i := 1
	for i < len(buf) {
		c := buf[i]
		switch c {
		case '\\':
			if i+1 < len(buf) {
				out = append(out, buf[i+1])
				i += 2
				continue
			}
			return nil, 0, errInvalid("array", nil)
		case '"':
			v, err := r.Decode(elemOID, FormatText, out)
			if err != nil {
				return nil, 0, err
			}
			return v, i + 1, nil
		default:
			out = append(out, c)
			i++
		}
	}
	return nil, 0, errInvalid("array", nil)
}

func parseUnquotedElem(r *Registry, elemOID uint32, buf []byte) (interface{}, int, error) {
	i := 0
	for i < len(buf) && buf[i] != ',' && buf[i] != ';' && buf[i] != '}' {
		i++
	}
	raw := buf[:i]
	if string(raw) == "NULL" {
		return nil, i, nil
	}
	v, err := r.Decode(elemOID, FormatText, raw)
	if err != nil {
		return nil, 0, err
	}
	return v, i, nil
}

// flattenTo1D walks a (possibly nested) parse tree in row-major order.
func flattenTo1D(vals []interface{}) []interface{} {
	var out []interface{}
	var walk func([]interface{})
	walk = func(v []interface{}) {
		for _, e := range v {
			if sub, ok := e.([]interface{}); ok {
				walk(sub)
			} else {
				out = append(out, e)
			}
		}
	}
	walk(vals)
	return out
}

func dimsOf(vals []interface{}) []int32 {
	var dims []int32
	cur := vals
	for {
		dims = append(dims, int32(len(cur)))
		if len(cur) == 0 {
			break
		}
		sub, ok := cur[0].([]interface{})
		if !ok {
			break
		}
		cur = sub
	}
	return dims
}

// ---- encode ----

func encodeArray(r *Registry, val interface{}) (uint32, []byte, Format, error) {
	arr, ok := val.(Array)
	if !ok {
		return 0, nil, FormatText, nil
	}
	arrayOID := uint32(0)
	for a, e := range arrayElemType {
		if e == arr.ElemOID {
			arrayOID = a
			break
		}
	}
	if arrayOID == 0 {
		return 0, nil, FormatText, errUnsupportedParam
	}

	dims := arr.Dims
	lower := arr.Lower
	if len(dims) == 0 {
		dims = []int32{int32(len(arr.Values))}
	}
	if len(lower) == 0 {
		lower = make([]int32, len(dims))
		for i := range lower {
			lower[i] = 1
		}
	}

	var buf []byte
	buf = append(buf, be32(uint32(len(dims)))...)
	buf = append(buf, be32(0)...) // flags
	buf = append(buf, be32(arr.ElemOID)...)
	for i, d := range dims {
		buf = append(buf, be32(uint32(d))...)
		buf = append(buf, be32(uint32(lower[i]))...)
	}

	for _, v := range arr.Values {
		if v == nil {
			buf = append(buf, be32(uint32(int32(-1)))...)
			continue
		}
		_, data, _, err := r.Encode(v)
		if err != nil {
			return 0, nil, FormatText, err
		}
		buf = append(buf, be32(uint32(len(data)))...)
		buf = append(buf, data...)
	}
	return arrayOID, buf, FormatBinary, nil
}
