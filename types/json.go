package types

// registerJSONCodecs wires json (plain UTF-8 text both ways) and jsonb
// (the same, prefixed on the wire with a single 0x01 version byte per
// SPEC_FULL.md §4.2).
func registerJSONCodecs(r *Registry) {
	r.RegisterDecoder(OIDJSON, decodeText, decodeText)
	r.RegisterDecoder(OIDJSONB, decodeJSONBText, decodeJSONBBinary)
	r.RegisterEncoder(encodeJSON)
}

const jsonbVersion = 1

func decodeJSONBBinary(buf []byte) (interface{}, error) {
	if len(buf) < 1 || buf[0] != jsonbVersion {
		return nil, errInvalid("jsonb", nil)
	}
	return string(buf[1:]), nil
}

func decodeJSONBText(buf []byte) (interface{}, error) {
	return string(buf), nil
}

// JSON tags a string as a json parameter when the caller wants it encoded
// as OID 114 rather than the OID-0 unknown fallback regular strings use.
type JSON string

// JSONB tags a string as a jsonb parameter.
type JSONB string

func encodeJSON(val interface{}) (uint32, []byte, Format, error) {
	switch v := val.(type) {
	case JSON:
		return OIDJSON, []byte(v), FormatText, nil
	case JSONB:
		buf := make([]byte, 1+len(v))
		buf[0] = jsonbVersion
		copy(buf[1:], v)
		return OIDJSONB, buf, FormatBinary, nil
	}
	return 0, nil, FormatText, nil
}
