package types

// registerTextCodecs wires the UTF-8 text family: text/varchar/bpchar/name/
// char/xml all share an identical wire representation (raw UTF-8 bytes in
// both TEXT and BINARY), per SPEC_FULL.md §4.2.
func registerTextCodecs(r *Registry) {
	for _, oid := range []uint32{
		OIDText, OIDVarchar, OIDBPChar, OIDName, OIDChar, OIDXML, OIDJSON,
	} {
		r.RegisterDecoder(oid, decodeText, decodeText)
	}
	r.RegisterEncoder(encodeText)
}

func decodeText(buf []byte) (interface{}, error) {
	return string(buf), nil
}

// encodeText sends Go strings with OID 0 (unknown) so the server infers the
// destination type from context, per SPEC_FULL.md §4.2's "Parameter
// encoding policy". A value tagged with an explicit PG type (the JSON and
// JSONB string types in json.go) is a different Go type and is handled by
// its own encoder.
func encodeText(val interface{}) (uint32, []byte, Format, error) {
	s, ok := val.(string)
	if !ok {
		return 0, nil, FormatText, nil
	}
	return 0, []byte(s), FormatText, nil
}

// defaultEncode is the last-resort fallback Registry.Encode calls when no
// registered encoder claimed the value: strings and byte slices still go out
// as TEXT/bytea respectively, and everything else is rendered with its
// default string form so a caller's fmt.Stringer types still work.
func defaultEncode(val interface{}) (uint32, []byte, Format, error) {
	switch v := val.(type) {
	case string:
		return 0, []byte(v), FormatText, nil
	case []byte:
		return OIDBytea, v, FormatBinary, nil
	case fmtStringer:
		return 0, []byte(v.String()), FormatText, nil
	}
	return 0, nil, FormatText, errUnsupportedParam
}

type fmtStringer interface {
	String() string
}
