package types

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/ha1tch/pgwire/pgerr"
)

// Hstore is the host representation of PostgreSQL's hstore extension type:
// an ordered-irrelevant string map with nullable values.
type Hstore map[string]*string

// hstore has no fixed OID (it is installed per-database as an extension),
// so unlike every other C14 auxiliary type it cannot be pre-registered in
// NewRegistry. A caller that knows its server's hstore OID (looked up from
// pg_type at connect time) wires it in explicitly with RegisterHstore.
func RegisterHstore(r *Registry, oid uint32) {
	r.RegisterDecoder(oid, decodeHstoreText, decodeHstoreBinary)
	r.RegisterEncoder(func(val interface{}) (uint32, []byte, Format, error) {
		h, ok := val.(Hstore)
		if !ok {
			return 0, nil, FormatText, nil
		}
		return oid, encodeHstoreText(h), FormatText, nil
	})
}

// decodeHstoreText parses PostgreSQL's hstore text format:
// `"key"=>"value", "key2"=>NULL, ...`
func decodeHstoreText(buf []byte) (interface{}, error) {
	h := make(Hstore)
	s := string(buf)
	pos := 0
	for pos < len(s) {
		for pos < len(s) && (s[pos] == ' ' || s[pos] == ',') {
			pos++
		}
		if pos >= len(s) {
			break
		}
		key, next, err := parseHstoreQuoted(s, pos)
		if err != nil {
			return nil, errInvalid("hstore", err)
		}
		pos = next
		for pos < len(s) && s[pos] == ' ' {
			pos++
		}
		if pos+2 > len(s) || s[pos:pos+2] != "=>" {
			return nil, errInvalid("hstore", pgerr.Protocol("expected '=>' in hstore at offset %d", pos))
		}
		pos += 2
		for pos < len(s) && s[pos] == ' ' {
			pos++
		}
		if strings.HasPrefix(s[pos:], "NULL") {
			h[key] = nil
			pos += 4
			continue
		}
		value, next2, err := parseHstoreQuoted(s, pos)
		if err != nil {
			return nil, errInvalid("hstore", err)
		}
		h[key] = &value
		pos = next2
	}
	return h, nil
}

func parseHstoreQuoted(s string, pos int) (string, int, error) {
	if pos >= len(s) || s[pos] != '"' {
		return "", pos, pgerr.Protocol("expected quoted hstore token at offset %d", pos)
	}
	pos++
	var buf bytes.Buffer
	for pos < len(s) {
		c := s[pos]
		if c == '\\' && pos+1 < len(s) {
			buf.WriteByte(s[pos+1])
			pos += 2
			continue
		}
		if c == '"' {
			return buf.String(), pos + 1, nil
		}
		buf.WriteByte(c)
		pos++
	}
	return "", pos, pgerr.Protocol("unterminated quoted hstore token")
}

func encodeHstoreText(h Hstore) []byte {
	var buf bytes.Buffer
	first := true
	for k, v := range h {
		if !first {
			buf.WriteString(", ")
		}
		first = false
		writeHstoreQuoted(&buf, k)
		buf.WriteString("=>")
		if v == nil {
			buf.WriteString("NULL")
		} else {
			writeHstoreQuoted(&buf, *v)
		}
	}
	return buf.Bytes()
}

func writeHstoreQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, c := range s {
		if c == '"' || c == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteRune(c)
	}
	buf.WriteByte('"')
}

// decodeHstoreBinary parses hstore's binary format: a count followed by
// (key_len:i32, key_bytes, value_len:i32 [-1=NULL], value_bytes) tuples.
func decodeHstoreBinary(buf []byte) (interface{}, error) {
	if len(buf) < 4 {
		return nil, errInvalid("hstore", pgerr.Protocol("short hstore header"))
	}
	count := int(binary.BigEndian.Uint32(buf[0:4]))
	pos := 4
	h := make(Hstore, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(buf) {
			return nil, errInvalid("hstore", pgerr.Protocol("short hstore key length"))
		}
		klen := int(int32(binary.BigEndian.Uint32(buf[pos : pos+4])))
		pos += 4
		if klen < 0 || pos+klen > len(buf) {
			return nil, errInvalid("hstore", pgerr.Protocol("invalid hstore key length"))
		}
		key := string(buf[pos : pos+klen])
		pos += klen

		if pos+4 > len(buf) {
			return nil, errInvalid("hstore", pgerr.Protocol("short hstore value length"))
		}
		vlen := int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if vlen < 0 {
			h[key] = nil
			continue
		}
		if pos+int(vlen) > len(buf) {
			return nil, errInvalid("hstore", pgerr.Protocol("invalid hstore value length"))
		}
		value := string(buf[pos : pos+int(vlen)])
		h[key] = &value
		pos += int(vlen)
	}
	return h, nil
}
