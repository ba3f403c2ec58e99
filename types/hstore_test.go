package types

import "testing"

const hstoreTestOID = 16800

func TestHstoreTextRoundTrip(t *testing.T) {
	r := NewRegistry()
	RegisterHstore(r, hstoreTestOID)

	v, err := r.Decode(hstoreTestOID, FormatText, []byte(`"a"=>"1", "b"=>NULL`))
	if err != nil {
		t.Fatalf("Decode(hstore text) error = %v", err)
	}
	h := v.(Hstore)
	if h["a"] == nil || *h["a"] != "1" {
		t.Errorf(`h["a"] = %v, want "1"`, h["a"])
	}
	if h["b"] != nil {
		t.Errorf(`h["b"] = %v, want nil`, h["b"])
	}

	oid, data, format, err := r.Encode(h)
	if err != nil || oid != hstoreTestOID || format != FormatText {
		t.Fatalf("Encode(Hstore) = (%d, _, %v, %v)", oid, format, err)
	}
	v2, err := r.Decode(hstoreTestOID, FormatText, data)
	if err != nil {
		t.Fatalf("Decode(re-encoded hstore) error = %v", err)
	}
	h2 := v2.(Hstore)
	if h2["a"] == nil || *h2["a"] != "1" || h2["b"] != nil {
		t.Errorf("round trip = %+v, want equivalent to original", h2)
	}
}

func TestHstoreTextWithEscapedQuotes(t *testing.T) {
	r := NewRegistry()
	RegisterHstore(r, hstoreTestOID)

	v, err := r.Decode(hstoreTestOID, FormatText, []byte(`"k"=>"has \"quotes\""`))
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	h := v.(Hstore)
	if h["k"] == nil || *h["k"] != `has "quotes"` {
		t.Errorf(`h["k"] = %v, want has "quotes"`, h["k"])
	}
}

func TestHstoreBinaryRoundTrip(t *testing.T) {
	r := NewRegistry()
	RegisterHstore(r, hstoreTestOID)

	val := "1"
	h := Hstore{"a": &val, "b": nil}

	buf := encodeHstoreBinaryForTest(h)
	v, err := r.Decode(hstoreTestOID, FormatBinary, buf)
	if err != nil {
		t.Fatalf("Decode(hstore binary) error = %v", err)
	}
	got := v.(Hstore)
	if got["a"] == nil || *got["a"] != "1" || got["b"] != nil {
		t.Errorf("decoded = %+v, want equivalent to original", got)
	}
}

// encodeHstoreBinaryForTest hand-builds the wire format decodeHstoreBinary
// expects, since the package has no exported binary encoder for hstore
// (Postgres always sends it in binary but the driver only ever emits text).
func encodeHstoreBinaryForTest(h Hstore) []byte {
	buf := be32(uint32(len(h)))
	for k, v := range h {
		buf = append(buf, be32(uint32(len(k)))...)
		buf = append(buf, []byte(k)...)
		if v == nil {
			buf = append(buf, be32(uint32(int32(-1)))...)
			continue
		}
		buf = append(buf, be32(uint32(len(*v)))...)
		buf = append(buf, []byte(*v)...)
	}
	return buf
}
