package types

import "testing"

func TestRangeTextInclusiveExclusive(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("[1,10)"))
	if err != nil {
		t.Fatalf("Decode(int4range) error = %v", err)
	}
	rng := v.(Range)
	if rng.Empty {
		t.Fatal("rng.Empty = true, want false")
	}
	if rng.Lower.Value.(int32) != 1 || !rng.Lower.Inclusive {
		t.Errorf("Lower = %+v, want inclusive 1", rng.Lower)
	}
	if rng.Upper.Value.(int32) != 10 || rng.Upper.Inclusive {
		t.Errorf("Upper = %+v, want exclusive 10", rng.Upper)
	}
}

func TestDiscreteRangeNormalizesToCanonicalForm(t *testing.T) {
	r := NewRegistry()
	// [1,5] on a discrete (int4) range normalizes to [1,6).
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("[1,5]"))
	if err != nil {
		t.Fatalf("Decode(int4range) error = %v", err)
	}
	rng := v.(Range)
	if rng.Upper.Value.(int32) != 6 || rng.Upper.Inclusive {
		t.Errorf("normalized Upper = %+v, want exclusive 6", rng.Upper)
	}
}

func TestRangeEmptyText(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("empty"))
	if err != nil {
		t.Fatalf("Decode(empty range) error = %v", err)
	}
	if !v.(Range).Empty {
		t.Error("Empty = false, want true")
	}
}

func TestRangeInvertedBoundsCollapsesToEmpty(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("[10,1)"))
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !v.(Range).Empty {
		t.Error("inverted-bound range did not collapse to empty")
	}
}

func TestRangeUnboundedSides(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("(,10)"))
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	rng := v.(Range)
	if !rng.Lower.Infinite {
		t.Error("Lower.Infinite = false, want true for an unbounded lower side")
	}
}

func TestRangeBinaryRoundTrip(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(OIDInt4Range, FormatText, []byte("[1,10)"))
	if err != nil {
		t.Fatalf("Decode(text) error = %v", err)
	}
	rng := v.(Range)

	oid, data, format, err := r.Encode(rng)
	if err != nil || oid != OIDInt4Range || format != FormatBinary {
		t.Fatalf("Encode(Range) = (%d, _, %v, %v)", oid, format, err)
	}
	v2, err := r.Decode(OIDInt4Range, FormatBinary, data)
	if err != nil {
		t.Fatalf("Decode(encoded range) error = %v", err)
	}
	got := v2.(Range)
	if got.Lower.Value.(int32) != 1 || got.Upper.Value.(int32) != 10 {
		t.Errorf("round trip = %+v, want [1,10)", got)
	}
}

func TestRangeStringFormatting(t *testing.T) {
	r := NewRegistry()
	v, _ := r.Decode(OIDInt4Range, FormatText, []byte("[1,10)"))
	if got := v.(Range).String(); got != "[1,10)" {
		t.Errorf("String() = %q, want [1,10)", got)
	}
	if got := (Range{Empty: true}).String(); got != "empty" {
		t.Errorf("String() on empty range = %q, want empty", got)
	}
}
